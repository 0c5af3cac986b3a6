// Copyright 2025 Emiliano Spinella (eminwux)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the static service definitions and resolves them
// against live configuration.
package registry

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	ContainerPrefix = "devstack_"
	ImagePrefix     = "devstack-"

	DefaultGracePeriod = 2 * time.Second
)

// ConfigProvider supplies the live values merged into descriptors. It is read on
// every Resolve, so changes apply to the next toggle.
type ConfigProvider interface {
	HostPort(service string) (int, bool)
	ProjectsDir() string
	DatabaseRootPassword() string
	DatabaseName() string
	BuildDir() string
}

// Definition is the static part of a service.
type Definition struct {
	Name            string
	Image           string // empty means built locally from BuildDir/<Name>
	DefaultHostPort int
	ContainerPort   int
	ExtraPorts      []modelhub.PortBinding
	// ProjectsMount is the container path the projects directory is mounted on.
	ProjectsMount string
	Volumes       []modelhub.VolumeMount
	Env           func(cfg ConfigProvider) map[string]string
	Links         []string
	DependsOn     []string
	GracePeriod   time.Duration
	ExtraRunArgs  []string
}

func ContainerName(service string) string {
	return ContainerPrefix + service
}

// Registry resolves service names to descriptors. Services keep the order in
// which they were defined.
type Registry struct {
	cfg   ConfigProvider
	defs  []Definition
	index map[string]int
}

func New(cfg ConfigProvider, defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	r := &Registry{cfg: cfg, index: make(map[string]int, len(defs))}
	for _, d := range defs {
		key := strings.ToLower(d.Name)
		if key == "" {
			return nil, fmt.Errorf("%w: definition without a name", errdefs.ErrServiceNameRequired)
		}
		if _, dup := r.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate service %q", errdefs.ErrConfig, d.Name)
		}
		r.index[key] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	for _, d := range r.defs {
		for _, dep := range d.DependsOn {
			if _, ok := r.index[strings.ToLower(dep)]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %q", errdefs.ErrUnknownService, d.Name, dep)
			}
		}
	}
	return r, nil
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

func (r *Registry) lookup(name string) (Definition, bool) {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Resolve merges the static definition of name with the current configuration.
// The lookup is case-insensitive.
func (r *Registry) Resolve(name string) (modelhub.ServiceDescriptor, error) {
	if strings.TrimSpace(name) == "" {
		return modelhub.ServiceDescriptor{}, errdefs.ErrServiceNameRequired
	}
	d, ok := r.lookup(name)
	if !ok {
		return modelhub.ServiceDescriptor{}, fmt.Errorf("%w: %q", errdefs.ErrUnknownService, name)
	}

	desc := modelhub.ServiceDescriptor{
		Name:          d.Name,
		ContainerName: ContainerName(d.Name),
		Image:         d.Image,
		HostPort:      d.DefaultHostPort,
		ContainerPort: d.ContainerPort,
		ExtraPorts:    append([]modelhub.PortBinding(nil), d.ExtraPorts...),
		DependsOn:     append([]string(nil), d.DependsOn...),
		GracePeriod:   d.GracePeriod,
		ExtraRunArgs:  append([]string(nil), d.ExtraRunArgs...),
	}
	if desc.GracePeriod <= 0 {
		desc.GracePeriod = DefaultGracePeriod
	}
	if r.cfg != nil {
		if p, ok := r.cfg.HostPort(d.Name); ok && p >= modelhub.MinPort && p <= modelhub.MaxPort {
			desc.HostPort = p
		}
	}
	if desc.Image == "" {
		desc.Image = ImagePrefix + d.Name
		if r.cfg != nil && r.cfg.BuildDir() != "" {
			desc.BuildContext = filepath.Join(r.cfg.BuildDir(), d.Name)
		}
	}
	if d.ProjectsMount != "" && r.cfg != nil && r.cfg.ProjectsDir() != "" {
		desc.VolumeMounts = append(desc.VolumeMounts, modelhub.VolumeMount{
			HostPath:      r.cfg.ProjectsDir(),
			ContainerPath: d.ProjectsMount,
		})
	}
	desc.VolumeMounts = append(desc.VolumeMounts, d.Volumes...)
	if d.Env != nil {
		desc.ExtraEnv = maps.Clone(d.Env(r.cfg))
	}
	for _, l := range d.Links {
		desc.Links = append(desc.Links, ContainerName(l))
	}
	return desc, nil
}

// All resolves every service in registry order.
func (r *Registry) All() []modelhub.ServiceDescriptor {
	out := make([]modelhub.ServiceDescriptor, 0, len(r.defs))
	for _, d := range r.defs {
		desc, err := r.Resolve(d.Name)
		if err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// Dependencies returns the canonical names name depends on.
func (r *Registry) Dependencies(name string) ([]string, error) {
	d, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errdefs.ErrUnknownService, name)
	}
	deps := make([]string, 0, len(d.DependsOn))
	for _, dep := range d.DependsOn {
		dd, _ := r.lookup(dep)
		deps = append(deps, dd.Name)
	}
	return deps, nil
}

// PortMap returns every host port currently bound by a service.
func (r *Registry) PortMap() map[int]string {
	m := make(map[int]string)
	for _, desc := range r.All() {
		for _, p := range desc.Ports() {
			m[p.HostPort] = desc.Name
		}
	}
	return m
}

func (r *Registry) ServiceForPort(port int) (string, bool) {
	name, ok := r.PortMap()[port]
	return name, ok
}
