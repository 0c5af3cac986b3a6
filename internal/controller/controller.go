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

package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/docker"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
)

const DefaultLogTail = 20

type Controller interface {
	Toggle(ctx context.Context, name string) (modelhub.ToggleResult, error)
	State(name string) (modelhub.ServiceState, string)
	Seed(name string, state modelhub.ServiceState)
	Build(ctx context.Context, names ...string) ([]BuildResult, error)
	Logs(ctx context.Context, name string, tail int) ([]string, error)
}

// Resolver is the part of the service registry the controller needs.
type Resolver interface {
	Resolve(name string) (modelhub.ServiceDescriptor, error)
	Names() []string
}

// Notifier is asked for an immediate status refresh after every toggle. ctx is
// the toggle's context; implementations pick their own cancellation.
type Notifier interface {
	Refresh(ctx context.Context, service string)
}

type Options struct {
	LogTail   int
	Publisher events.Publisher
	// Wait blocks for d or until ctx is done. Defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
}

type serviceEntry struct {
	toggle sync.Mutex

	mu      sync.Mutex
	state   modelhub.ServiceState
	lastErr string
}

type Exec struct {
	logger   *slog.Logger
	registry Resolver
	client   docker.Client
	opts     Options

	mu       sync.Mutex
	services map[string]*serviceEntry
	notifier Notifier
}

func NewControllerExec(logger *slog.Logger, registry Resolver, client docker.Client, opts Options) *Exec {
	if opts.LogTail <= 0 {
		opts.LogTail = DefaultLogTail
	}
	if opts.Wait == nil {
		opts.Wait = wait
	}
	return &Exec{
		logger:   logger,
		registry: registry,
		client:   client,
		opts:     opts,
		services: make(map[string]*serviceEntry),
	}
}

// SetNotifier installs the refresh hook. The poller is created after the
// controller, so it is wired late.
func (b *Exec) SetNotifier(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

func (b *Exec) entry(name string) *serviceEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.services[name]
	if !ok {
		e = &serviceEntry{state: modelhub.ServiceStopped}
		b.services[name] = e
	}
	return e
}

// State returns the controller's view of name and the last recorded error.
func (b *Exec) State(name string) (modelhub.ServiceState, string) {
	desc, err := b.registry.Resolve(name)
	if err != nil {
		return modelhub.ServiceStopped, ""
	}
	e := b.entry(desc.Name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.lastErr
}

// Seed overrides the tracked state, used by startup reconciliation.
func (b *Exec) Seed(name string, state modelhub.ServiceState) {
	desc, err := b.registry.Resolve(name)
	if err != nil {
		return
	}
	b.setState(desc.Name, state, "")
}

func (b *Exec) setState(name string, state modelhub.ServiceState, lastErr string) {
	e := b.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.lastErr = lastErr
}

func (b *Exec) Logs(ctx context.Context, name string, tail int) ([]string, error) {
	desc, err := b.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	if tail <= 0 {
		tail = b.opts.LogTail
	}
	return b.client.Logs(ctx, desc.ContainerName, tail)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
