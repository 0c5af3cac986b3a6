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

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags.
//
//nolint:gochecknoglobals // set by the linker
var Version = "dev"

func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "devstack")
	}
	return filepath.Join(dir, "devstack")
}

func DefaultConfigFile() string { return filepath.Join(DefaultConfigDir(), "config.yaml") }

func DefaultLogDir() string { return filepath.Join(DefaultConfigDir(), "logs") }

func DefaultBuildDir() string { return filepath.Join(DefaultConfigDir(), "docker") }

func DefaultProjectsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DefaultConfigDir(), "projects")
	}
	return filepath.Join(home, "devstack", "projects")
}

// Settings is the resolved engine configuration.
type Settings struct {
	DockerBinary       string         `validate:"required"                   yaml:"dockerBinary"`
	CommandTimeout     time.Duration  `validate:"gt=0"                       yaml:"commandTimeout"`
	ProjectsDir        string         `validate:"required"                   yaml:"projectsDir"`
	BuildDir           string         `validate:"required"                   yaml:"buildDir"`
	MySQLRootPassword  string         `                                      yaml:"-"`
	MySQLDatabase      string         `validate:"required"                   yaml:"mysqlDatabase"`
	PollInterval       time.Duration  `validate:"gt=0"                       yaml:"pollInterval"`
	MetricsInterval    time.Duration  `validate:"gt=0"                       yaml:"metricsInterval"`
	LogCollectInterval time.Duration  `validate:"gt=0"                       yaml:"logCollectInterval"`
	LogDir             string         `                                      yaml:"logDir"`
	LogRetentionDays   int            `validate:"gte=1"                      yaml:"logRetentionDays"`
	LogCapacity        int            `validate:"gte=10"                     yaml:"logCapacity"`
	ServeAddr          string         `validate:"required,hostname_port"     yaml:"serveAddr"`
	Ports              map[string]int `validate:"dive,min=1,max=65535"       yaml:"ports"`
}

func envVars() []*Var {
	return []*Var{
		&DEVSTACK_DOCKER_BINARY, &DEVSTACK_DOCKER_TIMEOUT,
		&DEVSTACK_PROJECTS_DIR, &DEVSTACK_BUILD_DIR,
		&DEVSTACK_MYSQL_ROOT_PASSWORD, &DEVSTACK_MYSQL_DATABASE,
		&DEVSTACK_POLL_INTERVAL, &DEVSTACK_METRICS_INTERVAL, &DEVSTACK_LOG_COLLECT_INTERVAL,
		&DEVSTACK_LOG_DIR, &DEVSTACK_LOG_RETENTION_DAYS, &DEVSTACK_LOG_CAPACITY,
		&DEVSTACK_SERVE_ADDR,
	}
}

func duration(v Var) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.ValueOrDefault()))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errdefs.ErrConfig, v.Key, err)
	}
	return d, nil
}

func integer(v Var) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.ValueOrDefault()))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errdefs.ErrConfig, v.Key, err)
	}
	return n, nil
}

func orDefault(v Var, def func() string) string {
	if s := strings.TrimSpace(v.ValueOrDefault()); s != "" {
		return s
	}
	return def()
}

// Load resolves Settings from viper, the environment and defaults, in that
// order, and validates the result. services lists the names that may carry a
// host port override.
func Load(services []string) (Settings, error) {
	for _, v := range envVars() {
		_ = v.BindEnv()
	}

	s := Settings{
		DockerBinary:      strings.TrimSpace(DEVSTACK_DOCKER_BINARY.ValueOrDefault()),
		ProjectsDir:       orDefault(DEVSTACK_PROJECTS_DIR, DefaultProjectsDir),
		BuildDir:          orDefault(DEVSTACK_BUILD_DIR, DefaultBuildDir),
		MySQLRootPassword: DEVSTACK_MYSQL_ROOT_PASSWORD.ValueOrDefault(),
		MySQLDatabase:     strings.TrimSpace(DEVSTACK_MYSQL_DATABASE.ValueOrDefault()),
		LogDir:            orDefault(DEVSTACK_LOG_DIR, DefaultLogDir),
		ServeAddr:         strings.TrimSpace(DEVSTACK_SERVE_ADDR.ValueOrDefault()),
		Ports:             make(map[string]int),
	}

	var err error
	if s.CommandTimeout, err = duration(DEVSTACK_DOCKER_TIMEOUT); err != nil {
		return Settings{}, err
	}
	if s.PollInterval, err = duration(DEVSTACK_POLL_INTERVAL); err != nil {
		return Settings{}, err
	}
	if s.MetricsInterval, err = duration(DEVSTACK_METRICS_INTERVAL); err != nil {
		return Settings{}, err
	}
	if s.LogCollectInterval, err = duration(DEVSTACK_LOG_COLLECT_INTERVAL); err != nil {
		return Settings{}, err
	}
	if s.LogRetentionDays, err = integer(DEVSTACK_LOG_RETENTION_DAYS); err != nil {
		return Settings{}, err
	}
	if s.LogCapacity, err = integer(DEVSTACK_LOG_CAPACITY); err != nil {
		return Settings{}, err
	}

	for _, name := range services {
		pv := PortVar(name)
		_ = pv.BindEnv()
		if strings.TrimSpace(pv.ValueOrDefault()) == "" {
			continue
		}
		port, err := integer(pv)
		if err != nil {
			return Settings{}, err
		}
		s.Ports[strings.ToLower(name)] = port
	}

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

//nolint:gochecknoglobals // validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(s Settings) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
	}
	return nil
}

// Provider serves the current Settings to the service registry. Values are
// read on every call, so a reload applies to the next toggle.
type Provider struct {
	mu sync.RWMutex
	s  Settings
}

func NewProvider(s Settings) *Provider {
	return &Provider{s: s}
}

func (p *Provider) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func (p *Provider) Update(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s = s
}

func (p *Provider) HostPort(service string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	port, ok := p.s.Ports[strings.ToLower(service)]
	return port, ok
}

func (p *Provider) ProjectsDir() string { return p.Settings().ProjectsDir }

func (p *Provider) DatabaseRootPassword() string { return p.Settings().MySQLRootPassword }

func (p *Provider) DatabaseName() string { return p.Settings().MySQLDatabase }

func (p *Provider) BuildDir() string { return p.Settings().BuildDir }

// Watch reloads p whenever the config file in use changes. It reports false
// when no config file was loaded. Invalid edits are logged and ignored.
func Watch(ctx context.Context, logger *slog.Logger, p *Provider, services []string) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := Load(services)
		if err != nil {
			logger.WarnContext(ctx, "ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		p.Update(s)
		logger.InfoContext(ctx, "configuration reloaded", "file", e.Name)
	})
	viper.WatchConfig()
	return true
}
