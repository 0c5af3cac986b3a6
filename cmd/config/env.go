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
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Var struct {
	Key        string // e.g. "DEVSTACK_PROJECTS_DIR"
	ViperKey   string // optional, e.g. "projects.dir"
	CobraKey   string // optional, e.g. "projects-dir"
	Default    string // optional
	HasDefault bool
}

func DefineKV(envName, viperKey string, defaultVal ...string) Var {
	v := Var{Key: envName, ViperKey: viperKey}
	if len(defaultVal) > 0 {
		v.Default = defaultVal[0]
		v.HasDefault = true
	}
	return v
}

func Define(envName string, defaultVal ...string) Var {
	return DefineKV(envName, "", defaultVal...)
}

func (v *Var) EnvKey() string               { return v.Key }
func (v *Var) EnvVar() string               { return v.Key }
func (v *Var) DefaultValue() (string, bool) { return v.Default, v.HasDefault }

// ValueOrDefault defines precedence: viper (if ViperKey set and value present) → OS env → default → "".
func (v *Var) ValueOrDefault() string {
	if v.ViperKey != "" && viper.IsSet(v.ViperKey) {
		return viper.GetString(v.ViperKey)
	}
	if val, ok := os.LookupEnv(v.Key); ok {
		return val
	}
	if v.HasDefault {
		return v.Default
	}
	return ""
}

// BindEnv is safe if ViperKey is empty: does nothing.
func (v *Var) BindEnv() error {
	if v.ViperKey == "" {
		return nil
	}
	return viper.BindEnv(v.ViperKey, v.Key)
}

func (v *Var) Set(value string) error {
	return os.Setenv(v.Key, value)
}

func (v *Var) SetDefault(val string) {
	v.Default = val
	v.HasDefault = true
	if v.ViperKey != "" {
		viper.SetDefault(v.ViperKey, val)
	}
}

func KV(v Var, value string) string { return v.Key + "=" + value }

// ---- Declare statically (Viper key optional per var) ----.
var (
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_ROOT_VERBOSE = DefineKV("DEVSTACK_VERBOSE", "verbose")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_ROOT_CONFIG_FILE = DefineKV("DEVSTACK_CONFIG_FILE", "configFile")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_ROOT_LOG_LEVEL = DefineKV("DEVSTACK_LOG_LEVEL", "logLevel", "info")

	// Container runtime
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_DOCKER_BINARY = DefineKV("DEVSTACK_DOCKER_BINARY", "docker.binary", "docker")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_DOCKER_TIMEOUT = DefineKV("DEVSTACK_DOCKER_TIMEOUT", "docker.timeout", "10s")

	// Service inputs
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_PROJECTS_DIR = DefineKV("DEVSTACK_PROJECTS_DIR", "projects.dir")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_BUILD_DIR = DefineKV("DEVSTACK_BUILD_DIR", "build.dir")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_MYSQL_ROOT_PASSWORD = DefineKV("DEVSTACK_MYSQL_ROOT_PASSWORD", "mysql.rootPassword")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_MYSQL_DATABASE = DefineKV("DEVSTACK_MYSQL_DATABASE", "mysql.database", "devstack")

	// Engine
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_POLL_INTERVAL = DefineKV("DEVSTACK_POLL_INTERVAL", "poll.interval", "2s")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_METRICS_INTERVAL = DefineKV("DEVSTACK_METRICS_INTERVAL", "metrics.interval", "5s")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_LOG_COLLECT_INTERVAL = DefineKV("DEVSTACK_LOG_COLLECT_INTERVAL", "logs.collectInterval", "10s")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_LOG_DIR = DefineKV("DEVSTACK_LOG_DIR", "logs.dir")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_LOG_RETENTION_DAYS = DefineKV("DEVSTACK_LOG_RETENTION_DAYS", "logs.retentionDays", "7")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_LOG_CAPACITY = DefineKV("DEVSTACK_LOG_CAPACITY", "logs.capacity", "1000")

	// Commands
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_SERVE_ADDR = DefineKV("DEVSTACK_SERVE_ADDR", "serve.addr", "127.0.0.1:9090")
	//nolint:revive,gochecknoglobals,staticcheck // ignore linter warning about this variable
	DEVSTACK_OUTPUT = DefineKV("DEVSTACK_OUTPUT", "output", "table")
)

// PortVar is the per-service host port override, e.g. DEVSTACK_PORT_APACHE
// bound to ports.apache.
func PortVar(service string) Var {
	name := strings.ToLower(strings.TrimSpace(service))
	return DefineKV("DEVSTACK_PORT_"+strings.ToUpper(name), "ports."+name)
}
