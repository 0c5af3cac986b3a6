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

package registry

import (
	"time"

	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	Apache     = "apache"
	PHP        = "php"
	MySQL      = "mysql"
	PHPMyAdmin = "phpmyadmin"
	MailHog    = "mailhog"

	DefaultDatabaseName = "devstack"
	mysqlDataVolume     = "devstack_mysql_data"
)

// DefaultDefinitions returns the built-in services in display order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:            Apache,
			DefaultHostPort: 8080,
			ContainerPort:   80,
			ProjectsMount:   "/var/www/html",
		},
		{
			Name:            PHP,
			DefaultHostPort: 8000,
			ContainerPort:   8000,
			ProjectsMount:   "/var/www/html",
		},
		{
			Name:            MySQL,
			DefaultHostPort: 3306,
			ContainerPort:   3306,
			Volumes: []modelhub.VolumeMount{
				{HostPath: mysqlDataVolume, ContainerPath: "/var/lib/mysql"},
			},
			Env: func(cfg ConfigProvider) map[string]string {
				env := map[string]string{"MYSQL_DATABASE": DefaultDatabaseName}
				if cfg == nil {
					return env
				}
				if db := cfg.DatabaseName(); db != "" {
					env["MYSQL_DATABASE"] = db
				}
				if pw := cfg.DatabaseRootPassword(); pw != "" {
					env["MYSQL_ROOT_PASSWORD"] = pw
				} else {
					env["MYSQL_ALLOW_EMPTY_PASSWORD"] = "yes"
				}
				return env
			},
			GracePeriod: 5 * time.Second,
		},
		{
			Name:            PHPMyAdmin,
			DefaultHostPort: 8081,
			ContainerPort:   80,
			Env: func(ConfigProvider) map[string]string {
				return map[string]string{"PMA_HOST": ContainerName(MySQL)}
			},
			Links:     []string{MySQL},
			DependsOn: []string{MySQL},
		},
		{
			Name:            MailHog,
			Image:           "mailhog/mailhog",
			DefaultHostPort: 8025,
			ContainerPort:   8025,
			ExtraPorts:      []modelhub.PortBinding{{HostPort: 1025, ContainerPort: 1025}},
		},
	}
}

// StaticConfig is a fixed ConfigProvider.
type StaticConfig struct {
	Ports        map[string]int
	Projects     string
	RootPassword string
	Database     string
	Build        string
}

func (s StaticConfig) HostPort(service string) (int, bool) {
	p, ok := s.Ports[service]
	return p, ok
}

func (s StaticConfig) ProjectsDir() string          { return s.Projects }
func (s StaticConfig) DatabaseRootPassword() string { return s.RootPassword }
func (s StaticConfig) DatabaseName() string         { return s.Database }
func (s StaticConfig) BuildDir() string             { return s.Build }
