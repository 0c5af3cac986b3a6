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

package version

import (
	"context"
	"time"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/spf13/cobra"
)

// runtimeTimeout bounds the runtime query so an unresponsive daemon cannot
// hang the command.
const runtimeTimeout = 5 * time.Second

// Unavailable is printed in place of the runtime version when it cannot be
// queried.
const Unavailable = "unavailable"

type VersionProvider interface {
	Version() string
	RuntimeVersion(ctx context.Context) (string, error)
}

// MockVersionProviderKey is used to inject mock version providers in tests via context.
type MockVersionProviderKey struct{}

// Info is the printed version report.
type Info struct {
	Version string `json:"version"           yaml:"version"`
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

type engineVersionProvider struct{ cmd *cobra.Command }

func (p engineVersionProvider) Version() string {
	return config.Version
}

func (p engineVersionProvider) RuntimeVersion(ctx context.Context) (string, error) {
	var v string
	err := shared.WithEngine(p.cmd, func(_ context.Context, eng *engine.Engine) error {
		var err error
		v, err = eng.RuntimeVersion(ctx)
		return err
	})
	return v, err
}

func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the devstack and container runtime versions",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			clientOnly, _ := cmd.Flags().GetBool("client")

			var provider VersionProvider
			if mockProvider, ok := cmd.Context().Value(MockVersionProviderKey{}).(VersionProvider); ok {
				provider = mockProvider
			} else {
				provider = engineVersionProvider{cmd: cmd}
			}

			info := Info{Version: provider.Version()}
			if !clientOnly {
				info.Runtime = runtimeVersion(cmd, provider)
			}
			return shared.Print(cmd, format, info, func() {
				cmd.Printf("devstack: %s\n", info.Version)
				if !clientOnly {
					cmd.Printf("docker:   %s\n", info.Runtime)
				}
			})
		},
	}
	cmd.Flags().Bool("client", false, "Print only the devstack version")
	shared.AddOutputFlag(cmd)
	return cmd
}

// runtimeVersion never fails the command; an unreachable runtime is reported
// as Unavailable.
func runtimeVersion(cmd *cobra.Command, p VersionProvider) string {
	ctx, cancel := context.WithTimeout(cmd.Context(), runtimeTimeout)
	defer cancel()
	v, err := p.RuntimeVersion(ctx)
	if err != nil || v == "" {
		return Unavailable
	}
	return v
}
