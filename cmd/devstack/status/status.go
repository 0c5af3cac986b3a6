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

package status

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/spf13/cobra"
)

// Report is one status reading.
type Report struct {
	RuntimeAvailable bool                     `json:"runtimeAvailable" yaml:"runtimeAvailable"`
	Services         []modelhub.ServiceStatus `json:"services"         yaml:"services"`
}

type statusController interface {
	Status(ctx context.Context) (Report, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) Status(context.Context) (Report, error) {
	var r Report
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		if err := eng.Refresh(ctx); err != nil {
			return err
		}
		r = Report{RuntimeAvailable: eng.RuntimeAvailable(), Services: eng.GetServices()}
		return nil
	})
	return r, err
}

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "status [service...]",
		Aliases:      []string{"ps"},
		Short:        "Show the state of the managed services",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (statusController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}

			report, err := ctrl.Status(cmd.Context())
			if err != nil {
				return err
			}
			if report.Services, err = filter(report.Services, args); err != nil {
				return err
			}
			return shared.Print(cmd, format, report, func() { printReport(cmd, report) })
		},
	}

	shared.AddOutputFlag(cmd)
	cmd.ValidArgsFunction = config.CompleteServiceNames
	return cmd
}

func filter(all []modelhub.ServiceStatus, names []string) ([]modelhub.ServiceStatus, error) {
	if len(names) == 0 {
		return all, nil
	}
	out := make([]modelhub.ServiceStatus, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		i := slices.IndexFunc(all, func(s modelhub.ServiceStatus) bool { return s.Name == n })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", errdefs.ErrUnknownService, n)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func printReport(cmd *cobra.Command, r Report) {
	if !r.RuntimeAvailable {
		cmd.Println("warning: the container runtime is not reachable")
	}
	rows := make([][]string, 0, len(r.Services))
	for _, s := range r.Services {
		cpu, mem := "-", "-"
		if s.Status == modelhub.ServiceRunning {
			cpu, mem = shared.Percent(s.CPUUsagePercent), shared.Bytes(s.MemoryUsageBytes)
		}
		rows = append(rows, []string{
			s.Name, string(s.Status), shared.YesNo(s.IsHealthy), cpu, mem,
			shared.Dash(s.Uptime), shared.Dash(s.LastError),
		})
	}
	shared.PrintTable(cmd, []string{"SERVICE", "STATUS", "HEALTHY", "CPU", "MEMORY", "UPTIME", "ERROR"}, rows)
}
