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

package metrics

import (
	"context"

	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/spf13/cobra"
)

type metricsController interface {
	SystemMetrics(ctx context.Context) (modelhub.SystemMetrics, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) SystemMetrics(context.Context) (modelhub.SystemMetrics, error) {
	var m modelhub.SystemMetrics
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		if err := eng.Refresh(ctx); err != nil {
			return err
		}
		m = eng.GetSystemMetrics()
		return nil
	})
	return m, err
}

func NewMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "metrics",
		Aliases:      []string{"top"},
		Short:        "Show host CPU, memory and disk usage",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (metricsController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}
			m, err := ctrl.SystemMetrics(cmd.Context())
			if err != nil {
				return err
			}
			return shared.Print(cmd, format, m, func() {
				shared.PrintTable(cmd, []string{"METRIC", "VALUE"}, [][]string{
					{"cpu", shared.Percent(m.TotalCPUUsagePercent)},
					{"memory used", shared.Bytes(m.TotalMemoryUsageBytes)},
					{"memory available", shared.Bytes(m.AvailableMemoryBytes)},
					{"disk total", shared.Bytes(m.TotalDiskBytes)},
					{"disk available", shared.Bytes(m.AvailableDiskBytes)},
				})
			})
		},
	}
	shared.AddOutputFlag(cmd)
	return cmd
}
