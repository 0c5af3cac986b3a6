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

package build

import (
	"context"
	"strings"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/controller"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/spf13/cobra"
)

type buildController interface {
	Build(ctx context.Context, names ...string) ([]controller.BuildResult, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) Build(_ context.Context, names ...string) ([]controller.BuildResult, error) {
	var results []controller.BuildResult
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		var err error
		results, err = eng.Build(ctx, names...)
		return err
	})
	return results, err
}

func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "build [service...]",
		Short:        "Build the locally defined service images",
		Long:         "Build the images of services that ship a Dockerfile under the build directory. With no arguments every such service is built.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (buildController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}

			names := make([]string, 0, len(args))
			for _, a := range args {
				if a = strings.TrimSpace(a); a != "" {
					names = append(names, a)
				}
			}
			results, buildErr := ctrl.Build(cmd.Context(), names...)
			if len(results) > 0 {
				if err := shared.Print(cmd, format, results, func() { printResults(cmd, results) }); err != nil {
					return err
				}
			}
			return buildErr
		},
	}
	shared.AddOutputFlag(cmd)
	cmd.ValidArgsFunction = config.CompleteServiceNames
	return cmd
}

func printResults(cmd *cobra.Command, results []controller.BuildResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Service, r.Image, shared.YesNo(r.Built), shared.Dash(r.Error)})
	}
	shared.PrintTable(cmd, []string{"SERVICE", "IMAGE", "BUILT", "ERROR"}, rows)
}
