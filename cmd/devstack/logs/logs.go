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

package logs

import (
	"context"
	"fmt"
	"strings"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/spf13/cobra"
)

const defaultTail = 100

type logsController interface {
	ContainerLogs(ctx context.Context, name string, tail int) ([]string, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) ContainerLogs(_ context.Context, name string, tail int) ([]string, error) {
	var lines []string
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		var err error
		lines, err = eng.ContainerLogs(ctx, name, tail)
		return err
	})
	return lines, err
}

func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "logs [service]",
		Short:        "Print the container output of a service",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tail, _ := cmd.Flags().GetInt("tail")
			if tail < 0 {
				return fmt.Errorf("%w: --tail must not be negative", errdefs.ErrInvalidRequest)
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (logsController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}
			lines, err := ctrl.ContainerLogs(cmd.Context(), strings.TrimSpace(args[0]), tail)
			if err != nil {
				return err
			}
			for _, l := range lines {
				cmd.Println(l)
			}
			return nil
		},
	}

	cmd.Flags().IntP("tail", "n", defaultTail, "Number of lines from the end of the log, 0 for all")
	cmd.ValidArgsFunction = config.CompleteServiceNames
	return cmd
}
