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

package toggle

import (
	"context"
	"strings"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/spf13/cobra"
)

type toggleController interface {
	Toggle(ctx context.Context, name string) (modelhub.ToggleResult, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) Toggle(_ context.Context, name string) (modelhub.ToggleResult, error) {
	var res modelhub.ToggleResult
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		var err error
		res, err = eng.Toggle(ctx, name)
		return err
	})
	return res, err
}

func NewToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "toggle [service]",
		Short:        "Start a stopped service or stop a running one",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (toggleController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}

			res, toggleErr := ctrl.Toggle(cmd.Context(), strings.TrimSpace(args[0]))
			if res.Service == "" {
				return toggleErr
			}
			if err := shared.Print(cmd, format, res, func() { printResult(cmd, res) }); err != nil {
				return err
			}
			return toggleErr
		},
	}

	shared.AddOutputFlag(cmd)
	cmd.ValidArgsFunction = config.CompleteServiceNames
	return cmd
}

func printResult(cmd *cobra.Command, res modelhub.ToggleResult) {
	switch res.Outcome {
	case modelhub.OutcomeStarted:
		cmd.Printf("Started %s\n", res.Service)
	case modelhub.OutcomeStopped:
		cmd.Printf("Stopped %s\n", res.Service)
	default:
		cmd.Printf("%s: %s", res.Service, res.Outcome)
		if res.Reason != "" {
			cmd.Printf(" (%s)", res.Reason)
		}
		cmd.Println()
		for _, line := range res.LogTail {
			cmd.Printf("  | %s\n", line)
		}
	}
}
