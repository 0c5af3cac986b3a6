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

package ports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/spf13/cobra"
)

type portsController interface {
	KnownPorts(ctx context.Context) ([]modelhub.PortStatus, error)
	Scan(ctx context.Context, start, end int, confirm bool) ([]modelhub.PortStatus, error)
	FindAvailable(ctx context.Context, start, end int) (int, error)
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

func (c engineController) KnownPorts(context.Context) ([]modelhub.PortStatus, error) {
	var out []modelhub.PortStatus
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		if err := eng.Refresh(ctx); err != nil {
			return err
		}
		out = eng.GetPorts()
		return nil
	})
	return out, err
}

func (c engineController) Scan(_ context.Context, start, end int, confirm bool) ([]modelhub.PortStatus, error) {
	var out []modelhub.PortStatus
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		var err error
		out, err = eng.ScanPorts(ctx, start, end, confirm)
		return err
	})
	return out, err
}

func (c engineController) FindAvailable(_ context.Context, start, end int) (int, error) {
	var port int
	err := shared.WithEngine(c.cmd, func(ctx context.Context, eng *engine.Engine) error {
		var err error
		port, err = eng.FindAvailablePort(ctx, start, end)
		return err
	})
	return port, err
}

func controllerFromCmd(cmd *cobra.Command) (portsController, error) {
	return shared.GetControllerWithMock(cmd, MockControllerKey{},
		func(cmd *cobra.Command) (portsController, error) { return engineController{cmd: cmd}, nil })
}

// NewPortsCmd lists the registered host ports; its subcommands scan ranges.
func NewPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ports",
		Short:        "Show the host ports of the managed services",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			ctrl, err := controllerFromCmd(cmd)
			if err != nil {
				return err
			}
			ports, err := ctrl.KnownPorts(cmd.Context())
			if err != nil {
				return err
			}
			return shared.Print(cmd, format, ports, func() { printPorts(cmd, ports, false) })
		},
	}
	shared.AddOutputFlag(cmd)
	cmd.AddCommand(newScanCmd(), newFindCmd())
	return cmd
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scan [start] [end]",
		Short:        "Probe every port of an inclusive range on localhost",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := shared.ParseOutputFormat(cmd)
			if err != nil {
				return err
			}
			start, end, err := parseRange(args)
			if err != nil {
				return err
			}
			confirm, _ := cmd.Flags().GetBool("confirm")
			openOnly, _ := cmd.Flags().GetBool("open")

			ctrl, err := controllerFromCmd(cmd)
			if err != nil {
				return err
			}
			ports, err := ctrl.Scan(cmd.Context(), start, end, confirm)
			if errors.Is(err, errdefs.ErrPortRangeTooLarge) {
				return fmt.Errorf("%w (pass --confirm to scan anyway)", err)
			}
			if err != nil {
				return err
			}
			return shared.Print(cmd, format, ports, func() { printPorts(cmd, ports, openOnly) })
		},
	}
	shared.AddOutputFlag(cmd)
	cmd.Flags().Bool("confirm", false, "Allow ranges larger than 1000 ports")
	cmd.Flags().Bool("open", false, "Only list open ports")
	return cmd
}

func newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "find [start] [end]",
		Short:        "Print the first free port of an inclusive range",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(args)
			if err != nil {
				return err
			}
			ctrl, err := controllerFromCmd(cmd)
			if err != nil {
				return err
			}
			port, err := ctrl.FindAvailable(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			cmd.Println(port)
			return nil
		},
	}
}

func parseRange(args []string) (int, int, error) {
	start, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start %q is not a number", errdefs.ErrInvalidPortRange, args[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end %q is not a number", errdefs.ErrInvalidPortRange, args[1])
	}
	return start, end, nil
}

func printPorts(cmd *cobra.Command, ports []modelhub.PortStatus, openOnly bool) {
	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		if openOnly && !p.IsOpen {
			continue
		}
		state := "closed"
		if p.IsOpen {
			state = "open"
		}
		rows = append(rows, []string{strconv.Itoa(p.Port), state, shared.Dash(p.ServiceName), shared.Ago(p.LastChecked)})
	}
	shared.PrintTable(cmd, []string{"PORT", "STATE", "SERVICE", "CHECKED"}, rows)
}
