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

package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/shared"
	"github.com/eminwux/devstack/internal/api"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const eventBuffer = 256

type serveController interface {
	Serve(ctx context.Context, addr string) error
}

// MockControllerKey is used to inject mock controllers in tests via context.
type MockControllerKey struct{}

type engineController struct{ cmd *cobra.Command }

// Serve runs the engine with its HTTP API until ctx is done.
func (c engineController) Serve(ctx context.Context, addr string) error {
	eng, provider, err := shared.EngineFromCmd(c.cmd)
	if err != nil {
		return err
	}
	logger := eng.Logger()

	recorder := metrics.NewRecorder()
	events, cancel := eng.Subscribe(eventBuffer)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "engine stop failed", "error", err)
		}
	}()

	recorder.SetRuntimeUp(eng.RuntimeAvailable())
	go recorder.Consume(ctx, events)

	if config.Watch(ctx, logger, provider, shared.ServiceNames()) {
		logger.InfoContext(ctx, "watching configuration", "file", viper.ConfigFileUsed())
	}

	return api.NewServer(logger, eng, recorder.Handler()).Run(ctx, addr)
}

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the engine and serve its API until interrupted",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := strings.TrimSpace(config.DEVSTACK_SERVE_ADDR.ValueOrDefault())
			if addr == "" {
				return fmt.Errorf("%w: empty listen address (--addr)", errdefs.ErrConfig)
			}
			ctrl, err := shared.GetControllerWithMock(cmd, MockControllerKey{},
				func(cmd *cobra.Command) (serveController, error) { return engineController{cmd: cmd}, nil })
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ctrl.Serve(ctx, addr)
		},
	}

	cmd.Flags().String("addr", api.DefaultAddr, "Listen address of the HTTP API")
	_ = viper.BindPFlag(config.DEVSTACK_SERVE_ADDR.ViperKey, cmd.Flags().Lookup("addr"))
	return cmd
}
