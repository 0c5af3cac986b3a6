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

package shared

import (
	"context"
	"log/slog"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/types"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/registry"
	"github.com/spf13/cobra"
)

// LoggerFromCmd extracts the slog logger from the Cobra command context.
func LoggerFromCmd(cmd *cobra.Command) (*slog.Logger, error) {
	logger, ok := cmd.Context().Value(types.CtxLogger).(*slog.Logger)
	if !ok || logger == nil {
		return nil, errdefs.ErrLoggerNotFound
	}
	return logger, nil
}

// ServiceNames lists the built-in services in display order.
func ServiceNames() []string {
	defs := registry.DefaultDefinitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// EngineOptions maps resolved settings onto the engine. p serves the values
// that may change while the engine runs.
func EngineOptions(s config.Settings, p registry.ConfigProvider) engine.Options {
	return engine.Options{
		Config:             p,
		DockerBinary:       s.DockerBinary,
		CommandTimeout:     s.CommandTimeout,
		PollInterval:       s.PollInterval,
		MetricsInterval:    s.MetricsInterval,
		LogCollectInterval: s.LogCollectInterval,
		LogDir:             s.LogDir,
		LogRetentionDays:   s.LogRetentionDays,
		LogCapacity:        s.LogCapacity,
	}
}

// EngineFromCmd builds an engine from the loaded configuration. The engine is
// not started.
func EngineFromCmd(cmd *cobra.Command) (*engine.Engine, *config.Provider, error) {
	logger, err := LoggerFromCmd(cmd)
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.Load(ServiceNames())
	if err != nil {
		return nil, nil, err
	}
	provider := config.NewProvider(settings)
	eng, err := engine.New(logger, EngineOptions(settings, provider))
	if err != nil {
		return nil, nil, err
	}
	return eng, provider, nil
}

// WithEngine starts an engine for the duration of fn.
func WithEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) (err error) {
	eng, _, err := EngineFromCmd(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err = eng.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := eng.Stop(context.WithoutCancel(ctx)); err == nil {
			err = stopErr
		}
	}()
	return fn(ctx, eng)
}

// GetControllerWithMock returns the controller stored under mockKey in the
// command context, or builds the real one.
func GetControllerWithMock[T any](
	cmd *cobra.Command,
	mockKey any,
	realController func(*cobra.Command) (T, error),
) (T, error) {
	if mockCtrl, ok := cmd.Context().Value(mockKey).(T); ok {
		return mockCtrl, nil
	}
	return realController(cmd)
}
