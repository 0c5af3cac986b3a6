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

package devstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/eminwux/devstack/cmd/config"
	autocompletecmd "github.com/eminwux/devstack/cmd/devstack/autocomplete"
	buildcmd "github.com/eminwux/devstack/cmd/devstack/build"
	logscmd "github.com/eminwux/devstack/cmd/devstack/logs"
	metricscmd "github.com/eminwux/devstack/cmd/devstack/metrics"
	portscmd "github.com/eminwux/devstack/cmd/devstack/ports"
	servecmd "github.com/eminwux/devstack/cmd/devstack/serve"
	statuscmd "github.com/eminwux/devstack/cmd/devstack/status"
	togglecmd "github.com/eminwux/devstack/cmd/devstack/toggle"
	"github.com/eminwux/devstack/cmd/devstack/version"
	"github.com/eminwux/devstack/cmd/types"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type ConfigLoader interface {
	LoadConfig() error
}

// MockConfigLoaderKey is used to inject mock config loaders in tests via context.
type MockConfigLoaderKey struct{}

func NewDevstackCmd() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "devstack",
		Short: "Devstack manages a local web development stack in containers",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var logger *slog.Logger
			if viper.GetBool(config.DEVSTACK_ROOT_VERBOSE.ViperKey) {
				logLevel := viper.GetString(config.DEVSTACK_ROOT_LOG_LEVEL.ViperKey)
				if logLevel == "" {
					logLevel = "info"
				}

				levelVar := new(slog.LevelVar)
				levelVar.Set(logging.ParseLevel(logLevel))

				textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
				handler := &logging.ReformatHandler{Inner: textHandler, Writer: cmd.ErrOrStderr()}
				logger = slog.New(handler)

				ctx := cmd.Context()
				ctx = context.WithValue(ctx, types.CtxLogger, logger)
				ctx = context.WithValue(ctx, types.CtxLevelVar, levelVar)
				ctx = context.WithValue(ctx, types.CtxHandler, handler)
				cmd.SetContext(ctx)
				logger.DebugContext(cmd.Context(), "enabling verbose", "log-level", logLevel)
			}

			var loader ConfigLoader
			if mockLoader, ok := cmd.Context().Value(MockConfigLoaderKey{}).(ConfigLoader); ok {
				loader = mockLoader
			} else {
				loader = &realConfigLoader{}
			}

			if err := loader.LoadConfig(); err != nil {
				if logger != nil {
					logger.DebugContext(cmd.Context(), "config error", "error", err)
				}
				return fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetOut(os.Stdout)

	if err := SetupDevstackCmd(cmd); err != nil {
		return nil, fmt.Errorf("failed to setup devstack command: %w", err)
	}
	return cmd, nil
}

func SetupDevstackCmd(rootCmd *cobra.Command) error {
	rootCmd.AddCommand(togglecmd.NewToggleCmd())
	rootCmd.AddCommand(statuscmd.NewStatusCmd())
	rootCmd.AddCommand(portscmd.NewPortsCmd())
	rootCmd.AddCommand(logscmd.NewLogsCmd())
	rootCmd.AddCommand(metricscmd.NewMetricsCmd())
	rootCmd.AddCommand(buildcmd.NewBuildCmd())
	rootCmd.AddCommand(servecmd.NewServeCmd())
	rootCmd.AddCommand(autocompletecmd.NewAutocompleteCmd())
	rootCmd.AddCommand(version.NewVersionCmd())

	return SetPersistentFlags(rootCmd)
}

func SetPersistentFlags(rootCmd *cobra.Command) error {
	flags := []struct {
		v      config.Var
		name   string
		short  string
		usage  string
		isBool bool
	}{
		{v: config.DEVSTACK_ROOT_CONFIG_FILE, name: "config", usage: "config file (default is " + config.DefaultConfigFile() + ")"},
		{v: config.DEVSTACK_ROOT_VERBOSE, name: "verbose", short: "v", usage: "Enable verbose logging", isBool: true},
		{v: config.DEVSTACK_ROOT_LOG_LEVEL, name: "log-level", usage: "Log level (debug, info, warn, error)"},
		{v: config.DEVSTACK_DOCKER_BINARY, name: "docker", usage: "Docker CLI executable"},
		{v: config.DEVSTACK_PROJECTS_DIR, name: "projects-dir", usage: "Directory mounted as the web root"},
	}
	pf := rootCmd.PersistentFlags()
	for _, f := range flags {
		if f.isBool {
			pf.BoolP(f.name, f.short, false, f.usage)
		} else {
			pf.StringP(f.name, f.short, "", f.usage)
		}
		if err := viper.BindPFlag(f.v.ViperKey, pf.Lookup(f.name)); err != nil {
			return err
		}
		if err := f.v.BindEnv(); err != nil {
			return err
		}
	}
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", config.CompleteLogLevels)
	return nil
}

type realConfigLoader struct{}

func (r *realConfigLoader) LoadConfig() error {
	return loadConfig()
}

// loadConfig reads the config file named by --config or DEVSTACK_CONFIG_FILE.
// Without one it looks for config.yaml in the default directory, which may be
// absent.
func loadConfig() error {
	_ = config.DEVSTACK_ROOT_CONFIG_FILE.BindEnv()
	_ = config.DEVSTACK_ROOT_LOG_LEVEL.BindEnv()

	configFile := strings.TrimSpace(viper.GetString(config.DEVSTACK_ROOT_CONFIG_FILE.ViperKey))
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.DefaultConfigDir())
	}

	if viper.GetString(config.DEVSTACK_ROOT_LOG_LEVEL.ViperKey) == "" {
		viper.Set(config.DEVSTACK_ROOT_LOG_LEVEL.ViperKey, "info")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
		}
	}
	return nil
}

// LoadConfig is a public wrapper used by tests.
func LoadConfig() error {
	return loadConfig()
}
