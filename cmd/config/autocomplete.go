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

package config

import (
	"strings"

	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/eminwux/devstack/internal/registry"
	"github.com/spf13/cobra"
)

// atMaxArgs reports whether the command would reject one more positional
// argument. Completion stops there so repeated tabs do not append the same
// name twice. Flag completion is unaffected because toComplete is checked by
// the caller.
func atMaxArgs(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 || cmd.ValidArgsFunction == nil || cmd.Args == nil {
		return false
	}
	testArgs := make([]string, len(args), len(args)+1)
	copy(testArgs, args)
	testArgs = append(testArgs, "test")
	return cmd.Args(cmd, testArgs) != nil
}

func filterPrefix(candidates []string, toComplete string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] || !strings.HasPrefix(c, strings.ToLower(toComplete)) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// CompleteServiceNames completes the names of the managed services.
func CompleteServiceNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if toComplete == "" && atMaxArgs(cmd, args) {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	defs := registry.DefaultDefinitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// CompleteLogLevels completes values for a --level flag.
func CompleteLogLevels(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	levels := []string{
		strings.ToLower(modelhub.LogDebug.String()),
		strings.ToLower(modelhub.LogInfo.String()),
		strings.ToLower(modelhub.LogWarning.String()),
		strings.ToLower(modelhub.LogError.String()),
	}
	return filterPrefix(levels, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// CompleteOutputFormats completes values for an --output flag.
func CompleteOutputFormats(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix([]string{"table", "json", "yaml"}, toComplete), cobra.ShellCompDirectiveNoFileComp
}
