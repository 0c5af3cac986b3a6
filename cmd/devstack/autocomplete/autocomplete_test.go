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

package autocomplete_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/eminwux/devstack/cmd/devstack/autocomplete"
	"github.com/spf13/cobra"
)

func TestNewAutocompleteCmd(t *testing.T) {
	cmd := autocomplete.NewAutocompleteCmd()
	got := make(map[string]bool)
	for _, c := range cmd.Commands() {
		got[c.Name()] = true
	}
	for _, want := range []string{"bash", "zsh", "fish", "powershell"} {
		if !got[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestAutocompleteScripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{shell: "bash", want: "devstack"},
		{shell: "zsh", want: "#compdef devstack"},
		{shell: "fish", want: "complete -c devstack"},
		{shell: "powershell", want: "devstack"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			root := &cobra.Command{Use: "devstack"}
			root.AddCommand(autocomplete.NewAutocompleteCmd())
			out := &bytes.Buffer{}
			root.SetOut(out)
			root.SetErr(&bytes.Buffer{})
			root.SetArgs([]string{"autocomplete", tt.shell})
			if err := root.Execute(); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("%s script missing %q", tt.shell, tt.want)
			}
		})
	}
}
