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

package version_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/eminwux/devstack/cmd/config"
	"github.com/eminwux/devstack/cmd/devstack/version"
	"github.com/eminwux/devstack/internal/errdefs"
)

type fakeVersionProvider struct {
	versionFn func() string
	runtimeFn func(ctx context.Context) (string, error)
	queried   bool
}

func (f *fakeVersionProvider) Version() string {
	if f.versionFn == nil {
		return "test-version"
	}
	return f.versionFn()
}

func (f *fakeVersionProvider) RuntimeVersion(ctx context.Context) (string, error) {
	f.queried = true
	if f.runtimeFn == nil {
		return "", errors.New("unexpected call to RuntimeVersion")
	}
	return f.runtimeFn(ctx)
}

func TestNewVersionCmd(t *testing.T) {
	cmd := version.NewVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("Use mismatch: got %q, want %q", cmd.Use, "version")
	}
	for _, name := range []string{"client", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestVersionCmdRun(t *testing.T) {
	dockerVersion := func(context.Context) (string, error) { return "27.0.1", nil }
	tests := []struct {
		name        string
		args        []string
		provider    *fakeVersionProvider
		wantOutput  string
		wantQueried bool
	}{
		{
			name:       "client only prints version from config",
			args:       []string{"--client"},
			wantOutput: "devstack: " + config.Version + "\n",
		},
		{
			name:        "prints runtime version",
			args:        []string{},
			provider:    &fakeVersionProvider{versionFn: func() string { return "v1.2.3" }, runtimeFn: dockerVersion},
			wantOutput:  "devstack: v1.2.3\ndocker:   27.0.1\n",
			wantQueried: true,
		},
		{
			name: "runtime unreachable",
			args: []string{},
			provider: &fakeVersionProvider{runtimeFn: func(context.Context) (string, error) {
				return "", errdefs.ErrExternalToolUnavailable
			}},
			wantOutput:  "devstack: test-version\ndocker:   unavailable\n",
			wantQueried: true,
		},
		{
			name:       "client flag skips the runtime",
			args:       []string{"--client"},
			provider:   &fakeVersionProvider{},
			wantOutput: "devstack: test-version\n",
		},
		{
			name:        "ignores arguments",
			args:        []string{"arg1", "arg2"},
			provider:    &fakeVersionProvider{runtimeFn: dockerVersion},
			wantOutput:  "devstack: test-version\ndocker:   27.0.1\n",
			wantQueried: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.provider != nil {
				ctx = context.WithValue(ctx, version.MockVersionProviderKey{}, version.VersionProvider(tt.provider))
			}
			cmd := version.NewVersionCmd()
			out := &bytes.Buffer{}
			cmd.SetOut(out)
			cmd.SetContext(ctx)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.String() != tt.wantOutput {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOutput)
			}
			if tt.provider != nil && tt.provider.queried != tt.wantQueried {
				t.Errorf("runtime queried = %v, want %v", tt.provider.queried, tt.wantQueried)
			}
		})
	}
}

func TestVersionCmdJSON(t *testing.T) {
	provider := &fakeVersionProvider{runtimeFn: func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			return "", errors.New("runtime query without a deadline")
		}
		return "27.0.1", nil
	}}
	cmd := version.NewVersionCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetContext(context.WithValue(context.Background(), version.MockVersionProviderKey{}, version.VersionProvider(provider)))
	cmd.SetArgs([]string{"-o", "json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got version.Info
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if got.Version != "test-version" || got.Runtime != "27.0.1" {
		t.Fatalf("info = %+v", got)
	}
}
