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

package build_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/eminwux/devstack/cmd/devstack/build"
	"github.com/eminwux/devstack/internal/controller"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/spf13/viper"
)

type fakeController struct {
	buildFn func(names []string) ([]controller.BuildResult, error)
}

func (f *fakeController) Build(_ context.Context, names ...string) ([]controller.BuildResult, error) {
	if f.buildFn == nil {
		return nil, errors.New("unexpected call to Build")
	}
	return f.buildFn(names)
}

func TestBuildCmd(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		results   []controller.BuildResult
		buildErr  error
		wantNames []string
		wantErr   error
		want      []string
	}{
		{
			name: "all services",
			results: []controller.BuildResult{
				{Service: "apache", Image: "devstack/apache", Built: true},
				{Service: "php", Image: "devstack/php", Built: true},
			},
			wantNames: []string{},
			want:      []string{"apache", "devstack/apache", "php", "yes"},
		},
		{
			name:      "selected service",
			args:      []string{" php "},
			results:   []controller.BuildResult{{Service: "php", Image: "devstack/php", Built: true}},
			wantNames: []string{"php"},
			want:      []string{"devstack/php"},
		},
		{
			name: "failure is reported and returned",
			args: []string{"apache"},
			results: []controller.BuildResult{
				{Service: "apache", Image: "devstack/apache", Error: "step 3 failed"},
			},
			buildErr:  fmt.Errorf("%w: apache", errdefs.ErrBuildFailed),
			wantNames: []string{"apache"},
			wantErr:   errdefs.ErrBuildFailed,
			want:      []string{"no", "step 3 failed"},
		},
		{
			name:      "nothing to build",
			args:      []string{"mysql"},
			buildErr:  errdefs.ErrNoBuildContext,
			wantNames: []string{"mysql"},
			wantErr:   errdefs.ErrNoBuildContext,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			var gotNames []string
			ctrl := &fakeController{buildFn: func(names []string) ([]controller.BuildResult, error) {
				gotNames = names
				return tt.results, tt.buildErr
			}}

			cmd := build.NewBuildCmd()
			out := &bytes.Buffer{}
			cmd.SetOut(out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetContext(context.WithValue(context.Background(), build.MockControllerKey{}, ctrl))
			cmd.SetArgs(append([]string{}, tt.args...))

			err := cmd.Execute()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(gotNames, tt.wantNames) {
				t.Errorf("Build(%v), want %v", gotNames, tt.wantNames)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q\n%s", w, out.String())
				}
			}
		})
	}
}
