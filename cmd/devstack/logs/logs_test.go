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

package logs_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/eminwux/devstack/cmd/devstack/logs"
	"github.com/eminwux/devstack/internal/errdefs"
)

type fakeController struct {
	logsFn func(name string, tail int) ([]string, error)
}

func (f *fakeController) ContainerLogs(_ context.Context, name string, tail int) ([]string, error) {
	if f.logsFn == nil {
		return nil, errors.New("unexpected call to ContainerLogs")
	}
	return f.logsFn(name, tail)
}

func TestLogsCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		logsErr  error
		wantName string
		wantTail int
		wantOut  string
		wantErr  error
	}{
		{
			name:     "default tail",
			args:     []string{"apache"},
			wantName: "apache",
			wantTail: 100,
			wantOut:  "line one\nline two\n",
		},
		{
			name:     "explicit tail",
			args:     []string{"mysql", "--tail", "5"},
			wantName: "mysql",
			wantTail: 5,
			wantOut:  "line one\nline two\n",
		},
		{
			name:    "negative tail",
			args:    []string{"mysql", "--tail=-1"},
			wantErr: errdefs.ErrInvalidRequest,
		},
		{
			name:     "container missing",
			args:     []string{"php"},
			logsErr:  errdefs.ErrContainerNotFound,
			wantName: "php",
			wantTail: 100,
			wantErr:  errdefs.ErrContainerNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName string
			var gotTail int
			ctrl := &fakeController{logsFn: func(name string, tail int) ([]string, error) {
				gotName, gotTail = name, tail
				if tt.logsErr != nil {
					return nil, tt.logsErr
				}
				return []string{"line one", "line two"}, nil
			}}

			cmd := logs.NewLogsCmd()
			out := &bytes.Buffer{}
			cmd.SetOut(out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetContext(context.WithValue(context.Background(), logs.MockControllerKey{}, ctrl))
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotName != tt.wantName || gotTail != tt.wantTail {
				t.Errorf("ContainerLogs(%q, %d), want (%q, %d)", gotName, gotTail, tt.wantName, tt.wantTail)
			}
			if out.String() != tt.wantOut {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}
