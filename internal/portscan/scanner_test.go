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

package portscan_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/portscan"
)

func newScanner() *portscan.Scanner {
	return portscan.NewScanner(slog.New(slog.NewTextHandler(io.Discard, nil)), portscan.Options{})
}

func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		start, end int
		wantErr    bool
	}{
		{start: 1, end: 65535},
		{start: 8080, end: 8080},
		{start: 0, end: 10, wantErr: true},
		{start: 10, end: 65536, wantErr: true},
		{start: 100, end: 99, wantErr: true},
	}
	for _, tt := range tests {
		err := portscan.ValidateRange(tt.start, tt.end)
		if tt.wantErr != (err != nil) {
			t.Errorf("ValidateRange(%d, %d) = %v", tt.start, tt.end, err)
		}
		if err != nil && !errors.Is(err, errdefs.ErrInvalidPortRange) {
			t.Errorf("ValidateRange(%d, %d) err = %v, want ErrInvalidPortRange", tt.start, tt.end, err)
		}
	}
}

func TestIsExpensive(t *testing.T) {
	if portscan.IsExpensive(8000, 8999) {
		t.Error("1000 ports should not be expensive")
	}
	if !portscan.IsExpensive(8000, 9000) {
		t.Error("1001 ports should be expensive")
	}
}

func TestScanRangeReportsOpenPortWithService(t *testing.T) {
	port := listen(t)
	s := newScanner()

	start, end := max(port-2, 1), min(port+2, 65535)
	results, err := s.ScanRange(context.Background(), start, end, map[int]string{port: "apache"})
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if len(results) != end-start+1 {
		t.Fatalf("len(results) = %d", len(results))
	}
	for i, r := range results {
		if r.Port != start+i {
			t.Fatalf("results out of order: %+v", results)
		}
		if r.Port == port {
			if !r.IsOpen || r.ServiceName != "apache" {
				t.Fatalf("listener port reported as %+v", r)
			}
		}
		if r.LastChecked.IsZero() {
			t.Fatalf("port %d not stamped", r.Port)
		}
	}
}

func TestScanRangeClosedPorts(t *testing.T) {
	s := newScanner()
	// pick ports from a listener we close right away so nothing is bound there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	results, err := s.ScanRange(context.Background(), port, port, nil)
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if len(results) != 1 || results[0].IsOpen || results[0].ServiceName != "" {
		t.Fatalf("results = %+v", results)
	}
}

func TestScanRangeInvalid(t *testing.T) {
	if _, err := newScanner().ScanRange(context.Background(), 9000, 8000, nil); !errors.Is(err, errdefs.ErrInvalidPortRange) {
		t.Fatalf("err = %v", err)
	}
}

func TestScanRangeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newScanner().ScanRange(ctx, 20000, 20100, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestProbeAndFindAvailable(t *testing.T) {
	port := listen(t)
	s := newScanner()
	if !s.Probe(context.Background(), port) {
		t.Fatal("Probe on listener = false")
	}

	got, err := s.FindAvailable(context.Background(), port, min(port+50, 65535))
	if err != nil {
		t.Fatalf("FindAvailable: %v", err)
	}
	if got == port {
		t.Fatal("FindAvailable returned the busy port")
	}

	if _, err := s.FindAvailable(context.Background(), port, port); !errors.Is(err, errdefs.ErrNoAvailablePort) {
		t.Fatalf("FindAvailable on busy port err = %v", err)
	}
}
