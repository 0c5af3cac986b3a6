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

// Package portscan probes local TCP ports.
package portscan

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/modelhub"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultTimeout     = 300 * time.Millisecond
	DefaultConcurrency = 64
	DefaultDialRate    = 2000
	DefaultDialBurst   = 100

	// ExpensiveRange is the widest range scanned without confirmation.
	ExpensiveRange = 1000
)

// Prober answers whether a single port accepts connections.
type Prober interface {
	Probe(ctx context.Context, port int) bool
}

type Options struct {
	Host        string
	Timeout     time.Duration
	Concurrency int
	// DialRate is the number of connection attempts allowed per second.
	DialRate  float64
	DialBurst int
}

type Scanner struct {
	logger  *slog.Logger
	opts    Options
	limiter *rate.Limiter
	dialer  net.Dialer
}

func NewScanner(logger *slog.Logger, opts Options) *Scanner {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.DialRate <= 0 {
		opts.DialRate = DefaultDialRate
	}
	if opts.DialBurst <= 0 {
		opts.DialBurst = DefaultDialBurst
	}
	return &Scanner{
		logger:  logger,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.DialRate), opts.DialBurst),
		dialer:  net.Dialer{Timeout: opts.Timeout},
	}
}

// ValidateRange checks an inclusive port range.
func ValidateRange(start, end int) error {
	if start < modelhub.MinPort || end > modelhub.MaxPort || start > end {
		return fmt.Errorf("%w: %d-%d", errdefs.ErrInvalidPortRange, start, end)
	}
	return nil
}

// IsExpensive reports ranges wider than ExpensiveRange ports.
func IsExpensive(start, end int) bool {
	return end-start+1 > ExpensiveRange
}

// Probe reports whether port accepts a TCP connection within the timeout.
func (s *Scanner) Probe(ctx context.Context, port int) bool {
	conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(s.opts.Host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ScanRange probes every port in [start, end] and returns one status per port in
// ascending order. Ports present in known are annotated with their service.
func (s *Scanner) ScanRange(ctx context.Context, start, end int, known map[int]string) ([]modelhub.PortStatus, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	results := make([]modelhub.PortStatus, end-start+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for port := start; port <= end; port++ {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			results[port-start] = modelhub.PortStatus{
				Port:        port,
				IsOpen:      s.Probe(gctx, port),
				ServiceName: known[port],
				LastChecked: time.Now(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	open := 0
	for _, r := range results {
		if r.IsOpen {
			open++
		}
	}
	s.logger.DebugContext(ctx, "port scan finished", "start", start, "end", end, "open", open)
	return results, nil
}

// FindAvailable returns the first port in [start, end] nobody listens on.
func (s *Scanner) FindAvailable(ctx context.Context, start, end int) (int, error) {
	if err := ValidateRange(start, end); err != nil {
		return 0, err
	}
	for port := start; port <= end; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !s.Probe(ctx, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: %d-%d", errdefs.ErrNoAvailablePort, start, end)
}
