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

// Package sysmetrics samples host CPU, memory and disk usage.
package sysmetrics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	DefaultInterval = 5 * time.Second
	// DefaultSettle separates the two CPU reads of one sample.
	DefaultSettle = 100 * time.Millisecond
)

// Sampler reads raw host counters.
type Sampler interface {
	// CPUPercent returns the busy share since the previous call.
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (total, available uint64, err error)
	Disk(ctx context.Context, path string) (total, free uint64, err error)
}

type Options struct {
	Interval time.Duration
	Settle   time.Duration
	DiskPath string
}

type Collector struct {
	logger  *slog.Logger
	sampler Sampler
	pub     events.Publisher
	opts    Options

	mu     sync.RWMutex
	latest modelhub.SystemMetrics
}

// SystemVolume returns the path of the volume holding the operating system.
func SystemVolume() string {
	if runtime.GOOS == "windows" {
		if d := os.Getenv("SystemDrive"); d != "" {
			return d + `\`
		}
		return `C:\`
	}
	return "/"
}

func NewCollector(logger *slog.Logger, sampler Sampler, pub events.Publisher, opts Options) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.DiskPath == "" {
		opts.DiskPath = SystemVolume()
	}
	return &Collector{logger: logger, sampler: sampler, pub: pub, opts: opts}
}

// Sample takes one reading. The first CPU read only primes the counters and is
// discarded. Whatever could be read is returned along with the joined errors.
func (c *Collector) Sample(ctx context.Context) (modelhub.SystemMetrics, error) {
	var (
		m    modelhub.SystemMetrics
		errs []error
	)

	if _, err := c.sampler.CPUPercent(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.opts.Settle > 0 {
		t := time.NewTimer(c.opts.Settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return m, ctx.Err()
		}
	}
	cpu, err := c.sampler.CPUPercent(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	m.TotalCPUUsagePercent = clampPercent(cpu)

	total, avail, err := c.sampler.Memory(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		m.AvailableMemoryBytes = avail
		if total > avail {
			m.TotalMemoryUsageBytes = total - avail
		}
	}

	dtotal, dfree, err := c.sampler.Disk(ctx, c.opts.DiskPath)
	if err != nil {
		errs = append(errs, err)
	} else {
		m.TotalDiskBytes = dtotal
		m.AvailableDiskBytes = min(dfree, dtotal)
	}

	m.LastUpdated = time.Now()
	return m, errors.Join(errs...)
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Tick samples once, stores the result and publishes it.
func (c *Collector) Tick(ctx context.Context) modelhub.SystemMetrics {
	m, err := c.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c.Latest()
		}
		c.logger.WarnContext(ctx, "partial system metrics sample", "service", "system", "error", err)
	}
	c.mu.Lock()
	c.latest = m
	c.mu.Unlock()
	if c.pub != nil {
		c.pub.Publish(events.SystemMetricsUpdated(m))
	}
	return m
}

// Run samples immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

func (c *Collector) Latest() modelhub.SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}
