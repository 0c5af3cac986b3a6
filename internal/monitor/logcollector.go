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

package monitor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/docker"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	DefaultLogInterval = 10 * time.Second
	DefaultLogLines    = 5
)

type ServiceLister interface {
	All() []modelhub.ServiceDescriptor
}

// LogSink receives the collected container output.
type LogSink interface {
	Append(entry modelhub.LogEntry)
}

type LogOptions struct {
	Interval time.Duration
	// Lines caps how many lines are read per service and tick.
	Lines int
}

// LogCollector copies the output of running containers into the log buffer
// under the service name. Each service resumes after the newest line it saw.
type LogCollector struct {
	logger   *slog.Logger
	registry ServiceLister
	client   docker.Client
	sink     LogSink
	opts     LogOptions

	mu   sync.Mutex
	last map[string]time.Time
}

func NewLogCollector(
	logger *slog.Logger,
	registry ServiceLister,
	client docker.Client,
	sink LogSink,
	opts LogOptions,
) *LogCollector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultLogInterval
	}
	if opts.Lines <= 0 {
		opts.Lines = DefaultLogLines
	}
	return &LogCollector{
		logger:   logger,
		registry: registry,
		client:   client,
		sink:     sink,
		opts:     opts,
		last:     make(map[string]time.Time),
	}
}

func (c *LogCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick collects from every running container. A stopped service keeps its
// position, so a restart only yields lines written since.
func (c *LogCollector) Tick(ctx context.Context) {
	running, err := c.client.ListRunning(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.DebugContext(ctx, "skipping log collection", "error", err)
		}
		return
	}
	for _, desc := range c.registry.All() {
		if ctx.Err() != nil {
			return
		}
		if slices.Contains(running, desc.ContainerName) {
			c.collect(ctx, desc)
		}
	}
}

func (c *LogCollector) collect(ctx context.Context, desc modelhub.ServiceDescriptor) {
	c.mu.Lock()
	since := c.last[desc.Name]
	c.mu.Unlock()

	lines, err := c.client.LogsSince(ctx, desc.ContainerName, c.opts.Lines, since)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, errdefs.ErrContainerNotFound) {
			c.logger.DebugContext(ctx, "failed to collect container logs", "service", desc.Name, "error", err)
		}
		return
	}

	newest := since
	for _, l := range lines {
		// the runtime's since filter is inclusive
		if !since.IsZero() && !l.Timestamp.After(since) {
			continue
		}
		c.sink.Append(modelhub.LogEntry{
			Timestamp: l.Timestamp,
			Level:     modelhub.LogInfo,
			Service:   desc.Name,
			Message:   l.Message,
		})
		if l.Timestamp.After(newest) {
			newest = l.Timestamp
		}
	}

	c.mu.Lock()
	c.last[desc.Name] = newest
	c.mu.Unlock()
}
