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

// Package docker drives the container runtime through its command line client.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/gateway"
)

const (
	DefaultBinary = "docker"
	// StopTimeout covers the runtime's own stop grace before it kills the container.
	StopTimeout = 30 * time.Second
)

type Client interface {
	Available(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	IsRunning(ctx context.Context, container string) (bool, error)
	ListRunning(ctx context.Context) ([]string, error)
	Run(ctx context.Context, args []string) (string, error)
	Stop(ctx context.Context, container string) error
	Remove(ctx context.Context, container string) error
	Logs(ctx context.Context, container string, tail int) ([]string, error)
	LogsSince(ctx context.Context, container string, tail int, since time.Time) ([]LogLine, error)
	Stats(ctx context.Context, container string) (Stats, error)
	Uptime(ctx context.Context, container string) (string, error)
	Build(ctx context.Context, tag, contextDir string) error
}

// CLI implements Client on top of a gateway.Runner.
type CLI struct {
	logger  *slog.Logger
	runner  gateway.Runner
	binary  string
	timeout time.Duration
}

func NewCLI(logger *slog.Logger, runner gateway.Runner, binary string, timeout time.Duration) *CLI {
	if binary == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = gateway.DefaultTimeout
	}
	return &CLI{logger: logger, runner: runner, binary: binary, timeout: timeout}
}

func (c *CLI) run(ctx context.Context, timeout time.Duration, args ...string) (gateway.Result, error) {
	res := c.runner.Run(ctx, c.binary, args, timeout)
	if err := classify(res); err != nil {
		return res, err
	}
	return res, nil
}

// classify maps a gateway result to the runtime error vocabulary.
func classify(res gateway.Result) error {
	if !res.RanOK {
		switch {
		case res.Err == nil:
			return errdefs.ErrExternalToolUnavailable
		case errors.Is(res.Err, errdefs.ErrCommandTimeout),
			errors.Is(res.Err, errdefs.ErrRunnerClosed),
			errors.Is(res.Err, context.Canceled),
			errors.Is(res.Err, context.DeadlineExceeded):
			return res.Err
		default:
			return fmt.Errorf("%w: %w", errdefs.ErrExternalToolUnavailable, res.Err)
		}
	}
	if res.ExitCode == 0 {
		return nil
	}

	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such container"), strings.Contains(lower, "no such object"):
		return fmt.Errorf("%w: %s", errdefs.ErrContainerNotFound, msg)
	case strings.Contains(lower, "cannot connect to the docker daemon"),
		strings.Contains(lower, "is the docker daemon running"),
		strings.Contains(lower, "error during connect"):
		return fmt.Errorf("%w: %s", errdefs.ErrExternalToolUnavailable, msg)
	default:
		return fmt.Errorf("%w: exit status %d: %s", errdefs.ErrCommandFailed, res.ExitCode, msg)
	}
}

func nameFilter(container string) string {
	return "name=^" + container + "$"
}

func (c *CLI) Available(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the runtime server version. A client that cannot reach its
// server reports ErrExternalToolUnavailable.
func (c *CLI) Version(ctx context.Context) (string, error) {
	res, err := c.run(ctx, c.timeout, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		if errors.Is(err, errdefs.ErrCommandFailed) {
			return "", fmt.Errorf("%w: %w", errdefs.ErrExternalToolUnavailable, err)
		}
		return "", err
	}
	return firstLine(res.Stdout), nil
}

// IsRunning matches the container name exactly; the runtime filter is a regexp
// and may return more than one name.
func (c *CLI) IsRunning(ctx context.Context, container string) (bool, error) {
	res, err := c.run(ctx, c.timeout, "ps", "--filter", nameFilter(container), "--format", "{{.Names}}")
	if err != nil {
		return false, err
	}
	for _, line := range splitLines(res.Stdout) {
		if strings.TrimSpace(line) == container {
			return true, nil
		}
	}
	return false, nil
}

func (c *CLI) ListRunning(ctx context.Context) ([]string, error) {
	res, err := c.run(ctx, c.timeout, "ps", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range splitLines(res.Stdout) {
		if n := strings.TrimSpace(line); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// Run executes a detached run and returns the new container id. It is bounded
// only by ctx since it may pull the image first.
func (c *CLI) Run(ctx context.Context, args []string) (string, error) {
	res, err := c.run(ctx, gateway.NoTimeout, args...)
	if err != nil {
		return "", err
	}
	return firstLine(res.Stdout), nil
}

func (c *CLI) Stop(ctx context.Context, container string) error {
	_, err := c.run(ctx, StopTimeout, "stop", container)
	return err
}

func (c *CLI) Remove(ctx context.Context, container string) error {
	_, err := c.run(ctx, c.timeout, "rm", "-f", container)
	return err
}

// Logs returns the last tail lines of the container output. The runtime replays
// the container's stderr on its own stderr, so both streams are merged.
func (c *CLI) Logs(ctx context.Context, container string, tail int) ([]string, error) {
	if tail <= 0 {
		tail = 20
	}
	res, err := c.run(ctx, c.timeout, "logs", "--tail", strconv.Itoa(tail), container)
	if err != nil {
		return nil, err
	}
	lines := append(splitLines(res.Stdout), splitLines(res.Stderr)...)
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines, nil
}

// LogsSince returns up to tail timestamped lines, oldest first. A non-zero
// since limits the output to lines written at or after it.
func (c *CLI) LogsSince(ctx context.Context, container string, tail int, since time.Time) ([]LogLine, error) {
	if tail <= 0 {
		tail = 20
	}
	args := []string{"logs", "--timestamps", "--tail", strconv.Itoa(tail)}
	if !since.IsZero() {
		args = append(args, "--since", since.UTC().Format(time.RFC3339Nano))
	}
	res, err := c.run(ctx, c.timeout, append(args, container)...)
	if err != nil {
		return nil, err
	}
	raw := append(splitLines(res.Stdout), splitLines(res.Stderr)...)
	lines := make([]LogLine, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, ParseLogLine(l))
		}
	}
	slices.SortStableFunc(lines, func(a, b LogLine) int { return a.Timestamp.Compare(b.Timestamp) })
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines, nil
}

func (c *CLI) Stats(ctx context.Context, container string) (Stats, error) {
	res, err := c.run(ctx, c.timeout, "stats", "--no-stream", "--format",
		"{{.CPUPerc}}"+statsSeparator+"{{.MemUsage}}", container)
	if err != nil {
		return Stats{}, err
	}
	return ParseStatsLine(firstLine(res.Stdout))
}

func (c *CLI) Uptime(ctx context.Context, container string) (string, error) {
	res, err := c.run(ctx, c.timeout, "ps", "--filter", nameFilter(container), "--format", "{{.RunningFor}}")
	if err != nil {
		return "", err
	}
	return ParseUptime(res.Stdout), nil
}

func (c *CLI) Build(ctx context.Context, tag, contextDir string) error {
	c.logger.InfoContext(ctx, "building image", "tag", tag, "context", contextDir)
	_, err := c.run(ctx, gateway.NoTimeout, "build", "-t", tag, contextDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errdefs.ErrBuildFailed, tag, err)
	}
	return nil
}
