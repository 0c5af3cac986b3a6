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

// Package gateway is the only place that starts external processes.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
)

const (
	// DefaultTimeout bounds inspection commands.
	DefaultTimeout = 10 * time.Second
	// NoTimeout leaves the command bounded only by its context.
	NoTimeout time.Duration = 0

	defaultWaitDelay = time.Second
)

// Result is the outcome of one invocation. RanOK is false when the process could
// not be started or was killed on timeout or cancellation; Err then says why and
// the captured output is discarded.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	RanOK    bool
	Err      error
}

// Succeeded reports a completed run with exit code zero.
func (r Result) Succeeded() bool {
	return r.RanOK && r.ExitCode == 0
}

type Runner interface {
	Run(ctx context.Context, name string, args []string, timeout time.Duration) Result
}

// Exec runs commands with os/exec. Each child gets its own process group, and the
// whole group is killed when the timeout elapses or ctx is cancelled.
type Exec struct {
	logger    *slog.Logger
	waitDelay time.Duration

	mu      sync.Mutex
	running int
	closing bool
	idle    chan struct{}
}

func NewExec(logger *slog.Logger) *Exec {
	return &Exec{logger: logger, waitDelay: defaultWaitDelay}
}

func (e *Exec) Run(ctx context.Context, name string, args []string, timeout time.Duration) Result {
	if !e.acquire() {
		return Result{ExitCode: -1, Err: fmt.Errorf("%w: %s", errdefs.ErrRunnerClosed, name)}
	}
	defer e.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.waitDelay

	e.logger.DebugContext(ctx, "running command", "cmd", name, "args", args, "timeout", timeout)
	start := time.Now()
	err := cmd.Run()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res := Result{ExitCode: -1}
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				res.Err = fmt.Errorf("%w: %s %s after %s", errdefs.ErrCommandTimeout,
					name, strings.Join(args, " "), time.Since(start).Round(time.Millisecond))
			} else {
				res.Err = ctxErr
			}
			e.logger.DebugContext(ctx, "command aborted", "cmd", name, "error", res.Err)
			return res
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			// completed with a non-zero status
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// exited, but a descendant kept the output pipes open
		case errors.Is(err, exec.ErrNotFound):
			return Result{ExitCode: -1, Err: fmt.Errorf("%w: %w", errdefs.ErrExecutableNotFound, err)}
		default:
			return Result{ExitCode: -1, Err: fmt.Errorf("%w: %w", errdefs.ErrCommandFailed, err)}
		}
	}

	res := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   trimOutput(stdout.String()),
		Stderr:   trimOutput(stderr.String()),
		RanOK:    true,
	}
	e.logger.DebugContext(ctx, "command finished",
		"cmd", name, "exit", res.ExitCode, "elapsed", time.Since(start).Round(time.Millisecond))
	return res
}

func (e *Exec) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.running++
	return true
}

func (e *Exec) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	if e.running == 0 && e.idle != nil {
		close(e.idle)
		e.idle = nil
	}
}

// Wait stops accepting commands and blocks until every in-flight command has
// returned or ctx is done. Run fails with ErrRunnerClosed afterwards.
func (e *Exec) Wait(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	if e.running == 0 {
		e.mu.Unlock()
		return nil
	}
	if e.idle == nil {
		e.idle = make(chan struct{})
	}
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trimOutput(s string) string {
	return strings.TrimRight(s, "\r\n")
}
