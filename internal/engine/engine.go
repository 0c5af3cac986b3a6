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

// Package engine wires the lifecycle controller, the pollers and the log
// aggregator together and exposes the command surface used by the CLI and API.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/controller"
	"github.com/eminwux/devstack/internal/docker"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/gateway"
	"github.com/eminwux/devstack/internal/logging"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/eminwux/devstack/internal/monitor"
	"github.com/eminwux/devstack/internal/portscan"
	"github.com/eminwux/devstack/internal/registry"
	"github.com/eminwux/devstack/internal/sysmetrics"
)

const (
	DefaultLogRetentionDays = 7

	refreshTimeout = 15 * time.Second
)

type Options struct {
	Config      registry.ConfigProvider
	Definitions []registry.Definition

	DockerBinary   string
	CommandTimeout time.Duration

	PollInterval       time.Duration
	MetricsInterval    time.Duration
	LogCollectInterval time.Duration
	Scan               portscan.Options

	LogDir           string
	LogRetentionDays int
	LogCapacity      int
	// AggregateLevel is the lowest slog level copied into the log buffer.
	AggregateLevel slog.Leveler

	// Overrides, mostly for tests.
	Runner    gateway.Runner
	Client    docker.Client
	Sampler   sysmetrics.Sampler
	Prober    portscan.Prober
	GraceWait func(ctx context.Context, d time.Duration) error
}

type Engine struct {
	logger    *slog.Logger
	opts      Options
	bus       *events.Bus
	logs      *logging.Aggregator
	sink      *logging.FileSink
	registry  *registry.Registry
	exec      *gateway.Exec
	client    docker.Client
	ctrl      *controller.Exec
	poller    *monitor.Poller
	logTail   *monitor.LogCollector
	scanner   *portscan.Scanner
	collector *sysmetrics.Collector

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	started bool
}

// ToggleOutcome is delivered by ToggleAsync.
type ToggleOutcome struct {
	Result modelhub.ToggleResult
	Err    error
}

func New(logger *slog.Logger, opts Options) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if opts.LogRetentionDays == 0 {
		opts.LogRetentionDays = DefaultLogRetentionDays
	}

	e := &Engine{opts: opts, bus: events.NewBus()}

	if opts.LogDir != "" {
		sink, err := logging.NewFileSink(opts.LogDir, 0)
		if err != nil {
			return nil, err
		}
		e.sink = sink
	}
	var sink logging.Sink
	if e.sink != nil {
		sink = e.sink
	}
	e.logs = logging.NewAggregator(opts.LogCapacity, sink, e.bus)
	e.logger = slog.New(logging.NewHandler(logger.Handler(), e.logs, opts.AggregateLevel))

	reg, err := registry.New(opts.Config, opts.Definitions...)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	runner := opts.Runner
	if runner == nil {
		e.exec = gateway.NewExec(e.logger)
		runner = e.exec
	}
	e.client = opts.Client
	if e.client == nil {
		e.client = docker.NewCLI(e.logger, runner, opts.DockerBinary, opts.CommandTimeout)
	}

	e.scanner = portscan.NewScanner(e.logger, opts.Scan)
	var prober portscan.Prober = e.scanner
	if opts.Prober != nil {
		prober = opts.Prober
	}

	e.ctrl = controller.NewControllerExec(e.logger, reg, e.client, controller.Options{
		Publisher: e.bus,
		Wait:      opts.GraceWait,
	})
	e.poller = monitor.NewPoller(e.logger, reg, e.client, prober, e.ctrl, e.bus, monitor.Options{
		Interval: opts.PollInterval,
	})
	e.ctrl.SetNotifier(boundRefresher{base: e.runContext, target: e.poller, timeout: refreshTimeout})

	e.logTail = monitor.NewLogCollector(e.logger, reg, e.client, e.logs, monitor.LogOptions{
		Interval: opts.LogCollectInterval,
	})

	sampler := opts.Sampler
	if sampler == nil {
		sampler = sysmetrics.NewHostSampler()
	}
	e.collector = sysmetrics.NewCollector(e.logger, sampler, e.bus, sysmetrics.Options{
		Interval: opts.MetricsInterval,
	})
	return e, nil
}

// Logger returns the engine logger; records also land in the log buffer.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start runs startup reconciliation and launches the status and system metric
// loops. An unreachable runtime is logged, not returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errdefs.ErrEngineStarted
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	if e.sink != nil {
		removed, err := logging.CleanupOld(e.sink.Dir(), e.opts.LogRetentionDays, time.Now())
		if err != nil {
			e.logger.WarnContext(ctx, "log cleanup failed", "error", err)
		} else if len(removed) > 0 {
			e.logger.InfoContext(ctx, "removed old log files", "count", len(removed))
		}
	}

	if err := e.poller.Reconcile(e.ctx); err != nil {
		e.logger.WarnContext(ctx, "starting without a reachable runtime", "error", err)
	}

	e.loops.Add(3)
	go func() {
		defer e.loops.Done()
		e.poller.Run(e.ctx)
	}()
	go func() {
		defer e.loops.Done()
		e.collector.Run(e.ctx)
	}()
	go func() {
		defer e.loops.Done()
		e.logTail.Run(e.ctx)
	}()

	e.logger.InfoContext(ctx, "engine started", "services", len(e.registry.Names()))
	return nil
}

// Stop cancels the loops and every in-flight command, waits for them, flushes
// the log file and closes all subscriptions.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return errdefs.ErrEngineNotStarted
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		e.loops.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for engine loops: %w", ctx.Err())
	}
	if e.exec != nil && err == nil {
		if werr := e.exec.Wait(ctx); werr != nil {
			err = fmt.Errorf("waiting for commands: %w", werr)
		}
	}

	e.logger.InfoContext(ctx, "engine stopped")
	if e.sink != nil {
		_ = e.sink.Close()
	}
	e.bus.Close()
	return err
}

// runContext returns the engine context, nil before the first Start.
func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// boundRefresher runs post-toggle refreshes detached from the caller but
// cancelled by engine shutdown and bounded by timeout.
type boundRefresher struct {
	base    func() context.Context
	target  controller.Notifier
	timeout time.Duration
}

func (r boundRefresher) Refresh(ctx context.Context, service string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if base := r.base(); base != nil {
		stop := context.AfterFunc(base, cancel)
		defer stop()
	}
	r.target.Refresh(ctx, service)
}

// bind derives a context cancelled by either ctx or engine shutdown.
func (e *Engine) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	e.mu.Lock()
	started, ectx := e.started, e.ctx
	e.mu.Unlock()
	if !started {
		return nil, nil, errdefs.ErrEngineNotStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ectx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (e *Engine) Toggle(ctx context.Context, name string) (modelhub.ToggleResult, error) {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return modelhub.ToggleResult{Service: name, Outcome: modelhub.OutcomeRejected, Reason: err.Error()}, err
	}
	defer done()
	return e.ctrl.Toggle(ctx, name)
}

// ToggleAsync runs Toggle in the background and delivers its outcome on the
// returned channel, which is closed afterwards.
func (e *Engine) ToggleAsync(ctx context.Context, name string) <-chan ToggleOutcome {
	out := make(chan ToggleOutcome, 1)
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		defer close(out)
		res, err := e.Toggle(ctx, name)
		out <- ToggleOutcome{Result: res, Err: err}
	}()
	return out
}

// ScanPorts probes an inclusive range. Ranges wider than
// portscan.ExpensiveRange need confirm.
func (e *Engine) ScanPorts(ctx context.Context, start, end int, confirm bool) ([]modelhub.PortStatus, error) {
	if err := portscan.ValidateRange(start, end); err != nil {
		return nil, err
	}
	if portscan.IsExpensive(start, end) && !confirm {
		return nil, fmt.Errorf("%w: %d ports", errdefs.ErrPortRangeTooLarge, end-start+1)
	}
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return e.scanner.ScanRange(ctx, start, end, e.registry.PortMap())
}

func (e *Engine) FindAvailablePort(ctx context.Context, start, end int) (int, error) {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return 0, err
	}
	defer done()
	return e.scanner.FindAvailable(ctx, start, end)
}

// Refresh runs one poll round and one host sample without waiting for the
// loops, for callers that read a snapshot right after Start.
func (e *Engine) Refresh(ctx context.Context) error {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return err
	}
	defer done()
	e.poller.Tick(ctx)
	e.collector.Tick(ctx)
	e.logTail.Tick(ctx)
	return nil
}

func (e *Engine) GetServices() []modelhub.ServiceStatus { return e.poller.Snapshots() }

func (e *Engine) GetPorts() []modelhub.PortStatus { return e.poller.Ports() }

func (e *Engine) GetLogs(f logging.Filter) []modelhub.LogEntry { return e.logs.Query(f) }

func (e *Engine) ClearLogs() { e.logs.Clear() }

func (e *Engine) GetSystemMetrics() modelhub.SystemMetrics { return e.collector.Latest() }

// GetServiceMetrics returns the running averages and recent samples of name.
func (e *Engine) GetServiceMetrics(name string) (modelhub.ServiceMetrics, error) {
	return e.poller.Metrics(name)
}

// RuntimeVersion asks the runtime for its server version.
func (e *Engine) RuntimeVersion(ctx context.Context) (string, error) {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return e.client.Version(ctx)
}

// Subscribe returns a stream of engine events and its cancel func.
func (e *Engine) Subscribe(buffer int) (<-chan events.Event, func()) {
	return e.bus.Subscribe(buffer)
}

func (e *Engine) Services() []modelhub.ServiceDescriptor { return e.registry.All() }

func (e *Engine) RuntimeAvailable() bool { return !e.poller.RuntimeDown() }

func (e *Engine) Build(ctx context.Context, names ...string) ([]controller.BuildResult, error) {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return e.ctrl.Build(ctx, names...)
}

func (e *Engine) ContainerLogs(ctx context.Context, name string, tail int) ([]string, error) {
	ctx, done, err := e.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return e.ctrl.Logs(ctx, name, tail)
}
