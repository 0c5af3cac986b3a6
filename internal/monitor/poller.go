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

// Package monitor polls the runtime for service status and host port state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/docker"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/eminwux/devstack/internal/portscan"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval         = 2 * time.Second
	DefaultConcurrency      = 4
	DefaultFailureThreshold = 3
)

type Registry interface {
	All() []modelhub.ServiceDescriptor
	Resolve(name string) (modelhub.ServiceDescriptor, error)
	PortMap() map[int]string
}

// StateSource is the controller's view, used to surface start failures and to
// seed observed state at startup.
type StateSource interface {
	State(name string) (modelhub.ServiceState, string)
	Seed(name string, state modelhub.ServiceState)
}

type Options struct {
	Interval         time.Duration
	Concurrency      int
	FailureThreshold int
	Tolerance        Tolerance
}

type pollOutcome struct {
	status      modelhub.ServiceStatus
	publish     bool
	unavailable error
}

type Poller struct {
	logger   *slog.Logger
	registry Registry
	client   docker.Client
	prober   portscan.Prober
	states   StateSource
	pub      events.Publisher
	opts     Options

	tickMu sync.Mutex

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	current     map[string]modelhub.ServiceStatus
	published   map[string]modelhub.ServiceStatus
	failures    map[string]int
	ports       map[int]modelhub.PortStatus
	histories   map[string]*history
	runtimeDown bool
}

func NewPoller(
	logger *slog.Logger,
	registry Registry,
	client docker.Client,
	prober portscan.Prober,
	states StateSource,
	pub events.Publisher,
	opts Options,
) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Tolerance == (Tolerance{}) {
		opts.Tolerance = DefaultTolerance
	}
	return &Poller{
		logger:    logger,
		registry:  registry,
		client:    client,
		prober:    prober,
		states:    states,
		pub:       pub,
		opts:      opts,
		locks:     make(map[string]*sync.Mutex),
		current:   make(map[string]modelhub.ServiceStatus),
		published: make(map[string]modelhub.ServiceStatus),
		failures:  make(map[string]int),
		ports:     make(map[int]modelhub.PortStatus),
		histories: make(map[string]*history),
	}
}

func (p *Poller) serviceLock(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[name]
	if !ok {
		l = &sync.Mutex{}
		p.locks[name] = l
	}
	return l
}

// Run ticks every interval until ctx is done. A tick always completes before the
// next one starts.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Reconcile seeds the controller with the containers already running and
// publishes a baseline snapshot of every service and known port.
func (p *Poller) Reconcile(ctx context.Context) error {
	running, err := p.client.ListRunning(ctx)
	if err != nil {
		if errors.Is(err, errdefs.ErrExternalToolUnavailable) {
			p.setRuntimeDown(ctx, err)
		}
		p.publishBaseline()
		p.pollPorts(ctx)
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	for _, desc := range p.registry.All() {
		if slices.Contains(running, desc.ContainerName) {
			p.states.Seed(desc.Name, modelhub.ServiceRunning)
			p.logger.InfoContext(ctx, "found running container", "service", desc.Name)
		}
	}
	p.Tick(ctx)
	return nil
}

// publishBaseline emits the current view of services never published yet.
func (p *Poller) publishBaseline() {
	for _, desc := range p.registry.All() {
		p.mu.Lock()
		_, seen := p.published[desc.Name]
		if seen {
			p.mu.Unlock()
			continue
		}
		st := p.stoppedStatus(desc.Name)
		p.current[desc.Name] = st
		p.published[desc.Name] = st
		p.mu.Unlock()
		p.publish(events.ServiceStatusChanged(st))
	}
}

// Tick polls every service concurrently, then publishes the changed snapshots in
// registry order, then refreshes the known ports.
func (p *Poller) Tick(ctx context.Context) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	descs := p.registry.All()
	outcomes := make([]pollOutcome, len(descs))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, desc := range descs {
		g.Go(func() error {
			outcomes[i] = p.poll(ctx, desc, false)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}

	var down error
	for _, o := range outcomes {
		if o.unavailable != nil {
			down = o.unavailable
			break
		}
	}
	if down != nil {
		p.setRuntimeDown(ctx, down)
	} else {
		p.setRuntimeUp(ctx)
	}

	for _, o := range outcomes {
		if o.publish {
			p.publish(events.ServiceStatusChanged(o.status))
		}
	}

	p.pollPorts(ctx)
}

// Refresh polls one service right away and always publishes the result. It is
// serialised with ticks for the same service.
func (p *Poller) Refresh(ctx context.Context, name string) {
	desc, err := p.registry.Resolve(name)
	if err != nil {
		return
	}
	o := p.poll(ctx, desc, true)
	if o.unavailable != nil {
		p.setRuntimeDown(ctx, o.unavailable)
		return
	}
	if o.publish {
		p.publish(events.ServiceStatusChanged(o.status))
	}
}

func (p *Poller) poll(ctx context.Context, desc modelhub.ServiceDescriptor, force bool) pollOutcome {
	lock := p.serviceLock(desc.Name)
	lock.Lock()
	defer lock.Unlock()

	status, err := p.observe(ctx, desc)
	observed := err == nil
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return pollOutcome{}
		case errors.Is(err, errdefs.ErrExternalToolUnavailable):
			return pollOutcome{unavailable: err}
		}

		p.mu.Lock()
		p.failures[desc.Name]++
		n := p.failures[desc.Name]
		p.mu.Unlock()

		if n < p.opts.FailureThreshold {
			p.logger.DebugContext(ctx, "status poll failed, skipping tick",
				"service", desc.Name, "attempt", n, "error", err)
			return pollOutcome{}
		}
		if n == p.opts.FailureThreshold {
			p.logger.ErrorContext(ctx, "status poll keeps failing",
				"service", desc.Name, "attempts", n, "error", err)
		}
		status = modelhub.ServiceStatus{
			Name:        desc.Name,
			Status:      modelhub.ServiceError,
			LastError:   fmt.Sprintf("status query failed %d times in a row: %v", p.opts.FailureThreshold, err),
			LastUpdated: time.Now(),
		}
	} else {
		p.mu.Lock()
		p.failures[desc.Name] = 0
		p.mu.Unlock()
	}

	status = status.Normalize()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current[desc.Name] = status
	if observed {
		h, ok := p.histories[desc.Name]
		if !ok {
			h = &history{}
			p.histories[desc.Name] = h
		}
		h.add(status)
	}
	prev, seen := p.published[desc.Name]
	if !force && seen && !p.opts.Tolerance.Changed(prev, status) {
		return pollOutcome{status: status}
	}
	p.published[desc.Name] = status
	return pollOutcome{status: status, publish: true}
}

// observe builds a fresh snapshot. Metric parse failures zero the metrics and
// are logged; any other error aborts the observation.
func (p *Poller) observe(ctx context.Context, desc modelhub.ServiceDescriptor) (modelhub.ServiceStatus, error) {
	running, err := p.client.IsRunning(ctx, desc.ContainerName)
	if err != nil {
		return modelhub.ServiceStatus{}, err
	}
	if !running {
		return p.stoppedStatus(desc.Name), nil
	}

	p.clearStaleError(desc.Name)

	st := modelhub.ServiceStatus{
		Name:        desc.Name,
		Status:      modelhub.ServiceRunning,
		LastUpdated: time.Now(),
	}

	stats, err := p.client.Stats(ctx, desc.ContainerName)
	switch {
	case err == nil:
		st.CPUUsagePercent = stats.CPUPercent
		st.MemoryUsageBytes = stats.MemoryBytes
	case errors.Is(err, errdefs.ErrParseFailure):
		p.logger.WarnContext(ctx, "could not parse container stats", "service", desc.Name, "error", err)
	default:
		return modelhub.ServiceStatus{}, err
	}

	uptime, err := p.client.Uptime(ctx, desc.ContainerName)
	if err != nil {
		return modelhub.ServiceStatus{}, err
	}
	st.Uptime = uptime
	st.IsHealthy = p.prober.Probe(ctx, desc.HostPort)
	return st, nil
}

// clearStaleError reseeds the controller when a service it marked failed is seen
// running, so a later stop does not resurface the old error.
func (p *Poller) clearStaleError(name string) {
	if p.states == nil {
		return
	}
	if state, _ := p.states.State(name); state == modelhub.ServiceError {
		p.states.Seed(name, modelhub.ServiceRunning)
	}
}

// stoppedStatus maps a non-running container to Stopped, or to Error when the
// controller recorded a failure.
func (p *Poller) stoppedStatus(name string) modelhub.ServiceStatus {
	st := modelhub.ServiceStatus{Name: name, Status: modelhub.ServiceStopped, LastUpdated: time.Now()}
	if p.states != nil {
		if state, lastErr := p.states.State(name); state == modelhub.ServiceError {
			st.Status = modelhub.ServiceError
			st.LastError = lastErr
		}
	}
	return st
}

func (p *Poller) setRuntimeDown(ctx context.Context, err error) {
	p.mu.Lock()
	was := p.runtimeDown
	p.runtimeDown = true
	p.mu.Unlock()
	if was {
		return
	}
	p.logger.ErrorContext(ctx, "container runtime unavailable", "error", err)
	p.publish(events.RuntimeUnavailable(err.Error()))
}

func (p *Poller) setRuntimeUp(ctx context.Context) {
	p.mu.Lock()
	was := p.runtimeDown
	p.runtimeDown = false
	p.mu.Unlock()
	if !was {
		return
	}
	p.logger.InfoContext(ctx, "container runtime reachable again")
	p.publish(events.RuntimeAvailable())
}

// RuntimeDown reports whether the last poll could not reach the runtime.
func (p *Poller) RuntimeDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runtimeDown
}

// pollPorts probes every registered host port and publishes the ones whose
// open state or owner changed.
func (p *Poller) pollPorts(ctx context.Context) {
	known := p.registry.PortMap()
	ports := make([]int, 0, len(known))
	for port := range known {
		ports = append(ports, port)
	}
	slices.Sort(ports)

	open := make([]bool, len(ports))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, port := range ports {
		g.Go(func() error {
			open[i] = p.prober.Probe(ctx, port)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return
	}

	var changed []modelhub.PortStatus
	now := time.Now()
	p.mu.Lock()
	for port := range p.ports {
		if _, ok := known[port]; !ok {
			delete(p.ports, port)
		}
	}
	for i, port := range ports {
		next := modelhub.PortStatus{Port: port, IsOpen: open[i], ServiceName: known[port], LastChecked: now}
		prev, seen := p.ports[port]
		p.ports[port] = next
		if !seen || prev.IsOpen != next.IsOpen || prev.ServiceName != next.ServiceName {
			changed = append(changed, next)
		}
	}
	p.mu.Unlock()

	for _, ps := range changed {
		p.publish(events.PortStatusChanged(ps))
	}
}

// Snapshots returns the latest status of every service in registry order.
func (p *Poller) Snapshots() []modelhub.ServiceStatus {
	descs := p.registry.All()
	out := make([]modelhub.ServiceStatus, 0, len(descs))
	for _, desc := range descs {
		p.mu.Lock()
		st, ok := p.current[desc.Name]
		p.mu.Unlock()
		if !ok {
			st = p.stoppedStatus(desc.Name)
		}
		out = append(out, st)
	}
	return out
}

// Metrics returns the running averages and recent samples of name.
func (p *Poller) Metrics(name string) (modelhub.ServiceMetrics, error) {
	desc, err := p.registry.Resolve(name)
	if err != nil {
		return modelhub.ServiceMetrics{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histories[desc.Name].snapshot(desc.Name), nil
}

// Ports returns the last known state of every registered host port.
func (p *Poller) Ports() []modelhub.PortStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]modelhub.PortStatus, 0, len(p.ports))
	for _, ps := range p.ports {
		out = append(out, ps)
	}
	slices.SortFunc(out, func(a, b modelhub.PortStatus) int { return a.Port - b.Port })
	return out
}

func (p *Poller) publish(e events.Event) {
	if p.pub != nil {
		p.pub.Publish(e)
	}
}
