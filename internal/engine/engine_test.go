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

package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eminwux/devstack/internal/docker"
	"github.com/eminwux/devstack/internal/engine"
	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/logging"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/eminwux/devstack/internal/registry"
)

// fakeDocker keeps containers in memory; the value is whether it runs.
type fakeDocker struct {
	mu         sync.Mutex
	containers map[string]bool
	down       bool
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{containers: make(map[string]bool)}
}

func (f *fakeDocker) check() error {
	if f.down {
		return errdefs.ErrExternalToolUnavailable
	}
	return nil
}

func (f *fakeDocker) Available(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check()
}

func (f *fakeDocker) Version(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "27.0.1", f.check()
}

func (f *fakeDocker) IsRunning(_ context.Context, c string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[c], f.check()
}

func (f *fakeDocker) ListRunning(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []string
	for c, running := range f.containers {
		if running {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDocker) Run(_ context.Context, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(args, "--name")
	if i < 0 || i+1 >= len(args) {
		return "", errors.New("run without --name")
	}
	f.containers[args[i+1]] = true
	return "id-" + args[i+1], nil
}

func (f *fakeDocker) Stop(_ context.Context, c string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[c]; !ok {
		return errdefs.ErrContainerNotFound
	}
	f.containers[c] = false
	return nil
}

func (f *fakeDocker) Remove(_ context.Context, c string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[c]; !ok {
		return errdefs.ErrContainerNotFound
	}
	delete(f.containers, c)
	return nil
}

func (f *fakeDocker) Logs(context.Context, string, int) ([]string, error) {
	return []string{"ready"}, nil
}

func (f *fakeDocker) LogsSince(_ context.Context, _ string, _ int, since time.Time) ([]docker.LogLine, error) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if !since.IsZero() && since.After(ts) {
		return nil, nil
	}
	return []docker.LogLine{{Timestamp: ts, Message: "AH00558: httpd started"}}, nil
}

func (f *fakeDocker) Stats(context.Context, string) (docker.Stats, error) {
	return docker.Stats{CPUPercent: 1.5, MemoryBytes: 64 << 20}, nil
}

func (f *fakeDocker) Uptime(context.Context, string) (string, error) { return "5 minutes", nil }

func (f *fakeDocker) Build(context.Context, string, string) error { return nil }

// portsOf treats a host port as open while the owning container runs.
type portsOf struct {
	docker *fakeDocker
	owners map[int]string
}

func (p portsOf) Probe(_ context.Context, port int) bool {
	c, ok := p.owners[port]
	if !ok {
		return false
	}
	p.docker.mu.Lock()
	defer p.docker.mu.Unlock()
	return p.docker.containers[c]
}

type staticSampler struct{}

func (staticSampler) CPUPercent(context.Context) (float64, error) { return 10, nil }

func (staticSampler) Memory(context.Context) (uint64, uint64, error) { return 8 << 30, 2 << 30, nil }

func (staticSampler) Disk(context.Context, string) (uint64, uint64, error) { return 100 << 30, 40 << 30, nil }

func noWait(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newEngine(t *testing.T, d *fakeDocker, logDir string) *engine.Engine {
	t.Helper()
	e, err := engine.New(logging.NewNoopLogger(), engine.Options{
		Config:             registry.StaticConfig{Projects: "/srv/www"},
		PollInterval:       time.Hour,
		MetricsInterval:    time.Hour,
		LogCollectInterval: time.Hour,
		LogDir:             logDir,
		Client:             d,
		Sampler:            staticSampler{},
		Prober:             portsOf{docker: d, owners: map[int]string{8080: "devstack_apache"}},
		GraceWait:          noWait,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

func statusOf(t *testing.T, e *engine.Engine, name string) modelhub.ServiceStatus {
	t.Helper()
	for _, st := range e.GetServices() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("service %q not reported", name)
	return modelhub.ServiceStatus{}
}

func TestToggleApacheRoundTrip(t *testing.T) {
	d := newFakeDocker()
	e := newEngine(t, d, "")
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	ch, cancel := e.Subscribe(256)
	defer cancel()

	if got := statusOf(t, e, registry.Apache).Status; got != modelhub.ServiceStopped {
		t.Fatalf("initial apache status = %s", got)
	}

	res, err := e.Toggle(ctx, "apache")
	if err != nil {
		t.Fatalf("Toggle start: %v", err)
	}
	if res.Outcome != modelhub.OutcomeStarted {
		t.Fatalf("start outcome = %s", res.Outcome)
	}
	st := statusOf(t, e, registry.Apache)
	if st.Status != modelhub.ServiceRunning || !st.IsHealthy || st.Uptime != "5 minutes" {
		t.Fatalf("running status = %+v", st)
	}
	if st.MemoryUsageBytes != 64<<20 {
		t.Fatalf("memory = %d", st.MemoryUsageBytes)
	}

	res, err = e.Toggle(ctx, "apache")
	if err != nil {
		t.Fatalf("Toggle stop: %v", err)
	}
	if res.Outcome != modelhub.OutcomeStopped {
		t.Fatalf("stop outcome = %s", res.Outcome)
	}
	st = statusOf(t, e, registry.Apache)
	if st.Status != modelhub.ServiceStopped || st.IsHealthy || st.CPUUsagePercent != 0 {
		t.Fatalf("stopped status = %+v", st)
	}

	var toggled []modelhub.ToggleOutcome
	for len(ch) > 0 {
		ev := <-ch
		if ev.Kind == events.KindServiceToggled {
			toggled = append(toggled, ev.Toggle.Outcome)
		}
	}
	if !slices.Equal(toggled, []modelhub.ToggleOutcome{modelhub.OutcomeStarted, modelhub.OutcomeStopped}) {
		t.Fatalf("toggle events = %v", toggled)
	}
}

func TestStartSeedsRunningContainers(t *testing.T) {
	d := newFakeDocker()
	d.containers["devstack_mysql"] = true
	e := newEngine(t, d, "")
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	if got := statusOf(t, e, registry.MySQL).Status; got != modelhub.ServiceRunning {
		t.Fatalf("mysql status = %s", got)
	}
	res, err := e.Toggle(ctx, registry.MySQL)
	if err != nil || res.Outcome != modelhub.OutcomeStopped {
		t.Fatalf("toggle = %+v, %v", res, err)
	}
}

func TestStartWithRuntimeDown(t *testing.T) {
	d := newFakeDocker()
	d.down = true
	e := newEngine(t, d, "")
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start must tolerate an unreachable runtime: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	if e.RuntimeAvailable() {
		t.Fatal("runtime reported available")
	}
	res, err := e.Toggle(ctx, registry.Apache)
	if !errors.Is(err, errdefs.ErrExternalToolUnavailable) {
		t.Fatalf("Toggle err = %v", err)
	}
	if res.Outcome != modelhub.OutcomeToolUnavailable {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestLifecycleErrors(t *testing.T) {
	e := newEngine(t, newFakeDocker(), "")
	ctx := context.Background()

	if _, err := e.Toggle(ctx, registry.Apache); !errors.Is(err, errdefs.ErrEngineNotStarted) {
		t.Fatalf("Toggle before Start = %v", err)
	}
	if err := e.Stop(ctx); !errors.Is(err, errdefs.ErrEngineNotStarted) {
		t.Fatalf("Stop before Start = %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(ctx); !errors.Is(err, errdefs.ErrEngineStarted) {
		t.Fatalf("second Start = %v", err)
	}
	ch, _ := e.Subscribe(1)
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for range ch {
	}
}

func TestScanPortsValidation(t *testing.T) {
	e := newEngine(t, newFakeDocker(), "")
	ctx := context.Background()

	if _, err := e.ScanPorts(ctx, 10, 5, false); !errors.Is(err, errdefs.ErrInvalidPortRange) {
		t.Fatalf("reversed range = %v", err)
	}
	if _, err := e.ScanPorts(ctx, 0, 10, false); !errors.Is(err, errdefs.ErrInvalidPortRange) {
		t.Fatalf("port 0 = %v", err)
	}
	if _, err := e.ScanPorts(ctx, 1, 2000, false); !errors.Is(err, errdefs.ErrPortRangeTooLarge) {
		t.Fatalf("wide range without confirm = %v", err)
	}
}

func TestLogsAreAggregatedAndPersisted(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDocker()
	e := newEngine(t, d, dir)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.Toggle(ctx, registry.MailHog); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	entries := e.GetLogs(logging.Filter{Service: "MAILHOG"})
	if len(entries) == 0 {
		t.Fatal("no mailhog entries")
	}
	for _, le := range entries {
		if le.Service != registry.MailHog {
			t.Fatalf("filter leaked %+v", le)
		}
	}
	msgs := ""
	for _, le := range e.GetLogs(logging.Filter{Service: logging.DefaultService}) {
		msgs += le.Message + "\n"
	}
	if !strings.Contains(msgs, "engine started") {
		t.Fatalf("engine entries = %q", msgs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.GetSystemMetrics().LastUpdated.IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m := e.GetSystemMetrics(); m.TotalMemoryUsageBytes != 6<<30 {
		t.Fatalf("system metrics = %+v", m)
	}

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "devstack_*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[mailhog]") {
		t.Fatalf("log file missing mailhog lines:\n%s", data)
	}

	e.ClearLogs()
	if n := len(e.GetLogs(logging.Filter{})); n != 0 {
		t.Fatalf("entries after clear = %d", n)
	}
}

func TestToggleAsync(t *testing.T) {
	e := newEngine(t, newFakeDocker(), "")
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	out := <-e.ToggleAsync(ctx, registry.PHP)
	if out.Err != nil || out.Result.Outcome != modelhub.OutcomeStarted {
		t.Fatalf("async toggle = %+v", out)
	}
}

func TestRefreshUpdatesSnapshots(t *testing.T) {
	d := newFakeDocker()
	e := newEngine(t, d, "")
	ctx := context.Background()
	if err := e.Refresh(ctx); !errors.Is(err, errdefs.ErrEngineNotStarted) {
		t.Fatalf("Refresh before Start = %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	d.mu.Lock()
	d.containers["devstack_apache"] = true
	d.mu.Unlock()

	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	st := statusOf(t, e, registry.Apache)
	if st.Status != modelhub.ServiceRunning || !st.IsHealthy {
		t.Fatalf("apache after refresh = %+v", st)
	}
	if m := e.GetSystemMetrics(); m.TotalMemoryUsageBytes != 6<<30 || m.LastUpdated.IsZero() {
		t.Fatalf("metrics after refresh = %+v", m)
	}
}

func TestRefreshCollectsContainerOutput(t *testing.T) {
	d := newFakeDocker()
	e := newEngine(t, d, "")
	d.containers["devstack_apache"] = true
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	for range 2 {
		if err := e.Refresh(ctx); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}

	entries := e.GetLogs(logging.Filter{Service: registry.Apache})
	var collected int
	for _, le := range entries {
		if le.Message == "AH00558: httpd started" {
			collected++
		}
	}
	if collected != 1 {
		t.Fatalf("apache logs = %+v, want the container line once", entries)
	}

	m, err := e.GetServiceMetrics(registry.Apache)
	if err != nil {
		t.Fatalf("GetServiceMetrics: %v", err)
	}
	if m.Samples < 2 || m.CPUAverage != 1.5 || m.MemoryAverage != 64<<20 {
		t.Fatalf("apache metrics = %+v", m)
	}
	if _, err := e.GetServiceMetrics("nginx"); !errors.Is(err, errdefs.ErrUnknownService) {
		t.Fatalf("unknown service metrics err = %v", err)
	}

	v, err := e.RuntimeVersion(ctx)
	if err != nil || v != "27.0.1" {
		t.Fatalf("RuntimeVersion = %q, %v", v, err)
	}
}
