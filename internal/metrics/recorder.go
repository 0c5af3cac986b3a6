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

// Package metrics mirrors engine events into Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devstack"

// Recorder owns a private registry so several engines can coexist in one
// process, as tests do.
type Recorder struct {
	registry *prometheus.Registry

	serviceUp      *prometheus.GaugeVec
	serviceHealthy *prometheus.GaugeVec
	serviceCPU     *prometheus.GaugeVec
	serviceMemory  *prometheus.GaugeVec
	portOpen       *prometheus.GaugeVec
	runtimeUp      prometheus.Gauge

	hostCPU       prometheus.Gauge
	hostMemUsed   prometheus.Gauge
	hostMemAvail  prometheus.Gauge
	hostDiskTotal prometheus.Gauge
	hostDiskFree  prometheus.Gauge

	toggles    *prometheus.CounterVec
	logEntries *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	service := []string{"service"}
	return &Recorder{
		registry: reg,
		serviceUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "up",
			Help: "1 when the service container is running",
		}, service),
		serviceHealthy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "healthy",
			Help: "1 when the service host port accepts connections",
		}, service),
		serviceCPU: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "cpu_percent",
			Help: "Container CPU usage in percent",
		}, service),
		serviceMemory: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "service", Name: "memory_bytes",
			Help: "Container memory usage in bytes",
		}, service),
		portOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "port", Name: "open",
			Help: "1 when a registered host port is open",
		}, []string{"port", "service"}),
		runtimeUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "runtime_up",
			Help: "1 while the container runtime answers",
		}),
		hostCPU: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "cpu_percent",
			Help: "Host CPU usage in percent",
		}),
		hostMemUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "memory_used_bytes",
			Help: "Host memory in use",
		}),
		hostMemAvail: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "memory_available_bytes",
			Help: "Host memory available",
		}),
		hostDiskTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "disk_total_bytes",
			Help: "Size of the system volume",
		}),
		hostDiskFree: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "host", Name: "disk_available_bytes",
			Help: "Free space on the system volume",
		}),
		toggles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "toggles_total",
			Help: "Toggle requests by service and outcome",
		}, []string{"service", "outcome"}),
		logEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "log_entries_total",
			Help: "Aggregated log entries by level",
		}, []string{"level"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetRuntimeUp seeds the runtime gauge before the first transition event.
func (r *Recorder) SetRuntimeUp(up bool) { r.runtimeUp.Set(boolValue(up)) }

// Observe applies a single event.
func (r *Recorder) Observe(e events.Event) {
	switch e.Kind {
	case events.KindServiceStatus:
		if e.Status == nil {
			return
		}
		st := e.Status
		r.serviceUp.WithLabelValues(st.Name).Set(boolValue(st.Status == modelhub.ServiceRunning))
		r.serviceHealthy.WithLabelValues(st.Name).Set(boolValue(st.IsHealthy))
		r.serviceCPU.WithLabelValues(st.Name).Set(st.CPUUsagePercent)
		r.serviceMemory.WithLabelValues(st.Name).Set(float64(st.MemoryUsageBytes))
	case events.KindPortStatus:
		if e.PortStatus == nil {
			return
		}
		ps := e.PortStatus
		r.portOpen.WithLabelValues(strconv.Itoa(ps.Port), ps.ServiceName).Set(boolValue(ps.IsOpen))
	case events.KindSystemMetrics:
		if e.Metrics == nil {
			return
		}
		m := e.Metrics
		r.hostCPU.Set(m.TotalCPUUsagePercent)
		r.hostMemUsed.Set(float64(m.TotalMemoryUsageBytes))
		r.hostMemAvail.Set(float64(m.AvailableMemoryBytes))
		r.hostDiskTotal.Set(float64(m.TotalDiskBytes))
		r.hostDiskFree.Set(float64(m.AvailableDiskBytes))
	case events.KindLogAppended:
		if e.Log != nil {
			r.logEntries.WithLabelValues(e.Log.Level.String()).Inc()
		}
	case events.KindServiceToggled:
		if e.Toggle != nil {
			r.toggles.WithLabelValues(e.Toggle.Service, string(e.Toggle.Outcome)).Inc()
		}
	case events.KindRuntimeUnavailable:
		r.runtimeUp.Set(0)
	case events.KindRuntimeAvailable:
		r.runtimeUp.Set(1)
	}
}

// Consume observes events until ch is closed or ctx is done.
func (r *Recorder) Consume(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(e)
		}
	}
}
