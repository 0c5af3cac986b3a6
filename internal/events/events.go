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

// Package events carries engine notifications to any number of subscribers.
package events

import (
	"time"

	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/google/uuid"
)

type Kind string

const (
	KindServiceStatus      Kind = "service.status"
	KindPortStatus         Kind = "port.status"
	KindSystemMetrics      Kind = "system.metrics"
	KindLogAppended        Kind = "log.appended"
	KindServiceToggled     Kind = "service.toggled"
	KindRuntimeUnavailable Kind = "runtime.unavailable"
	KindRuntimeAvailable   Kind = "runtime.available"
)

// Event is a tagged notification. Exactly one payload field is set, matching Kind;
// runtime availability events carry only Message.
type Event struct {
	ID         uuid.UUID               `json:"id"                   yaml:"id"`
	Kind       Kind                    `json:"kind"                 yaml:"kind"`
	Time       time.Time               `json:"time"                 yaml:"time"`
	Service    string                  `json:"service,omitempty"    yaml:"service,omitempty"`
	Message    string                  `json:"message,omitempty"    yaml:"message,omitempty"`
	Status     *modelhub.ServiceStatus `json:"status,omitempty"     yaml:"status,omitempty"`
	PortStatus *modelhub.PortStatus    `json:"portStatus,omitempty" yaml:"portStatus,omitempty"`
	Metrics    *modelhub.SystemMetrics `json:"metrics,omitempty"    yaml:"metrics,omitempty"`
	Log        *modelhub.LogEntry      `json:"log,omitempty"        yaml:"log,omitempty"`
	Toggle     *modelhub.ToggleResult  `json:"toggle,omitempty"     yaml:"toggle,omitempty"`
}

func newEvent(kind Kind) Event {
	return Event{ID: uuid.New(), Kind: kind, Time: time.Now()}
}

func ServiceStatusChanged(s modelhub.ServiceStatus) Event {
	e := newEvent(KindServiceStatus)
	e.Service = s.Name
	e.Status = &s
	return e
}

func PortStatusChanged(p modelhub.PortStatus) Event {
	e := newEvent(KindPortStatus)
	e.Service = p.ServiceName
	e.PortStatus = &p
	return e
}

func SystemMetricsUpdated(m modelhub.SystemMetrics) Event {
	e := newEvent(KindSystemMetrics)
	e.Metrics = &m
	return e
}

func LogAppended(l modelhub.LogEntry) Event {
	e := newEvent(KindLogAppended)
	e.Service = l.Service
	e.Log = &l
	return e
}

func ServiceToggled(r modelhub.ToggleResult) Event {
	e := newEvent(KindServiceToggled)
	e.Service = r.Service
	r.LogTail = append([]string(nil), r.LogTail...)
	e.Toggle = &r
	return e
}

func RuntimeUnavailable(reason string) Event {
	e := newEvent(KindRuntimeUnavailable)
	e.Message = reason
	return e
}

func RuntimeAvailable() Event {
	e := newEvent(KindRuntimeAvailable)
	e.Message = "container runtime reachable"
	return e
}
