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

package logging

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	DefaultCapacity = 1000
	// DefaultService is used when an entry carries no service name.
	DefaultService = "engine"
)

// Sink receives every appended entry. Implementations must not block.
type Sink interface {
	Write(entry modelhub.LogEntry)
}

// Filter selects entries in Query. A nil Level matches every level; an empty
// Service matches every service.
type Filter struct {
	Level   *modelhub.LogLevel
	Service string
}

func (f Filter) match(e modelhub.LogEntry) bool {
	if f.Level != nil && e.Level != *f.Level {
		return false
	}
	if f.Service != "" && !strings.EqualFold(e.Service, f.Service) {
		return false
	}
	return true
}

// Aggregator is the capacity-bounded in-memory log buffer. Once the buffer grows
// past its capacity the oldest tenth is dropped in one step.
type Aggregator struct {
	mu       sync.Mutex
	entries  []modelhub.LogEntry
	capacity int
	sink     Sink
	pub      events.Publisher
	now      func() time.Time
}

// NewAggregator builds an aggregator. sink and pub may be nil.
func NewAggregator(capacity int, sink Sink, pub events.Publisher) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{
		entries:  make([]modelhub.LogEntry, 0, capacity),
		capacity: capacity,
		sink:     sink,
		pub:      pub,
		now:      time.Now,
	}
}

// Log appends a new entry stamped with the current time.
func (a *Aggregator) Log(level modelhub.LogLevel, service, message string) {
	a.Append(modelhub.LogEntry{
		Timestamp: a.now(),
		Level:     level,
		Service:   service,
		Message:   message,
	})
}

func (a *Aggregator) Append(entry modelhub.LogEntry) {
	if entry.Service == "" {
		entry.Service = DefaultService
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.capacity {
		evict := max(a.capacity/10, 1)
		kept := make([]modelhub.LogEntry, len(a.entries)-evict, a.capacity)
		copy(kept, a.entries[evict:])
		a.entries = kept
	}
	a.mu.Unlock()

	if a.sink != nil {
		a.sink.Write(entry)
	}
	if a.pub != nil {
		a.pub.Publish(events.LogAppended(entry))
	}
}

// Query returns copies of the matching entries, newest first.
func (a *Aggregator) Query(f Filter) []modelhub.LogEntry {
	a.mu.Lock()
	out := make([]modelhub.LogEntry, 0, len(a.entries))
	for _, e := range a.entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	a.mu.Unlock()

	slices.Reverse(out)
	slices.SortStableFunc(out, func(x, y modelhub.LogEntry) int {
		return y.Timestamp.Compare(x.Timestamp)
	})
	return out
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make([]modelhub.LogEntry, 0, a.capacity)
}
