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

package events_test

import (
	"testing"

	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
)

func TestBusFanOut(t *testing.T) {
	bus := events.NewBus()
	a, cancelA := bus.Subscribe(4)
	defer cancelA()
	b, cancelB := bus.Subscribe(4)
	defer cancelB()

	bus.Publish(events.ServiceStatusChanged(modelhub.ServiceStatus{Name: "apache", Status: modelhub.ServiceRunning}))

	for i, ch := range []<-chan events.Event{a, b} {
		select {
		case e := <-ch:
			if e.Kind != events.KindServiceStatus {
				t.Fatalf("subscriber %d: kind = %q", i, e.Kind)
			}
			if e.Service != "apache" || e.Status == nil || e.Status.Status != modelhub.ServiceRunning {
				t.Fatalf("subscriber %d: unexpected payload %+v", i, e)
			}
		default:
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(events.RuntimeAvailable())
	bus.Publish(events.RuntimeAvailable())
	bus.Publish(events.RuntimeAvailable())

	if got := bus.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	if len(ch) != 1 {
		t.Fatalf("buffered = %d, want 1", len(ch))
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", bus.Subscribers())
	}
	// publishing with no subscribers must not panic
	bus.Publish(events.RuntimeAvailable())
}

func TestBusClose(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}
	late, _ := bus.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscription after Close should be closed")
	}
}

func TestEventPayloadsAreCopies(t *testing.T) {
	tail := []string{"line one"}
	r := modelhub.ToggleResult{Service: "mysql", LogTail: tail}
	e := events.ServiceToggled(r)
	tail[0] = "mutated"

	if e.Toggle.LogTail[0] != "line one" {
		t.Fatalf("event shares log tail with caller: %q", e.Toggle.LogTail[0])
	}
	if e.ID.String() == "" {
		t.Fatal("event has no id")
	}
}
