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

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/eminwux/devstack/internal/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// parseKinds reads a comma separated kind filter. An empty result means all.
func parseKinds(v string) map[events.Kind]bool {
	kinds := make(map[events.Kind]bool)
	for k := range strings.SplitSeq(v, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[events.Kind(k)] = true
		}
	}
	return kinds
}

// streamEvents upgrades to a websocket, sends the current service snapshot and
// then forwards engine events as JSON until either side goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	kinds := parseKinds(r.URL.Query().Get("kinds"))
	want := func(k events.Kind) bool { return len(kinds) == 0 || kinds[k] }

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.engine.Subscribe(events.DefaultSubscriberBuffer)
	defer cancel()

	ctx := r.Context()
	s.logger.DebugContext(ctx, "event stream connected", "remote", r.RemoteAddr)

	write := func(e events.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(e)
	}

	if want(events.KindServiceStatus) {
		for _, st := range s.engine.GetServices() {
			if err := write(events.ServiceStatusChanged(st)); err != nil {
				return
			}
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			s.logger.DebugContext(ctx, "event stream disconnected", "remote", r.RemoteAddr)
			return
		case e, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "engine stopped"),
					time.Now().Add(writeWait))
				return
			}
			if !want(e.Kind) {
				continue
			}
			if err := write(e); err != nil {
				s.logger.DebugContext(ctx, "event stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
