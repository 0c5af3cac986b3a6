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
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ServiceKey is the attribute that routes a record to a service in the aggregator.
const ServiceKey = "service"

// Handler tees records into an Aggregator and forwards them to Inner.
// Records below Level are not aggregated; Inner applies its own level.
type Handler struct {
	Inner      slog.Handler
	Aggregator *Aggregator
	Level      slog.Leveler

	attrs  []slog.Attr
	groups []string
}

func NewHandler(inner slog.Handler, agg *Aggregator, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{Inner: inner, Aggregator: agg, Level: level}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.Level.Level() {
		return true
	}
	return h.Inner != nil && h.Inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.Aggregator != nil && r.Level >= h.Level.Level() {
		h.Aggregator.Log(levelFromSlog(r.Level), h.service(r), h.message(r))
	}
	if h.Inner != nil && h.Inner.Enabled(ctx, r.Level) {
		return h.Inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	if len(h.groups) == 0 {
		nh.attrs = append(nh.attrs, attrs...)
	}
	if h.Inner != nil {
		nh.Inner = h.Inner.WithAttrs(attrs)
	}
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	if h.Inner != nil {
		nh.Inner = h.Inner.WithGroup(name)
	}
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		Inner:      h.Inner,
		Aggregator: h.Aggregator,
		Level:      h.Level,
		attrs:      append([]slog.Attr(nil), h.attrs...),
		groups:     append([]string(nil), h.groups...),
	}
}

func (h *Handler) service(r slog.Record) string {
	svc := ""
	for _, a := range h.attrs {
		if a.Key == ServiceKey {
			svc = a.Value.String()
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ServiceKey {
			svc = a.Value.String()
			return false
		}
		return true
	})
	if svc == "" {
		return DefaultService
	}
	return svc
}

// message renders the record message followed by its non-service attributes.
func (h *Handler) message(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) {
		if a.Key == ServiceKey || a.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve().Any())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	return b.String()
}

// ReformatHandler prints records as compact single lines to Writer using Inner
// only for level gating. Used by the CLI in verbose mode.
type ReformatHandler struct {
	Inner  slog.Handler
	Writer io.Writer

	attrs []slog.Attr
}

func (h *ReformatHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Inner.Enabled(ctx, level)
}

func (h *ReformatHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", r.Time.Format("15:04:05.000"), r.Level.String(), r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve().Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve().Any())
		return true
	})
	b.WriteByte('\n')
	_, err := io.WriteString(h.Writer, b.String())
	return err
}

func (h *ReformatHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ReformatHandler{
		Inner:  h.Inner.WithAttrs(attrs),
		Writer: h.Writer,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *ReformatHandler) WithGroup(name string) slog.Handler {
	return &ReformatHandler{Inner: h.Inner.WithGroup(name), Writer: h.Writer, attrs: h.attrs}
}
