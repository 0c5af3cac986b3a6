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

// Package api serves the engine commands over HTTP and streams engine events
// over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/logging"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	DefaultAddr     = "127.0.0.1:9090"
	shutdownTimeout = 5 * time.Second
)

// Engine is the command surface the API exposes.
type Engine interface {
	Toggle(ctx context.Context, name string) (modelhub.ToggleResult, error)
	ScanPorts(ctx context.Context, start, end int, confirm bool) ([]modelhub.PortStatus, error)
	GetServices() []modelhub.ServiceStatus
	GetPorts() []modelhub.PortStatus
	GetLogs(f logging.Filter) []modelhub.LogEntry
	ClearLogs()
	GetSystemMetrics() modelhub.SystemMetrics
	GetServiceMetrics(name string) (modelhub.ServiceMetrics, error)
	Subscribe(buffer int) (<-chan events.Event, func())
	ContainerLogs(ctx context.Context, name string, tail int) ([]string, error)
}

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Server struct {
	logger   *slog.Logger
	engine   Engine
	metrics  http.Handler
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewServer builds the API. metrics may be nil, in which case /metrics is not
// routed.
func NewServer(logger *slog.Logger, engine Engine, metrics http.Handler) *Server {
	return &Server{
		logger:   logger,
		engine:   engine,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHost,
		},
	}
}

// sameHost accepts requests without an Origin header and those whose origin
// host matches the request host.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		host = h
	}
	return strings.EqualFold(u.Hostname(), host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.listServices)
			r.Post("/{name}/toggle", s.toggleService)
			r.Get("/{name}/logs", s.containerLogs)
			r.Get("/{name}/metrics", s.serviceMetrics)
		})
		r.Get("/ports", s.listPorts)
		r.Post("/ports/scan", s.scanPorts)
		r.Get("/logs", s.listLogs)
		r.Delete("/logs", s.clearLogs)
		r.Get("/system", s.systemMetrics)
		r.Get("/events", s.streamEvents)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", errdefs.ErrConfig, addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.InfoContext(ctx, "api stopped")
	return nil
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendSuccess(w http.ResponseWriter, data any) {
	sendJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, err error, data any) {
	sendJSON(w, statusFor(err), Response{Success: false, Message: err.Error(), Data: data})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrUnknownService):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrServiceNameRequired),
		errors.Is(err, errdefs.ErrInvalidPortRange),
		errors.Is(err, errdefs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrPortRangeTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errdefs.ErrToggleInFlight),
		errors.Is(err, errdefs.ErrPreconditionNotMet):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrExternalToolUnavailable),
		errors.Is(err, errdefs.ErrEngineNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, errdefs.ErrCommandTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
