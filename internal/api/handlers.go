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
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/logging"
	"github.com/eminwux/devstack/internal/modelhub"
	"github.com/go-chi/chi/v5"
)

// ScanRequest is the inclusive range of a port scan.
type ScanRequest struct {
	Start   int `validate:"min=1,max=65535"`
	End     int `validate:"min=1,max=65535,gtefield=Start"`
	Confirm bool
}

func (s *Server) listServices(w http.ResponseWriter, _ *http.Request) {
	sendSuccess(w, s.engine.GetServices())
}

func (s *Server) toggleService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := s.engine.Toggle(r.Context(), name)
	if err != nil {
		sendError(w, err, res)
		return
	}
	sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%s %s", res.Service, res.Outcome),
		Data:    res,
	})
}

func (s *Server) containerLogs(w http.ResponseWriter, r *http.Request) {
	tail := 0
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, fmt.Errorf("%w: tail must be a non-negative integer", errdefs.ErrInvalidRequest), nil)
			return
		}
		tail = n
	}
	lines, err := s.engine.ContainerLogs(r.Context(), chi.URLParam(r, "name"), tail)
	if err != nil {
		sendError(w, err, nil)
		return
	}
	sendSuccess(w, lines)
}

func (s *Server) serviceMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetServiceMetrics(chi.URLParam(r, "name"))
	if err != nil {
		sendError(w, err, nil)
		return
	}
	sendSuccess(w, m)
}

func (s *Server) listPorts(w http.ResponseWriter, _ *http.Request) {
	sendSuccess(w, s.engine.GetPorts())
}

func (s *Server) parseScanRequest(r *http.Request) (ScanRequest, error) {
	q := r.URL.Query()
	var req ScanRequest
	var err error
	if req.Start, err = strconv.Atoi(q.Get("start")); err != nil {
		return req, fmt.Errorf("%w: start must be an integer", errdefs.ErrInvalidRequest)
	}
	if req.End, err = strconv.Atoi(q.Get("end")); err != nil {
		return req, fmt.Errorf("%w: end must be an integer", errdefs.ErrInvalidRequest)
	}
	if v := q.Get("confirm"); v != "" {
		if req.Confirm, err = strconv.ParseBool(v); err != nil {
			return req, fmt.Errorf("%w: confirm must be a boolean", errdefs.ErrInvalidRequest)
		}
	}
	if err := s.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %d-%d: %w", errdefs.ErrInvalidPortRange, req.Start, req.End, err)
	}
	return req, nil
}

func (s *Server) scanPorts(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseScanRequest(r)
	if err != nil {
		sendError(w, err, nil)
		return
	}
	ports, err := s.engine.ScanPorts(r.Context(), req.Start, req.End, req.Confirm)
	if err != nil {
		sendError(w, err, nil)
		return
	}
	sendSuccess(w, ports)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := logging.Filter{Service: strings.TrimSpace(q.Get("service"))}
	if v := q.Get("level"); v != "" {
		lvl, ok := modelhub.ParseLogLevel(v)
		if !ok {
			sendError(w, fmt.Errorf("%w: unknown level %q", errdefs.ErrInvalidRequest, v), nil)
			return
		}
		f.Level = &lvl
	}
	sendSuccess(w, s.engine.GetLogs(f))
}

func (s *Server) clearLogs(w http.ResponseWriter, _ *http.Request) {
	s.engine.ClearLogs()
	sendJSON(w, http.StatusOK, Response{Success: true, Message: "logs cleared"})
}

func (s *Server) systemMetrics(w http.ResponseWriter, _ *http.Request) {
	sendSuccess(w, s.engine.GetSystemMetrics())
}
