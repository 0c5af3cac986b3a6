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

package docker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/eminwux/devstack/internal/errdefs"
)

// statsSeparator joins the fields requested from `stats --format`.
const statsSeparator = "|"

// Stats is one parsed `stats --no-stream` sample.
type Stats struct {
	CPUPercent  float64
	MemoryBytes int64
}

// normalizeDecimal accepts a comma as decimal separator.
func normalizeDecimal(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
}

// ParseCPUPercent parses values such as "0.52%", "12,5 %" or "3".
func ParseCPUPercent(s string) (float64, error) {
	v := normalizeDecimal(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: cpu %q", errdefs.ErrParseFailure, s)
	}
	if f < 0 {
		f = 0
	}
	return f, nil
}

// ParseSize parses a human size with binary multipliers: "512MiB", "0.5GiB",
// "1,5kB" and "0B" are all accepted.
func ParseSize(s string) (int64, error) {
	v := normalizeDecimal(s)
	if v == "" {
		return 0, fmt.Errorf("%w: size %q", errdefs.ErrParseFailure, s)
	}
	n, err := units.RAMInBytes(v)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q: %w", errdefs.ErrParseFailure, s, err)
	}
	return n, nil
}

// ParseMemoryUsage parses the used half of "12.3MiB / 7.6GiB".
func ParseMemoryUsage(s string) (int64, error) {
	used, _, _ := strings.Cut(s, "/")
	n, err := ParseSize(used)
	if err != nil {
		return 0, fmt.Errorf("memory usage %q: %w", s, err)
	}
	return n, nil
}

// ParseStatsLine parses "<cpu>|<mem usage>".
func ParseStatsLine(line string) (Stats, error) {
	cpuField, memField, ok := strings.Cut(strings.TrimSpace(line), statsSeparator)
	if !ok {
		return Stats{}, fmt.Errorf("%w: stats line %q", errdefs.ErrParseFailure, line)
	}
	cpu, err := ParseCPUPercent(cpuField)
	if err != nil {
		return Stats{}, err
	}
	mem, err := ParseMemoryUsage(memField)
	if err != nil {
		return Stats{}, err
	}
	return Stats{CPUPercent: cpu, MemoryBytes: mem}, nil
}

// ParseUptime turns a RunningFor value such as "About an hour ago" into
// "About an hour".
func ParseUptime(s string) string {
	v := strings.TrimSpace(firstLine(s))
	return strings.TrimSpace(strings.TrimSuffix(v, " ago"))
}

// LogLine is one line of `logs --timestamps` output.
type LogLine struct {
	Timestamp time.Time
	Message   string
}

// ParseLogLine splits the RFC 3339 prefix from the message. A line without a
// valid prefix keeps its text and a zero timestamp.
func ParseLogLine(s string) LogLine {
	s = strings.TrimRight(s, "\r")
	ts, msg, found := strings.Cut(s, " ")
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		if !found {
			msg = ""
		}
		return LogLine{Timestamp: t, Message: strings.TrimSpace(msg)}
	}
	return LogLine{Message: strings.TrimSpace(s)}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimRight(line, "\r")
}

func splitLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return lines
}
