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

package monitor

import (
	"slices"

	"github.com/eminwux/devstack/internal/modelhub"
)

// HistoryLimit is the number of samples kept per service.
const HistoryLimit = 50

// history accumulates the samples of one service. Averages halve the weight of
// older samples on every update; the first sample seeds them.
type history struct {
	cpuAvg  float64
	memAvg  int64
	samples int
	points  []modelhub.MetricPoint
}

func (h *history) add(st modelhub.ServiceStatus) {
	if h.samples == 0 {
		h.cpuAvg = st.CPUUsagePercent
		h.memAvg = st.MemoryUsageBytes
	} else {
		h.cpuAvg = (h.cpuAvg + st.CPUUsagePercent) / 2
		h.memAvg = (h.memAvg + st.MemoryUsageBytes) / 2
	}
	h.samples++

	h.points = append(h.points, modelhub.MetricPoint{
		Timestamp:   st.LastUpdated,
		CPUPercent:  st.CPUUsagePercent,
		MemoryBytes: st.MemoryUsageBytes,
	})
	if over := len(h.points) - HistoryLimit; over > 0 {
		h.points = slices.Delete(h.points, 0, over)
	}
}

func (h *history) snapshot(name string) modelhub.ServiceMetrics {
	m := modelhub.ServiceMetrics{Name: name, History: []modelhub.MetricPoint{}}
	if h == nil {
		return m
	}
	m.CPUAverage = h.cpuAvg
	m.MemoryAverage = h.memAvg
	m.Samples = h.samples
	m.History = slices.Clone(h.points)
	return m
}
