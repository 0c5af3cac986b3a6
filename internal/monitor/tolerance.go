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
	"math"

	"github.com/eminwux/devstack/internal/modelhub"
)

// Tolerance decides whether a new snapshot is worth publishing. Uptime is not
// compared; it changes on every tick.
type Tolerance struct {
	CPU    float64
	Memory int64
}

// DefaultTolerance is half a CPU percent and one MiB. The runtime reports
// memory rounded to display units, so byte-sized thresholds flap.
var DefaultTolerance = Tolerance{CPU: 0.5, Memory: 1 << 20} //nolint:gochecknoglobals // read-only

func (t Tolerance) Changed(prev, next modelhub.ServiceStatus) bool {
	if prev.Status != next.Status || prev.IsHealthy != next.IsHealthy || prev.LastError != next.LastError {
		return true
	}
	if math.Abs(prev.CPUUsagePercent-next.CPUUsagePercent) >= t.CPU {
		return true
	}
	d := prev.MemoryUsageBytes - next.MemoryUsageBytes
	if d < 0 {
		d = -d
	}
	return d >= t.Memory
}
