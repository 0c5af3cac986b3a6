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

package modelhub

import (
	"strings"
	"time"
)

const (
	MinPort = 1
	MaxPort = 65535
)

type PortStatus struct {
	Port        int       `json:"port"                  yaml:"port"`
	IsOpen      bool      `json:"isOpen"                yaml:"isOpen"`
	ServiceName string    `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	LastChecked time.Time `json:"lastChecked"           yaml:"lastChecked"`
}

type SystemMetrics struct {
	TotalCPUUsagePercent  float64   `json:"totalCpuUsagePercent"  yaml:"totalCpuUsagePercent"`
	TotalMemoryUsageBytes uint64    `json:"totalMemoryUsageBytes" yaml:"totalMemoryUsageBytes"`
	AvailableMemoryBytes  uint64    `json:"availableMemoryBytes"  yaml:"availableMemoryBytes"`
	TotalDiskBytes        uint64    `json:"totalDiskBytes"        yaml:"totalDiskBytes"`
	AvailableDiskBytes    uint64    `json:"availableDiskBytes"    yaml:"availableDiskBytes"`
	LastUpdated           time.Time `json:"lastUpdated"           yaml:"lastUpdated"`
}

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError
)

const (
	LogDebugStr   = "Debug"
	LogInfoStr    = "Info"
	LogWarningStr = "Warning"
	LogErrorStr   = "Error"
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return LogDebugStr
	case LogInfo:
		return LogInfoStr
	case LogWarning:
		return LogWarningStr
	case LogError:
		return LogErrorStr
	}
	return LogInfoStr
}

// ParseLogLevel accepts the printable names plus the usual short aliases.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug, true
	case "info":
		return LogInfo, true
	case "warning", "warn":
		return LogWarning, true
	case "error", "err":
		return LogError, true
	}
	return LogInfo, false
}

func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogLevel) UnmarshalText(b []byte) error {
	lvl, _ := ParseLogLevel(string(b))
	*l = lvl
	return nil
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Level     LogLevel  `json:"level"     yaml:"level"`
	Service   string    `json:"service"   yaml:"service"`
	Message   string    `json:"message"   yaml:"message"`
}

// MetricPoint is one resource sample of a service.
type MetricPoint struct {
	Timestamp   time.Time `json:"timestamp"   yaml:"timestamp"`
	CPUPercent  float64   `json:"cpuPercent"  yaml:"cpuPercent"`
	MemoryBytes int64     `json:"memoryBytes" yaml:"memoryBytes"`
}

// ServiceMetrics holds running averages and the most recent samples of one
// service, oldest first.
type ServiceMetrics struct {
	Name          string        `json:"name"          yaml:"name"`
	CPUAverage    float64       `json:"cpuAverage"    yaml:"cpuAverage"`
	MemoryAverage int64         `json:"memoryAverage" yaml:"memoryAverage"`
	Samples       int           `json:"samples"       yaml:"samples"`
	History       []MetricPoint `json:"history"       yaml:"history"`
}
