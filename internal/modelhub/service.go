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
	"maps"
	"slices"
	"strconv"
	"time"
)

// RestartPolicy is applied to every managed container.
const RestartPolicy = "unless-stopped"

type PortBinding struct {
	HostPort      int `json:"hostPort"      yaml:"hostPort"`
	ContainerPort int `json:"containerPort" yaml:"containerPort"`
}

func (p PortBinding) String() string {
	return strconv.Itoa(p.HostPort) + ":" + strconv.Itoa(p.ContainerPort)
}

type VolumeMount struct {
	HostPath      string `json:"hostPath"      yaml:"hostPath"`
	ContainerPath string `json:"containerPath" yaml:"containerPath"`
}

func (v VolumeMount) String() string {
	return v.HostPath + ":" + v.ContainerPath
}

// ServiceDescriptor is the resolved, immutable description of one managed service.
// A configuration change produces a new descriptor on the next resolve.
type ServiceDescriptor struct {
	Name          string            `json:"name"                   yaml:"name"`
	ContainerName string            `json:"containerName"          yaml:"containerName"`
	Image         string            `json:"image"                  yaml:"image"`
	HostPort      int               `json:"hostPort"               yaml:"hostPort"`
	ContainerPort int               `json:"containerPort"          yaml:"containerPort"`
	ExtraPorts    []PortBinding     `json:"extraPorts,omitempty"   yaml:"extraPorts,omitempty"`
	VolumeMounts  []VolumeMount     `json:"volumeMounts,omitempty" yaml:"volumeMounts,omitempty"`
	ExtraEnv      map[string]string `json:"extraEnv,omitempty"     yaml:"extraEnv,omitempty"`
	Links         []string          `json:"links,omitempty"        yaml:"links,omitempty"`
	DependsOn     []string          `json:"dependsOn,omitempty"    yaml:"dependsOn,omitempty"`
	BuildContext  string            `json:"buildContext,omitempty" yaml:"buildContext,omitempty"`
	GracePeriod   time.Duration     `json:"gracePeriod"            yaml:"gracePeriod"`
	ExtraRunArgs  []string          `json:"extraRunArgs,omitempty" yaml:"extraRunArgs,omitempty"`
}

// Ports returns the primary binding followed by the extra ones.
func (d ServiceDescriptor) Ports() []PortBinding {
	ports := make([]PortBinding, 0, 1+len(d.ExtraPorts))
	ports = append(ports, PortBinding{HostPort: d.HostPort, ContainerPort: d.ContainerPort})
	return append(ports, d.ExtraPorts...)
}

// RunArgs renders the detached `run` invocation for the descriptor.
// Environment variables are emitted in key order so the command line is stable.
func (d ServiceDescriptor) RunArgs() []string {
	args := []string{"run", "-d", "--name", d.ContainerName, "--restart", RestartPolicy}
	for _, p := range d.Ports() {
		args = append(args, "-p", p.String())
	}
	for _, v := range d.VolumeMounts {
		args = append(args, "-v", v.String())
	}
	for _, k := range slices.Sorted(maps.Keys(d.ExtraEnv)) {
		args = append(args, "-e", k+"="+d.ExtraEnv[k])
	}
	for _, l := range d.Links {
		args = append(args, "--link", l)
	}
	args = append(args, d.ExtraRunArgs...)
	return append(args, d.Image)
}

// ServiceState is the lifecycle state of a service.
type ServiceState string

const (
	ServiceStopped  ServiceState = "Stopped"
	ServiceStarting ServiceState = "Starting"
	ServiceRunning  ServiceState = "Running"
	ServiceStopping ServiceState = "Stopping"
	ServiceError    ServiceState = "Error"
)

func (s ServiceState) String() string { return string(s) }

// ServiceStatus is a point-in-time snapshot of one service.
type ServiceStatus struct {
	Name             string       `json:"name"             yaml:"name"`
	Status           ServiceState `json:"status"           yaml:"status"`
	CPUUsagePercent  float64      `json:"cpuUsagePercent"  yaml:"cpuUsagePercent"`
	MemoryUsageBytes int64        `json:"memoryUsageBytes" yaml:"memoryUsageBytes"`
	Uptime           string       `json:"uptime"           yaml:"uptime"`
	IsHealthy        bool         `json:"isHealthy"        yaml:"isHealthy"`
	LastError        string       `json:"lastError"        yaml:"lastError"`
	LastUpdated      time.Time    `json:"lastUpdated"      yaml:"lastUpdated"`
}

// Normalize enforces the snapshot invariants: non-negative metrics, and zeroed
// metrics whenever the service is not running.
func (s ServiceStatus) Normalize() ServiceStatus {
	if s.CPUUsagePercent < 0 {
		s.CPUUsagePercent = 0
	}
	if s.MemoryUsageBytes < 0 {
		s.MemoryUsageBytes = 0
	}
	if s.Status != ServiceRunning {
		s.CPUUsagePercent = 0
		s.MemoryUsageBytes = 0
		s.Uptime = ""
		s.IsHealthy = false
	}
	return s
}

type ToggleAction string

const (
	ToggleStart ToggleAction = "start"
	ToggleStop  ToggleAction = "stop"
)

type ToggleOutcome string

const (
	OutcomeStarted            ToggleOutcome = "started"
	OutcomeStopped            ToggleOutcome = "stopped"
	OutcomeLaunchFailed       ToggleOutcome = "launch_failed"
	OutcomePreconditionNotMet ToggleOutcome = "precondition_not_met"
	OutcomeStopFailed         ToggleOutcome = "stop_failed"
	OutcomeToolUnavailable    ToggleOutcome = "tool_unavailable"
	OutcomeRejected           ToggleOutcome = "rejected"
)

// ToggleResult is the structured outcome of one toggle, suitable for display.
type ToggleResult struct {
	Service    string        `json:"service"           yaml:"service"`
	Action     ToggleAction  `json:"action"            yaml:"action"`
	Outcome    ToggleOutcome `json:"outcome"           yaml:"outcome"`
	State      ServiceState  `json:"state"             yaml:"state"`
	Reason     string        `json:"reason,omitempty"  yaml:"reason,omitempty"`
	LogTail    []string      `json:"logTail,omitempty" yaml:"logTail,omitempty"`
	FinishedAt time.Time     `json:"finishedAt"        yaml:"finishedAt"`
}

// Succeeded reports whether the toggle reached its target state.
func (r ToggleResult) Succeeded() bool {
	return r.Outcome == OutcomeStarted || r.Outcome == OutcomeStopped
}
