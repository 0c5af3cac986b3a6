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

package errdefs

import (
	"errors"
)

var (
	ErrConfig         = errors.New("config error")
	ErrLoggerNotFound = errors.New("logger not found in context")

	// Process execution and runtime CLI.
	ErrExecutableNotFound      = errors.New("executable not found")
	ErrCommandTimeout          = errors.New("command timed out")
	ErrCommandFailed           = errors.New("command exited with non-zero status")
	ErrRunnerClosed            = errors.New("command runner is shutting down")
	ErrExternalToolUnavailable = errors.New("container runtime is unavailable")
	ErrContainerNotFound       = errors.New("container not found")
	ErrParseFailure            = errors.New("failed to parse runtime output")
	ErrBuildFailed             = errors.New("failed to build image")

	// Registry and lifecycle.
	ErrServiceNameRequired = errors.New("service name is required")
	ErrUnknownService      = errors.New("unknown service")
	ErrToggleInFlight      = errors.New("a toggle is already in progress for this service")
	ErrPreconditionNotMet  = errors.New("service precondition not met")
	ErrLaunchFailed        = errors.New("failed to launch service")
	ErrStopFailed          = errors.New("failed to stop service")
	ErrNoBuildContext      = errors.New("service has no build context")

	// Port scanning.
	ErrInvalidPortRange  = errors.New("invalid port range")
	ErrPortRangeTooLarge = errors.New("port range is too large, confirmation required")
	ErrNoAvailablePort   = errors.New("no available port in range")

	// Engine.
	ErrEngineNotStarted = errors.New("engine is not started")
	ErrEngineStarted    = errors.New("engine is already started")

	// API.
	ErrInvalidRequest = errors.New("invalid request")
)
