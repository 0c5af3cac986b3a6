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

package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eminwux/devstack/internal/errdefs"
	"github.com/eminwux/devstack/internal/events"
	"github.com/eminwux/devstack/internal/modelhub"
)

// Toggle starts name when it is observed stopped and stops it when it is
// observed running. Only one toggle per service runs at a time; a concurrent
// request fails with ErrToggleInFlight without touching the runtime.
func (b *Exec) Toggle(ctx context.Context, name string) (modelhub.ToggleResult, error) {
	desc, err := b.registry.Resolve(name)
	if err != nil {
		return modelhub.ToggleResult{
			Service:    name,
			Outcome:    modelhub.OutcomeRejected,
			State:      modelhub.ServiceStopped,
			Reason:     err.Error(),
			FinishedAt: time.Now(),
		}, err
	}

	e := b.entry(desc.Name)
	if !e.toggle.TryLock() {
		state, _ := b.State(desc.Name)
		b.logger.WarnContext(ctx, "toggle rejected, another one is in flight", "service", desc.Name)
		return modelhub.ToggleResult{
			Service:    desc.Name,
			Outcome:    modelhub.OutcomeRejected,
			State:      state,
			Reason:     "a toggle is already in progress",
			FinishedAt: time.Now(),
		}, fmt.Errorf("%w: %s", errdefs.ErrToggleInFlight, desc.Name)
	}
	defer e.toggle.Unlock()

	var res modelhub.ToggleResult
	running, err := b.client.IsRunning(ctx, desc.ContainerName)
	switch {
	case err != nil:
		state, _ := b.State(desc.Name)
		action := modelhub.ToggleStart
		if state == modelhub.ServiceRunning {
			action = modelhub.ToggleStop
		}
		res = b.failure(desc, action, state, err)
	case running:
		res, err = b.stop(ctx, desc)
	default:
		res, err = b.start(ctx, desc)
	}

	b.finish(ctx, res, err)
	return res, err
}

func (b *Exec) start(ctx context.Context, desc modelhub.ServiceDescriptor) (modelhub.ToggleResult, error) {
	prevState, _ := b.State(desc.Name)

	for _, dep := range desc.DependsOn {
		depDesc, err := b.registry.Resolve(dep)
		if err != nil {
			return b.failure(desc, modelhub.ToggleStart, prevState, err), err
		}
		up, err := b.client.IsRunning(ctx, depDesc.ContainerName)
		if err != nil {
			return b.failure(desc, modelhub.ToggleStart, prevState, err), err
		}
		if !up {
			err = fmt.Errorf("%w: %s requires %s to be running", errdefs.ErrPreconditionNotMet, desc.Name, depDesc.Name)
			res := b.failure(desc, modelhub.ToggleStart, prevState, err)
			res.Outcome = modelhub.OutcomePreconditionNotMet
			return res, err
		}
	}

	b.setState(desc.Name, modelhub.ServiceStarting, "")

	if err := b.client.Remove(ctx, desc.ContainerName); err != nil {
		if isUnavailable(err) {
			b.setState(desc.Name, prevState, "")
			return b.failure(desc, modelhub.ToggleStart, prevState, err), err
		}
		if !errors.Is(err, errdefs.ErrContainerNotFound) {
			b.logger.WarnContext(ctx, "failed to remove stale container", "service", desc.Name, "error", err)
		}
	}

	if _, err := b.client.Run(ctx, desc.RunArgs()); err != nil {
		if isUnavailable(err) {
			b.setState(desc.Name, prevState, "")
			return b.failure(desc, modelhub.ToggleStart, prevState, err), err
		}
		err = fmt.Errorf("%w: %s: %w", errdefs.ErrLaunchFailed, desc.Name, err)
		return b.launchFailed(ctx, desc, err), err
	}

	if err := b.opts.Wait(ctx, desc.GracePeriod); err != nil {
		b.setState(desc.Name, modelhub.ServiceStopped, "")
		err = fmt.Errorf("%w: %s: %w", errdefs.ErrLaunchFailed, desc.Name, err)
		return b.failure(desc, modelhub.ToggleStart, modelhub.ServiceStopped, err), err
	}

	up, err := b.client.IsRunning(ctx, desc.ContainerName)
	if err == nil && !up {
		err = errors.New("container exited during startup")
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", errdefs.ErrLaunchFailed, desc.Name, err)
		return b.launchFailed(ctx, desc, err), err
	}

	b.setState(desc.Name, modelhub.ServiceRunning, "")
	return modelhub.ToggleResult{
		Service:    desc.Name,
		Action:     modelhub.ToggleStart,
		Outcome:    modelhub.OutcomeStarted,
		State:      modelhub.ServiceRunning,
		FinishedAt: time.Now(),
	}, nil
}

// launchFailed records the Error state and attaches the container's last
// output. A container that never got created yields an empty tail.
func (b *Exec) launchFailed(ctx context.Context, desc modelhub.ServiceDescriptor, err error) modelhub.ToggleResult {
	tail, lerr := b.client.Logs(ctx, desc.ContainerName, b.opts.LogTail)
	if lerr != nil {
		tail = nil
		if !errors.Is(lerr, errdefs.ErrContainerNotFound) {
			b.logger.DebugContext(ctx, "failed to fetch container logs", "service", desc.Name, "error", lerr)
		}
	}
	b.setState(desc.Name, modelhub.ServiceError, err.Error())
	res := b.failure(desc, modelhub.ToggleStart, modelhub.ServiceError, err)
	res.LogTail = tail
	return res
}

func (b *Exec) stop(ctx context.Context, desc modelhub.ServiceDescriptor) (modelhub.ToggleResult, error) {
	b.setState(desc.Name, modelhub.ServiceStopping, "")

	if err := b.client.Stop(ctx, desc.ContainerName); err != nil {
		switch {
		case errors.Is(err, errdefs.ErrContainerNotFound):
		case isUnavailable(err):
			b.setState(desc.Name, modelhub.ServiceRunning, "")
			return b.failure(desc, modelhub.ToggleStop, modelhub.ServiceRunning, err), err
		default:
			b.logger.WarnContext(ctx, "stop failed, forcing removal", "service", desc.Name, "error", err)
		}
	}

	if err := b.client.Remove(ctx, desc.ContainerName); err != nil && !errors.Is(err, errdefs.ErrContainerNotFound) {
		err = fmt.Errorf("%w: %s: %w", errdefs.ErrStopFailed, desc.Name, err)
		b.setState(desc.Name, modelhub.ServiceError, err.Error())
		return b.failure(desc, modelhub.ToggleStop, modelhub.ServiceError, err), err
	}

	b.setState(desc.Name, modelhub.ServiceStopped, "")
	return modelhub.ToggleResult{
		Service:    desc.Name,
		Action:     modelhub.ToggleStop,
		Outcome:    modelhub.OutcomeStopped,
		State:      modelhub.ServiceStopped,
		FinishedAt: time.Now(),
	}, nil
}

// failure builds a result for err, picking the outcome from the error kind.
func (b *Exec) failure(
	desc modelhub.ServiceDescriptor,
	action modelhub.ToggleAction,
	state modelhub.ServiceState,
	err error,
) modelhub.ToggleResult {
	outcome := modelhub.OutcomeLaunchFailed
	switch {
	case isUnavailable(err):
		outcome = modelhub.OutcomeToolUnavailable
	case errors.Is(err, errdefs.ErrPreconditionNotMet):
		outcome = modelhub.OutcomePreconditionNotMet
	case errors.Is(err, errdefs.ErrStopFailed):
		outcome = modelhub.OutcomeStopFailed
	case action == modelhub.ToggleStop:
		outcome = modelhub.OutcomeStopFailed
	}
	return modelhub.ToggleResult{
		Service:    desc.Name,
		Action:     action,
		Outcome:    outcome,
		State:      state,
		Reason:     err.Error(),
		FinishedAt: time.Now(),
	}
}

// finish records one log entry, one toggle event and one forced refresh.
func (b *Exec) finish(ctx context.Context, res modelhub.ToggleResult, err error) {
	if err != nil {
		b.logger.ErrorContext(ctx, "toggle failed",
			"service", res.Service, "action", res.Action, "outcome", res.Outcome, "error", err)
	} else {
		b.logger.InfoContext(ctx, "toggle succeeded",
			"service", res.Service, "action", res.Action, "state", res.State)
	}
	if b.opts.Publisher != nil {
		b.opts.Publisher.Publish(events.ServiceToggled(res))
	}

	b.mu.Lock()
	n := b.notifier
	b.mu.Unlock()
	if n != nil {
		n.Refresh(ctx, res.Service)
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, errdefs.ErrExternalToolUnavailable)
}
