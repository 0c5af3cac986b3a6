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

package e2e_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const devstack = "devstack"

// fakeDocker answers the subset of the docker CLI the engine uses. Running
// containers are files under $FAKE_DOCKER_STATE.
const fakeDocker = `#!/bin/sh
state="${FAKE_DOCKER_STATE:?}"
sub="$1"
shift
case "$sub" in
version)
	echo "27.0.0"
	;;
ps)
	filter=""
	format=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--filter) filter="$2"; shift 2 ;;
		--format) format="$2"; shift 2 ;;
		*) shift ;;
		esac
	done
	want=$(echo "$filter" | sed -e 's/^name=^//' -e 's/\$$//')
	for f in "$state"/*; do
		[ -e "$f" ] || continue
		n=$(basename "$f")
		if [ -n "$want" ] && [ "$n" != "$want" ]; then
			continue
		fi
		if [ "$format" = "{{.RunningFor}}" ]; then
			echo "2 minutes ago"
		else
			echo "$n"
		fi
	done
	;;
run)
	name=""
	while [ $# -gt 0 ]; do
		case "$1" in
		--name) name="$2"; shift 2 ;;
		*) shift ;;
		esac
	done
	touch "$state/$name"
	echo "id-$name"
	;;
stop)
	rm -f "$state/$1"
	;;
rm)
	for a in "$@"; do
		[ "$a" = "-f" ] || rm -f "$state/$a"
	done
	;;
stats)
	echo "1.50%|64MiB / 1GiB"
	;;
logs)
	echo "ready"
	;;
*)
	echo "unsupported: $sub" >&2
	exit 1
	;;
esac
`

func binPath(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("E2E_BIN_DIR")
	if dir == "" {
		dir = ".."
	}
	bin := filepath.Join(dir, devstack)
	if _, err := os.Stat(bin); os.IsNotExist(err) {
		t.Skipf("binary %s not found, skipping", bin)
	}
	return bin
}

// sandbox returns an environment isolated from the user's configuration, with
// the fake runtime as the docker binary. It also returns the state directory.
func sandbox(t *testing.T) ([]string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runtime is a shell script")
	}
	root := t.TempDir()
	state := filepath.Join(root, "state")
	for _, d := range []string{state, filepath.Join(root, "config"), filepath.Join(root, "www")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	script := filepath.Join(root, "docker")
	if err := os.WriteFile(script, []byte(fakeDocker), 0o755); err != nil { //nolint:gosec // test executable
		t.Fatal(err)
	}
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + root,
		"XDG_CONFIG_HOME=" + filepath.Join(root, "config"),
		"FAKE_DOCKER_STATE=" + state,
		"DEVSTACK_DOCKER_BINARY=" + script,
		"DEVSTACK_PROJECTS_DIR=" + filepath.Join(root, "www"),
		"DEVSTACK_LOG_DIR=" + filepath.Join(root, "logs"),
	}
	return env, state
}

// runBinary executes the binary and returns exit code, stdout and stderr.
func runBinary(t *testing.T, env []string, args ...string) (int, string, string) {
	t.Helper()
	bin := binPath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	if env != nil {
		cmd.Env = env
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		exitError := &exec.ExitError{}
		if !errors.As(err, &exitError) {
			t.Fatalf("failed to run %s %v: %v", bin, args, err)
		}
		exitCode = exitError.ExitCode()
	}
	return exitCode, stdout.String(), stderr.String()
}

func TestDevstack_Help(t *testing.T) {
	t.Parallel()
	for _, args := range [][]string{{}, {"-h"}, {"toggle", "--help"}, {"ports", "scan", "--help"}} {
		code, stdout, _ := runBinary(t, nil, args...)
		if code != 0 || !strings.Contains(stdout, "Usage:") {
			t.Errorf("devstack %v: exit %d, output %q", args, code, stdout)
		}
	}
}

func TestDevstack_Version(t *testing.T) {
	t.Parallel()
	code, stdout, _ := runBinary(t, nil, "version")
	if code != 0 || strings.TrimSpace(stdout) == "" {
		t.Fatalf("exit %d, output %q", code, stdout)
	}
}

func TestDevstack_ToggleRoundTrip(t *testing.T) {
	env, state := sandbox(t)

	code, stdout, stderr := runBinary(t, env, "toggle", "mailhog")
	if code != 0 || !strings.Contains(stdout, "Started mailhog") {
		t.Fatalf("start: exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}
	if _, err := os.Stat(filepath.Join(state, "devstack_mailhog")); err != nil {
		t.Fatalf("container not created: %v", err)
	}

	code, stdout, stderr = runBinary(t, env, "status", "mailhog", "-o", "json")
	if code != 0 || !strings.Contains(stdout, `"status": "Running"`) {
		t.Fatalf("status: exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}

	code, stdout, stderr = runBinary(t, env, "toggle", "mailhog")
	if code != 0 || !strings.Contains(stdout, "Stopped mailhog") {
		t.Fatalf("stop: exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}
	if _, err := os.Stat(filepath.Join(state, "devstack_mailhog")); !os.IsNotExist(err) {
		t.Fatalf("container still present: %v", err)
	}
}

func TestDevstack_PhpMyAdminNeedsMySQL(t *testing.T) {
	env, _ := sandbox(t)
	code, stdout, stderr := runBinary(t, env, "toggle", "phpmyadmin")
	if code == 0 || !strings.Contains(stdout+stderr, "mysql") {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}
}

func TestDevstack_RuntimeUnavailable(t *testing.T) {
	env, _ := sandbox(t)
	env = append(env, "DEVSTACK_DOCKER_BINARY="+filepath.Join(t.TempDir(), "missing-docker"))

	code, stdout, stderr := runBinary(t, env, "status")
	if code != 0 || !strings.Contains(stdout+stderr, "container runtime is not reachable") {
		t.Fatalf("status: exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}

	code, _, _ = runBinary(t, env, "toggle", "apache")
	if code == 0 {
		t.Fatal("toggle should fail without a runtime")
	}
}

func TestDevstack_LargeScanNeedsConfirm(t *testing.T) {
	env, _ := sandbox(t)
	code, stdout, stderr := runBinary(t, env, "ports", "scan", "1", "5000")
	if code == 0 || !strings.Contains(stdout+stderr, "--confirm") {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}
}

func TestDevstack_UnknownService(t *testing.T) {
	env, _ := sandbox(t)
	code, _, stderr := runBinary(t, env, "toggle", "redis")
	if code == 0 || !strings.Contains(stderr, "redis") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}
