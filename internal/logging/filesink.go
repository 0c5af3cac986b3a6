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

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eminwux/devstack/internal/modelhub"
)

const (
	filePrefix     = "devstack_"
	fileSuffix     = ".log"
	fileDateLayout = "2006-01-02"

	DefaultQueueSize = 256
)

// FileName returns the per-day log file name for t.
func FileName(t time.Time) string {
	return filePrefix + t.Format(fileDateLayout) + fileSuffix
}

// FormatLine renders an entry the way it is written to disk.
func FormatLine(e modelhub.LogEntry) string {
	return fmt.Sprintf("[%s] [%s] [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Service, e.Message)
}

// FileSink appends entries to a per-day file from a single writer goroutine.
// Write never blocks; entries are dropped when the queue is full and write errors
// are swallowed.
type FileSink struct {
	dir     string
	queue   chan modelhub.LogEntry
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func NewFileSink(dir string, queueSize int) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &FileSink{
		dir:   dir,
		queue: make(chan modelhub.LogEntry, queueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) Write(entry modelhub.LogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
	}
}

func (s *FileSink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting entries and waits until the queue is drained.
func (s *FileSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
	return nil
}

func (s *FileSink) run() {
	defer close(s.done)

	var (
		f    *os.File
		name string
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	for entry := range s.queue {
		want := FileName(entry.Timestamp)
		if f == nil || want != name {
			if f != nil {
				_ = f.Close()
				f = nil
			}
			nf, err := os.OpenFile(filepath.Join(s.dir, want), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				continue
			}
			f, name = nf, want
		}
		_, _ = f.WriteString(FormatLine(entry) + "\n")
	}
}

// CleanupOld removes per-day files whose date is more than retentionDays before
// now. It returns the names it removed. Files that do not follow the naming
// scheme are left alone.
func CleanupOld(dir string, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log directory %q: %w", dir, err)
	}

	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -retentionDays)

	var removed []string
	for _, de := range entries {
		n := de.Name()
		if de.IsDir() || !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, fileSuffix) {
			continue
		}
		day, perr := time.ParseInLocation(
			fileDateLayout,
			strings.TrimSuffix(strings.TrimPrefix(n, filePrefix), fileSuffix),
			now.Location(),
		)
		if perr != nil {
			continue
		}
		if day.Before(cutoff) {
			if rerr := os.Remove(filepath.Join(dir, n)); rerr == nil {
				removed = append(removed, n)
			}
		}
	}
	return removed, nil
}
