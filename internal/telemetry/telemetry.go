/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry records local, strictly opt-in usage events to a
// JSONL file. Events are appended asynchronously over a bounded queue and
// dropped silently when the queue is full or the recorder is disabled;
// recording must never slow down or fail a library operation.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "bookvault/internal/log"
	"bookvault/internal/version"
)

// Config controls the recorder. Disabled by default.
type Config struct {
	Enabled bool
	Path    string // JSONL file to append events to
}

// Event is one recorded usage event.
type Event struct {
	Name  string         `json:"name"`
	At    time.Time      `json:"at"`
	App   string         `json:"app"`
	Ver   string         `json:"ver"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Recorder appends events in the background. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	cfg    Config
	log    *slog.Logger
	q      chan Event
	done   chan struct{}
	closer sync.Once
}

// New starts a recorder. When cfg.Enabled is false or no path is set, the
// returned recorder drops everything (and may be nil-checked away by
// callers, but does not have to be).
func New(cfg Config) *Recorder {
	r := &Recorder{
		cfg:  cfg,
		log:  applog.WithComponent("telemetry"),
		q:    make(chan Event, 64),
		done: make(chan struct{}),
	}
	if !cfg.Enabled || cfg.Path == "" {
		close(r.q)
		close(r.done)
		return r
	}
	go r.run()
	return r
}

// Record enqueues an event. Never blocks: a full queue drops the event.
func (r *Recorder) Record(name string, attrs map[string]any) {
	if r == nil || !r.cfg.Enabled || r.cfg.Path == "" {
		return
	}
	e := Event{Name: name, At: time.Now().UTC(), App: "bookvault", Ver: version.Version, Attrs: attrs}
	select {
	case r.q <- e:
	default:
		// queue full, drop
	}
}

// Close stops the recorder and flushes queued events.
func (r *Recorder) Close() {
	if r == nil || !r.cfg.Enabled || r.cfg.Path == "" {
		return
	}
	r.closer.Do(func() {
		close(r.q)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	if err := os.MkdirAll(filepath.Dir(r.cfg.Path), 0o755); err != nil {
		r.log.Warn("telemetry dir unavailable, dropping events", slog.Any("err", err))
		for range r.q {
		}
		return
	}
	f, err := os.OpenFile(r.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.log.Warn("telemetry file unavailable, dropping events", slog.Any("err", err))
		for range r.q {
		}
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for e := range r.q {
		if err := enc.Encode(e); err != nil {
			r.log.Debug("telemetry write failed", slog.Any("err", err))
		}
	}
}
