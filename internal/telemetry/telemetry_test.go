/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecorderWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	r := New(Config{Enabled: true, Path: path})
	r.Record("book_imported", map[string]any{"title": "A"})
	r.Record("book_exported", nil)
	r.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()
	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Name != "book_imported" || events[0].Attrs["title"] != "A" {
		t.Fatalf("first event: %+v", events[0])
	}
	if events[0].App != "bookvault" || events[0].Ver == "" {
		t.Fatalf("event metadata: %+v", events[0])
	}
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	r := New(Config{Enabled: false, Path: path})
	r.Record("ignored", nil)
	r.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("disabled recorder touched the file: %v", err)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record("noop", nil)
	r.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	r := New(Config{Enabled: true, Path: path})
	r.Record("once", nil)
	r.Close()
	r.Close()
}
