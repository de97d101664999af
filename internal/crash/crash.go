/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns an unhandled panic into a logged error plus a crash
// report file instead of a bare stack dump.
package crash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "bookvault/internal/log"
	"bookvault/internal/version"
)

// exitFn is swapped in tests so Recover does not terminate the process.
var exitFn = os.Exit

// Recover captures a panic, logs it with the stack, and writes a report
// file under reportDir (the temp dir when empty).
//
// Usage: defer crash.Recover(dir)
func Recover(reportDir string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	path, err := writeReport(reportDir, r, stack)
	if err != nil {
		l.Error("crash report write failed", slog.Any("err", err))
	}
	fmt.Fprintf(os.Stderr, "A fatal error occurred. Crash report: %s\n", path)
	fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func writeReport(dir string, panicVal any, stack []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = os.TempDir()
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	body := fmt.Sprintf("bookvault crash report\ntime: %s\nversion: %s\nos/arch: %s/%s\npanic: %v\n\n%s\n",
		time.Now().Format(time.RFC3339), version.String(), runtime.GOOS, runtime.GOARCH, panicVal, stack)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return path, err
	}
	return path, nil
}
