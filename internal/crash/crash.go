/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "storyboard/internal/log"
	"storyboard/internal/telemetry"
	"storyboard/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// FlushTimeout bounds the final save attempted after a panic.
const FlushTimeout = 5 * time.Second

// Handler describes what to do after a panic: where the report goes and how
// pending edits are saved.
type Handler struct {
	// Dir receives crash-<stamp>.log; empty means the OS temp dir.
	Dir string
	// ProjectID is written into the report when set.
	ProjectID string
	// Flush saves pending edits; nil skips the save.
	Flush func(ctx context.Context) error
}

// Recover captures a panic, logs it with its stack, writes a crash report,
// attempts a final save of pending edits and exits with code 2.
//
// Usage: defer crash.Recover(h)
func Recover(h Handler) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(h, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if h.Flush != nil {
		ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
		if err := h.Flush(ctx); err != nil {
			l.Error("final save after crash failed", slog.Any("err", err))
		} else {
			l.Info("pending edits saved after crash")
		}
		cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	telemetry.Default().Flush(ctx)
	cancel()

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

func writeReport(h Handler, panicVal any, stack []byte) (string, error) {
	dir := h.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405.000")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Storyboard Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if h.ProjectID != "" {
		_, _ = fmt.Fprintf(&buf, "Project: %s\n", h.ProjectID)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
