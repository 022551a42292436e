/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv("SB_LOG_LEVEL", "warn")
	t.Setenv("SB_LOG_FORMAT", "json")
	t.Setenv("SB_LOG_SOURCE", "true")
	t.Setenv("SB_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("SB_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyTextHandler_Behavior(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")

	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.Bool("ok", true), slog.String("caption", "two words"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR boom", " k=v", "grp.n=42", "grp.pi=3.14", "grp.ok=true", `grp.caption="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyTextHandlerSource(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelInfo, AddSource: true}, w: &buf}

	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "here", pcs[0])
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, " src=") || !strings.Contains(out, "logger_more_test.go:") {
		t.Fatalf("output %q has no source location", out)
	}

	buf.Reset()
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "nowhere", 0)); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if strings.Contains(buf.String(), "src=") {
		t.Fatalf("record without pc should not print a source: %q", buf.String())
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := multiHandler(
		&prettyTextHandler{opts: prettyOpts{Level: slog.LevelDebug}, w: &a},
		&prettyTextHandler{opts: prettyOpts{Level: slog.LevelError}, w: &b},
	)
	l := slog.New(h)
	l.Info("only-a")
	l.Error("both")
	if !strings.Contains(a.String(), "only-a") || !strings.Contains(a.String(), "both") {
		t.Fatalf("handler a output: %q", a.String())
	}
	if strings.Contains(b.String(), "only-a") || !strings.Contains(b.String(), "both") {
		t.Fatalf("handler b output: %q", b.String())
	}
}
