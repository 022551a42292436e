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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyboard/internal/config"
)

type collector struct {
	mu      sync.Mutex
	events  [][]byte
	crashes [][]byte
}

func (c *collector) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.events = append(c.events, b)
		c.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, b)
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	var col collector
	srv := col.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.Event(EventSceneCreated, map[string]any{"mode": "local"})
	c.UploadCrash([]byte("STACKTRACE"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.events) != 1 || len(col.crashes) != 1 {
		t.Fatalf("events=%d crashes=%d", len(col.events), len(col.crashes))
	}
	var m map[string]any
	if err := json.Unmarshal(col.events[0], &m); err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if m["name"] != EventSceneCreated || m["mode"] != "local" {
		t.Fatalf("unexpected event: %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events"})
	defer c2.Close()
	c2.Event("", nil)

	c.Flush(context.Background())
	c2.Flush(context.Background())
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.UploadCrash([]byte("oops"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Flush(ctx)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(config.EnvTelemetryOptIn, "true")
	t.Setenv(config.EnvTelemetryEndpoint, "https://t.example/v1/")
	t.Setenv("SB_CRASH_UPLOAD_URL", "")
	t.Setenv("SB_TELEMETRY_TIMEOUT_MS", "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "https://t.example/v1/events" || cfg.CrashURL != "https://t.example/v1/crash" {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	if cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("timeout %v", cfg.Timeout)
	}

	c := New(cfg)
	defer c.Close()
	Install(c)
	t.Cleanup(func() { Install(nil) })
	if !Enabled() {
		t.Fatalf("installed client should be enabled")
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("SB_CRASH_UPLOAD_URL", "https://crash.example/upload")
	cfg := config.Defaults()
	cfg.General.TelemetryOptIn = true
	cfg.Telemetry.Endpoint = "https://t.example"
	got := FromConfig(cfg)
	if !got.OptIn || got.EventsURL != "https://t.example/events" || got.CrashURL != "https://crash.example/upload" {
		t.Fatalf("unexpected config %+v", got)
	}
	cfg.Telemetry.Endpoint = ""
	if FromConfig(cfg).EventsURL != "" {
		t.Fatal("no endpoint means no events URL")
	}
}
