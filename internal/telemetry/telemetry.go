/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports.
// Nothing leaves the machine unless the user opted in and an endpoint is set.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"storyboard/internal/config"
	applog "storyboard/internal/log"
	"storyboard/internal/version"
)

// Event names. Properties never carry prompts, captions or titles.
const (
	EventStarted       = "started"
	EventProjectOpened = "project_opened"
	EventSceneCreated  = "scene_created"
	EventExported      = "exported"
	EventServerStarted = "server_started"
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
//   - SB_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" to enable
//   - SB_TELEMETRY_ENDPOINT: base URL; events go to <base>/events, crashes to <base>/crash
//   - SB_CRASH_UPLOAD_URL: overrides the crash URL
//   - SB_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - SB_TELEMETRY_DEBUG: if set, logs send attempts
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

const defaultTimeout = 1500 * time.Millisecond

func endpoints(base string) (events, crash string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ""
	}
	return base + "/events", base + "/crash"
}

// FromConfig derives the telemetry settings from the application config.
func FromConfig(c config.AppConfig) Config {
	ev, cr := endpoints(c.Telemetry.Endpoint)
	cfg := Config{OptIn: c.General.TelemetryOptIn, EventsURL: ev, CrashURL: cr, Timeout: defaultTimeout}
	if v := strings.TrimSpace(os.Getenv("SB_CRASH_UPLOAD_URL")); v != "" {
		cfg.CrashURL = v
	}
	cfg.DebugLogging = os.Getenv("SB_TELEMETRY_DEBUG") != ""
	return cfg
}

func FromEnv() Config {
	ev, cr := endpoints(os.Getenv(config.EnvTelemetryEndpoint))
	cfg := Config{
		OptIn:        parseBool(os.Getenv(config.EnvTelemetryOptIn)),
		EventsURL:    ev,
		CrashURL:     cr,
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv("SB_TELEMETRY_DEBUG") != "",
	}
	if v := strings.TrimSpace(os.Getenv("SB_CRASH_UPLOAD_URL")); v != "" {
		cfg.CrashURL = v
	}
	if ms := strings.TrimSpace(os.Getenv("SB_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is an async sender; it drops events on errors and when its queue is full.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	pending sync.WaitGroup
	once    sync.Once
	closed  chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Install makes c the package-level client used by Event and UploadCrash.
func Install(c *Client) {
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()
}

// Default returns the installed client, creating one from the environment on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events would be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return Default().Enabled() }

// Event queues a small JSON event if enabled. It never blocks.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Done()
	}
}

// Event sends through the default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// Flush waits until queued events and uploads are sent or ctx ends.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close stops the sender goroutine. Queued events are dropped.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.send(item)
			c.pending.Done()
		}
	}
}

func (c *Client) post(url, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) send(item map[string]any) {
	buf, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.post(c.cfg.EventsURL, "application/json", buf); err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.Any("err", err))
		}
		return
	}
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry event sent", slog.Any("name", item["name"]))
	}
}

// UploadCrash posts a crash report to the crash URL if the user opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.pending.Add(1)
	go func(b []byte) {
		defer c.pending.Done()
		if err := c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b); err != nil {
			if c.cfg.DebugLogging {
				c.log.Debug("crash upload failed", slog.Any("err", err))
			}
			return
		}
		if c.cfg.DebugLogging {
			c.log.Debug("crash report uploaded")
		}
	}(append([]byte(nil), report...))
}

// UploadCrash uploads through the default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
