/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package autosave persists canvas edits a short while after the user stops
// editing. Every relevant store change restarts one countdown; when it fires,
// each scene of the open project is written through the scene gateway.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
	"storyboard/internal/store"
)

// DefaultDelay is the quiet period before a pass runs.
const DefaultDelay = time.Second

// SceneWriter is the part of the scene gateway auto-save needs.
type SceneWriter interface {
	Update(ctx context.Context, id string, patch domain.ScenePatch) (domain.Scene, error)
}

// Config tunes the coordinator.
type Config struct {
	Delay time.Duration
	// RetryAttempts > 0 retries a failed scene write within the same pass.
	RetryAttempts int
	// RetryInitial is the first backoff interval (default 200ms).
	RetryInitial time.Duration
	// WriteTimeout bounds a single scene write (default 10s).
	WriteTimeout time.Duration
}

// Result summarizes one pass.
type Result struct {
	Written int
	Failed  int
	Skipped bool // no project or no scenes
}

// Coordinator owns the debounce timer. Create with New, then Start.
type Coordinator struct {
	st      *store.Store
	w       SceneWriter
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	started bool
	stopped bool
	unsub   func()
	ctx     context.Context
	cancel  context.CancelFunc

	passMu sync.Mutex // one pass at a time
	onPass func(Result)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = l } }

// OnPass registers a callback run after every timer-driven or flushed pass.
func OnPass(fn func(Result)) Option { return func(c *Coordinator) { c.onPass = fn } }

func New(st *store.Store, w SceneWriter, cfg Config, opts ...Option) *Coordinator {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{st: st, w: w, cfg: cfg, ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = applog.WithComponent("autosave")
	}
	return c
}

// Start subscribes to the store. Calling it twice is harmless.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.unsub = c.st.Subscribe(c.onEvent)
}

func (c *Coordinator) onEvent(ev store.Event) {
	if !ev.ScenesEdited() {
		return
	}
	c.schedule()
}

// schedule (re)starts the countdown; only the latest generation may fire.
func (c *Coordinator) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.Delay, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.finish(c.pass(c.ctx))
}

// Pending reports whether a countdown is running.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Flush cancels a pending countdown and runs its pass now. Without a pending
// countdown it does nothing.
func (c *Coordinator) Flush(ctx context.Context) Result {
	c.mu.Lock()
	if c.stopped || c.timer == nil {
		c.mu.Unlock()
		return Result{Skipped: true}
	}
	c.timer.Stop()
	c.timer = nil
	c.gen++
	c.mu.Unlock()

	ctx, cancel := mergeCancel(ctx, c.ctx)
	defer cancel()
	res := c.pass(ctx)
	c.finish(res)
	return res
}

// Stop cancels a pending countdown and aborts in-flight writes. No write starts
// after Stop returns.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsub := c.unsub
	c.mu.Unlock()
	c.cancel()
	if unsub != nil {
		unsub()
	}
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Coordinator) finish(res Result) {
	if res.Skipped {
		return
	}
	c.metrics.AutosavePass()
	if c.onPass != nil {
		c.onPass(res)
	}
}

// pass writes position, size and caption of every scene. A failing scene is
// logged and the pass moves on.
func (c *Coordinator) pass(ctx context.Context) Result {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	st := c.st.State()
	if st.Project == nil || len(st.Scenes) == 0 {
		return Result{Skipped: true}
	}
	ctx = applog.ContextWithProject(ctx, st.Project.ID)
	var res Result
	for _, s := range st.Scenes {
		if c.isStopped() || ctx.Err() != nil {
			break
		}
		if err := c.write(ctx, s); err != nil {
			res.Failed++
			c.metrics.AutosaveWrite(false)
			c.log.WarnContext(ctx, "auto-save failed", slog.String("scene", s.ID), slog.Any("err", err))
			continue
		}
		res.Written++
		c.metrics.AutosaveWrite(true)
	}
	c.log.DebugContext(ctx, "auto-save pass", slog.Int("written", res.Written), slog.Int("failed", res.Failed))
	return res
}

func (c *Coordinator) write(ctx context.Context, s domain.Scene) error {
	patch := domain.GeometryPatch(s)
	call := func() error {
		wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
		_, err := c.w.Update(wctx, s.ID, patch)
		return err
	}
	if c.cfg.RetryAttempts <= 0 {
		return call()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := call()
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.RetryAttempts)+1),
	)
	return err
}

// mergeCancel returns a context done when either parent is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
