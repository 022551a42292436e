/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package autosave

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"storyboard/internal/domain"
	"storyboard/internal/metrics"
	"storyboard/internal/store"
)

type fakeWriter struct {
	mu      sync.Mutex
	calls   []string
	patches map[string]domain.ScenePatch
	fail    map[string]int // remaining failures per scene; -1 fails forever
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{patches: map[string]domain.ScenePatch{}, fail: map[string]int{}, err: domain.ErrUnavailable}
}

func (f *fakeWriter) Update(_ context.Context, id string, p domain.ScenePatch) (domain.Scene, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if n := f.fail[id]; n != 0 {
		if n > 0 {
			f.fail[id] = n - 1
		}
		return domain.Scene{}, f.err
	}
	f.patches[id] = p
	return domain.Scene{ID: id}, nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seeded() *store.Store {
	st := store.New()
	st.SetCurrentProject(&domain.Project{ID: "p", Title: "T"})
	st.SetScenes([]domain.Scene{
		{ID: "a", ProjectID: "p", PromptText: "pa", Caption: "ca", X: 1, Y: 2, Width: 300, Height: 200},
		{ID: "b", ProjectID: "p", PromptText: "pb", X: 3, Y: 4, Width: 300, Height: 200},
		{ID: "c", ProjectID: "p", PromptText: "pc", X: 5, Y: 6, Width: 300, Height: 200},
	})
	return st
}

type passes struct {
	mu  sync.Mutex
	got []Result
	ch  chan Result
}

func newPasses() *passes { return &passes{ch: make(chan Result, 16)} }

func (p *passes) on(r Result) {
	p.mu.Lock()
	p.got = append(p.got, r)
	p.mu.Unlock()
	p.ch <- r
}

func (p *passes) wait(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-p.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no auto-save pass")
		return Result{}
	}
}

func (p *passes) n() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func TestDebounceCollapsesBurstIntoOnePass(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	ps := newPasses()
	c := New(st, w, Config{Delay: 40 * time.Millisecond}, WithLogger(quiet()), OnPass(ps.on))
	c.Start()
	defer c.Stop()

	for i := 0; i < 5; i++ {
		st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(float64(10 + i))})
		time.Sleep(10 * time.Millisecond)
	}
	res := ps.wait(t)
	if res.Written != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	time.Sleep(80 * time.Millisecond)
	if ps.n() != 1 || w.count() != 3 {
		t.Fatalf("expected exactly one pass with 3 writes, got passes=%d writes=%d", ps.n(), w.count())
	}
	p := w.patches["a"]
	if p.X == nil || *p.X != 14 || p.Y == nil || p.Width == nil || p.Height == nil || p.Caption == nil || *p.Caption != "ca" {
		t.Fatalf("patch must carry position, size and caption: %+v", p)
	}
	if p.PromptText != nil || p.ImageURL != nil {
		t.Fatalf("patch must not write prompt or image: %+v", p)
	}
}

func TestFailingSceneDoesNotStopPass(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	w.fail["b"] = -1
	ps := newPasses()
	c := New(st, w, Config{Delay: 10 * time.Millisecond}, WithLogger(quiet()), OnPass(ps.on))
	c.Start()
	defer c.Stop()

	st.UpdateScene("c", domain.ScenePatch{Caption: domain.Ptr("new")})
	res := ps.wait(t)
	if res.Written != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, ok := w.patches["c"]; !ok {
		t.Fatalf("scene after the failing one was not written")
	}
}

func TestIrrelevantEventsDoNotSchedule(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	c := New(st, w, Config{Delay: 10 * time.Millisecond}, WithLogger(quiet()))
	c.Start()
	defer c.Stop()

	st.SetSelectedSceneID("a")
	st.SetViewport(2, 5, 5)
	st.SetConnecting(true, "a")
	st.SetScenes(st.Scenes())
	if c.Pending() {
		t.Fatalf("selection, viewport and loads must not start a countdown")
	}
	time.Sleep(40 * time.Millisecond)
	if w.count() != 0 {
		t.Fatalf("unexpected writes: %d", w.count())
	}
}

func TestNoProjectNoWrites(t *testing.T) {
	st := store.New()
	w := newFakeWriter()
	c := New(st, w, Config{Delay: 5 * time.Millisecond}, WithLogger(quiet()))
	c.Start()
	defer c.Stop()
	st.AddScene(domain.Scene{ID: "orphan"})
	time.Sleep(40 * time.Millisecond)
	if w.count() != 0 {
		t.Fatalf("no current project must mean no writes, got %d", w.count())
	}
}

func TestStopCancelsPendingCountdown(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	c := New(st, w, Config{Delay: 20 * time.Millisecond}, WithLogger(quiet()))
	c.Start()
	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(9.0)})
	if !c.Pending() {
		t.Fatalf("expected a pending countdown")
	}
	c.Stop()
	c.Stop()
	time.Sleep(60 * time.Millisecond)
	if w.count() != 0 {
		t.Fatalf("write started after Stop: %d", w.count())
	}
	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(10.0)})
	if c.Pending() {
		t.Fatalf("stopped coordinator must not schedule")
	}
}

func TestFlushRunsPendingPassNow(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	c := New(st, w, Config{Delay: time.Hour}, WithLogger(quiet()))
	c.Start()
	defer c.Stop()

	if res := c.Flush(context.Background()); !res.Skipped {
		t.Fatalf("flush without pending change must skip: %+v", res)
	}
	st.DeleteScene("c")
	res := c.Flush(context.Background())
	if res.Written != 2 || c.Pending() {
		t.Fatalf("flush result %+v pending=%v", res, c.Pending())
	}
}

func TestRetryPolicy(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	w.fail["a"] = 2
	c := New(st, w, Config{Delay: time.Hour, RetryAttempts: 3, RetryInitial: time.Millisecond}, WithLogger(quiet()))
	c.Start()
	defer c.Stop()

	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(1.5)})
	res := c.Flush(context.Background())
	if res.Written != 3 || res.Failed != 0 {
		t.Fatalf("transient failures should be retried: %+v", res)
	}

	w2 := newFakeWriter()
	w2.err = domain.NotFound("scene", "a")
	w2.fail["a"] = -1
	c2 := New(st, w2, Config{Delay: time.Hour, RetryAttempts: 3, RetryInitial: time.Millisecond}, WithLogger(quiet()))
	c2.Start()
	defer c2.Stop()
	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(2.5)})
	res = c2.Flush(context.Background())
	if res.Failed != 1 {
		t.Fatalf("expected one failure: %+v", res)
	}
	calls := 0
	for _, id := range w2.calls {
		if id == "a" {
			calls++
		}
	}
	if calls != 1 {
		t.Fatalf("not-found must not be retried, got %d attempts", calls)
	}
}

func TestNoRetryByDefault(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	w.fail["a"] = 1
	c := New(st, w, Config{Delay: time.Hour}, WithLogger(quiet()))
	c.Start()
	defer c.Stop()
	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(1.5)})
	if res := c.Flush(context.Background()); res.Failed != 1 || res.Written != 2 {
		t.Fatalf("default policy drops failures: %+v", res)
	}
}

func TestMetricsRecorded(t *testing.T) {
	st := seeded()
	w := newFakeWriter()
	w.fail["b"] = -1
	m := metrics.New()
	c := New(st, w, Config{Delay: time.Hour}, WithLogger(quiet()), WithMetrics(m))
	c.Start()
	defer c.Stop()
	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(1.5)})
	c.Flush(context.Background())
	if got := testutil.ToFloat64(m.AutosaveWrites.WithLabelValues(metrics.OutcomeOK)); got != 2 {
		t.Fatalf("ok writes = %v", got)
	}
	if got := testutil.ToFloat64(m.AutosaveWrites.WithLabelValues(metrics.OutcomeError)); got != 1 {
		t.Fatalf("failed writes = %v", got)
	}
	if got := testutil.ToFloat64(m.AutosavePasses); got != 1 {
		t.Fatalf("passes = %v", got)
	}
}
