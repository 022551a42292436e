/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"storyboard/internal/domain"
	"storyboard/internal/store"
	"storyboard/internal/vector"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, opts ...Option) (*store.Store, *Controller) {
	t.Helper()
	st := store.New()
	st.SetCurrentProject(&domain.Project{ID: "p", Title: "Board"})
	st.SetScenes([]domain.Scene{
		{ID: "a", ProjectID: "p", PromptText: "a", X: 0, Y: 0, Width: 300, Height: 200},
		{ID: "b", ProjectID: "p", PromptText: "b", X: 500, Y: 0, Width: 300, Height: 200},
		// c overlaps a and paints above it
		{ID: "c", ProjectID: "p", PromptText: "c", X: 100, Y: 100, Width: 300, Height: 200},
	})
	ctl := New(st, append([]Option{WithLogger(quietLogger())}, opts...)...)
	ctl.Resize(1200, 800)
	return st, ctl
}

func pt(x, y float64) vector.Pt { return vector.Pt{X: x, Y: y} }

func TestHitTestTopmostFirst(t *testing.T) {
	_, ctl := newFixture(t)
	if h := ctl.HitTest(pt(150, 150)); h.Kind != HitCard || h.SceneID != "c" {
		t.Fatalf("overlap should hit the later scene, got %+v", h)
	}
	if h := ctl.HitTest(pt(50, 50)); h.SceneID != "a" {
		t.Fatalf("expected a, got %+v", h)
	}
	if h := ctl.HitTest(pt(450, 500)); h.Kind != HitNone {
		t.Fatalf("expected empty canvas, got %+v", h)
	}
}

func TestConnectButtonGeometry(t *testing.T) {
	_, ctl := newFixture(t)
	// b's button spans x 768..792, y 8..32
	if h := ctl.HitTest(pt(770, 10)); h.Kind != HitConnect || h.SceneID != "b" {
		t.Fatalf("expected connect button of b, got %+v", h)
	}
	if h := ctl.HitTest(pt(795, 10)); h.Kind != HitCard {
		t.Fatalf("right of the button is the card body, got %+v", h)
	}
	r := ConnectButton(domain.Scene{X: 10, Y: 20, Width: 300, Height: 200})
	if r != vector.R(278, 28, 24, 24) {
		t.Fatalf("unexpected button rect: %+v", r)
	}
}

func TestClickSelectsAndEmptyClears(t *testing.T) {
	st, ctl := newFixture(t)
	ctx := context.Background()
	if err := ctl.Click(ctx, pt(600, 100)); err != nil {
		t.Fatalf("click: %v", err)
	}
	if st.Selection() != "b" || ctl.Mode() != Idle {
		t.Fatalf("card click should select b in idle mode, got %q %v", st.Selection(), ctl.Mode())
	}
	if err := ctl.Click(ctx, pt(1000, 700)); err != nil {
		t.Fatalf("click: %v", err)
	}
	if st.Selection() != "" {
		t.Fatalf("empty click should clear selection")
	}
}

func TestDragMovesSceneBeyondDeadZone(t *testing.T) {
	st, ctl := newFixture(t)
	ctx := context.Background()

	ctl.PointerDown(pt(600, 100))
	ctl.PointerMove(pt(602, 101))
	if ctl.Dragging() {
		t.Fatalf("movement inside the dead zone must not drag")
	}
	ctl.PointerMove(pt(650, 140))
	if !ctl.Dragging() {
		t.Fatalf("expected drag to start")
	}
	if s, _ := st.Scene("b"); s.X != 550 || s.Y != 40 {
		t.Fatalf("scene not moved live: %+v", s)
	}
	if err := ctl.PointerUp(ctx, pt(700, 150)); err != nil {
		t.Fatalf("up: %v", err)
	}
	if s, _ := st.Scene("b"); s.X != 600 || s.Y != 50 {
		t.Fatalf("final position not committed: %+v", s)
	}
	for id, want := range map[string][4]float64{"a": {0, 0, 300, 200}, "c": {100, 100, 300, 200}} {
		s, ok := st.Scene(id)
		if !ok {
			t.Fatalf("scene %s vanished", id)
		}
		if got := [4]float64{s.X, s.Y, s.Width, s.Height}; got != want {
			t.Fatalf("drag of b changed %s: got %v want %v", id, got, want)
		}
	}
	if s, _ := st.Scene("b"); s.Width != 300 || s.Height != 200 {
		t.Fatalf("drag must not resize: %+v", s)
	}
	if st.Selection() != "" {
		t.Fatalf("drag must not act as a click")
	}
	if st.UndoDepth() != 1 {
		t.Fatalf("drag should leave one undo checkpoint, got %d", st.UndoDepth())
	}
	st.Undo()
	if s, _ := st.Scene("b"); s.X != 500 || s.Y != 0 {
		t.Fatalf("undo did not restore drag origin: %+v", s)
	}
}

func TestSmallMovementIsAClick(t *testing.T) {
	st, ctl := newFixture(t)
	ctl.PointerDown(pt(600, 100))
	ctl.PointerMove(pt(603, 100))
	if err := ctl.PointerUp(context.Background(), pt(603, 100)); err != nil {
		t.Fatalf("up: %v", err)
	}
	if s, _ := st.Scene("b"); s.X != 500 {
		t.Fatalf("scene moved inside dead zone: %+v", s)
	}
	if st.Selection() != "b" {
		t.Fatalf("expected selection after click")
	}
}

func TestDragRespectsZoom(t *testing.T) {
	st, ctl := newFixture(t)
	st.SetViewport(2, 0, 0)
	ctl.PointerDown(pt(1100, 100)) // canvas (550, 50) on b
	ctl.PointerMove(pt(1200, 140))
	_ = ctl.PointerUp(context.Background(), pt(1200, 140))
	if s, _ := st.Scene("b"); s.X != 550 || s.Y != 20 {
		t.Fatalf("screen delta must be divided by scale: %+v", s)
	}
}

func TestConnectFlow(t *testing.T) {
	st, ctl := newFixture(t)
	ctx := context.Background()
	if err := ctl.Click(ctx, pt(270, 10)); err != nil { // a's button
		t.Fatalf("arm: %v", err)
	}
	s := st.State()
	if ctl.Mode() != Connecting || s.ConnectingFromSceneID != "a" {
		t.Fatalf("expected Connecting(a), got %v %+v", ctl.Mode(), s)
	}
	if err := ctl.Click(ctx, pt(770, 10)); err != nil { // b's button
		t.Fatalf("connect: %v", err)
	}
	if ctl.Mode() != Idle {
		t.Fatalf("expected idle after connecting")
	}
	conns := st.Connections()
	if len(conns) != 1 || conns[0].FromSceneID != "a" || conns[0].ToSceneID != "b" || conns[0].Label != "" || conns[0].ProjectID != "p" {
		t.Fatalf("unexpected connections: %+v", conns)
	}
}

func TestConnectSameSceneCancels(t *testing.T) {
	st, ctl := newFixture(t)
	ctx := context.Background()
	_ = ctl.Click(ctx, pt(770, 10))
	_ = ctl.Click(ctx, pt(770, 10))
	if ctl.Mode() != Idle || len(st.Connections()) != 0 {
		t.Fatalf("same-scene button must cancel without a connection")
	}
}

func TestConnectingBodyClickOnlySelects(t *testing.T) {
	st, ctl := newFixture(t)
	ctx := context.Background()
	_ = ctl.Click(ctx, pt(270, 10))
	_ = ctl.Click(ctx, pt(600, 150))
	if ctl.Mode() != Connecting || st.Selection() != "b" || len(st.Connections()) != 0 {
		t.Fatalf("body click while connecting: mode=%v sel=%q conns=%d", ctl.Mode(), st.Selection(), len(st.Connections()))
	}
	_ = ctl.Click(ctx, pt(1000, 700))
	if ctl.Mode() != Connecting || st.Selection() != "" {
		t.Fatalf("empty click while connecting must only clear selection")
	}
	ctl.Escape()
	if ctl.Mode() != Idle {
		t.Fatalf("escape must leave connecting mode")
	}
}

func TestConnectorErrorReturnsToIdle(t *testing.T) {
	boom := errors.New("backend down")
	st, ctl := newFixture(t, WithConnector(ConnectorFunc(func(context.Context, domain.ConnectionCreate) (domain.Connection, error) {
		return domain.Connection{}, boom
	})))
	ctx := context.Background()
	_ = ctl.Click(ctx, pt(270, 10))
	err := ctl.Click(ctx, pt(770, 10))
	if !errors.Is(err, boom) {
		t.Fatalf("expected connector error, got %v", err)
	}
	if ctl.Mode() != Idle || len(st.Connections()) != 0 {
		t.Fatalf("failed connect must leave idle mode and no connection")
	}
}

func TestConnectRunnerDefersConnect(t *testing.T) {
	var queued []func(context.Context) error
	st, ctl := newFixture(t, WithConnectRunner(func(op func(context.Context) error) {
		queued = append(queued, op)
	}))
	ctx := context.Background()
	_ = ctl.Click(ctx, pt(270, 10))
	if err := ctl.Click(ctx, pt(770, 10)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ctl.Mode() != Idle {
		t.Fatalf("mode should return to idle before the connect completes")
	}
	if len(queued) != 1 || len(st.Connections()) != 0 {
		t.Fatalf("connect should be queued: queued=%d conns=%d", len(queued), len(st.Connections()))
	}
	if err := queued[0](ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if conns := st.Connections(); len(conns) != 1 || conns[0].FromSceneID != "a" || conns[0].ToSceneID != "b" {
		t.Fatalf("unexpected connections: %+v", conns)
	}
}

func TestConnectDroppedAfterProjectSwitch(t *testing.T) {
	var queued func(context.Context) error
	st, ctl := newFixture(t)
	ctl.SetConnectRunner(func(op func(context.Context) error) { queued = op })
	ctx := context.Background()
	_ = ctl.Click(ctx, pt(270, 10))
	_ = ctl.Click(ctx, pt(770, 10))
	if queued == nil {
		t.Fatal("connect was not queued")
	}

	st.SetCurrentProject(&domain.Project{ID: "other", Title: "Other"})
	if err := queued(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(st.Connections()); n != 0 {
		t.Fatalf("connection of the old project leaked into the new one: %d", n)
	}
}

func TestFrameOrderAndLiveArrows(t *testing.T) {
	st, ctl := newFixture(t)
	st.SetConnections([]domain.Connection{
		{ID: "ab", FromSceneID: "a", ToSceneID: "b", Label: "then"},
		{ID: "ghost", FromSceneID: "a", ToSceneID: "missing"},
	})
	st.SetSelectedSceneID("c")
	f := ctl.Frame()
	if f.Title != "Board" || len(f.Grid) == 0 {
		t.Fatalf("frame header/grid missing: %+v", f)
	}
	if len(f.Arrows) != 1 || f.Arrows[0].ConnectionID != "ab" {
		t.Fatalf("dangling connection must be skipped: %+v", f.Arrows)
	}
	if got := f.Arrows[0].Arrow.From; got != pt(150, 100) {
		t.Fatalf("arrow must start at a's center: %+v", got)
	}
	if len(f.Cards) != 3 || f.Cards[2].SceneID != "c" || !f.Cards[2].Selected {
		t.Fatalf("cards must keep paint order with selection flag: %+v", f.Cards)
	}

	st.UpdateScene("a", domain.ScenePatch{X: domain.Ptr(1000.0)})
	if got := ctl.Frame().Arrows[0].Arrow.From; got != pt(1150, 100) {
		t.Fatalf("arrow must follow the moved card: %+v", got)
	}
}

func TestGridLinesEvery50(t *testing.T) {
	lines := GridLines(vector.R(0, 0, 100, 100), GridSize)
	var v, h int
	for _, l := range lines {
		if l.Vertical {
			v++
		} else {
			h++
		}
	}
	if v != 3 || h != 3 {
		t.Fatalf("expected 3+3 lines for a 100x100 area, got %d+%d", v, h)
	}
	if lines[1].From.X != 50 {
		t.Fatalf("second vertical line at %v", lines[1].From.X)
	}
}

func TestPlaceholders(t *testing.T) {
	st, ctl := newFixture(t)
	st.UpdateScene("a", domain.ScenePatch{ImageURL: domain.Ptr("http://img/a.png")})
	st.UpdateScene("b", domain.ScenePatch{ImageURL: domain.Ptr("http://img/b.png")})
	tr := ctl.Images()

	f := ctl.Frame()
	if f.Cards[2].Placeholder != PlaceholderNoImage || f.Cards[2].Placeholder.Text() != "No image" {
		t.Fatalf("scene without url: %+v", f.Cards[2])
	}
	if f.Cards[0].Placeholder != PlaceholderLoading {
		t.Fatalf("unrequested image shows loading: %+v", f.Cards[0])
	}
	if p := f.PendingImages(); len(p) != 2 {
		t.Fatalf("pending images: %v", p)
	}

	tr.Begin("http://img/a.png")
	tr.Loaded("http://img/a.png")
	tr.Begin("http://img/b.png")
	tr.Failed("http://img/b.png")
	f = ctl.Frame()
	if f.Cards[0].Placeholder != PlaceholderNone || f.Cards[1].Placeholder != PlaceholderFailed {
		t.Fatalf("unexpected placeholders: %v %v", f.Cards[0].Placeholder, f.Cards[1].Placeholder)
	}
	if len(f.PendingImages()) != 0 {
		t.Fatalf("no image should be pending")
	}
}

func TestResizeKeepsCanvasPositions(t *testing.T) {
	st, ctl := newFixture(t)
	before := st.Scenes()
	ctl.Resize(300, 200)
	if v := ctl.Viewport(); v.W != 300 || v.H != 200 {
		t.Fatalf("viewport size not updated: %+v", v)
	}
	after := st.Scenes()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("resize moved scene %s", before[i].ID)
		}
	}
}

func TestZoomAndPan(t *testing.T) {
	st, ctl := newFixture(t)
	ctl.ZoomAt(pt(0, 0), 100)
	if scale, _, _ := st.Viewport(); scale != vector.MaxScale {
		t.Fatalf("zoom not clamped: %v", scale)
	}
	ctl.Pan(10, 20)
	if _, ox, oy := st.Viewport(); ox != 10 || oy != 20 {
		t.Fatalf("pan offset: %v,%v", ox, oy)
	}
}

func TestFitViewport(t *testing.T) {
	v := FitViewport([]domain.Scene{{X: -100, Y: 50, Width: 300, Height: 200}, {X: 400, Y: 300, Width: 300, Height: 200}}, 20)
	if v.W != 840 || v.H != 490 || v.OffsetX != 120 || v.OffsetY != -30 {
		t.Fatalf("unexpected fit: %+v", v)
	}
	if e := FitViewport(nil, 20); e.W != 800 || e.H != 600 {
		t.Fatalf("empty fit: %+v", e)
	}
}
