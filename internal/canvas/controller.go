/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas turns pointer input into store mutations and produces the
// render model (Frame) of the storyboard canvas. It is independent of any UI
// toolkit: front ends feed screen-space pointer events in and paint Frames out.
package canvas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/store"
	"storyboard/internal/vector"
)

// Interaction constants, in canvas units unless noted.
const (
	GridSize = 50.0
	// DragDeadZone is in screen pixels.
	DragDeadZone = 4.0

	ConnectButtonSize  = 24.0
	ConnectButtonRight = 32.0 // distance from the card's right edge to the button's left edge
	ConnectButtonTop   = 8.0
)

// Mode is the controller's interaction state.
type Mode int

const (
	Idle Mode = iota
	Connecting
)

func (m Mode) String() string {
	if m == Connecting {
		return "connecting"
	}
	return "idle"
}

// HitKind says what lies under a point.
type HitKind int

const (
	HitNone HitKind = iota
	HitCard
	HitConnect
)

// Hit is the result of a hit test.
type Hit struct {
	Kind    HitKind
	SceneID string
}

// ConnectButton returns the connect affordance of a card in canvas space.
func ConnectButton(s domain.Scene) vector.Rect {
	return vector.R(s.X+s.Width-ConnectButtonRight, s.Y+ConnectButtonTop, ConnectButtonSize, ConnectButtonSize)
}

// SceneRect returns the card bounds in canvas space.
func SceneRect(s domain.Scene) vector.Rect { return vector.R(s.X, s.Y, s.Width, s.Height) }

type pointerState struct {
	down     bool
	start    vector.Pt // screen
	hit      Hit
	originX  float64 // scene position at press
	originY  float64
	dragging bool
}

// Controller interprets pointer events against the store. Front ends call it from
// a single goroutine; the internal lock only guards against background renders.
type Controller struct {
	st        *store.Store
	connector Connector
	runner    ConnectRunner
	images    *ImageTracker
	log       *slog.Logger

	mu      sync.Mutex
	w, h    float64
	ptr     pointerState
	hovered string
}

// Option configures a Controller.
type Option func(*Controller)

// WithConnector sets how connections are created. The default creates them in memory.
func WithConnector(c Connector) Option { return func(ctl *Controller) { ctl.connector = c } }

// ConnectRunner runs a connect off the caller's goroutine. op reports the
// connector's error.
type ConnectRunner func(op func(ctx context.Context) error)

// WithConnectRunner makes completing a connection asynchronous.
func WithConnectRunner(r ConnectRunner) Option { return func(ctl *Controller) { ctl.runner = r } }

// WithImageTracker shares an image tracker with the front end.
func WithImageTracker(t *ImageTracker) Option { return func(ctl *Controller) { ctl.images = t } }

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option { return func(ctl *Controller) { ctl.log = l } }

// New returns a controller in Idle mode bound to st.
func New(st *store.Store, opts ...Option) *Controller {
	c := &Controller{st: st}
	for _, o := range opts {
		o(c)
	}
	if c.connector == nil {
		c.connector = NewMemoryConnector()
	}
	if c.images == nil {
		c.images = NewImageTracker(DefaultImageTimeout)
	}
	if c.log == nil {
		c.log = applog.WithComponent("canvas")
	}
	return c
}

// SetConnectRunner replaces the runner; nil connects on the calling goroutine.
func (c *Controller) SetConnectRunner(r ConnectRunner) {
	c.mu.Lock()
	c.runner = r
	c.mu.Unlock()
}

// Images returns the tracker used for card placeholders.
func (c *Controller) Images() *ImageTracker { return c.images }

// Mode reports the current interaction state.
func (c *Controller) Mode() Mode {
	if c.st.State().IsConnecting {
		return Connecting
	}
	return Idle
}

// Resize changes the drawing surface size. Scene positions are not touched.
func (c *Controller) Resize(w, h float64) {
	c.mu.Lock()
	c.w, c.h = w, h
	c.mu.Unlock()
}

// Viewport returns the current screen mapping.
func (c *Controller) Viewport() vector.Viewport {
	scale, ox, oy := c.st.Viewport()
	c.mu.Lock()
	defer c.mu.Unlock()
	return vector.Viewport{Scale: scale, OffsetX: ox, OffsetY: oy, W: c.w, H: c.h}
}

// ZoomAt scales the view by factor around a screen point.
func (c *Controller) ZoomAt(screen vector.Pt, factor float64) {
	v := c.Viewport().ZoomAt(screen, factor)
	c.st.SetViewport(v.Scale, v.OffsetX, v.OffsetY)
}

// Pan shifts the view by a screen-space delta.
func (c *Controller) Pan(dx, dy float64) {
	v := c.Viewport().Pan(dx, dy)
	c.st.SetOffset(v.OffsetX, v.OffsetY)
}

// HitTest finds what lies under a screen point, topmost card first.
func (c *Controller) HitTest(screen vector.Pt) Hit {
	p := c.Viewport().ToCanvas(screen)
	return hitTest(c.st.Scenes(), p)
}

func hitTest(scenes []domain.Scene, p vector.Pt) Hit {
	for i := len(scenes) - 1; i >= 0; i-- {
		s := scenes[i]
		if !SceneRect(s).Contains(p) {
			continue
		}
		if ConnectButton(s).Contains(p) {
			return Hit{Kind: HitConnect, SceneID: s.ID}
		}
		return Hit{Kind: HitCard, SceneID: s.ID}
	}
	return Hit{Kind: HitNone}
}

// PointerDown starts a press at a screen point.
func (c *Controller) PointerDown(screen vector.Pt) {
	hit := c.HitTest(screen)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ptr = pointerState{down: true, start: screen, hit: hit}
	if hit.Kind == HitCard {
		if s, ok := c.st.Scene(hit.SceneID); ok {
			c.ptr.originX, c.ptr.originY = s.X, s.Y
		}
	}
}

// PointerMove tracks hover and drives a drag once the press leaves the dead zone.
func (c *Controller) PointerMove(screen vector.Pt) {
	c.mu.Lock()
	if !c.ptr.down {
		c.mu.Unlock()
		hit := c.HitTest(screen)
		c.mu.Lock()
		c.hovered = hit.SceneID
		c.mu.Unlock()
		return
	}
	ptr := c.ptr
	c.mu.Unlock()

	if ptr.hit.Kind != HitCard {
		return
	}
	if !ptr.dragging {
		if screen.Dist(ptr.start) <= DragDeadZone {
			return
		}
		c.st.Checkpoint("move")
		c.mu.Lock()
		c.ptr.dragging = true
		c.mu.Unlock()
		c.log.Debug("drag start", slog.String("scene", ptr.hit.SceneID))
	}
	c.dragTo(ptr, screen)
}

func (c *Controller) dragTo(ptr pointerState, screen vector.Pt) {
	s := vector.ClampScale(c.Viewport().Scale)
	x := ptr.originX + (screen.X-ptr.start.X)/s
	y := ptr.originY + (screen.Y-ptr.start.Y)/s
	c.st.UpdateScene(ptr.hit.SceneID, domain.ScenePatch{X: domain.Ptr(x), Y: domain.Ptr(y)})
}

// PointerUp ends a press. Without a drag it is a click: it selects, clears the
// selection, or drives connecting mode. The error comes from the Connector.
func (c *Controller) PointerUp(ctx context.Context, screen vector.Pt) error {
	c.mu.Lock()
	ptr := c.ptr
	c.ptr = pointerState{}
	c.mu.Unlock()
	if !ptr.down {
		return nil
	}
	if ptr.dragging {
		c.dragTo(ptr, screen)
		c.log.Debug("drag end", slog.String("scene", ptr.hit.SceneID))
		return nil
	}
	return c.click(ctx, ptr.hit)
}

// Click is a press and release at the same point.
func (c *Controller) Click(ctx context.Context, screen vector.Pt) error {
	c.PointerDown(screen)
	return c.PointerUp(ctx, screen)
}

func (c *Controller) click(ctx context.Context, hit Hit) error {
	st := c.st.State()
	switch hit.Kind {
	case HitNone:
		c.st.SetSelectedSceneID("")
	case HitCard:
		c.st.SetSelectedSceneID(hit.SceneID)
	case HitConnect:
		if !st.IsConnecting {
			c.st.SetConnecting(true, hit.SceneID)
			return nil
		}
		from := st.ConnectingFromSceneID
		c.st.SetConnecting(false, "")
		if from == hit.SceneID {
			return nil
		}
		to := hit.SceneID
		c.mu.Lock()
		run := c.runner
		c.mu.Unlock()
		if run != nil {
			run(func(ctx context.Context) error { return c.connect(ctx, st, from, to) })
			return nil
		}
		return c.connect(ctx, st, from, to)
	}
	return nil
}

func (c *Controller) connect(ctx context.Context, st store.State, from, to string) error {
	projectID := ""
	if st.Project != nil {
		projectID = st.Project.ID
	}
	req := domain.ConnectionCreate{ProjectID: projectID, FromSceneID: from, ToSceneID: to}
	if projectID == "" {
		return domain.Invalid("no project is open")
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, ok := c.st.Scene(from); !ok {
		return domain.NotFound("scene", from)
	}
	conn, err := c.connector.Connect(ctx, req)
	if err != nil {
		c.log.Warn("connect failed", slog.String("from", from), slog.String("to", to), slog.Any("err", err))
		return fmt.Errorf("connect scenes: %w", err)
	}
	if cur := c.st.CurrentProject(); cur == nil || cur.ID != projectID {
		c.log.Info("project changed while connecting", slog.String("connection", conn.ID))
		return nil
	}
	c.st.AddConnection(conn)
	return nil
}

// Escape leaves connecting mode and abandons an unfinished press.
func (c *Controller) Escape() {
	c.mu.Lock()
	c.ptr = pointerState{}
	c.mu.Unlock()
	if c.st.State().IsConnecting {
		c.st.SetConnecting(false, "")
	}
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ptr.dragging
}

// Hovered returns the scene under the pointer, or "".
func (c *Controller) Hovered() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hovered
}
