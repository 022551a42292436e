/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package tui is a terminal front end for the storyboard canvas. Mouse and key
// events from tcell drive the canvas controller; each terminal cell stands for
// CellWidth x CellHeight screen pixels.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"storyboard/internal/canvas"
	"storyboard/internal/domain"
	"storyboard/internal/editor"
	applog "storyboard/internal/log"
	"storyboard/internal/store"
	"storyboard/internal/vector"
)

// Cell size in screen pixels.
const (
	CellWidth  = 10.0
	CellHeight = 20.0
)

// Rows reserved below the canvas for the input/help line and the status bar.
const chromeRows = 2

const (
	panStep  = 4 * CellWidth
	zoomStep = 1.1
)

type inputKind int

const (
	inputNone inputKind = iota
	inputPrompt
	inputCaption
)

// redraw and quit are delivered through tcell's event queue.
type (
	redraw   struct{}
	quit     struct{}
	opResult struct {
		msg string
		err error
	}
)

// App owns one terminal screen for one editor session.
type App struct {
	screen tcell.Screen
	sess   *editor.Session
	log    *slog.Logger
	ctx    context.Context

	pressed bool
	input   inputKind
	buf     []rune
	target  string // scene edited by inputCaption
	status  string
	isError bool

	// spawn runs slow gateway work off the event loop.
	spawn func(func())
}

type Option func(*App)

func WithLogger(l *slog.Logger) Option { return func(a *App) { a.log = l } }

// New binds a screen that is already initialized to sess.
func New(screen tcell.Screen, sess *editor.Session, opts ...Option) *App {
	a := &App{
		screen: screen,
		sess:   sess,
		ctx:    context.Background(),
		spawn:  func(f func()) { go f() },
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = applog.WithComponent("tui")
	}
	sess.Controller().SetConnectRunner(func(op func(ctx context.Context) error) {
		a.background("Connecting...", func(ctx context.Context) (string, error) {
			if err := op(ctx); err != nil {
				return "", err
			}
			return "Scenes connected", nil
		})
	})
	return a
}

// Run processes terminal events until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	a.screen.EnableMouse(tcell.MouseMotionEvents)
	defer a.screen.DisableMouse()

	unsub := a.sess.Store().Subscribe(func(store.Event) { a.post(redraw{}) })
	defer unsub()
	a.sess.Controller().Images().OnChange(func(string, canvas.ImageState) { a.post(redraw{}) })
	defer a.sess.Controller().Images().OnChange(nil)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				a.post(quit{})
				return
			case <-stop:
				return
			case <-t.C:
				// refreshes the saved/unsaved indicator
				a.post(redraw{})
			}
		}
	}()

	a.resize()
	a.Draw()
	for {
		ev := a.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if a.HandleEvent(ev) {
			return nil
		}
	}
}

func (a *App) post(data any) { _ = a.screen.PostEvent(tcell.NewEventInterrupt(data)) }

func (a *App) canvasRows() int {
	_, h := a.screen.Size()
	return max(h-chromeRows, 1)
}

func (a *App) resize() {
	w, _ := a.screen.Size()
	a.sess.Controller().Resize(float64(w)*CellWidth, float64(a.canvasRows())*CellHeight)
}

// point is the screen pixel at the middle of cell x, y.
func point(x, y int) vector.Pt {
	return vector.Pt{X: float64(x)*CellWidth + CellWidth/2, Y: float64(y)*CellHeight + CellHeight/2}
}

func (a *App) setStatus(msg string, err error) {
	if err != nil {
		a.status, a.isError = describe(err), true
		return
	}
	a.status, a.isError = msg, false
}

// describe turns an error into the one-line message shown to the user.
func describe(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Msg
	case errors.Is(err, editor.ErrBusy):
		return "Still generating, please wait"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found: " + err.Error()
	case errors.Is(err, domain.ErrUnavailable):
		return "Backend unavailable, try again"
	default:
		return err.Error()
	}
}

// HandleEvent applies one event and redraws. It reports whether the app should quit.
func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.screen.Sync()
		a.resize()
	case *tcell.EventInterrupt:
		switch d := ev.Data().(type) {
		case quit:
			return true
		case opResult:
			a.setStatus(d.msg, d.err)
		}
	case *tcell.EventMouse:
		a.mouse(ev)
	case *tcell.EventKey:
		if a.input != inputNone {
			a.editKey(ev)
		} else if a.key(ev) {
			return true
		}
	}
	a.Draw()
	return false
}

func (a *App) mouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	if y >= a.canvasRows() && !a.pressed {
		return
	}
	ctl := a.sess.Controller()
	p := point(x, y)
	btn := ev.Buttons()
	switch {
	case btn&tcell.WheelUp != 0:
		ctl.ZoomAt(p, zoomStep)
	case btn&tcell.WheelDown != 0:
		ctl.ZoomAt(p, 1/zoomStep)
	case btn&tcell.Button1 != 0:
		if !a.pressed {
			a.pressed = true
			ctl.PointerDown(p)
			return
		}
		ctl.PointerMove(p)
	default:
		if !a.pressed {
			ctl.PointerMove(p)
			return
		}
		a.pressed = false
		if err := ctl.PointerUp(a.ctx, p); err != nil {
			a.setStatus("", err)
		}
	}
}

func (a *App) key(ev *tcell.EventKey) bool {
	ctl := a.sess.Controller()
	st := a.sess.Store()
	sel := st.Selection()
	w, _ := a.screen.Size()
	center := vector.Pt{X: float64(w) * CellWidth / 2, Y: float64(a.canvasRows()) * CellHeight / 2}

	switch ev.Key() {
	case tcell.KeyCtrlC:
		return true
	case tcell.KeyEscape:
		ctl.Escape()
		a.status = ""
	case tcell.KeyTab:
		a.selectNext()
	case tcell.KeyDelete:
		a.deleteSelected(sel)
	case tcell.KeyCtrlR:
		a.redo()
	case tcell.KeyLeft:
		ctl.Pan(panStep, 0)
	case tcell.KeyRight:
		ctl.Pan(-panStep, 0)
	case tcell.KeyUp:
		ctl.Pan(0, panStep)
	case tcell.KeyDown:
		ctl.Pan(0, -panStep)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 'n':
			a.input, a.buf = inputPrompt, nil
		case 'c':
			if sc, ok := st.Scene(sel); ok {
				a.input, a.target, a.buf = inputCaption, sc.ID, []rune(sc.DisplayCaption())
			} else {
				a.setStatus("Select a scene first", nil)
			}
		case 'r':
			a.regenerate(sel)
		case 'd':
			a.deleteSelected(sel)
		case 'u':
			a.undo()
		case 'U':
			a.redo()
		case 's':
			a.save()
		case '+', '=':
			ctl.ZoomAt(center, zoomStep)
		case '-':
			ctl.ZoomAt(center, 1/zoomStep)
		case '0':
			st.SetViewport(1, 0, 0)
		}
	}
	return false
}

func (a *App) selectNext() {
	scenes := a.sess.Store().Scenes()
	if len(scenes) == 0 {
		return
	}
	sel := a.sess.Store().Selection()
	next := 0
	for i, sc := range scenes {
		if sc.ID == sel {
			next = (i + 1) % len(scenes)
		}
	}
	a.sess.Store().SetSelectedSceneID(scenes[next].ID)
}

func (a *App) editKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		a.input, a.buf = inputNone, nil
	case tcell.KeyEnter:
		text := string(a.buf)
		kind, target := a.input, a.target
		a.input, a.buf = inputNone, nil
		switch kind {
		case inputPrompt:
			a.createScene(text)
		case inputCaption:
			a.editCaption(target, text)
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(a.buf); n > 0 {
			a.buf = a.buf[:n-1]
		}
	case tcell.KeyRune:
		a.buf = append(a.buf, ev.Rune())
	}
}

// background runs op off the event loop and reports its outcome in the status bar.
func (a *App) background(running string, op func(ctx context.Context) (string, error)) {
	a.setStatus(running, nil)
	ctx := a.ctx
	a.spawn(func() {
		msg, err := op(ctx)
		if err != nil {
			a.log.Warn("operation failed", slog.String("op", running), slog.Any("err", err))
		}
		a.post(opResult{msg: msg, err: err})
	})
}

func (a *App) createScene(prompt string) {
	if strings.TrimSpace(prompt) == "" {
		a.setStatus("", domain.Invalid("Please enter a scene description"))
		return
	}
	if a.sess.Busy() {
		a.setStatus("", editor.ErrBusy)
		return
	}
	a.background("Generating image...", func(ctx context.Context) (string, error) {
		sc, err := a.sess.CreateScene(ctx, prompt)
		if err != nil {
			return "", err
		}
		a.sess.Store().SetSelectedSceneID(sc.ID)
		return "Scene created", nil
	})
}

func (a *App) editCaption(id, caption string) {
	a.background("Saving caption...", func(ctx context.Context) (string, error) {
		return "Caption saved", a.sess.EditCaption(ctx, id, caption)
	})
}

func (a *App) regenerate(id string) {
	if id == "" {
		a.setStatus("Select a scene first", nil)
		return
	}
	if a.sess.Busy() {
		a.setStatus("", editor.ErrBusy)
		return
	}
	a.background("Regenerating image...", func(ctx context.Context) (string, error) {
		_, err := a.sess.Regenerate(ctx, id)
		return "Image regenerated", err
	})
}

func (a *App) deleteSelected(id string) {
	if id == "" {
		a.setStatus("Select a scene first", nil)
		return
	}
	a.background("Deleting scene...", func(ctx context.Context) (string, error) {
		return "Scene deleted", a.sess.DeleteScene(ctx, id)
	})
}

func (a *App) undo() {
	a.background("Undoing...", func(ctx context.Context) (string, error) {
		ok, err := a.sess.Undo(ctx)
		if !ok && err == nil {
			return "Nothing to undo", nil
		}
		return "Undone", err
	})
}

func (a *App) redo() {
	a.background("Redoing...", func(ctx context.Context) (string, error) {
		ok, err := a.sess.Redo(ctx)
		if !ok && err == nil {
			return "Nothing to redo", nil
		}
		return "Redone", err
	})
}

func (a *App) save() {
	a.background("Saving...", func(ctx context.Context) (string, error) {
		res := a.sess.Flush(ctx)
		if res.Skipped {
			return "Nothing to save", nil
		}
		if res.Failed > 0 {
			return "", fmt.Errorf("%d of %d scenes failed to save: %w", res.Failed, res.Failed+res.Written, domain.ErrUnavailable)
		}
		return fmt.Sprintf("Saved %d scenes", res.Written), nil
	})
}
