/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor ties the entity store, the canvas controller and auto-save to
// one gateway backend. A Session edits a single open project at a time.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"storyboard/internal/autosave"
	"storyboard/internal/canvas"
	"storyboard/internal/domain"
	"storyboard/internal/gateway"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
	"storyboard/internal/store"
	"storyboard/internal/telemetry"
	"storyboard/internal/undo"
)

// ErrBusy is returned when an image generation is already running.
var ErrBusy = errors.New("image generation already in progress")

// ErrNoProject is returned by operations that need an open project.
var ErrNoProject = errors.New("no project is open")

// Session is the editing state behind one window or terminal.
type Session struct {
	gw    *gateway.Set
	st    *store.Store
	ctl   *canvas.Controller
	saver *autosave.Coordinator
	log   *slog.Logger
	m     *metrics.Metrics

	fetch    canvas.FetchFunc
	place    func() (x, y float64)
	inFlight atomic.Bool
}

type settings struct {
	autosave autosave.Config
	undo     undo.Config
	metrics  *metrics.Metrics
	log      *slog.Logger
	tracker  *canvas.ImageTracker
	fetch    canvas.FetchFunc
	place    func() (x, y float64)
	onSave   func(autosave.Result)
}

type Option func(*settings)

func WithAutosave(c autosave.Config) Option { return func(s *settings) { s.autosave = c } }
func WithUndo(c undo.Config) Option         { return func(s *settings) { s.undo = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *settings) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(s *settings) { s.log = l } }

// WithImageFetch makes the session load scene images into the controller's tracker.
func WithImageFetch(f canvas.FetchFunc) Option { return func(s *settings) { s.fetch = f } }

// WithImageTracker shares a tracker with the front end.
func WithImageTracker(t *canvas.ImageTracker) Option { return func(s *settings) { s.tracker = t } }

// WithPlacement decides where new scenes land on the canvas.
func WithPlacement(f func() (x, y float64)) Option { return func(s *settings) { s.place = f } }

// OnAutosave is called after every auto-save pass.
func OnAutosave(fn func(autosave.Result)) Option { return func(s *settings) { s.onSave = fn } }

// randomPlacement scatters new cards over the upper-left part of the canvas.
func randomPlacement() (float64, float64) {
	return rand.Float64()*400 + 100, rand.Float64()*400 + 100
}

// New builds a session over gw. Call Close when done.
func New(gw *gateway.Set, opts ...Option) *Session {
	cfg := settings{place: randomPlacement}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = applog.WithComponent("editor")
	}
	if cfg.tracker == nil {
		cfg.tracker = canvas.NewImageTracker(canvas.DefaultImageTimeout)
	}
	s := &Session{
		gw:    gw,
		st:    store.New(store.WithUndo(cfg.undo)),
		log:   cfg.log,
		m:     cfg.metrics,
		fetch: cfg.fetch,
		place: cfg.place,
	}
	s.ctl = canvas.New(s.st,
		canvas.WithConnector(canvas.ConnectorFunc(s.connect)),
		canvas.WithImageTracker(cfg.tracker),
		canvas.WithLogger(cfg.log),
	)
	saveOpts := []autosave.Option{autosave.WithMetrics(cfg.metrics), autosave.WithLogger(cfg.log)}
	if cfg.onSave != nil {
		saveOpts = append(saveOpts, autosave.OnPass(cfg.onSave))
	}
	s.saver = autosave.New(s.st, gw.Scenes, cfg.autosave, saveOpts...)
	s.saver.Start()
	return s
}

func (s *Session) Store() *store.Store             { return s.st }
func (s *Session) Controller() *canvas.Controller  { return s.ctl }
func (s *Session) Autosave() *autosave.Coordinator { return s.saver }
func (s *Session) Gateways() *gateway.Set          { return s.gw }
func (s *Session) Project() *domain.Project        { return s.st.CurrentProject() }
func (s *Session) Busy() bool                      { return s.inFlight.Load() }

func (s *Session) projectID() (string, error) {
	p := s.st.CurrentProject()
	if p == nil {
		return "", ErrNoProject
	}
	return p.ID, nil
}

// Projects lists the projects of the backend.
func (s *Session) Projects(ctx context.Context) ([]domain.Project, error) {
	return s.gw.Projects.List(ctx)
}

// NewProject creates a project and opens it.
func (s *Session) NewProject(ctx context.Context, title string) (domain.Project, error) {
	in := domain.ProjectCreate{Title: strings.TrimSpace(title)}
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	p, err := s.gw.Projects.Create(ctx, in)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	if err := s.Open(ctx, p.ID); err != nil {
		return p, err
	}
	return p, nil
}

// Open makes id the current project. Pending edits of the previous project are
// saved first. On failure the store is left empty and the error matches
// domain.ErrNotFound.
func (s *Session) Open(ctx context.Context, id string) error {
	log := applog.WithOperation(s.log, "open").With(slog.String("project", id))
	s.saver.Flush(ctx)
	s.ctl.Escape()
	s.st.Reset()
	s.ctl.Images().Reset()

	full, err := s.gw.Projects.Get(ctx, id)
	if err != nil {
		s.st.Reset()
		log.Warn("project load failed", slog.Any("err", err))
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load project %s: %w", id, err)
		}
		return fmt.Errorf("load project %s: %w: %w", id, domain.ErrNotFound, err)
	}
	p := full.Project
	s.st.SetCurrentProject(&p)
	s.st.SetScenes(full.Scenes)
	s.st.SetConnections(full.Connections)
	for _, sc := range full.Scenes {
		s.loadImage(ctx, sc.ImageURL)
	}
	log.Info("project opened", slog.Int("scenes", len(full.Scenes)), slog.Int("connections", len(full.Connections)))
	return nil
}

// CloseProject saves pending edits and clears the store.
func (s *Session) CloseProject(ctx context.Context) autosave.Result {
	res := s.saver.Flush(ctx)
	s.ctl.Escape()
	s.st.Reset()
	s.ctl.Images().Reset()
	return res
}

// Close saves pending edits and stops auto-save. The session is unusable afterwards.
func (s *Session) Close(ctx context.Context) autosave.Result {
	res := s.saver.Flush(ctx)
	s.saver.Stop()
	return res
}

// Flush runs a pending auto-save pass now.
func (s *Session) Flush(ctx context.Context) autosave.Result { return s.saver.Flush(ctx) }

func (s *Session) loadImage(ctx context.Context, url string) {
	if s.fetch == nil || url == "" {
		return
	}
	s.ctl.Images().Load(context.WithoutCancel(ctx), url, s.fetch)
}

// acquire claims the generation slot. The returned func releases it.
func (s *Session) acquire() (func(), error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.inFlight.Store(false) }, nil
}

// CreateScene generates an image for prompt and adds a scene showing it. A blank
// prompt is rejected before any gateway call; a second call while one is
// running returns ErrBusy.
func (s *Session) CreateScene(ctx context.Context, prompt string) (domain.Scene, error) {
	projectID, err := s.projectID()
	if err != nil {
		return domain.Scene{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Scene{}, domain.Invalid("Please enter a scene description")
	}
	release, err := s.acquire()
	if err != nil {
		return domain.Scene{}, err
	}
	defer release()

	log := applog.WithOperation(s.log, "create-scene").With(slog.String("project", projectID))
	url, err := s.gw.Images.Generate(ctx, prompt, projectID)
	if err != nil {
		log.Warn("image generation failed", slog.Any("err", err))
		return domain.Scene{}, fmt.Errorf("generate image: %w", err)
	}
	x, y := s.place()
	in := domain.SceneCreate{ProjectID: projectID, PromptText: prompt, ImageURL: url, X: x, Y: y}.ApplyDefaults()
	sc, err := s.gw.Scenes.Create(ctx, in)
	if err != nil {
		log.Warn("scene create failed", slog.Any("err", err))
		return domain.Scene{}, fmt.Errorf("create scene: %w", err)
	}
	if cur, _ := s.projectID(); cur != projectID {
		// The user switched projects while the image was generating.
		return sc, nil
	}
	s.st.Checkpoint("create")
	s.st.AddScene(sc)
	s.m.SceneCreated()
	telemetry.Event(telemetry.EventSceneCreated, map[string]any{"mode": s.gw.Mode})
	s.loadImage(ctx, sc.ImageURL)
	log.Info("scene created", slog.String("scene", sc.ID))
	return sc, nil
}

// EditCaption saves a new caption for the scene.
func (s *Session) EditCaption(ctx context.Context, sceneID, caption string) error {
	if _, ok := s.st.Scene(sceneID); !ok {
		return domain.NotFound("scene", sceneID)
	}
	patch := domain.ScenePatch{Caption: domain.Ptr(caption)}
	if _, err := s.gw.Scenes.Update(ctx, sceneID, patch); err != nil {
		return fmt.Errorf("update caption: %w", err)
	}
	s.st.Checkpoint("caption")
	s.st.UpdateScene(sceneID, patch)
	return nil
}

// Regenerate asks for a new image from the scene's prompt and stores it.
func (s *Session) Regenerate(ctx context.Context, sceneID string) (string, error) {
	sc, ok := s.st.Scene(sceneID)
	if !ok {
		return "", domain.NotFound("scene", sceneID)
	}
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	url, err := s.gw.Images.Generate(ctx, sc.PromptText, sc.ProjectID)
	if err != nil {
		return "", fmt.Errorf("regenerate image: %w", err)
	}
	patch := domain.ScenePatch{ImageURL: domain.Ptr(url)}
	if _, err := s.gw.Scenes.Update(ctx, sceneID, patch); err != nil {
		return "", fmt.Errorf("regenerate image: %w", err)
	}
	s.st.Checkpoint("regenerate")
	s.st.UpdateScene(sceneID, patch)
	s.loadImage(ctx, url)
	return url, nil
}

// DeleteScene removes the scene and every connection touching it.
func (s *Session) DeleteScene(ctx context.Context, sceneID string) error {
	if _, ok := s.st.Scene(sceneID); !ok {
		return domain.NotFound("scene", sceneID)
	}
	if err := s.gw.Scenes.Delete(ctx, sceneID); err != nil {
		return fmt.Errorf("delete scene: %w", err)
	}
	s.st.Checkpoint("delete")
	s.st.DeleteScene(sceneID)
	return nil
}

// DeleteConnection removes one connection.
func (s *Session) DeleteConnection(ctx context.Context, id string) error {
	if err := s.gw.Connections.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	s.st.Checkpoint("disconnect")
	s.st.DeleteConnection(id)
	return nil
}

// connect persists a connection picked on the canvas.
func (s *Session) connect(ctx context.Context, req domain.ConnectionCreate) (domain.Connection, error) {
	if err := req.Validate(); err != nil {
		return domain.Connection{}, err
	}
	c, err := s.gw.Connections.Create(ctx, req)
	if err != nil {
		return domain.Connection{}, err
	}
	s.st.Checkpoint("connect")
	s.m.ConnectionCreated()
	return c, nil
}

// Undo reverts the last checkpointed change and brings the backend in line.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	before := s.st.State()
	if !s.st.Undo() {
		return false, nil
	}
	return true, s.reconcile(ctx, before)
}

// Redo reapplies the last undone change.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	before := s.st.State()
	if !s.st.Redo() {
		return false, nil
	}
	return true, s.reconcile(ctx, before)
}

// reconcile persists the scene and connection set differences between before
// and the current store contents. Geometry and captions are left to auto-save.
// Records brought back by an undo get fresh ids from the backend; the store is
// rewritten with those ids.
func (s *Session) reconcile(ctx context.Context, before store.State) error {
	projectID, err := s.projectID()
	if err != nil {
		return err
	}
	after := s.st.State()
	had := make(map[string]bool, len(before.Scenes))
	for _, sc := range before.Scenes {
		had[sc.ID] = true
	}
	has := make(map[string]bool, len(after.Scenes))
	for _, sc := range after.Scenes {
		has[sc.ID] = true
	}
	var errs []error

	for _, sc := range before.Scenes {
		if !has[sc.ID] {
			if err := s.gw.Scenes.Delete(ctx, sc.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, err)
			}
		}
	}

	ids := map[string]string{}
	scenes := make([]domain.Scene, 0, len(after.Scenes))
	for _, sc := range after.Scenes {
		if !had[sc.ID] {
			created, err := s.gw.Scenes.Create(ctx, domain.SceneCreate{
				ProjectID: projectID, PromptText: sc.PromptText, Caption: sc.Caption, ImageURL: sc.ImageURL,
				X: sc.X, Y: sc.Y, Width: sc.Width, Height: sc.Height,
			})
			if err != nil {
				errs = append(errs, err)
			} else {
				ids[sc.ID] = created.ID
				sc.ID = created.ID
			}
		}
		scenes = append(scenes, sc)
	}
	remap := func(id string) string {
		if n, ok := ids[id]; ok {
			return n
		}
		return id
	}

	hadConn := make(map[string]bool, len(before.Connections))
	for _, c := range before.Connections {
		hadConn[c.ID] = true
	}
	hasConn := make(map[string]bool, len(after.Connections))
	for _, c := range after.Connections {
		hasConn[c.ID] = true
	}
	for _, c := range before.Connections {
		// Connections of deleted scenes went with them.
		if !hasConn[c.ID] && has[c.FromSceneID] && has[c.ToSceneID] {
			if err := s.gw.Connections.Delete(ctx, c.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, err)
			}
		}
	}
	conns := make([]domain.Connection, 0, len(after.Connections))
	changed := len(ids) > 0
	for _, c := range after.Connections {
		if !hadConn[c.ID] || ids[c.FromSceneID] != "" || ids[c.ToSceneID] != "" {
			created, err := s.gw.Connections.Create(ctx, domain.ConnectionCreate{
				ProjectID: projectID, FromSceneID: remap(c.FromSceneID), ToSceneID: remap(c.ToSceneID), Label: c.Label,
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			c = created
			changed = true
		}
		conns = append(conns, c)
	}
	if changed {
		sel := remap(after.SelectedSceneID)
		s.st.SetScenes(scenes)
		s.st.SetConnections(conns)
		s.st.SetSelectedSceneID(sel)
	}
	if len(errs) > 0 {
		s.log.Warn("undo sync incomplete", slog.Int("errors", len(errs)))
		return fmt.Errorf("sync undo: %w", errors.Join(errs...))
	}
	return nil
}
