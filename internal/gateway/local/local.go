/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package local is the offline gateway backend. Projects live in JSON files under a
// data directory:
//
//	projects.json
//	projects/<id>/scenes.json
//	projects/<id>/connections.json
//
// Writes are transactional with timestamped backups; a corrupt file is replaced by its
// newest valid backup when read. Image generation returns placeholder URLs unless a
// real generator is configured.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyboard/internal/domain"
	"storyboard/internal/imagegen"
)

const (
	ProjectsFileName    = "projects.json"
	ScenesFileName      = "scenes.json"
	ConnectionsFileName = "connections.json"
	projectsDirName     = "projects"

	DefaultKeepBackups = 5
)

// Store is safe for concurrent use; one mutex serializes every file access.
type Store struct {
	root    string
	latency time.Duration
	keep    int
	images  imagegen.Generator
	now     func() time.Time
	newID   func() string

	mu sync.Mutex
}

type Option func(*Store)

// WithLatency delays every call by d to simulate a remote backend.
func WithLatency(d time.Duration) Option        { return func(s *Store) { s.latency = d } }
func WithKeepBackups(n int) Option              { return func(s *Store) { s.keep = n } }
func WithGenerator(g imagegen.Generator) Option { return func(s *Store) { s.images = g } }
func WithClock(now func() time.Time) Option     { return func(s *Store) { s.now = now } }
func withIDs(f func() string) Option            { return func(s *Store) { s.newID = f } }

// Open prepares root for use, creating it when missing.
func Open(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local: data dir is required")
	}
	if err := os.MkdirAll(filepath.Join(root, projectsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("local: create data dir: %w", err)
	}
	s := &Store{
		root:   root,
		keep:   DefaultKeepBackups,
		images: imagegen.Placeholder{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) projectsPath() string { return filepath.Join(s.root, ProjectsFileName) }

// projectDir resolves the directory of a project. Ids that are not a single
// plain path element never name a project.
func (s *Store) projectDir(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\:`) || filepath.Base(id) != id {
		return "", domain.NotFound("project", id)
	}
	return filepath.Join(s.root, projectsDirName, id), nil
}

func (s *Store) projectFile(id, name string) (string, error) {
	dir, err := s.projectDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// unavailable marks disk trouble so callers treat it like a backend outage.
func unavailable(op string, err error) error { return domain.Unavailable("local "+op, err) }

func (s *Store) loadProjects() ([]domain.Project, error) {
	var list []domain.Project
	if _, err := readJSON(s.projectsPath(), projectsCheck, &list); err != nil {
		return nil, unavailable("load projects", err)
	}
	return list, nil
}

func (s *Store) saveProjects(list []domain.Project) error {
	if list == nil {
		list = []domain.Project{}
	}
	b, err := marshal(list)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.projectsPath(), b, s.keep); err != nil {
		return unavailable("save projects", err)
	}
	return nil
}

func (s *Store) loadScenes(projectID string) ([]domain.Scene, error) {
	path, err := s.projectFile(projectID, ScenesFileName)
	if err != nil {
		return nil, err
	}
	var list []domain.Scene
	if _, err := readJSON(path, scenesCheck, &list); err != nil {
		return nil, unavailable("load scenes", err)
	}
	return list, nil
}

func (s *Store) saveScenes(projectID string, list []domain.Scene) error {
	if list == nil {
		list = []domain.Scene{}
	}
	path, err := s.projectFile(projectID, ScenesFileName)
	if err != nil {
		return err
	}
	b, err := marshal(list)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, b, s.keep); err != nil {
		return unavailable("save scenes", err)
	}
	return nil
}

func (s *Store) loadConnections(projectID string) ([]domain.Connection, error) {
	path, err := s.projectFile(projectID, ConnectionsFileName)
	if err != nil {
		return nil, err
	}
	var list []domain.Connection
	if _, err := readJSON(path, connectionsCheck, &list); err != nil {
		return nil, unavailable("load connections", err)
	}
	return list, nil
}

func (s *Store) saveConnections(projectID string, list []domain.Connection) error {
	if list == nil {
		list = []domain.Connection{}
	}
	path, err := s.projectFile(projectID, ConnectionsFileName)
	if err != nil {
		return err
	}
	b, err := marshal(list)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, b, s.keep); err != nil {
		return unavailable("save connections", err)
	}
	return nil
}

func findProject(list []domain.Project, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// touch bumps a project's updated_at; callers hold mu.
func (s *Store) touch(projectID string) error {
	list, err := s.loadProjects()
	if err != nil {
		return err
	}
	i := findProject(list, projectID)
	if i < 0 {
		return nil
	}
	list[i].UpdatedAt = s.now().UTC()
	return s.saveProjects(list)
}

// locateScene finds the project holding a scene; callers hold mu.
func (s *Store) locateScene(id string) (string, []domain.Scene, int, error) {
	projects, err := s.loadProjects()
	if err != nil {
		return "", nil, -1, err
	}
	for _, p := range projects {
		scenes, err := s.loadScenes(p.ID)
		if err != nil {
			return "", nil, -1, err
		}
		for i := range scenes {
			if scenes[i].ID == id {
				return p.ID, scenes, i, nil
			}
		}
	}
	return "", nil, -1, domain.NotFound("scene", id)
}

func (s *Store) locateConnection(id string) (string, []domain.Connection, int, error) {
	projects, err := s.loadProjects()
	if err != nil {
		return "", nil, -1, err
	}
	for _, p := range projects {
		conns, err := s.loadConnections(p.ID)
		if err != nil {
			return "", nil, -1, err
		}
		for i := range conns {
			if conns[i].ID == id {
				return p.ID, conns, i, nil
			}
		}
	}
	return "", nil, -1, domain.NotFound("connection", id)
}

// Projects, Scenes, Connections and Images expose the store as gateway backends.
func (s *Store) Projects() *Projects       { return &Projects{s} }
func (s *Store) Scenes() *Scenes           { return &Scenes{s} }
func (s *Store) Connections() *Connections { return &Connections{s} }
func (s *Store) Images() *Images           { return &Images{s} }

type Projects struct{ s *Store }

// List returns projects, most recently updated first.
func (p *Projects) List(ctx context.Context) ([]domain.Project, error) {
	if err := p.s.wait(ctx); err != nil {
		return nil, err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	list, err := p.s.loadProjects()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	if list == nil {
		list = []domain.Project{}
	}
	return list, nil
}

func (p *Projects) Get(ctx context.Context, id string) (domain.ProjectFull, error) {
	if err := p.s.wait(ctx); err != nil {
		return domain.ProjectFull{}, err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	list, err := p.s.loadProjects()
	if err != nil {
		return domain.ProjectFull{}, err
	}
	i := findProject(list, id)
	if i < 0 {
		return domain.ProjectFull{}, domain.NotFound("project", id)
	}
	scenes, err := p.s.loadScenes(id)
	if err != nil {
		return domain.ProjectFull{}, err
	}
	conns, err := p.s.loadConnections(id)
	if err != nil {
		return domain.ProjectFull{}, err
	}
	if scenes == nil {
		scenes = []domain.Scene{}
	}
	if conns == nil {
		conns = []domain.Connection{}
	}
	return domain.ProjectFull{Project: list[i], Scenes: scenes, Connections: conns}, nil
}

func (p *Projects) Create(ctx context.Context, in domain.ProjectCreate) (domain.Project, error) {
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := p.s.wait(ctx); err != nil {
		return domain.Project{}, err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	list, err := p.s.loadProjects()
	if err != nil {
		return domain.Project{}, err
	}
	now := p.s.now().UTC()
	proj := domain.Project{
		ID:        p.s.newID(),
		UserID:    in.UserID,
		Title:     strings.TrimSpace(in.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	dir, err := p.s.projectDir(proj.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Project{}, unavailable("create project dir", err)
	}
	if err := p.s.saveProjects(append(list, proj)); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}

func (p *Projects) Update(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := patch.Validate(); err != nil {
		return domain.Project{}, err
	}
	if err := p.s.wait(ctx); err != nil {
		return domain.Project{}, err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	list, err := p.s.loadProjects()
	if err != nil {
		return domain.Project{}, err
	}
	i := findProject(list, id)
	if i < 0 {
		return domain.Project{}, domain.NotFound("project", id)
	}
	if patch.Apply(&list[i]) {
		list[i].UpdatedAt = p.s.now().UTC()
		if err := p.s.saveProjects(list); err != nil {
			return domain.Project{}, err
		}
	}
	return list[i], nil
}

// Delete removes the project with all its scenes and connections.
func (p *Projects) Delete(ctx context.Context, id string) error {
	if err := p.s.wait(ctx); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	list, err := p.s.loadProjects()
	if err != nil {
		return err
	}
	i := findProject(list, id)
	if i < 0 {
		return domain.NotFound("project", id)
	}
	list = append(list[:i], list[i+1:]...)
	if err := p.s.saveProjects(list); err != nil {
		return err
	}
	dir, err := p.s.projectDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return unavailable("remove project dir", err)
	}
	return nil
}

type Scenes struct{ s *Store }

func (sc *Scenes) List(ctx context.Context, projectID string) ([]domain.Scene, error) {
	if err := sc.s.wait(ctx); err != nil {
		return nil, err
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	list, err := sc.s.loadScenes(projectID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Scene{}
	}
	return list, nil
}

func (sc *Scenes) Get(ctx context.Context, id string) (domain.Scene, error) {
	if err := sc.s.wait(ctx); err != nil {
		return domain.Scene{}, err
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	_, list, i, err := sc.s.locateScene(id)
	if err != nil {
		return domain.Scene{}, err
	}
	return list[i], nil
}

// Create stores a scene; an empty caption takes the prompt and zero sizes take 300x200.
func (sc *Scenes) Create(ctx context.Context, in domain.SceneCreate) (domain.Scene, error) {
	if err := in.Validate(); err != nil {
		return domain.Scene{}, err
	}
	if err := sc.s.wait(ctx); err != nil {
		return domain.Scene{}, err
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	projects, err := sc.s.loadProjects()
	if err != nil {
		return domain.Scene{}, err
	}
	if findProject(projects, in.ProjectID) < 0 {
		return domain.Scene{}, domain.NotFound("project", in.ProjectID)
	}
	list, err := sc.s.loadScenes(in.ProjectID)
	if err != nil {
		return domain.Scene{}, err
	}
	scene := in.ApplyDefaults().Scene(sc.s.newID())
	scene.CreatedAt = sc.s.now().UTC()
	if err := sc.s.saveScenes(in.ProjectID, append(list, scene)); err != nil {
		return domain.Scene{}, err
	}
	if err := sc.s.touch(in.ProjectID); err != nil {
		return domain.Scene{}, err
	}
	return scene, nil
}

func (sc *Scenes) Update(ctx context.Context, id string, patch domain.ScenePatch) (domain.Scene, error) {
	if err := patch.Validate(); err != nil {
		return domain.Scene{}, err
	}
	if err := sc.s.wait(ctx); err != nil {
		return domain.Scene{}, err
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	projectID, list, i, err := sc.s.locateScene(id)
	if err != nil {
		return domain.Scene{}, err
	}
	patch.Apply(&list[i])
	if err := sc.s.saveScenes(projectID, list); err != nil {
		return domain.Scene{}, err
	}
	return list[i], nil
}

// Delete removes the scene and every connection touching it.
func (sc *Scenes) Delete(ctx context.Context, id string) error {
	if err := sc.s.wait(ctx); err != nil {
		return err
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	projectID, list, i, err := sc.s.locateScene(id)
	if err != nil {
		return err
	}
	conns, err := sc.s.loadConnections(projectID)
	if err != nil {
		return err
	}
	kept := conns[:0]
	for _, c := range conns {
		if !c.Touches(id) {
			kept = append(kept, c)
		}
	}
	if err := sc.s.saveConnections(projectID, kept); err != nil {
		return err
	}
	if err := sc.s.saveScenes(projectID, append(list[:i], list[i+1:]...)); err != nil {
		return err
	}
	return sc.s.touch(projectID)
}

type Connections struct{ s *Store }

func (cn *Connections) List(ctx context.Context, projectID string) ([]domain.Connection, error) {
	if err := cn.s.wait(ctx); err != nil {
		return nil, err
	}
	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	list, err := cn.s.loadConnections(projectID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Connection{}
	}
	return list, nil
}

// Create links two scenes of the same project. Self-links are refused.
func (cn *Connections) Create(ctx context.Context, in domain.ConnectionCreate) (domain.Connection, error) {
	if err := in.Validate(); err != nil {
		return domain.Connection{}, err
	}
	if err := cn.s.wait(ctx); err != nil {
		return domain.Connection{}, err
	}
	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	projects, err := cn.s.loadProjects()
	if err != nil {
		return domain.Connection{}, err
	}
	if findProject(projects, in.ProjectID) < 0 {
		return domain.Connection{}, domain.NotFound("project", in.ProjectID)
	}
	scenes, err := cn.s.loadScenes(in.ProjectID)
	if err != nil {
		return domain.Connection{}, err
	}
	for _, id := range []string{in.FromSceneID, in.ToSceneID} {
		found := false
		for _, s := range scenes {
			if s.ID == id {
				found = true
				break
			}
		}
		if !found {
			return domain.Connection{}, domain.NotFound("scene", id)
		}
	}
	list, err := cn.s.loadConnections(in.ProjectID)
	if err != nil {
		return domain.Connection{}, err
	}
	c := domain.Connection{
		ID:          cn.s.newID(),
		ProjectID:   in.ProjectID,
		FromSceneID: in.FromSceneID,
		ToSceneID:   in.ToSceneID,
		Label:       in.Label,
		CreatedAt:   cn.s.now().UTC(),
	}
	if err := cn.s.saveConnections(in.ProjectID, append(list, c)); err != nil {
		return domain.Connection{}, err
	}
	return c, nil
}

func (cn *Connections) Update(ctx context.Context, id string, patch domain.ConnectionPatch) (domain.Connection, error) {
	if err := cn.s.wait(ctx); err != nil {
		return domain.Connection{}, err
	}
	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	projectID, list, i, err := cn.s.locateConnection(id)
	if err != nil {
		return domain.Connection{}, err
	}
	patch.Apply(&list[i])
	if err := cn.s.saveConnections(projectID, list); err != nil {
		return domain.Connection{}, err
	}
	return list[i], nil
}

func (cn *Connections) Delete(ctx context.Context, id string) error {
	if err := cn.s.wait(ctx); err != nil {
		return err
	}
	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	projectID, list, i, err := cn.s.locateConnection(id)
	if err != nil {
		return err
	}
	return cn.s.saveConnections(projectID, append(list[:i], list[i+1:]...))
}

type Images struct{ s *Store }

// Generate runs the configured generator; the store's files are not touched.
func (im *Images) Generate(ctx context.Context, prompt, projectID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.Invalid("prompt is required")
	}
	if err := im.s.wait(ctx); err != nil {
		return "", err
	}
	return im.s.images.Generate(ctx, prompt)
}
