/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package store is the editor's single source of truth for the current project:
// its scenes, its connections and the canvas session state. Every mutation is
// synchronous, performs no I/O and notifies subscribers once the lock is released.
package store

import (
	"slices"
	"sync"
	"time"

	"storyboard/internal/domain"
	"storyboard/internal/undo"
)

// State is a copy of everything the store holds.
type State struct {
	Project               *domain.Project
	Scenes                []domain.Scene
	Connections           []domain.Connection
	SelectedSceneID       string
	IsConnecting          bool
	ConnectingFromSceneID string
	Scale                 float64
	OffsetX               float64
	OffsetY               float64
}

func initialState() State {
	return State{Scale: 1}
}

func (s State) clone() State {
	if s.Project != nil {
		p := *s.Project
		s.Project = &p
	}
	s.Scenes = slices.Clone(s.Scenes)
	s.Connections = slices.Clone(s.Connections)
	return s
}

// Store holds the state of one open project. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex
	st   State
	hist *undo.Manager

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithUndo replaces the default undo history configuration.
func WithUndo(cfg undo.Config) Option {
	return func(s *Store) { s.hist = undo.NewManager(cfg) }
}

// New returns a store in its initial state.
func New(opts ...Option) *Store {
	s := &Store{st: initialState(), subs: make(map[int]func(Event))}
	for _, o := range opts {
		o(s)
	}
	if s.hist == nil {
		s.hist = undo.NewManager(undo.Config{})
	}
	return s
}

// Subscribe registers fn to run after every mutation. Calling the returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(ev Event) {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// mutate runs fn under the state lock and notifies with the event it returns.
// A false ok suppresses the notification.
func (s *Store) mutate(fn func(st *State) (Event, bool)) bool {
	s.mu.Lock()
	ev, ok := fn(&s.st)
	s.mu.Unlock()
	if ok {
		s.notify(ev)
	}
	return ok
}

// --- readers

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// CurrentProject returns a copy of the open project, or nil.
func (s *Store) CurrentProject() *domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Project == nil {
		return nil
	}
	p := *s.st.Project
	return &p
}

// Scenes returns the scenes in paint order.
func (s *Store) Scenes() []domain.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.Scenes)
}

// Connections returns all connections.
func (s *Store) Connections() []domain.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.Connections)
}

// Scene looks a scene up by id.
func (s *Store) Scene(id string) (domain.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexScene(s.st.Scenes, id); i >= 0 {
		return s.st.Scenes[i], true
	}
	return domain.Scene{}, false
}

// Selection returns the selected scene id, or "".
func (s *Store) Selection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SelectedSceneID
}

// Viewport returns scale and offset.
func (s *Store) Viewport() (scale, offsetX, offsetY float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Scale, s.st.OffsetX, s.st.OffsetY
}

func indexScene(scenes []domain.Scene, id string) int {
	return slices.IndexFunc(scenes, func(sc domain.Scene) bool { return sc.ID == id })
}

func indexConnection(conns []domain.Connection, id string) int {
	return slices.IndexFunc(conns, func(c domain.Connection) bool { return c.ID == id })
}

func sceneIDs(scenes []domain.Scene) []string {
	ids := make([]string, len(scenes))
	for i, sc := range scenes {
		ids[i] = sc.ID
	}
	return ids
}

// --- project and collections

// SetCurrentProject replaces the open project. Nil closes it.
func (s *Store) SetCurrentProject(p *domain.Project) {
	s.mutate(func(st *State) (Event, bool) {
		if p == nil {
			st.Project = nil
		} else {
			cp := *p
			st.Project = &cp
		}
		return Event{Kind: ProjectChanged}, true
	})
}

// SetScenes replaces every scene.
func (s *Store) SetScenes(scenes []domain.Scene) {
	s.mutate(func(st *State) (Event, bool) {
		st.Scenes = slices.Clone(scenes)
		return Event{Kind: ScenesReplaced, SceneIDs: sceneIDs(scenes)}, true
	})
}

// SetConnections replaces every connection.
func (s *Store) SetConnections(conns []domain.Connection) {
	s.mutate(func(st *State) (Event, bool) {
		st.Connections = slices.Clone(conns)
		return Event{Kind: ConnectionsReplaced}, true
	})
}

// AddScene appends a scene; it paints on top of the existing ones.
func (s *Store) AddScene(sc domain.Scene) {
	s.mutate(func(st *State) (Event, bool) {
		st.Scenes = append(st.Scenes, sc)
		return Event{Kind: SceneAdded, SceneIDs: []string{sc.ID}}, true
	})
}

// UpdateScene merges patch into the scene with id. An unknown id is a no-op and
// does not notify. The result reports whether the scene existed.
func (s *Store) UpdateScene(id string, patch domain.ScenePatch) bool {
	return s.mutate(func(st *State) (Event, bool) {
		i := indexScene(st.Scenes, id)
		if i < 0 {
			return Event{}, false
		}
		patch.Apply(&st.Scenes[i])
		return Event{Kind: SceneUpdated, SceneIDs: []string{id}, Geometry: patch.TouchesGeometry()}, true
	})
}

// DeleteScene removes the scene and every connection that starts or ends at it,
// in one update with one notification.
func (s *Store) DeleteScene(id string) bool {
	return s.mutate(func(st *State) (Event, bool) {
		i := indexScene(st.Scenes, id)
		if i < 0 {
			return Event{}, false
		}
		st.Scenes = slices.Delete(st.Scenes, i, i+1)
		var removed []string
		st.Connections = slices.DeleteFunc(st.Connections, func(c domain.Connection) bool {
			if c.Touches(id) {
				removed = append(removed, c.ID)
				return true
			}
			return false
		})
		if st.SelectedSceneID == id {
			st.SelectedSceneID = ""
		}
		if st.ConnectingFromSceneID == id {
			st.IsConnecting = false
			st.ConnectingFromSceneID = ""
		}
		return Event{Kind: SceneDeleted, SceneIDs: []string{id}, ConnectionIDs: removed}, true
	})
}

// AddConnection appends a connection.
func (s *Store) AddConnection(c domain.Connection) {
	s.mutate(func(st *State) (Event, bool) {
		st.Connections = append(st.Connections, c)
		return Event{Kind: ConnectionAdded, ConnectionIDs: []string{c.ID}}, true
	})
}

// UpdateConnection merges patch into the connection with id; unknown ids are ignored.
func (s *Store) UpdateConnection(id string, patch domain.ConnectionPatch) bool {
	return s.mutate(func(st *State) (Event, bool) {
		i := indexConnection(st.Connections, id)
		if i < 0 {
			return Event{}, false
		}
		patch.Apply(&st.Connections[i])
		return Event{Kind: ConnectionUpdated, ConnectionIDs: []string{id}}, true
	})
}

// DeleteConnection removes the connection with id.
func (s *Store) DeleteConnection(id string) bool {
	return s.mutate(func(st *State) (Event, bool) {
		i := indexConnection(st.Connections, id)
		if i < 0 {
			return Event{}, false
		}
		st.Connections = slices.Delete(st.Connections, i, i+1)
		return Event{Kind: ConnectionDeleted, ConnectionIDs: []string{id}}, true
	})
}

// --- session state; plain setters, callers own the invariants

func (s *Store) SetSelectedSceneID(id string) {
	s.mutate(func(st *State) (Event, bool) {
		st.SelectedSceneID = id
		return Event{Kind: SelectionChanged, SceneIDs: nonEmpty(id)}, true
	})
}

func (s *Store) SetIsConnecting(on bool) {
	s.mutate(func(st *State) (Event, bool) {
		st.IsConnecting = on
		return Event{Kind: ConnectingChanged}, true
	})
}

func (s *Store) SetConnectingFromSceneID(id string) {
	s.mutate(func(st *State) (Event, bool) {
		st.ConnectingFromSceneID = id
		return Event{Kind: ConnectingChanged, SceneIDs: nonEmpty(id)}, true
	})
}

// SetConnecting updates both connecting fields with a single notification.
func (s *Store) SetConnecting(on bool, fromID string) {
	s.mutate(func(st *State) (Event, bool) {
		st.IsConnecting = on
		st.ConnectingFromSceneID = fromID
		return Event{Kind: ConnectingChanged, SceneIDs: nonEmpty(fromID)}, true
	})
}

func (s *Store) SetScale(scale float64) {
	s.mutate(func(st *State) (Event, bool) {
		st.Scale = scale
		return Event{Kind: ViewportChanged}, true
	})
}

func (s *Store) SetOffset(x, y float64) {
	s.mutate(func(st *State) (Event, bool) {
		st.OffsetX, st.OffsetY = x, y
		return Event{Kind: ViewportChanged}, true
	})
}

// SetViewport sets scale and offset together.
func (s *Store) SetViewport(scale, x, y float64) {
	s.mutate(func(st *State) (Event, bool) {
		st.Scale, st.OffsetX, st.OffsetY = scale, x, y
		return Event{Kind: ViewportChanged}, true
	})
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// Reset returns the store to its initial state and empties the undo history.
func (s *Store) Reset() {
	s.mutate(func(st *State) (Event, bool) {
		*st = initialState()
		s.hist.Clear()
		return Event{Kind: ResetDone}, true
	})
}

// --- undo

// Capture builds a snapshot of the scenes, connections and selection.
func (s *Store) Capture(label string) undo.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return undo.Snapshot{
		Label:           label,
		Scenes:          slices.Clone(s.st.Scenes),
		Connections:     slices.Clone(s.st.Connections),
		SelectedSceneID: s.st.SelectedSceneID,
		TS:              time.Now(),
	}
}

// Restore replaces scenes, connections and selection from snap.
func (s *Store) Restore(snap undo.Snapshot) {
	snap = snap.Clone()
	s.mutate(func(st *State) (Event, bool) {
		st.Scenes = snap.Scenes
		st.Connections = snap.Connections
		st.SelectedSceneID = snap.SelectedSceneID
		if st.SelectedSceneID != "" && indexScene(st.Scenes, st.SelectedSceneID) < 0 {
			st.SelectedSceneID = ""
		}
		return Event{Kind: Restored, SceneIDs: sceneIDs(st.Scenes)}, true
	})
}

// PushToUndo records snap on the undo stack.
func (s *Store) PushToUndo(snap undo.Snapshot) { s.hist.Push(snap.Clone()) }

// PopFromUndo removes and returns the newest snapshot; false means the stack was empty.
func (s *Store) PopFromUndo() (undo.Snapshot, bool) { return s.hist.Pop() }

// Checkpoint pushes a snapshot of the current contents labelled with the action about to run.
func (s *Store) Checkpoint(label string) { s.hist.Push(s.Capture(label)) }

// Undo restores the newest snapshot and keeps the current contents for Redo.
func (s *Store) Undo() bool {
	prev, ok := s.hist.Undo(s.Capture(""))
	if !ok {
		return false
	}
	s.Restore(prev)
	return true
}

// Redo reapplies the last undone change.
func (s *Store) Redo() bool {
	next, ok := s.hist.Redo(s.Capture(""))
	if !ok {
		return false
	}
	s.Restore(next)
	return true
}

// UndoDepth reports how many snapshots can be undone.
func (s *Store) UndoDepth() int {
	d, _, _ := s.hist.Stats()
	return d
}
