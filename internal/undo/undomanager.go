/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded history of editor snapshots.
package undo

import (
	"slices"
	"sync"
	"time"

	"storyboard/internal/domain"
)

// Snapshot is a restorable copy of the canvas contents. Label names the action
// that was about to happen when it was captured ("move", "delete-scene", ...).
type Snapshot struct {
	Label           string
	Scenes          []domain.Scene
	Connections     []domain.Connection
	SelectedSceneID string
	TS              time.Time
}

// Clone returns a copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	s.Scenes = slices.Clone(s.Scenes)
	s.Connections = slices.Clone(s.Connections)
	return s
}

func (s Snapshot) size() int { return len(s.Scenes) + len(s.Connections) }

// Config controls depth caps and coalescing.
type Config struct {
	// MaxDepth limits the number of undo entries (default 100). The oldest are dropped first.
	MaxDepth int
	// MaxRecords is a soft cap on scenes+connections held across all entries (0 means unlimited).
	MaxRecords int
	// MinInterval coalesces snapshots with the same non-empty label captured within
	// the interval, replacing the previous one. Zero disables coalescing.
	MinInterval time.Duration
}

// DefaultDepth is the undo depth used when Config.MaxDepth is unset.
const DefaultDepth = 100

// Manager is an undo/redo stack of snapshots. It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo []Snapshot
	redo []Snapshot
	// accounting
	records int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultDepth
	}
	return &Manager{cfg: cfg}
}

// Push records a snapshot and clears the redo stack.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	m.redo = nil
	if n := len(m.undo); n > 0 && m.cfg.MinInterval > 0 && s.Label != "" {
		last := m.undo[n-1]
		if last.Label == s.Label && s.TS.Sub(last.TS) < m.cfg.MinInterval {
			// keep the older state; the newer one is an intermediate step of the same gesture
			m.undo[n-1].TS = s.TS
			return
		}
	}
	m.undo = append(m.undo, s)
	m.records += s.size()
	m.enforceCapsLocked()
}

// Pop removes and returns the most recent snapshot. The bool is false when the stack is empty.
func (m *Manager) Pop() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked()
}

func (m *Manager) popLocked() (Snapshot, bool) {
	n := len(m.undo)
	if n == 0 {
		return Snapshot{}, false
	}
	s := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.records -= s.size()
	return s, true
}

// Undo pops the most recent snapshot and parks current on the redo stack.
func (m *Manager) Undo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.popLocked()
	if !ok {
		return Snapshot{}, false
	}
	current.Label = s.Label
	m.redo = append(m.redo, current)
	return s, true
}

// Redo pops from redo and pushes current back to undo.
func (m *Manager) Redo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.redo)
	if n == 0 {
		return Snapshot{}, false
	}
	s := m.redo[n-1]
	m.redo = m.redo[:n-1]
	current.Label = s.Label
	m.undo = append(m.undo, current)
	m.records += current.size()
	m.enforceCapsLocked()
	return s, true
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo, m.records = nil, nil, 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (depth int, redoDepth int, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), len(m.redo), m.records
}

func (m *Manager) enforceCapsLocked() {
	if drop := len(m.undo) - m.cfg.MaxDepth; drop > 0 {
		for i := 0; i < drop; i++ {
			m.records -= m.undo[i].size()
		}
		m.undo = append([]Snapshot(nil), m.undo[drop:]...)
	}
	// soft record cap, never dropping the newest entry
	for m.cfg.MaxRecords > 0 && m.records > m.cfg.MaxRecords && len(m.undo) > 1 {
		m.records -= m.undo[0].size()
		m.undo = m.undo[1:]
	}
}
