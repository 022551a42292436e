/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

// EventKind says what a mutation changed.
type EventKind int

const (
	ProjectChanged EventKind = iota
	ScenesReplaced
	SceneAdded
	SceneUpdated
	SceneDeleted
	ConnectionsReplaced
	ConnectionAdded
	ConnectionUpdated
	ConnectionDeleted
	SelectionChanged
	ConnectingChanged
	ViewportChanged
	Restored
	ResetDone
)

var kindNames = [...]string{
	ProjectChanged:      "project",
	ScenesReplaced:      "scenes-replaced",
	SceneAdded:          "scene-added",
	SceneUpdated:        "scene-updated",
	SceneDeleted:        "scene-deleted",
	ConnectionsReplaced: "connections-replaced",
	ConnectionAdded:     "connection-added",
	ConnectionUpdated:   "connection-updated",
	ConnectionDeleted:   "connection-deleted",
	SelectionChanged:    "selection",
	ConnectingChanged:   "connecting",
	ViewportChanged:     "viewport",
	Restored:            "restored",
	ResetDone:           "reset",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event is delivered to subscribers after a mutation.
type Event struct {
	Kind          EventKind
	SceneIDs      []string
	ConnectionIDs []string
	// Geometry is set on SceneUpdated when x, y, width or height changed.
	Geometry bool
}

// ScenesEdited reports whether the event changed scene data the user edits on the
// canvas (position, size, caption, existence). Wholesale loads, selection,
// connecting mode and viewport changes do not count.
func (e Event) ScenesEdited() bool {
	switch e.Kind {
	case SceneAdded, SceneUpdated, SceneDeleted, Restored:
		return true
	}
	return false
}
