/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package domain holds the storyboard records shared by the editor, the
// gateways and the server: projects, scenes and the directed connections
// between scenes, plus the partial-update patches applied to them.
package domain

import "time"

// Default card size for scenes created without explicit dimensions.
const (
	DefaultSceneWidth  = 300.0
	DefaultSceneHeight = 200.0
)

// Project is a named collection of scenes and connections.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectFull is a project together with everything it owns.
type ProjectFull struct {
	Project
	Scenes      []Scene      `json:"scenes"`
	Connections []Connection `json:"connections"`
}

// Scene is one storyboard card. X, Y, Width and Height are canvas coordinates.
type Scene struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	PromptText string    `json:"prompt_text"`
	Caption    string    `json:"caption,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayCaption is the text shown under the card: the caption, or the prompt when
// no caption was set.
func (s Scene) DisplayCaption() string {
	if s.Caption != "" {
		return s.Caption
	}
	return s.PromptText
}

// Center returns the card's midpoint in canvas space.
func (s Scene) Center() (float64, float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// Connection is a directed edge from one scene to another of the same project.
type Connection struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	FromSceneID string    `json:"from_scene_id"`
	ToSceneID   string    `json:"to_scene_id"`
	Label       string    `json:"label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Touches reports whether the connection starts or ends at sceneID.
func (c Connection) Touches(sceneID string) bool {
	return c.FromSceneID == sceneID || c.ToSceneID == sceneID
}

// ProjectCreate is the payload for creating a project.
type ProjectCreate struct {
	Title  string `json:"title" validate:"required,max=200"`
	UserID string `json:"user_id,omitempty"`
}

// SceneCreate is the payload for creating a scene. Zero Width/Height and an
// empty Caption are filled in by ApplyDefaults.
type SceneCreate struct {
	ProjectID  string  `json:"project_id" validate:"required"`
	PromptText string  `json:"prompt_text" validate:"required"`
	Caption    string  `json:"caption,omitempty"`
	ImageURL   string  `json:"image_url,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width" validate:"gte=0"`
	Height     float64 `json:"height" validate:"gte=0"`
}

// ConnectionCreate is the payload for creating a connection.
type ConnectionCreate struct {
	ProjectID   string `json:"project_id" validate:"required"`
	FromSceneID string `json:"from_scene_id" validate:"required"`
	ToSceneID   string `json:"to_scene_id" validate:"required"`
	Label       string `json:"label,omitempty"`
}
