/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T { return &v }

// ProjectPatch updates a project. Nil fields are left unchanged.
type ProjectPatch struct {
	Title *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
}

// Apply copies the set fields onto p and reports whether anything changed.
func (pp ProjectPatch) Apply(p *Project) bool {
	if pp.Title == nil || *pp.Title == p.Title {
		return false
	}
	p.Title = *pp.Title
	return true
}

// ScenePatch updates a scene. Nil fields are left unchanged.
type ScenePatch struct {
	PromptText *string  `json:"prompt_text,omitempty"`
	Caption    *string  `json:"caption,omitempty"`
	ImageURL   *string  `json:"image_url,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Width      *float64 `json:"width,omitempty" validate:"omitempty,gte=0"`
	Height     *float64 `json:"height,omitempty" validate:"omitempty,gte=0"`
}

// Empty reports whether the patch sets no field at all.
func (sp ScenePatch) Empty() bool {
	return sp.PromptText == nil && sp.Caption == nil && sp.ImageURL == nil &&
		sp.X == nil && sp.Y == nil && sp.Width == nil && sp.Height == nil
}

// TouchesGeometry reports whether the patch moves or resizes the card.
func (sp ScenePatch) TouchesGeometry() bool {
	return sp.X != nil || sp.Y != nil || sp.Width != nil || sp.Height != nil
}

// Apply copies the set fields onto s.
func (sp ScenePatch) Apply(s *Scene) {
	if sp.PromptText != nil {
		s.PromptText = *sp.PromptText
	}
	if sp.Caption != nil {
		s.Caption = *sp.Caption
	}
	if sp.ImageURL != nil {
		s.ImageURL = *sp.ImageURL
	}
	if sp.X != nil {
		s.X = *sp.X
	}
	if sp.Y != nil {
		s.Y = *sp.Y
	}
	if sp.Width != nil {
		s.Width = *sp.Width
	}
	if sp.Height != nil {
		s.Height = *sp.Height
	}
}

// GeometryPatch is the write auto-save issues for every scene.
func GeometryPatch(s Scene) ScenePatch {
	return ScenePatch{
		Caption: Ptr(s.Caption),
		X:       Ptr(s.X),
		Y:       Ptr(s.Y),
		Width:   Ptr(s.Width),
		Height:  Ptr(s.Height),
	}
}

// ConnectionPatch updates a connection. Nil fields are left unchanged.
type ConnectionPatch struct {
	Label *string `json:"label,omitempty"`
}

// Apply copies the set fields onto c.
func (cp ConnectionPatch) Apply(c *Connection) {
	if cp.Label != nil {
		c.Label = *cp.Label
	}
}
