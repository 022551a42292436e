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

import "strings"

// MsgSelfConnection is the message returned when both endpoints are the same scene.
const MsgSelfConnection = "Cannot connect scene to itself"

// Validate rejects a blank title.
func (p ProjectCreate) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return Invalid("title is required")
	}
	return nil
}

// Validate rejects a blank title. A nil title is fine.
func (pp ProjectPatch) Validate() error {
	if pp.Title != nil && strings.TrimSpace(*pp.Title) == "" {
		return Invalid("title must not be blank")
	}
	return nil
}

// Validate rejects a blank prompt, a missing project and negative dimensions.
func (c SceneCreate) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return Invalid("project_id is required")
	}
	if strings.TrimSpace(c.PromptText) == "" {
		return Invalid("prompt_text is required")
	}
	if c.Width < 0 || c.Height < 0 {
		return Invalid("width and height must not be negative")
	}
	return nil
}

// ApplyDefaults fills the caption from the prompt and the default card size.
func (c SceneCreate) ApplyDefaults() SceneCreate {
	if strings.TrimSpace(c.Caption) == "" {
		c.Caption = c.PromptText
	}
	if c.Width == 0 {
		c.Width = DefaultSceneWidth
	}
	if c.Height == 0 {
		c.Height = DefaultSceneHeight
	}
	return c
}

// Scene materializes the create request into a record with the given identity.
func (c SceneCreate) Scene(id string) Scene {
	return Scene{
		ID:         id,
		ProjectID:  c.ProjectID,
		PromptText: c.PromptText,
		Caption:    c.Caption,
		ImageURL:   c.ImageURL,
		X:          c.X,
		Y:          c.Y,
		Width:      c.Width,
		Height:     c.Height,
	}
}

// Validate rejects missing endpoints and self-connections.
func (c ConnectionCreate) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return Invalid("project_id is required")
	}
	if c.FromSceneID == "" || c.ToSceneID == "" {
		return Invalid("from_scene_id and to_scene_id are required")
	}
	if c.FromSceneID == c.ToSceneID {
		return Invalid(MsgSelfConnection)
	}
	return nil
}

// Validate rejects negative dimensions and a blank prompt.
func (sp ScenePatch) Validate() error {
	if sp.PromptText != nil && strings.TrimSpace(*sp.PromptText) == "" {
		return Invalid("prompt_text must not be blank")
	}
	if (sp.Width != nil && *sp.Width < 0) || (sp.Height != nil && *sp.Height < 0) {
		return Invalid("width and height must not be negative")
	}
	return nil
}
