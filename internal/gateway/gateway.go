/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package gateway defines how the editor reaches persistence and image generation.
// Two backends exist: httpclient talks to the storyboard API server, local keeps
// everything in JSON files on disk. Open picks one from the configuration.
package gateway

import (
	"context"

	"storyboard/internal/domain"
)

type Projects interface {
	List(ctx context.Context) ([]domain.Project, error)
	Get(ctx context.Context, id string) (domain.ProjectFull, error)
	Create(ctx context.Context, in domain.ProjectCreate) (domain.Project, error)
	Update(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error)
	Delete(ctx context.Context, id string) error
}

type Scenes interface {
	List(ctx context.Context, projectID string) ([]domain.Scene, error)
	Get(ctx context.Context, id string) (domain.Scene, error)
	Create(ctx context.Context, in domain.SceneCreate) (domain.Scene, error)
	Update(ctx context.Context, id string, p domain.ScenePatch) (domain.Scene, error)
	Delete(ctx context.Context, id string) error
}

type Connections interface {
	List(ctx context.Context, projectID string) ([]domain.Connection, error)
	Create(ctx context.Context, in domain.ConnectionCreate) (domain.Connection, error)
	Update(ctx context.Context, id string, p domain.ConnectionPatch) (domain.Connection, error)
	Delete(ctx context.Context, id string) error
}

// Images turns a prompt into an image URL for a scene of projectID.
type Images interface {
	Generate(ctx context.Context, prompt, projectID string) (string, error)
}

// Set bundles one backend's gateways.
type Set struct {
	Projects    Projects
	Scenes      Scenes
	Connections Connections
	Images      Images
	// Mode is config.ModeRemote or config.ModeLocal.
	Mode string
}
