/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package repository

import (
	"context"
	"database/sql"
	"errors"

	"storyboard/internal/domain"
)

const sceneCols = `id, project_id, prompt_text, caption, image_url, x, y, width, height, created_at`

func scanScene(s rowScanner) (domain.Scene, error) {
	var sc domain.Scene
	var created dbTime
	if err := s.Scan(&sc.ID, &sc.ProjectID, &sc.PromptText, &sc.Caption, &sc.ImageURL,
		&sc.X, &sc.Y, &sc.Width, &sc.Height, &created); err != nil {
		return domain.Scene{}, err
	}
	sc.CreatedAt = created.Time
	return sc, nil
}

// ListScenes returns a project's scenes in creation order.
func (r *DB) ListScenes(ctx context.Context, projectID string) ([]domain.Scene, error) {
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT `+sceneCols+` FROM scenes WHERE project_id = ? ORDER BY created_at, id`), projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	list := []domain.Scene{}
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *DB) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	s, err := scanScene(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+sceneCols+` FROM scenes WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Scene{}, domain.NotFound("scene", id)
	}
	return s, err
}

// CreateScene applies the caption and size defaults before inserting.
func (r *DB) CreateScene(ctx context.Context, in domain.SceneCreate) (domain.Scene, error) {
	if err := in.Validate(); err != nil {
		return domain.Scene{}, err
	}
	s := in.ApplyDefaults().Scene(r.newID())
	s.CreatedAt = r.now().UTC()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM projects WHERE id = ?`), s.ProjectID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("project", s.ProjectID)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO scenes(`+sceneCols+`) VALUES(?,?,?,?,?,?,?,?,?,?)`),
			s.ID, s.ProjectID, s.PromptText, s.Caption, s.ImageURL, s.X, s.Y, s.Width, s.Height, r.ts(s.CreatedAt)); err != nil {
			return err
		}
		return r.touchProject(ctx, tx, s.ProjectID)
	})
	if err != nil {
		return domain.Scene{}, err
	}
	return s, nil
}

// UpdateScene applies the set fields of patch; concurrent writers resolve last-write-wins.
func (r *DB) UpdateScene(ctx context.Context, id string, patch domain.ScenePatch) (domain.Scene, error) {
	if err := patch.Validate(); err != nil {
		return domain.Scene{}, err
	}
	var out domain.Scene
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		s, err := scanScene(tx.QueryRowContext(ctx, r.rebind(`SELECT `+sceneCols+` FROM scenes WHERE id = ?`), id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("scene", id)
		}
		if err != nil {
			return err
		}
		patch.Apply(&s)
		if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE scenes SET prompt_text = ?, caption = ?, image_url = ?,
			x = ?, y = ?, width = ?, height = ? WHERE id = ?`),
			s.PromptText, s.Caption, s.ImageURL, s.X, s.Y, s.Width, s.Height, id); err != nil {
			return err
		}
		out = s
		return r.touchProject(ctx, tx, s.ProjectID)
	})
	return out, err
}

// DeleteScene removes the scene and every connection touching it.
func (r *DB) DeleteScene(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, r.rebind(`SELECT project_id FROM scenes WHERE id = ?`), id).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("scene", id)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM connections WHERE from_scene_id = ? OR to_scene_id = ?`), id, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM scenes WHERE id = ?`), id); err != nil {
			return err
		}
		return r.touchProject(ctx, tx, projectID)
	})
}
