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

const connectionCols = `id, project_id, from_scene_id, to_scene_id, label, created_at`

func scanConnection(s rowScanner) (domain.Connection, error) {
	var c domain.Connection
	var created dbTime
	if err := s.Scan(&c.ID, &c.ProjectID, &c.FromSceneID, &c.ToSceneID, &c.Label, &created); err != nil {
		return domain.Connection{}, err
	}
	c.CreatedAt = created.Time
	return c, nil
}

func (r *DB) ListConnections(ctx context.Context, projectID string) ([]domain.Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT `+connectionCols+` FROM connections WHERE project_id = ? ORDER BY created_at, id`), projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	list := []domain.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *DB) GetConnection(ctx context.Context, id string) (domain.Connection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+connectionCols+` FROM connections WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Connection{}, domain.NotFound("connection", id)
	}
	return c, err
}

// CreateConnection links two scenes of the project; self-links fail validation.
func (r *DB) CreateConnection(ctx context.Context, in domain.ConnectionCreate) (domain.Connection, error) {
	if err := in.Validate(); err != nil {
		return domain.Connection{}, err
	}
	c := domain.Connection{
		ID:          r.newID(),
		ProjectID:   in.ProjectID,
		FromSceneID: in.FromSceneID,
		ToSceneID:   in.ToSceneID,
		Label:       in.Label,
		CreatedAt:   r.now().UTC(),
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, sid := range []string{c.FromSceneID, c.ToSceneID} {
			var one int
			err := tx.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM scenes WHERE id = ? AND project_id = ?`),
				sid, c.ProjectID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFound("scene", sid)
			}
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO connections(`+connectionCols+`) VALUES(?,?,?,?,?,?)`),
			c.ID, c.ProjectID, c.FromSceneID, c.ToSceneID, c.Label, r.ts(c.CreatedAt))
		return err
	})
	if err != nil {
		return domain.Connection{}, err
	}
	return c, nil
}

func (r *DB) UpdateConnection(ctx context.Context, id string, patch domain.ConnectionPatch) (domain.Connection, error) {
	var out domain.Connection
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		c, err := scanConnection(tx.QueryRowContext(ctx,
			r.rebind(`SELECT `+connectionCols+` FROM connections WHERE id = ?`), id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("connection", id)
		}
		if err != nil {
			return err
		}
		patch.Apply(&c)
		if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE connections SET label = ? WHERE id = ?`), c.Label, id); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func (r *DB) DeleteConnection(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM connections WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("connection", id)
	}
	return nil
}
