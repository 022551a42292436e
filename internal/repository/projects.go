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
	"strings"

	"storyboard/internal/domain"
)

const projectCols = `id, user_id, title, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(s rowScanner) (domain.Project, error) {
	var p domain.Project
	var created, updated dbTime
	if err := s.Scan(&p.ID, &p.UserID, &p.Title, &created, &updated); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
	return p, nil
}

// ListProjects returns projects, most recently updated first. A non-empty userID filters.
func (r *DB) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	q := `SELECT ` + projectCols + ` FROM projects`
	var args []any
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := r.db.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	list := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *DB) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+projectCols+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, domain.NotFound("project", id)
	}
	return p, err
}

// GetProjectFull loads a project with its scenes and connections.
func (r *DB) GetProjectFull(ctx context.Context, id string) (domain.ProjectFull, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return domain.ProjectFull{}, err
	}
	scenes, err := r.ListScenes(ctx, id)
	if err != nil {
		return domain.ProjectFull{}, err
	}
	conns, err := r.ListConnections(ctx, id)
	if err != nil {
		return domain.ProjectFull{}, err
	}
	return domain.ProjectFull{Project: p, Scenes: scenes, Connections: conns}, nil
}

func (r *DB) CreateProject(ctx context.Context, in domain.ProjectCreate) (domain.Project, error) {
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	now := r.now().UTC()
	p := domain.Project{ID: r.newID(), UserID: in.UserID, Title: strings.TrimSpace(in.Title), CreatedAt: now, UpdatedAt: now}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO projects(`+projectCols+`) VALUES(?,?,?,?,?)`),
		p.ID, p.UserID, p.Title, r.ts(now), r.ts(now))
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r *DB) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := patch.Validate(); err != nil {
		return domain.Project{}, err
	}
	var out domain.Project
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx, r.rebind(`SELECT `+projectCols+` FROM projects WHERE id = ?`), id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("project", id)
		}
		if err != nil {
			return err
		}
		if patch.Apply(&p) {
			p.UpdatedAt = r.now().UTC()
			if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE projects SET title = ?, updated_at = ? WHERE id = ?`),
				p.Title, r.ts(p.UpdatedAt), id); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	return out, err
}

// DeleteProject removes the project, its scenes and its connections in one transaction.
func (r *DB) DeleteProject(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM connections WHERE project_id = ?`), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM scenes WHERE project_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM projects WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("project", id)
		}
		return nil
	})
}

// touchProject bumps updated_at; used by scene writes.
func (r *DB) touchProject(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, r.rebind(`UPDATE projects SET updated_at = ? WHERE id = ?`), r.ts(r.now()), id)
	return err
}
