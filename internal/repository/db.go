/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package repository persists projects, scenes and connections for the API server in
// PostgreSQL (pgx) or SQLite (modernc). Schema changes are goose migrations embedded
// per dialect.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	applog "storyboard/internal/log"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the config spellings of both drivers.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown db driver %q", s)
	}
}

// DB is safe for concurrent use; database/sql pools the connections.
type DB struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
	log     *slog.Logger
}

// seam for tests
var gooseUp = func(ctx context.Context, p *goose.Provider) error {
	_, err := p.Up(ctx)
	return err
}

// Open connects, pings and migrates.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	l := applog.WithOperation(applog.WithComponent("repository"), "open").With(slog.String("dialect", string(d)))

	var sqlDB *sql.DB
	switch d {
	case Postgres:
		sqlDB, err = sql.Open("pgx", dsn)
	case SQLite:
		sqlDB, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			// one writer keeps SQLite away from SQLITE_BUSY
			sqlDB.SetMaxOpenConns(1)
			sqlDB.SetMaxIdleConns(1)
		}
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open db: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pctx); err != nil {
		_ = sqlDB.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping db: %w", err)
	}

	r := New(sqlDB, d)
	if err := r.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("database ready")
	return r, nil
}

// New wraps an open handle without migrating.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{
		db:      db,
		dialect: d,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     applog.WithComponent("repository"),
	}
}

// sqliteDSN turns a plain path into a URI with a busy timeout, WAL and foreign keys.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "storyboard.db"
	}
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return dsn
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		filepath.ToSlash(dsn))
}

// Migrate applies the embedded migrations of the handle's dialect.
func (r *DB) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(r.dialect))
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	gd := goose.DialectSQLite3
	if r.dialect == Postgres {
		gd = goose.DialectPostgres
	}
	p, err := goose.NewProvider(gd, r.db, sub)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := gooseUp(ctx, p); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *DB) Dialect() Dialect { return r.dialect }

func (r *DB) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *DB) Close() error { return r.db.Close() }

// rebind rewrites ? placeholders to $n for Postgres.
func (r *DB) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// sqliteTime is fixed width so text order matches time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// ts renders a timestamp for the dialect; SQLite stores RFC 3339 text.
func (r *DB) ts(t time.Time) any {
	t = t.UTC()
	if r.dialect == SQLite {
		return t.Format(sqliteTime)
	}
	return t
}

// dbTime scans timestamps stored natively or as text.
type dbTime struct{ time.Time }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if p, err := time.Parse(layout, s); err == nil {
			t.Time = p.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}

// inTx runs fn in a transaction, rolling back on error.
func (r *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				r.log.Warn("rollback failed", slog.Any("err", rerr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
