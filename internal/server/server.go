/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package server is the storyboard REST API: projects, scenes, connections and image
// generation over JSON, backed by the repository package.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
)

// Store is what the handlers need from persistence; *repository.DB implements it.
type Store interface {
	Ping(ctx context.Context) error

	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	GetProjectFull(ctx context.Context, id string) (domain.ProjectFull, error)
	CreateProject(ctx context.Context, in domain.ProjectCreate) (domain.Project, error)
	UpdateProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListScenes(ctx context.Context, projectID string) ([]domain.Scene, error)
	GetScene(ctx context.Context, id string) (domain.Scene, error)
	CreateScene(ctx context.Context, in domain.SceneCreate) (domain.Scene, error)
	UpdateScene(ctx context.Context, id string, p domain.ScenePatch) (domain.Scene, error)
	DeleteScene(ctx context.Context, id string) error

	ListConnections(ctx context.Context, projectID string) ([]domain.Connection, error)
	CreateConnection(ctx context.Context, in domain.ConnectionCreate) (domain.Connection, error)
	UpdateConnection(ctx context.Context, id string, p domain.ConnectionPatch) (domain.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
}

// ImageGenerator is satisfied by *imagegen.Service.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, projectID string) (string, error)
}

type Config struct {
	Addr        string
	CORSOrigins []string
	// AuthSecret enables bearer-token auth on /api when set.
	AuthSecret string
}

type Server struct {
	cfg     Config
	store   Store
	images  ImageGenerator
	metrics *metrics.Metrics
	log     *slog.Logger
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(s *Server) { s.log = l } }

func New(cfg Config, store Store, images ImageGenerator, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		images: images,
		log:    applog.WithComponent("server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8000"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr), slog.Bool("auth", s.cfg.AuthSecret != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
