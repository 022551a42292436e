/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"storyboard/internal/domain"
)

// fail maps err onto a status and a {"detail"} body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var nf *domain.NotFoundError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &nf):
		writeDetail(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found")
	case errors.As(err, &ve):
		writeDetail(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, domain.ErrValidation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeDetail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		s.log.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("err", err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) badBody(w http.ResponseWriter, err error) {
	writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		writeDetail(w, http.StatusBadRequest, key+" is required")
		return "", false
	}
	return v, true
}

// --- projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListProjects(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getProjectFull(w http.ResponseWriter, r *http.Request) {
	full, err := s.store.GetProjectFull(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var in domain.ProjectCreate
	if err := decode(r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(in); err != nil {
		s.fail(w, r, err)
		return
	}
	if in.UserID == "" {
		in.UserID = Subject(r)
	}
	p, err := s.store.CreateProject(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProjectPatch
	if err := decode(r, &patch); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(patch); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.store.UpdateProject(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

// --- scenes ---

func (s *Server) listScenes(w http.ResponseWriter, r *http.Request) {
	pid, ok := requireQuery(w, r, "project_id")
	if !ok {
		return
	}
	list, err := s.store.ListScenes(r.Context(), pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getScene(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScene(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) createScene(w http.ResponseWriter, r *http.Request) {
	var in domain.SceneCreate
	if err := decode(r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(in); err != nil {
		s.fail(w, r, err)
		return
	}
	sc, err := s.store.CreateScene(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.SceneCreated()
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) updateScene(w http.ResponseWriter, r *http.Request) {
	var patch domain.ScenePatch
	if err := decode(r, &patch); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(patch); err != nil {
		s.fail(w, r, err)
		return
	}
	sc, err := s.store.UpdateScene(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) deleteScene(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteScene(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scene deleted"})
}

// --- connections ---

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	pid, ok := requireQuery(w, r, "project_id")
	if !ok {
		return
	}
	list, err := s.store.ListConnections(r.Context(), pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var in domain.ConnectionCreate
	if err := decode(r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.store.CreateConnection(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.ConnectionCreated()
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConnectionPatch
	if err := decode(r, &patch); err != nil {
		s.badBody(w, err)
		return
	}
	c, err := s.store.UpdateConnection(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConnection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connection deleted"})
}

// --- images ---

// generateImage reports provider failures as 500 with their message; an open
// breaker is a 503.
func (s *Server) generateImage(w http.ResponseWriter, r *http.Request) {
	var in generateImageRequest
	if err := decode(r, &in); err != nil {
		s.badBody(w, err)
		return
	}
	if err := validateStruct(in); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.images == nil {
		writeDetail(w, http.StatusServiceUnavailable, "image generation is not configured")
		return
	}
	u, err := s.images.Generate(r.Context(), in.Prompt, in.ProjectID)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) || errors.Is(err, domain.ErrValidation) {
			s.fail(w, r, err)
			return
		}
		s.log.Error("image generation failed", slog.Any("err", err))
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateImageResponse{ImageURL: u})
}
