/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package httpclient is the gateway backend that talks to the storyboard API server.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyboard/internal/domain"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultImageTimeout = 90 * time.Second
)

// Client is a small HTTP+JSON client for the API. Every call is bounded by a
// per-request timeout on top of the caller's context.
type Client struct {
	BaseURL string
	Token   string // bearer token

	timeout      time.Duration
	imageTimeout time.Duration
	client       *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option      { return func(c *Client) { c.timeout = d } }
func WithImageTimeout(d time.Duration) Option { return func(c *Client) { c.imageTimeout = d } }
func WithHTTPClient(h *http.Client) Option    { return func(c *Client) { c.client = h } }

// WithInsecureTLS skips certificate checks; only for self-signed dev servers.
func WithInsecureTLS() Option {
	return func(c *Client) {
		c.client = &http.Client{Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}}
	}
}

// New creates a client. baseURL may include a trailing slash; it will be normalized.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		timeout:      DefaultTimeout,
		imageTimeout: DefaultImageTimeout,
		client:       &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// detail extracts a human readable message from an error response.
func detail(b []byte, status string) string {
	var eb errorBody
	if err := json.Unmarshal(b, &eb); err == nil {
		var s string
		if len(eb.Detail) > 0 && json.Unmarshal(eb.Detail, &s) == nil && s != "" {
			return s
		}
		if len(eb.Detail) > 0 {
			return string(eb.Detail)
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	if t := strings.TrimSpace(string(b)); t != "" && len(t) < 200 {
		return t
	}
	return status
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, body, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	op := method + " " + u.Path
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.Unavailable(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := detail(b, resp.Status)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %s: %w", op, msg, domain.ErrNotFound)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return &domain.ValidationError{Msg: msg}
		default:
			return domain.Unavailable(op, fmt.Errorf("server %s: %s", resp.Status, msg))
		}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return domain.Unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, dest any) error {
	return c.doJSON(ctx, c.timeout, method, path, body, dest)
}

// Projects, Scenes, Connections and Images expose the client as gateway backends.
func (c *Client) Projects() *Projects       { return &Projects{c} }
func (c *Client) Scenes() *Scenes           { return &Scenes{c} }
func (c *Client) Connections() *Connections { return &Connections{c} }
func (c *Client) Images() *Images           { return &Images{c} }

type Projects struct{ c *Client }

func (p *Projects) List(ctx context.Context) ([]domain.Project, error) {
	var list []domain.Project
	if err := p.c.call(ctx, http.MethodGet, "/api/projects/", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Projects) Get(ctx context.Context, id string) (domain.ProjectFull, error) {
	var full domain.ProjectFull
	err := p.c.call(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id)+"/full", nil, &full)
	return full, err
}

func (p *Projects) Create(ctx context.Context, in domain.ProjectCreate) (domain.Project, error) {
	if err := in.Validate(); err != nil {
		return domain.Project{}, err
	}
	var out domain.Project
	err := p.c.call(ctx, http.MethodPost, "/api/projects/", in, &out)
	return out, err
}

func (p *Projects) Update(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := patch.Validate(); err != nil {
		return domain.Project{}, err
	}
	var out domain.Project
	err := p.c.call(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (p *Projects) Delete(ctx context.Context, id string) error {
	return p.c.call(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

type Scenes struct{ c *Client }

func (s *Scenes) List(ctx context.Context, projectID string) ([]domain.Scene, error) {
	var list []domain.Scene
	q := url.Values{"project_id": {projectID}}
	if err := s.c.call(ctx, http.MethodGet, "/api/scenes/?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Scenes) Get(ctx context.Context, id string) (domain.Scene, error) {
	var out domain.Scene
	err := s.c.call(ctx, http.MethodGet, "/api/scenes/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (s *Scenes) Create(ctx context.Context, in domain.SceneCreate) (domain.Scene, error) {
	if err := in.Validate(); err != nil {
		return domain.Scene{}, err
	}
	var out domain.Scene
	err := s.c.call(ctx, http.MethodPost, "/api/scenes/", in, &out)
	return out, err
}

func (s *Scenes) Update(ctx context.Context, id string, patch domain.ScenePatch) (domain.Scene, error) {
	if err := patch.Validate(); err != nil {
		return domain.Scene{}, err
	}
	var out domain.Scene
	err := s.c.call(ctx, http.MethodPatch, "/api/scenes/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (s *Scenes) Delete(ctx context.Context, id string) error {
	return s.c.call(ctx, http.MethodDelete, "/api/scenes/"+url.PathEscape(id), nil, nil)
}

type Connections struct{ c *Client }

func (cn *Connections) List(ctx context.Context, projectID string) ([]domain.Connection, error) {
	var list []domain.Connection
	q := url.Values{"project_id": {projectID}}
	if err := cn.c.call(ctx, http.MethodGet, "/api/connections/?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (cn *Connections) Create(ctx context.Context, in domain.ConnectionCreate) (domain.Connection, error) {
	if err := in.Validate(); err != nil {
		return domain.Connection{}, err
	}
	var out domain.Connection
	err := cn.c.call(ctx, http.MethodPost, "/api/connections/", in, &out)
	return out, err
}

func (cn *Connections) Update(ctx context.Context, id string, patch domain.ConnectionPatch) (domain.Connection, error) {
	var out domain.Connection
	err := cn.c.call(ctx, http.MethodPatch, "/api/connections/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (cn *Connections) Delete(ctx context.Context, id string) error {
	return cn.c.call(ctx, http.MethodDelete, "/api/connections/"+url.PathEscape(id), nil, nil)
}

type Images struct{ c *Client }

type generateRequest struct {
	Prompt    string `json:"prompt"`
	ProjectID string `json:"project_id"`
}

type generateResponse struct {
	ImageURL string `json:"image_url"`
}

// Generate uses the longer image timeout; providers routinely take tens of seconds.
func (im *Images) Generate(ctx context.Context, prompt, projectID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", domain.Invalid("prompt is required")
	}
	var out generateResponse
	err := im.c.doJSON(ctx, im.c.imageTimeout, http.MethodPost, "/api/generate_image/",
		generateRequest{Prompt: prompt, ProjectID: projectID}, &out)
	if err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

// Token is the answer of POST /api/auth/token.
type Token struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// RequestToken asks the server for a signed bearer token.
func (c *Client) RequestToken(ctx context.Context, subject string, ttl time.Duration) (Token, error) {
	var out Token
	body := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	err := c.call(ctx, http.MethodPost, "/api/auth/token", body, &out)
	return out, err
}
