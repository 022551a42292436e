/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storyboard/internal/domain"
)

// Connector creates a connection once the user picked both endpoints.
type Connector interface {
	Connect(ctx context.Context, req domain.ConnectionCreate) (domain.Connection, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, req domain.ConnectionCreate) (domain.Connection, error)

func (f ConnectorFunc) Connect(ctx context.Context, req domain.ConnectionCreate) (domain.Connection, error) {
	return f(ctx, req)
}

// MemoryConnector creates connections without persisting them.
type MemoryConnector struct {
	now func() time.Time
}

func NewMemoryConnector() *MemoryConnector { return &MemoryConnector{now: time.Now} }

func (m *MemoryConnector) Connect(_ context.Context, req domain.ConnectionCreate) (domain.Connection, error) {
	if err := req.Validate(); err != nil {
		return domain.Connection{}, err
	}
	return domain.Connection{
		ID:          uuid.NewString(),
		ProjectID:   req.ProjectID,
		FromSceneID: req.FromSceneID,
		ToSceneID:   req.ToSceneID,
		Label:       req.Label,
		CreatedAt:   m.now().UTC(),
	}, nil
}
