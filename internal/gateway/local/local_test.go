/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/internal/domain"
	"storyboard/internal/imagegen"
)

func openTemp(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func seedProject(t *testing.T, s *Store) (domain.Project, domain.Scene, domain.Scene) {
	t.Helper()
	ctx := context.Background()
	p, err := s.Projects().Create(ctx, domain.ProjectCreate{Title: "Pilot"})
	require.NoError(t, err)
	a, err := s.Scenes().Create(ctx, domain.SceneCreate{ProjectID: p.ID, PromptText: "Opening shot"})
	require.NoError(t, err)
	b, err := s.Scenes().Create(ctx, domain.SceneCreate{ProjectID: p.ID, PromptText: "Close-up", Caption: "Hero", X: 400})
	require.NoError(t, err)
	return p, a, b
}

func TestCreateAppliesDefaults(t *testing.T) {
	s := openTemp(t)
	_, a, b := seedProject(t, s)

	assert.Equal(t, "Opening shot", a.Caption)
	assert.Equal(t, 300.0, a.Width)
	assert.Equal(t, 200.0, a.Height)
	assert.Equal(t, "Hero", b.Caption)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestProjectRoundTripThroughFiles(t *testing.T) {
	s := openTemp(t)
	p, a, b := seedProject(t, s)
	ctx := context.Background()

	c, err := s.Connections().Create(ctx, domain.ConnectionCreate{ProjectID: p.ID, FromSceneID: a.ID, ToSceneID: b.ID})
	require.NoError(t, err)

	// a fresh store over the same dir sees everything
	s2, err := Open(s.Root())
	require.NoError(t, err)
	full, err := s2.Projects().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pilot", full.Title)
	assert.Len(t, full.Scenes, 2)
	require.Len(t, full.Connections, 1)
	assert.Equal(t, c.ID, full.Connections[0].ID)

	assert.FileExists(t, filepath.Join(s.Root(), ProjectsFileName))
	assert.FileExists(t, filepath.Join(s.Root(), "projects", p.ID, ScenesFileName))
	assert.FileExists(t, filepath.Join(s.Root(), "projects", p.ID, ConnectionsFileName))
}

func TestSelfConnectionRejected(t *testing.T) {
	s := openTemp(t)
	p, a, _ := seedProject(t, s)
	_, err := s.Connections().Create(context.Background(), domain.ConnectionCreate{ProjectID: p.ID, FromSceneID: a.ID, ToSceneID: a.ID})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.MsgSelfConnection, err.Error())
}

func TestConnectionToUnknownSceneIsNotFound(t *testing.T) {
	s := openTemp(t)
	p, a, _ := seedProject(t, s)
	_, err := s.Connections().Create(context.Background(), domain.ConnectionCreate{ProjectID: p.ID, FromSceneID: a.ID, ToSceneID: "ghost"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSceneDeleteCascadesConnections(t *testing.T) {
	s := openTemp(t)
	p, a, b := seedProject(t, s)
	ctx := context.Background()
	c3, err := s.Scenes().Create(ctx, domain.SceneCreate{ProjectID: p.ID, PromptText: "Third"})
	require.NoError(t, err)
	_, err = s.Connections().Create(ctx, domain.ConnectionCreate{ProjectID: p.ID, FromSceneID: a.ID, ToSceneID: b.ID})
	require.NoError(t, err)
	keep, err := s.Connections().Create(ctx, domain.ConnectionCreate{ProjectID: p.ID, FromSceneID: b.ID, ToSceneID: c3.ID})
	require.NoError(t, err)

	require.NoError(t, s.Scenes().Delete(ctx, a.ID))

	conns, err := s.Connections().List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, keep.ID, conns[0].ID)

	_, err = s.Scenes().Get(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectDeleteRemovesEverything(t *testing.T) {
	s := openTemp(t)
	p, _, _ := seedProject(t, s)
	ctx := context.Background()

	require.NoError(t, s.Projects().Delete(ctx, p.ID))
	_, err := s.Projects().Get(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = os.Stat(filepath.Join(s.Root(), "projects", p.ID))
	assert.True(t, os.IsNotExist(err))

	err = s.Projects().Delete(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSceneUpdatePartial(t *testing.T) {
	s := openTemp(t)
	_, a, _ := seedProject(t, s)
	got, err := s.Scenes().Update(context.Background(), a.ID, domain.ScenePatch{X: domain.Ptr(120.0), Caption: domain.Ptr("")})
	require.NoError(t, err)
	assert.Equal(t, 120.0, got.X)
	assert.Equal(t, "", got.Caption)
	assert.Equal(t, "Opening shot", got.PromptText)
	assert.Equal(t, 300.0, got.Width)

	_, err = s.Scenes().Update(context.Background(), "nope", domain.ScenePatch{X: domain.Ptr(1.0)})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorruptScenesFileFallsBackToBackup(t *testing.T) {
	s := openTemp(t)
	p, a, b := seedProject(t, s)
	ctx := context.Background()

	// third write leaves a backup holding both scenes
	_, err := s.Scenes().Update(ctx, b.ID, domain.ScenePatch{Y: domain.Ptr(50.0)})
	require.NoError(t, err)

	path := filepath.Join(s.Root(), "projects", p.ID, ScenesFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	list, err := s.Scenes().List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestSchemaViolationFallsBackToBackup(t *testing.T) {
	s := openTemp(t)
	p, _, _ := seedProject(t, s)
	ctx := context.Background()

	path := filepath.Join(s.Root(), "projects", p.ID, ScenesFileName)
	// valid JSON, wrong shape
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 5}]`), 0o644))

	list, err := s.Scenes().List(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCorruptWithoutBackupIsUnavailable(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), ProjectsFileName), []byte("garbage"), 0o644))
	_, err := s.Projects().List(context.Background())
	require.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestBackupsArePruned(t *testing.T) {
	s := openTemp(t, WithKeepBackups(2))
	ctx := context.Background()
	p, err := s.Projects().Create(ctx, domain.ProjectCreate{Title: "T"})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := s.Projects().Update(ctx, p.ID, domain.ProjectPatch{Title: domain.Ptr(strings.Repeat("x", i+1))})
		require.NoError(t, err)
	}
	ents, err := os.ReadDir(filepath.Join(s.Root(), BackupsDirName))
	require.NoError(t, err)
	assert.Len(t, ents, 2)
}

func TestLatencyHonoursContext(t *testing.T) {
	s := openTemp(t, WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.Projects().List(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestListOrdersByUpdatedAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTemp(t, WithClock(func() time.Time { now = now.Add(time.Minute); return now }))
	ctx := context.Background()
	first, err := s.Projects().Create(ctx, domain.ProjectCreate{Title: "First"})
	require.NoError(t, err)
	_, err = s.Projects().Create(ctx, domain.ProjectCreate{Title: "Second"})
	require.NoError(t, err)
	_, err = s.Scenes().Create(ctx, domain.SceneCreate{ProjectID: first.ID, PromptText: "bump"})
	require.NoError(t, err)

	list, err := s.Projects().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "First", list[0].Title)
}

func TestImagesUsePlaceholderByDefault(t *testing.T) {
	s := openTemp(t)
	u, err := s.Images().Generate(context.Background(), "a red door", "p1")
	require.NoError(t, err)
	assert.Equal(t, imagegen.PlaceholderURL("a red door"), u)

	_, err = s.Images().Generate(context.Background(), "", "p1")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateSceneForUnknownProject(t *testing.T) {
	s := openTemp(t, withIDs(func() string { return "fixed" }))
	_, err := s.Scenes().Create(context.Background(), domain.SceneCreate{ProjectID: "ghost", PromptText: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectIDsCannotEscapeDataDir(t *testing.T) {
	base := t.TempDir()
	s, err := Open(filepath.Join(base, "data"))
	require.NoError(t, err)
	ctx := context.Background()

	// a scenes file two levels above the projects dir
	outside := filepath.Join(base, "x")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	b, err := marshal([]domain.Scene{
		{ID: "s1", ProjectID: "x", PromptText: "a", Width: 300, Height: 200},
		{ID: "s2", ProjectID: "x", PromptText: "b", Width: 300, Height: 200},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(outside, ScenesFileName), b, 0o644))

	for _, id := range []string{"../../x", "..", ".", "a/b", `a\b`} {
		_, err := s.Scenes().List(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "scenes of %q", id)
		_, err = s.Connections().List(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "connections of %q", id)
	}

	_, err = s.Connections().Create(ctx, domain.ConnectionCreate{ProjectID: "../../x", FromSceneID: "s1", ToSceneID: "s2"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, statErr := os.Stat(filepath.Join(outside, ConnectionsFileName))
	assert.True(t, os.IsNotExist(statErr), "nothing may be written outside the data dir")

	_, err = s.Connections().Create(ctx, domain.ConnectionCreate{ProjectID: "missing", FromSceneID: "s1", ToSceneID: "s2"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
