package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/cache"
)

// mapStore keeps JSON like RedisCache does.
type mapStore struct {
	data map[string][]byte
	fail bool
}

func newMapStore() *mapStore { return &mapStore{data: map[string][]byte{}} }

func (m *mapStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if m.fail {
		return errors.New("connection refused")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *mapStore) Get(_ context.Context, key string, dest any) error {
	if m.fail {
		return errors.New("connection refused")
	}
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func TestMirrorCopiesSuccessfulSaves(t *testing.T) {
	ctx := context.Background()
	remote := newMapStore()
	file := NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil)
	m := NewMirroredCheckpointStore(file, remote, "node-1", nil)

	require.NoError(t, m.Save(ctx, sampleCheckpoint(1)))
	assert.Contains(t, remote.data, "checkpoint:node-1")

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalTrades)
}

func TestMirrorFailureDoesNotFailSave(t *testing.T) {
	remote := newMapStore()
	remote.fail = true
	file := NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil)
	m := NewMirroredCheckpointStore(file, remote, "node-1", nil)

	require.NoError(t, m.Save(context.Background(), sampleCheckpoint(1)))
	assert.Empty(t, remote.data)
}

func TestMirrorRestoresFreshHost(t *testing.T) {
	ctx := context.Background()
	remote := newMapStore()
	old := NewMirroredCheckpointStore(NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil), remote, "node-1", nil)
	require.NoError(t, old.Save(ctx, sampleCheckpoint(4)))

	path := filepath.Join(t.TempDir(), "agent.json")
	fresh := NewMirroredCheckpointStore(NewFileCheckpointStore(path, nil), remote, "node-1", nil)
	got, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTrades)
	assert.Equal(t, sampleCheckpoint(4).QTable, got.QTable)

	_, err = os.Stat(path)
	assert.NoError(t, err, "restored checkpoint is written back to the primary")
}

func TestMirrorMissEverywhere(t *testing.T) {
	m := NewMirroredCheckpointStore(NewFileCheckpointStore(filepath.Join(t.TempDir(), "agent.json"), nil), newMapStore(), "node-1", nil)
	_, err := m.Load(context.Background())
	assert.ErrorIs(t, err, drepo.ErrCheckpointNotFound)
}

func TestMirrorDoesNotMaskCorruptPrimary(t *testing.T) {
	ctx := context.Background()
	remote := newMapStore()
	require.NoError(t, remote.Set(ctx, CheckpointKey("node-1"), sampleCheckpoint(2), 0))

	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	m := NewMirroredCheckpointStore(NewFileCheckpointStore(path, nil), remote, "node-1", nil)

	_, err := m.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, drepo.ErrCheckpointNotFound)
}
