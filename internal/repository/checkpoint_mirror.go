package repository

import (
	"context"
	"errors"
	"fmt"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/cache"
	"TradeMind/pkg/logger"
)

// MirroredCheckpointStore copies every successful save into a remote key/value
// store under checkpoint:<instance>. The primary store stays authoritative;
// the mirror is only read when the primary holds no checkpoint at all, so a
// fresh host can resume where the instance left off.
type MirroredCheckpointStore struct {
	primary drepo.CheckpointStore
	remote  cache.Store
	key     string
	log     *logger.Logger
}

var _ drepo.CheckpointStore = (*MirroredCheckpointStore)(nil)

func NewMirroredCheckpointStore(primary drepo.CheckpointStore, remote cache.Store, instance string, log *logger.Logger) *MirroredCheckpointStore {
	if log == nil {
		log = logger.Nop()
	}
	return &MirroredCheckpointStore{
		primary: primary,
		remote:  remote,
		key:     CheckpointKey(instance),
		log:     log.Named("checkpoint_mirror"),
	}
}

func CheckpointKey(instance string) string {
	return fmt.Sprintf("checkpoint:%s", instance)
}

func (m *MirroredCheckpointStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	if err := m.primary.Save(ctx, cp); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Set(ctx, m.key, cp, 0); err != nil {
		m.log.Warn("checkpoint mirror write failed", logger.String("key", m.key), logger.Error(err))
	}
	return nil
}

// Load reads the primary. A corrupt primary is reported as is; only a missing
// one falls through to the mirror, and a mirrored copy is written back.
func (m *MirroredCheckpointStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	cp, err := m.primary.Load(ctx)
	if err == nil || !errors.Is(err, drepo.ErrCheckpointNotFound) || m.remote == nil {
		return cp, err
	}

	var mirrored models.Checkpoint
	if rerr := m.remote.Get(ctx, m.key, &mirrored); rerr != nil {
		if !errors.Is(rerr, cache.ErrCacheMiss) {
			m.log.Warn("checkpoint mirror read failed", logger.String("key", m.key), logger.Error(rerr))
		}
		return nil, err
	}
	if mirrored.QTable == nil {
		mirrored.QTable = models.QTable{}
	}
	m.log.Info("checkpoint restored from mirror",
		logger.String("key", m.key),
		logger.Int("states", len(mirrored.QTable)))

	if serr := m.primary.Save(ctx, &mirrored); serr != nil {
		m.log.Warn("seed primary from mirror", logger.Error(serr))
	}
	return &mirrored, nil
}
