package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/pkg/logger"
)

// FileCheckpointStore keeps the checkpoint at path and the previous good
// document at path+".backup". Writes are atomic: temp file, fsync, rename.
type FileCheckpointStore struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

var _ drepo.CheckpointStore = (*FileCheckpointStore)(nil)

func NewFileCheckpointStore(path string, log *logger.Logger) *FileCheckpointStore {
	if log == nil {
		log = logger.Nop()
	}
	return &FileCheckpointStore{path: path, log: log.Named("checkpoint_file")}
}

func (s *FileCheckpointStore) Path() string { return s.path }

func (s *FileCheckpointStore) backupPath() string { return s.path + ".backup" }

func (s *FileCheckpointStore) Save(ctx context.Context, cp *models.Checkpoint) error {
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	if err := copyFile(s.path, s.backupPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// a failed backup must not block the new write
		s.log.Warn("checkpoint backup failed", logger.String("path", s.backupPath()), logger.Error(err))
	}
	return writeAtomic(s.path, data)
}

// Load reads the primary document, falling back to the backup. It returns
// ErrCheckpointNotFound when neither file exists.
func (s *FileCheckpointStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, primaryErr := readCheckpoint(s.path)
	if primaryErr == nil {
		return cp, nil
	}
	if !errors.Is(primaryErr, fs.ErrNotExist) {
		s.log.Warn("primary checkpoint unreadable, trying backup",
			logger.String("path", s.path), logger.Error(primaryErr))
	}

	cp, backupErr := readCheckpoint(s.backupPath())
	if backupErr == nil {
		s.log.Info("checkpoint restored from backup", logger.String("path", s.backupPath()))
		return cp, nil
	}
	if errors.Is(primaryErr, fs.ErrNotExist) && errors.Is(backupErr, fs.ErrNotExist) {
		return nil, drepo.ErrCheckpointNotFound
	}
	return nil, fmt.Errorf("load checkpoint: %w", errors.Join(primaryErr, backupErr))
}

func readCheckpoint(path string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if cp.QTable == nil {
		cp.QTable = models.QTable{}
	}
	return &cp, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeAtomic(dst, data)
}
