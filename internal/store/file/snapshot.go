// Package file implements the snapshot store on local disk with atomic
// writes, the default persistence backend when Postgres is not configured.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// SnapshotStore persists engine snapshots as a single JSON file. Writes go
// to a temp file in the same directory followed by a rename, so a crash
// mid-write never leaves a truncated snapshot behind.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore creates the store and its parent directory.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file: snapshot path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file: create snapshot dir: %w", err)
	}
	return &SnapshotStore{path: path}, nil
}

// Save writes the snapshot atomically.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap.SchemaVersion = domain.SnapshotSchemaVersion

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file: commit snapshot: %w", err)
	}
	return nil
}

// Load reads the latest snapshot. Returns domain.ErrNotFound when no
// snapshot file exists, and wraps domain.ErrSnapshotCorrupt when the file is
// present but cannot be decoded or carries an unknown schema version.
func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("file: read snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("file: decode snapshot: %v: %w", err, domain.ErrSnapshotCorrupt)
	}
	if snap.SchemaVersion != domain.SnapshotSchemaVersion {
		return domain.Snapshot{}, fmt.Errorf("file: snapshot schema version %d, want %d: %w",
			snap.SchemaVersion, domain.SnapshotSchemaVersion, domain.ErrSnapshotCorrupt)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
