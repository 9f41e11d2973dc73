package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// SnapshotStore mirrors the latest engine snapshot into a single JSONB row.
// It satisfies domain.SnapshotStore so it can also serve as the recovery
// source when the engine runs without local disk.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a store backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save upserts the snapshot row.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	snap.SchemaVersion = domain.SnapshotSchemaVersion
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const q = `
		INSERT INTO engine_snapshot (id, schema_version, taken_at, payload)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    taken_at = EXCLUDED.taken_at,
		    payload = EXCLUDED.payload`
	if _, err := s.pool.Exec(ctx, q, snap.SchemaVersion, snap.Timestamp, payload); err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot row. Returns domain.ErrNotFound when no snapshot
// has been written and wraps domain.ErrSnapshotCorrupt on undecodable or
// schema-mismatched payloads.
func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	const q = `SELECT payload FROM engine_snapshot WHERE id = 1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, q).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: load snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: decode snapshot: %v: %w", err, domain.ErrSnapshotCorrupt)
	}
	if snap.SchemaVersion != domain.SnapshotSchemaVersion {
		return domain.Snapshot{}, fmt.Errorf("postgres: snapshot schema version %d, want %d: %w",
			snap.SchemaVersion, domain.SnapshotSchemaVersion, domain.ErrSnapshotCorrupt)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
