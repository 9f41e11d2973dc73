package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// RecoveryManager persists the full position table after every mutating event
// and rebuilds the live store on startup. Snapshots are written through a
// SnapshotStore whose Save is atomic, so a crash mid-write never corrupts the
// previous snapshot. An optional archiver ships copies off-host.
type RecoveryManager struct {
	table    *PositionTable
	store    domain.SnapshotStore
	archiver domain.SnapshotArchiver
	stats    *StatsCollector
	logger   *slog.Logger

	// mu serializes snapshot writes so concurrent mutating events cannot
	// interleave a stale image over a fresh one.
	mu sync.Mutex
}

// NewRecoveryManager creates a RecoveryManager. archiver may be nil.
func NewRecoveryManager(
	table *PositionTable,
	store domain.SnapshotStore,
	archiver domain.SnapshotArchiver,
	stats *StatsCollector,
	logger *slog.Logger,
) *RecoveryManager {
	return &RecoveryManager{
		table:    table,
		store:    store,
		archiver: archiver,
		stats:    stats,
		logger:   logger.With(slog.String("component", "recovery_manager")),
	}
}

// Snapshot serializes the entire table plus aggregate exit stats.
func (r *RecoveryManager) Snapshot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Timestamp:     time.Now().UTC(),
		Positions:     r.table.List(),
		ExitStats:     r.stats.ExitCounts(),
	}
	if err := r.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("recovery: save snapshot: %w", err)
	}

	r.archive(ctx, snap)
	return nil
}

// Restore loads the latest snapshot and admits every position that still
// carries market risk (OPEN and PARTIALLY_CLOSED: a partially-exited
// position's remaining quantity is live risk and must not vanish across a
// restart). Fully closed and errored entries stay out of the live set; their
// exit counters are folded into the stats collector. A missing snapshot is a
// clean cold start; a corrupt one degrades to an empty store with a loud
// warning, since it means lost risk visibility.
func (r *RecoveryManager) Restore(ctx context.Context) (int, error) {
	snap, err := r.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Info("no snapshot found, starting with empty store")
			return 0, nil
		}
		r.logger.Error("SNAPSHOT UNREADABLE - starting with empty store, live risk visibility is lost",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("recovery: load snapshot: %w", err)
	}

	if snap.SchemaVersion != domain.SnapshotSchemaVersion {
		r.logger.Error("SNAPSHOT SCHEMA MISMATCH - starting with empty store",
			slog.Int("got", snap.SchemaVersion),
			slog.Int("want", domain.SnapshotSchemaVersion),
		)
		return 0, fmt.Errorf("recovery: schema version %d (want %d): %w",
			snap.SchemaVersion, domain.SnapshotSchemaVersion, domain.ErrSnapshotCorrupt)
	}

	restored := 0
	for _, pos := range snap.Positions {
		if !pos.Status.Live() {
			continue
		}
		if err := r.table.Add(pos); err != nil {
			r.logger.Warn("could not restore position",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}
	r.stats.SeedExitCounts(snap.ExitStats)

	r.logger.Info("state restored from snapshot",
		slog.Int("restored", restored),
		slog.Int("in_snapshot", len(snap.Positions)),
		slog.Time("snapshot_time", snap.Timestamp),
	)
	return restored, nil
}

// archive ships a copy of the snapshot off-host, best-effort.
func (r *RecoveryManager) archive(ctx context.Context, snap domain.Snapshot) {
	if r.archiver == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	key := fmt.Sprintf("snapshots/%s.json", snap.Timestamp.Format("2006-01-02T15-04-05.000"))
	if err := r.archiver.Archive(ctx, key, bytes.NewReader(data)); err != nil {
		r.logger.Warn("snapshot archive failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
