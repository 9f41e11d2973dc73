package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// ExitLogStore implements domain.ExitLogStore using PostgreSQL.
type ExitLogStore struct {
	pool *pgxpool.Pool
}

// NewExitLogStore creates a store backed by the given connection pool.
func NewExitLogStore(pool *pgxpool.Pool) *ExitLogStore {
	return &ExitLogStore{pool: pool}
}

const exitLogCols = `id, position_id, symbol, strategy, direction, reason,
	quantity, entry_price, exit_price, pnl, order_id, paper_trade, executed_at`

// Insert persists one exit execution. Re-inserting the same id is a no-op so
// a retried persist after a crash never duplicates history.
func (s *ExitLogStore) Insert(ctx context.Context, rec domain.ExitRecord) error {
	const q = `
		INSERT INTO exit_log (` + exitLogCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, q,
		rec.ID, rec.PositionID, rec.Symbol, rec.Strategy, string(rec.Direction),
		string(rec.Reason), rec.Quantity, rec.EntryPrice, rec.ExitPrice,
		rec.PnL, rec.OrderID, rec.PaperTrade, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert exit log %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent exits, newest first.
func (s *ExitLogStore) ListRecent(ctx context.Context, limit int) ([]domain.ExitRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT ` + exitLogCols + `
		FROM exit_log
		ORDER BY executed_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exit log: %w", err)
	}
	defer rows.Close()
	return scanExitRecords(rows)
}

func scanExitRecords(rows pgx.Rows) ([]domain.ExitRecord, error) {
	var recs []domain.ExitRecord
	for rows.Next() {
		var (
			rec       domain.ExitRecord
			direction string
			reason    string
		)
		if err := rows.Scan(
			&rec.ID, &rec.PositionID, &rec.Symbol, &rec.Strategy, &direction,
			&reason, &rec.Quantity, &rec.EntryPrice, &rec.ExitPrice,
			&rec.PnL, &rec.OrderID, &rec.PaperTrade, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan exit log row: %w", err)
		}
		rec.Direction = domain.Direction(direction)
		rec.Reason = domain.ExitReason(reason)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: exit log rows: %w", err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.ExitLogStore = (*ExitLogStore)(nil)
