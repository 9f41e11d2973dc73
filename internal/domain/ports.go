package domain

import (
	"context"
	"io"
	"time"
)

// PriceFeed provides best-effort batch last-traded-price lookup. Symbols with
// no known price are omitted from the result map, never treated as fatal.
type PriceFeed interface {
	BatchLastPrice(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OrderGateway places exit orders with the broker. Paper implementations must
// never touch the network. Live implementations place a market order with the
// transaction type opposite to the position's entry direction, quantity at
// most the remaining position quantity.
type OrderGateway interface {
	Exit(ctx context.Context, pos Position, quantity int, reason ExitReason) (ExitResult, error)
}

// SnapshotSchemaVersion marks the on-disk snapshot format. Bump on any
// incompatible change to Snapshot or Position serialization.
const SnapshotSchemaVersion = 1

// Snapshot is the durable recovery image of the monitoring engine.
type Snapshot struct {
	SchemaVersion int                  `json:"schema_version"`
	Timestamp     time.Time            `json:"timestamp"`
	Positions     []Position           `json:"positions"`
	ExitStats     map[ExitReason]int64 `json:"exit_stats"`
}

// SnapshotStore persists and recovers engine snapshots. Save must be atomic:
// a crash mid-write can never leave a truncated snapshot behind.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns ErrNotFound when no snapshot exists and ErrSnapshotCorrupt
	// (wrapped) when the stored data cannot be decoded.
	Load(ctx context.Context) (Snapshot, error)
}

// SnapshotArchiver ships snapshot copies to off-host storage. Best-effort.
type SnapshotArchiver interface {
	Archive(ctx context.Context, key string, data io.Reader) error
}

// ExitLogStore persists exit execution history for the analytics collaborator.
type ExitLogStore interface {
	Insert(ctx context.Context, rec ExitRecord) error
	ListRecent(ctx context.Context, limit int) ([]ExitRecord, error)
}

// EventBus is the outbound notification surface. Publish is fire-and-forget
// pub/sub; StreamAppend gives durable ordered delivery for the same payload.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// EntryOrder is the inbound add-position payload from the order/strategy
// layer, submitted after a confirmed entry fill.
type EntryOrder struct {
	ID           string       `json:"id,omitempty"` // assigned when empty
	Symbol       string       `json:"symbol"`
	Strategy     string       `json:"strategy"`
	BotType      string       `json:"bot_type"`
	Direction    Direction    `json:"direction"`
	Quantity     int          `json:"quantity"`
	EntryPrice   float64      `json:"entry_price"`
	EntryTime    time.Time    `json:"entry_time,omitempty"` // defaults to now
	ExitStrategy ExitStrategy `json:"exit_strategy"`
	PaperTrade   bool         `json:"paper_trade"`
}

// StatsSnapshot is a read-only view of the engine's running counters.
type StatsSnapshot struct {
	TotalPositions  int                  `json:"total_positions"`
	OpenPositions   int                  `json:"open_positions"`
	ClosedPositions int                  `json:"closed_positions"`
	ErrorPositions  int                  `json:"error_positions"`
	UnrealizedPnL   float64              `json:"unrealized_pnl"`
	RealizedPnL     float64              `json:"realized_pnl"`
	ExitCounts      map[ExitReason]int64 `json:"exit_counts"`
	FailedExits     int64                `json:"failed_exits"`
	GeneratedAt     time.Time            `json:"generated_at"`
}
