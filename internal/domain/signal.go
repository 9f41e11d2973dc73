package domain

import "time"

// ExitReason identifies which rule triggered an exit.
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "STOP_LOSS_HIT"
	ReasonTarget       ExitReason = "TARGET_HIT"
	ReasonTrailingStop ExitReason = "TRAILING_STOP_HIT"
	ReasonTimeBased    ExitReason = "TIME_BASED_EXIT"
	ReasonMaxHoldTime  ExitReason = "MAX_HOLD_TIME"
	ReasonMaxLoss      ExitReason = "MAX_LOSS_PCT"
	ReasonPartialLevel ExitReason = "PARTIAL_LEVEL_HIT"
	ReasonMarketClose  ExitReason = "MARKET_CLOSE"
	ReasonManual       ExitReason = "MANUAL_EXIT"
	ReasonEmergency    ExitReason = "EMERGENCY_EXIT"
)

// ExitSignal is a request to close some percentage of a position, produced by
// the monitor's evaluator (or the operator surface) and consumed exactly once
// by the exit executor.
type ExitSignal struct {
	ID          string     `json:"id"` // UUID for dedup
	PositionID  string     `json:"position_id"`
	Symbol      string     `json:"symbol"`
	Reason      ExitReason `json:"reason"`
	Price       float64    `json:"price"`
	ExitPercent float64    `json:"exit_percentage"`
	// LevelIndex is the partial-exit level that fired, -1 otherwise.
	LevelIndex  int       `json:"level_index"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// ExitResult is the broker gateway's answer to an exit order.
type ExitResult struct {
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price"`
}

// PositionEvent is published on the outbound notification surface for every
// position update and exit execution.
type PositionEvent struct {
	Event     string     `json:"event"` // position_added | position_updated | exit_executed | exit_failed
	Reason    ExitReason `json:"reason,omitempty"`
	Position  Position   `json:"position"`
	Timestamp time.Time  `json:"timestamp"`
}

// ExitRecord is one persisted row of exit execution history.
type ExitRecord struct {
	ID         string     `json:"id"`
	PositionID string     `json:"position_id"`
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	Direction  Direction  `json:"direction"`
	Reason     ExitReason `json:"reason"`
	Quantity   int        `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	PnL        float64    `json:"pnl"`
	OrderID    string     `json:"order_id"`
	PaperTrade bool       `json:"paper_trade"`
	ExecutedAt time.Time  `json:"executed_at"`
}
