package domain

import "time"

// Direction is the side of a position: long profits when price rises, short
// when it falls.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeStatus tracks the lifecycle of a position.
type TradeStatus string

const (
	StatusOpen            TradeStatus = "OPEN"
	StatusPartiallyClosed TradeStatus = "PARTIALLY_CLOSED"
	StatusClosed          TradeStatus = "CLOSED"
	StatusError           TradeStatus = "ERROR"
)

// legalTransitions is the explicit status state machine. CLOSED and ERROR are
// terminal; any live status may transition to ERROR on unrecoverable failure.
var legalTransitions = map[TradeStatus]map[TradeStatus]bool{
	StatusOpen: {
		StatusPartiallyClosed: true,
		StatusClosed:          true,
		StatusError:           true,
	},
	StatusPartiallyClosed: {
		StatusPartiallyClosed: true,
		StatusClosed:          true,
		StatusError:           true,
	},
	StatusClosed: {},
	StatusError:  {},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Self-transitions are only legal for PARTIALLY_CLOSED (repeated
// partial exits).
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	return legalTransitions[s][next]
}

// Live reports whether a position with this status still carries market risk
// and must be monitored.
func (s TradeStatus) Live() bool {
	return s == StatusOpen || s == StatusPartiallyClosed
}

// PartialExit is one executed exit slice, appended to the position's exit log.
type PartialExit struct {
	Timestamp time.Time  `json:"timestamp"`
	ExitPrice float64    `json:"exit_price"`
	Quantity  int        `json:"exit_quantity"`
	Reason    ExitReason `json:"reason"`
	PnL       float64    `json:"pnl"`
	OrderID   string     `json:"order_id,omitempty"`
}

// Position represents one open or historical trade under risk management.
// All cross-goroutine mutation goes through the engine's position table; a
// Position value obtained from the table is always a deep copy.
type Position struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Strategy  string    `json:"strategy"`
	BotType   string    `json:"bot_type"`
	Direction Direction `json:"direction"`

	Quantity         int     `json:"quantity"`
	OriginalQuantity int     `json:"original_quantity"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`

	EntryTime  time.Time  `json:"entry_time"`
	LastUpdate time.Time  `json:"last_update"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`

	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`

	HighestPrice      float64  `json:"highest_price"`
	LowestPrice       float64  `json:"lowest_price"`
	TrailingStopPrice *float64 `json:"trailing_stop_price,omitempty"`

	ExitStrategy ExitStrategy `json:"exit_strategy"`
	Status       TradeStatus  `json:"status"`

	PartialExits []PartialExit `json:"partial_exits"`
	// LevelsConsumed marks partial-exit levels that have already executed so a
	// level whose price remains crossed cannot re-fire on a later tick.
	LevelsConsumed []bool `json:"levels_consumed,omitempty"`

	PaperTrade bool `json:"paper_trade"`
}

// Clone returns a deep copy of the position. Slices and optional pointers are
// duplicated so the copy can never alias table-owned state.
func (p *Position) Clone() Position {
	cp := *p
	if p.ExitTime != nil {
		t := *p.ExitTime
		cp.ExitTime = &t
	}
	if p.TrailingStopPrice != nil {
		v := *p.TrailingStopPrice
		cp.TrailingStopPrice = &v
	}
	if p.PartialExits != nil {
		cp.PartialExits = append([]PartialExit(nil), p.PartialExits...)
	}
	if p.LevelsConsumed != nil {
		cp.LevelsConsumed = append([]bool(nil), p.LevelsConsumed...)
	}
	cp.ExitStrategy = p.ExitStrategy.Clone()
	return cp
}

// PnLAt computes the direction-aware profit for qty units exited at price.
func (p *Position) PnLAt(price float64, qty int) float64 {
	switch p.Direction {
	case DirectionShort:
		return (p.EntryPrice - price) * float64(qty)
	default:
		return (price - p.EntryPrice) * float64(qty)
	}
}

// Notional is the entry-price value of the remaining quantity.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// ExitedQuantity sums the quantity across all recorded partial exits.
func (p *Position) ExitedQuantity() int {
	total := 0
	for _, pe := range p.PartialExits {
		total += pe.Quantity
	}
	return total
}
