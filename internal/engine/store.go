// Package engine implements the position monitoring and exit-strategy
// execution core: a concurrency-safe position table, a periodic monitor loop
// evaluating layered exit rules, and a decoupled executor applying exits
// exactly once with durable snapshots.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// PositionTable is the single owner of all positions. Every read returns a
// deep copy and every mutation runs under the table lock, so no caller can
// hold an independently-mutable view.
type PositionTable struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	logger    *slog.Logger
}

// NewPositionTable creates an empty table.
func NewPositionTable(logger *slog.Logger) *PositionTable {
	return &PositionTable{
		positions: make(map[string]*domain.Position),
		logger:    logger.With(slog.String("component", "position_table")),
	}
}

// Add admits a position. The position must already be validated.
func (t *PositionTable) Add(pos domain.Position) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.positions[pos.ID]; ok {
		return fmt.Errorf("position_table: add %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	cp := pos.Clone()
	t.positions[pos.ID] = &cp
	return nil
}

// Get returns a deep copy of the position with the given id.
func (t *PositionTable) Get(id string) (domain.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position_table: get %s: %w", id, domain.ErrNotFound)
	}
	return p.Clone(), nil
}

// List returns copies of all positions matching any of the given statuses.
// With no filter it returns every position, closed ones included.
func (t *PositionTable) List(statuses ...domain.TradeStatus) []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		if len(statuses) > 0 && !statusIn(p.Status, statuses) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

// Live returns copies of all positions that still carry market risk.
func (t *PositionTable) Live() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		if p.Status.Live() {
			out = append(out, p.Clone())
		}
	}
	return out
}

// LiveSymbols returns the deduplicated symbol set of all live positions.
func (t *PositionTable) LiveSymbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]bool, len(t.positions))
	out := make([]string, 0, len(t.positions))
	for _, p := range t.positions {
		if !p.Status.Live() || seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		out = append(out, p.Symbol)
	}
	return out
}

// Mutate applies fn to the live stored position under the table lock. fn gets
// the table-owned pointer; it must not retain it past the call. LastUpdate is
// stamped on success. Returns a copy of the mutated position.
func (t *PositionTable) Mutate(id string, fn func(*domain.Position) error) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position_table: mutate %s: %w", id, domain.ErrNotFound)
	}
	if err := fn(p); err != nil {
		return domain.Position{}, err
	}
	p.LastUpdate = time.Now().UTC()
	return p.Clone(), nil
}

// ExitFill describes a confirmed broker fill to apply against a position.
type ExitFill struct {
	Quantity   int
	Price      float64
	Reason     domain.ExitReason
	OrderID    string
	LevelIndex int // partial level that fired, -1 otherwise
}

// ApplyExit atomically applies a confirmed exit fill: appends the partial-exit
// record, reduces quantity, accumulates realized PnL, marks the consumed
// partial level, and transitions status through the legal state machine. A
// fill against a closed position or for more than the remaining quantity is
// rejected, which is what makes double-application of a signal impossible.
func (t *PositionTable) ApplyExit(id string, fill ExitFill) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position_table: apply exit %s: %w", id, domain.ErrNotFound)
	}
	if !p.Status.Live() {
		return domain.Position{}, fmt.Errorf("position_table: apply exit %s: %w", id, domain.ErrPositionClosed)
	}
	if fill.Quantity <= 0 || fill.Quantity > p.Quantity {
		return domain.Position{}, fmt.Errorf("position_table: apply exit %s: quantity %d out of range (remaining %d)",
			id, fill.Quantity, p.Quantity)
	}

	next := domain.StatusPartiallyClosed
	if fill.Quantity == p.Quantity {
		next = domain.StatusClosed
	}
	if !p.Status.CanTransition(next) {
		return domain.Position{}, fmt.Errorf("position_table: apply exit %s: %s -> %s: %w",
			id, p.Status, next, domain.ErrIllegalStatus)
	}

	now := time.Now().UTC()
	pnl := p.PnLAt(fill.Price, fill.Quantity)
	p.PartialExits = append(p.PartialExits, domain.PartialExit{
		Timestamp: now,
		ExitPrice: fill.Price,
		Quantity:  fill.Quantity,
		Reason:    fill.Reason,
		PnL:       pnl,
		OrderID:   fill.OrderID,
	})
	p.Quantity -= fill.Quantity
	p.RealizedPnL += pnl
	p.CurrentPrice = fill.Price
	p.UnrealizedPnL = p.PnLAt(fill.Price, p.Quantity)
	p.Status = next
	p.LastUpdate = now
	if next == domain.StatusClosed {
		p.ExitTime = &now
	}
	if fill.LevelIndex >= 0 {
		if p.LevelsConsumed == nil {
			p.LevelsConsumed = make([]bool, len(p.ExitStrategy.PartialExitLevels))
		}
		if fill.LevelIndex < len(p.LevelsConsumed) {
			p.LevelsConsumed[fill.LevelIndex] = true
		}
	}

	t.logger.Info("exit applied",
		slog.String("position_id", id),
		slog.String("reason", string(fill.Reason)),
		slog.Int("quantity", fill.Quantity),
		slog.Float64("price", fill.Price),
		slog.Float64("pnl", pnl),
		slog.String("status", string(p.Status)),
	)
	return p.Clone(), nil
}

// MarkError transitions a position to ERROR. Legal from any live status.
func (t *PositionTable) MarkError(id string) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position_table: mark error %s: %w", id, domain.ErrNotFound)
	}
	if !p.Status.CanTransition(domain.StatusError) {
		return domain.Position{}, fmt.Errorf("position_table: mark error %s: %s -> %s: %w",
			id, p.Status, domain.StatusError, domain.ErrIllegalStatus)
	}
	p.Status = domain.StatusError
	p.LastUpdate = time.Now().UTC()
	return p.Clone(), nil
}

func statusIn(s domain.TradeStatus, set []domain.TradeStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
