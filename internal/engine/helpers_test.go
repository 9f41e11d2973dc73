package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awsshrinath/autotrade/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFeed is a map-backed price feed with injectable failures.
type stubFeed struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  int
}

func newStubFeed() *stubFeed {
	return &stubFeed{prices: make(map[string]float64)}
}

func (f *stubFeed) set(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

func (f *stubFeed) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *stubFeed) BatchLastPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

// stubGateway fills immediately at the position's current price, after
// failing the first failFirst attempts.
type stubGateway struct {
	mu        sync.Mutex
	failFirst int
	failWith  error
	calls     int
	exits     []stubExit
}

type stubExit struct {
	PositionID string
	Quantity   int
	Reason     domain.ExitReason
}

func (g *stubGateway) Exit(ctx context.Context, pos domain.Position, quantity int, reason domain.ExitReason) (domain.ExitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failFirst {
		return domain.ExitResult{}, g.failWith
	}
	g.exits = append(g.exits, stubExit{PositionID: pos.ID, Quantity: quantity, Reason: reason})
	price := pos.CurrentPrice
	if price <= 0 {
		price = pos.EntryPrice
	}
	return domain.ExitResult{OrderID: "stub-" + uuid.New().String(), FillPrice: price}, nil
}

func (g *stubGateway) attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *stubGateway) filled() []stubExit {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]stubExit, len(g.exits))
	copy(out, g.exits)
	return out
}

// memSnapshotStore keeps the latest snapshot in memory.
type memSnapshotStore struct {
	mu    sync.Mutex
	snap  *domain.Snapshot
	saves int
	err   error
}

func (s *memSnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := snap
	cp.Positions = append([]domain.Position(nil), snap.Positions...)
	s.snap = &cp
	s.saves++
	return nil
}

func (s *memSnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Snapshot{}, s.err
	}
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return *s.snap, nil
}

func (s *memSnapshotStore) latest() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// stubAlerter records alerts raised by the executor.
type stubAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *stubAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	return nil
}

func (a *stubAlerter) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func openPosition(id, symbol string, dir domain.Direction, qty int, entry float64, st domain.ExitStrategy) domain.Position {
	now := time.Now().UTC()
	return domain.Position{
		ID:               id,
		Symbol:           symbol,
		Strategy:         "test",
		Direction:        dir,
		Quantity:         qty,
		OriginalQuantity: qty,
		EntryPrice:       entry,
		CurrentPrice:     entry,
		EntryTime:        now,
		LastUpdate:       now,
		HighestPrice:     entry,
		LowestPrice:      entry,
		ExitStrategy:     st.Clone(),
		Status:           domain.StatusOpen,
		LevelsConsumed:   make([]bool, len(st.PartialExitLevels)),
		PaperTrade:       true,
	}
}
