package feed

import (
	"context"
	"sync"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// MemoryFeed is an in-process price cache used when Redis is not configured,
// typically paper runs and tests. It implements both the ingest side
// (PriceSink) and the lookup side (domain.PriceFeed).
type MemoryFeed struct {
	mu     sync.RWMutex
	prices map[string]memTick
}

type memTick struct {
	price float64
	ts    time.Time
}

// NewMemoryFeed creates an empty MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{prices: make(map[string]memTick)}
}

// SetPrice stores the latest traded price for a symbol.
func (m *MemoryFeed) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	m.mu.Lock()
	m.prices[symbol] = memTick{price: price, ts: ts}
	m.mu.Unlock()
	return nil
}

// BatchLastPrice returns the latest prices for the given symbols. Symbols
// with no stored price are omitted.
func (m *MemoryFeed) BatchLastPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if t, ok := m.prices[sym]; ok {
			out[sym] = t.price
		}
	}
	return out, nil
}

var (
	_ domain.PriceFeed = (*MemoryFeed)(nil)
	_ PriceSink        = (*MemoryFeed)(nil)
)
