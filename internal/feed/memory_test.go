package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeedSetAndBatchGet(t *testing.T) {
	f := NewMemoryFeed()
	ctx := context.Background()

	require.NoError(t, f.SetPrice(ctx, "SBIN", 612.5, time.Now()))
	require.NoError(t, f.SetPrice(ctx, "TCS", 3550, time.Now()))
	require.NoError(t, f.SetPrice(ctx, "SBIN", 613, time.Now()))

	prices, err := f.BatchLastPrice(ctx, []string{"SBIN", "TCS", "INFY"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SBIN": 613, "TCS": 3550}, prices, "unknown symbols are omitted")
}

func TestMemoryFeedEmpty(t *testing.T) {
	f := NewMemoryFeed()
	prices, err := f.BatchLastPrice(context.Background(), []string{"SBIN"})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestSymbolsEqual(t *testing.T) {
	assert.True(t, symbolsEqual(nil, nil))
	assert.True(t, symbolsEqual([]string{"A", "B"}, []string{"A", "B"}))
	assert.False(t, symbolsEqual([]string{"A"}, []string{"A", "B"}))
	assert.False(t, symbolsEqual([]string{"A", "C"}, []string{"A", "B"}))
}

func TestTickMessageDecoding(t *testing.T) {
	// Bridge ticks carry symbol, last traded price, and Unix-millisecond time.
	var tick tickMessage
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"SBIN","ltp":612.5,"ts":1756500000000}`), &tick))
	assert.Equal(t, "SBIN", tick.Symbol)
	assert.Equal(t, 612.5, tick.LTP)
	assert.Equal(t, int64(1756500000000), tick.TS)
}
