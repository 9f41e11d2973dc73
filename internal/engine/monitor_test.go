package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsshrinath/autotrade/internal/domain"
)

func newTestMonitor(t *testing.T, feed domain.PriceFeed, queueSize int) (*MonitorLoop, *PositionTable, chan domain.ExitSignal, *pendingSet, *StatsCollector) {
	t.Helper()
	table := NewPositionTable(testLogger())
	stats := NewStatsCollector()
	pending := newPendingSet()
	signals := make(chan domain.ExitSignal, queueSize)
	m := NewMonitorLoop(table, feed, NewEvaluator(nil), signals, pending, nil, stats,
		time.Second, time.Second, testLogger())
	return m, table, signals, pending, stats
}

func TestTickUpdatesPricesAndEnqueuesSignal(t *testing.T) {
	feed := newStubFeed()
	m, table, signals, _, _ := newTestMonitor(t, feed, 8)

	require.NoError(t, table.Add(openPosition("p1", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	require.NoError(t, table.Add(openPosition("p2", "TCS", domain.DirectionLong, 10, 3500, domain.ExitStrategy{StopLoss: 3400})))

	feed.set("SBIN", 98)
	feed.set("TCS", 3550)
	m.Tick(context.Background())

	p1, err := table.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 98.0, p1.CurrentPrice)
	assert.InDelta(t, -20.0, p1.UnrealizedPnL, 1e-9)
	assert.Len(t, signals, 0)

	feed.set("SBIN", 94)
	m.Tick(context.Background())

	require.Len(t, signals, 1)
	sig := <-signals
	assert.Equal(t, "p1", sig.PositionID)
	assert.Equal(t, domain.ReasonStopLoss, sig.Reason)
	assert.Equal(t, 94.0, sig.Price)
}

func TestTickSkipsOnFeedError(t *testing.T) {
	feed := newStubFeed()
	m, table, signals, _, _ := newTestMonitor(t, feed, 8)

	require.NoError(t, table.Add(openPosition("p1", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	feed.fail(errors.New("connection refused"))

	m.Tick(context.Background())

	p1, err := table.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p1.CurrentPrice, "position keeps its last known price")
	assert.Len(t, signals, 0)

	// The feed recovers and the next tick works in full.
	feed.fail(nil)
	feed.set("SBIN", 90)
	m.Tick(context.Background())
	assert.Len(t, signals, 1)
}

func TestTickToleratesMissingSymbol(t *testing.T) {
	feed := newStubFeed()
	m, table, signals, _, _ := newTestMonitor(t, feed, 8)

	require.NoError(t, table.Add(openPosition("p1", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	// No price stored for SBIN at all.
	m.Tick(context.Background())

	p1, err := table.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p1.CurrentPrice)
	assert.Len(t, signals, 0)
}

func TestTickDoesNotEnqueueWhilePending(t *testing.T) {
	feed := newStubFeed()
	m, table, signals, pending, _ := newTestMonitor(t, feed, 8)

	require.NoError(t, table.Add(openPosition("p1", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	feed.set("SBIN", 90)

	m.Tick(context.Background())
	m.Tick(context.Background())
	m.Tick(context.Background())

	assert.Len(t, signals, 1, "one signal while the first is still in flight")

	// Once the executor clears the mark, the still-true condition re-fires.
	<-signals
	pending.clear("p1")
	m.Tick(context.Background())
	assert.Len(t, signals, 1)
}

func TestTickDropsSignalWhenQueueFull(t *testing.T) {
	feed := newStubFeed()
	m, table, signals, pending, _ := newTestMonitor(t, feed, 1)

	require.NoError(t, table.Add(openPosition("p1", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	require.NoError(t, table.Add(openPosition("p2", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})))
	feed.set("SBIN", 90)

	m.Tick(context.Background())
	assert.Len(t, signals, 1)

	// The dropped position's pending mark was cleared so it can re-fire once
	// there is room again.
	dropped := "p1"
	if sig := <-signals; sig.PositionID == "p1" {
		dropped = "p2"
	}
	pending.clear(dropped)
	m.Tick(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, dropped, (<-signals).PositionID)
}

func TestTickNoLivePositionsQueriesNothing(t *testing.T) {
	feed := newStubFeed()
	m, _, _, _, _ := newTestMonitor(t, feed, 8)
	m.Tick(context.Background())
	assert.Equal(t, 0, feed.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	feed := newStubFeed()
	m, _, _, _, _ := newTestMonitor(t, feed, 8)
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor loop did not stop")
	}
}
