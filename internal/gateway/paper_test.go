package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsshrinath/autotrade/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paperPosition(dir domain.Direction, qty int, entry, current float64) domain.Position {
	return domain.Position{
		ID:           "p1",
		Symbol:       "SBIN",
		Direction:    dir,
		Quantity:     qty,
		EntryPrice:   entry,
		CurrentPrice: current,
		EntryTime:    time.Now().UTC(),
		Status:       domain.StatusOpen,
		PaperTrade:   true,
	}
}

func TestPaperExitFillsAtCurrentPrice(t *testing.T) {
	g := NewPaperGateway(0, testLogger())
	pos := paperPosition(domain.DirectionLong, 100, 600, 612)

	res, err := g.Exit(context.Background(), pos, 100, domain.ReasonTarget)
	require.NoError(t, err)
	assert.Equal(t, 612.0, res.FillPrice)
	assert.NotEmpty(t, res.OrderID)

	fills := g.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, 100, fills[0].Quantity)
	assert.Equal(t, domain.ReasonTarget, fills[0].Reason)
}

func TestPaperExitFallsBackToEntryPrice(t *testing.T) {
	g := NewPaperGateway(0, testLogger())
	pos := paperPosition(domain.DirectionLong, 10, 600, 0)

	res, err := g.Exit(context.Background(), pos, 10, domain.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 600.0, res.FillPrice)
}

func TestPaperSlippageWorksAgainstExitSide(t *testing.T) {
	g := NewPaperGateway(10, testLogger()) // 10 bps

	long := paperPosition(domain.DirectionLong, 10, 100, 200)
	res, err := g.Exit(context.Background(), long, 10, domain.ReasonTarget)
	require.NoError(t, err)
	assert.InDelta(t, 200-0.2, res.FillPrice, 1e-9, "a long sells slightly lower")

	short := paperPosition(domain.DirectionShort, 10, 300, 200)
	res, err = g.Exit(context.Background(), short, 10, domain.ReasonTarget)
	require.NoError(t, err)
	assert.InDelta(t, 200+0.2, res.FillPrice, 1e-9, "a short buys back slightly higher")
}

func TestPaperExitRejectsBadQuantity(t *testing.T) {
	g := NewPaperGateway(0, testLogger())
	pos := paperPosition(domain.DirectionLong, 10, 600, 610)

	_, err := g.Exit(context.Background(), pos, 0, domain.ReasonManual)
	assert.Error(t, err)
	_, err = g.Exit(context.Background(), pos, 11, domain.ReasonManual)
	assert.Error(t, err)
	assert.Empty(t, g.Fills())
}

func TestPaperExitHonoursCancelledContext(t *testing.T) {
	g := NewPaperGateway(0, testLogger())
	pos := paperPosition(domain.DirectionLong, 10, 600, 610)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Exit(ctx, pos, 10, domain.ReasonManual)
	assert.ErrorIs(t, err, context.Canceled)
}
