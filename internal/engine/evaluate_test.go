package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsshrinath/autotrade/internal/domain"
)

func TestEvaluateStopLoss(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	long := openPosition("l", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})
	assert.Nil(t, eval.Evaluate(&long, 96, now))

	sig := eval.Evaluate(&long, 95, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonStopLoss, sig.Reason)
	assert.Equal(t, 100.0, sig.ExitPercent)
	assert.Equal(t, -1, sig.LevelIndex)
	assert.NotEmpty(t, sig.ID)

	short := openPosition("s", "SBIN", domain.DirectionShort, 10, 100, domain.ExitStrategy{StopLoss: 105})
	assert.Nil(t, eval.Evaluate(&short, 104, now))
	sig = eval.Evaluate(&short, 105, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonStopLoss, sig.Reason)
}

func TestEvaluateTarget(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	long := openPosition("l", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{Target: 110})
	assert.Nil(t, eval.Evaluate(&long, 109.99, now))
	sig := eval.Evaluate(&long, 110, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonTarget, sig.Reason)

	short := openPosition("s", "SBIN", domain.DirectionShort, 10, 100, domain.ExitStrategy{Target: 90})
	sig = eval.Evaluate(&short, 90, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonTarget, sig.Reason)
}

func TestEvaluateStopLossBeatsTargetOnSameTick(t *testing.T) {
	// A gap tick can satisfy several rules at once; the protective exit wins.
	eval := NewEvaluator(nil)
	pos := openPosition("p", "SBIN", domain.DirectionShort, 10, 100, domain.ExitStrategy{
		StopLoss: 105,
		Target:   90,
	})
	// For a short, price 105 breaches the stop; a long-side bug could read it
	// as a target cross. Build a case where both genuinely hold: strategy time
	// exit due AND stop hit.
	pos.EntryTime = time.Now().Add(-2 * time.Hour)
	pos.ExitStrategy.TimeBasedExitMinutes = 30

	sig := eval.Evaluate(&pos, 106, time.Now().UTC())
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonStopLoss, sig.Reason)
}

func TestEvaluateTrailingStopBeatsTimeExit(t *testing.T) {
	eval := NewEvaluator(nil)
	pos := openPosition("p", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{
		TrailingStopEnabled:  true,
		TrailingStopDistance: 5,
		TimeBasedExitMinutes: 30,
	})
	pos.EntryTime = time.Now().Add(-1 * time.Hour)
	applyPriceUpdate(&pos, 120) // stop armed at 115

	sig := eval.Evaluate(&pos, 114, time.Now().UTC())
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonTrailingStop, sig.Reason)
}

func TestEvaluateTimeBasedAndMaxHold(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	pos := openPosition("p", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{
		TimeBasedExitMinutes: 30,
		MaxHoldTimeMinutes:   60,
	})
	pos.EntryTime = now.Add(-29 * time.Minute)
	assert.Nil(t, eval.Evaluate(&pos, 100, now))

	pos.EntryTime = now.Add(-31 * time.Minute)
	sig := eval.Evaluate(&pos, 100, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonTimeBased, sig.Reason)

	// With only max hold configured, that rule fires instead.
	pos.ExitStrategy.TimeBasedExitMinutes = 0
	pos.EntryTime = now.Add(-61 * time.Minute)
	sig = eval.Evaluate(&pos, 100, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonMaxHoldTime, sig.Reason)
}

func TestEvaluateMaxLossPct(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	pos := openPosition("p", "SBIN", domain.DirectionLong, 100, 100, domain.ExitStrategy{MaxLossPct: 5})
	// Loss of 4% of notional: no exit.
	assert.Nil(t, eval.Evaluate(&pos, 96, now))

	sig := eval.Evaluate(&pos, 95, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonMaxLoss, sig.Reason)

	short := openPosition("s", "SBIN", domain.DirectionShort, 100, 100, domain.ExitStrategy{MaxLossPct: 5})
	sig = eval.Evaluate(&short, 105, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonMaxLoss, sig.Reason)
}

func TestEvaluatePartialLevelsFireOncePerLevel(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	pos := openPosition("p", "SBIN", domain.DirectionLong, 100, 100, domain.ExitStrategy{
		PartialExitLevels: []domain.PartialExitLevel{
			{PriceLevel: 105, ExitPercent: 50},
			{PriceLevel: 110, ExitPercent: 50},
		},
	})

	sig := eval.Evaluate(&pos, 106, now)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonPartialLevel, sig.Reason)
	assert.Equal(t, 0, sig.LevelIndex)
	assert.Equal(t, 50.0, sig.ExitPercent)

	// Same price with the first level consumed: stays quiet.
	pos.LevelsConsumed[0] = true
	assert.Nil(t, eval.Evaluate(&pos, 106, now))

	// Second level crossed while the first stays crossed: fires level 1 only.
	sig = eval.Evaluate(&pos, 111, now)
	require.NotNil(t, sig)
	assert.Equal(t, 1, sig.LevelIndex)

	pos.LevelsConsumed[1] = true
	assert.Nil(t, eval.Evaluate(&pos, 120, now))
}

func TestEvaluateMarketClose(t *testing.T) {
	closed, err := MarketCloseCutoff("15:20", time.UTC)
	require.NoError(t, err)
	eval := NewEvaluator(closed)

	pos := openPosition("p", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{})
	before := time.Date(2026, 8, 28, 15, 19, 0, 0, time.UTC)
	after := time.Date(2026, 8, 28, 15, 20, 0, 0, time.UTC)

	assert.Nil(t, eval.Evaluate(&pos, 100, before))
	sig := eval.Evaluate(&pos, 100, after)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonMarketClose, sig.Reason)
	assert.Equal(t, 100.0, sig.ExitPercent)
}

func TestMarketCloseCutoffRejectsBadTime(t *testing.T) {
	_, err := MarketCloseCutoff("25:99", time.UTC)
	assert.Error(t, err)
}

func TestEvaluateSkipsDeadOrEmptyPositions(t *testing.T) {
	eval := NewEvaluator(nil)
	now := time.Now().UTC()

	pos := openPosition("p", "SBIN", domain.DirectionLong, 10, 100, domain.ExitStrategy{StopLoss: 95})
	pos.Status = domain.StatusClosed
	assert.Nil(t, eval.Evaluate(&pos, 90, now))

	pos.Status = domain.StatusOpen
	pos.Quantity = 0
	assert.Nil(t, eval.Evaluate(&pos, 90, now))

	pos.Quantity = 10
	assert.Nil(t, eval.Evaluate(&pos, 0, now), "non-positive price never signals")
}
