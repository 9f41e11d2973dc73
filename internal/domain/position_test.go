package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusOpen.CanTransition(StatusPartiallyClosed))
	assert.True(t, StatusOpen.CanTransition(StatusClosed))
	assert.True(t, StatusOpen.CanTransition(StatusError))
	assert.True(t, StatusPartiallyClosed.CanTransition(StatusPartiallyClosed))
	assert.True(t, StatusPartiallyClosed.CanTransition(StatusClosed))

	assert.False(t, StatusOpen.CanTransition(StatusOpen))
	assert.False(t, StatusClosed.CanTransition(StatusOpen))
	assert.False(t, StatusClosed.CanTransition(StatusPartiallyClosed))
	assert.False(t, StatusError.CanTransition(StatusOpen))
	assert.False(t, StatusPartiallyClosed.CanTransition(StatusOpen))
}

func TestStatusLive(t *testing.T) {
	assert.True(t, StatusOpen.Live())
	assert.True(t, StatusPartiallyClosed.Live())
	assert.False(t, StatusClosed.Live())
	assert.False(t, StatusError.Live())
}

func TestPnLAt(t *testing.T) {
	long := Position{Direction: DirectionLong, EntryPrice: 100}
	assert.InDelta(t, 50.0, long.PnLAt(105, 10), 1e-9)
	assert.InDelta(t, -30.0, long.PnLAt(97, 10), 1e-9)

	short := Position{Direction: DirectionShort, EntryPrice: 100}
	assert.InDelta(t, 50.0, short.PnLAt(95, 10), 1e-9)
	assert.InDelta(t, -30.0, short.PnLAt(103, 10), 1e-9)
}

func TestCloneIsDeep(t *testing.T) {
	exit := time.Now().UTC()
	ts := 95.0
	p := Position{
		ID:                "p1",
		ExitTime:          &exit,
		TrailingStopPrice: &ts,
		PartialExits:      []PartialExit{{Quantity: 10, ExitPrice: 105}},
		LevelsConsumed:    []bool{true, false},
		ExitStrategy: ExitStrategy{
			PartialExitLevels: []PartialExitLevel{{PriceLevel: 105, ExitPercent: 50}},
		},
	}

	cp := p.Clone()
	*cp.TrailingStopPrice = 1
	*cp.ExitTime = time.Time{}
	cp.PartialExits[0].Quantity = 1
	cp.LevelsConsumed[0] = false
	cp.ExitStrategy.PartialExitLevels[0].ExitPercent = 1

	assert.Equal(t, 95.0, *p.TrailingStopPrice)
	assert.Equal(t, exit, *p.ExitTime)
	assert.Equal(t, 10, p.PartialExits[0].Quantity)
	assert.True(t, p.LevelsConsumed[0])
	assert.Equal(t, 50.0, p.ExitStrategy.PartialExitLevels[0].ExitPercent)
}

func TestExitedQuantityAndNotional(t *testing.T) {
	p := Position{
		EntryPrice:       100,
		Quantity:         40,
		OriginalQuantity: 100,
		PartialExits: []PartialExit{
			{Quantity: 25},
			{Quantity: 35},
		},
	}
	assert.Equal(t, 60, p.ExitedQuantity())
	assert.Equal(t, p.OriginalQuantity, p.Quantity+p.ExitedQuantity())
	assert.InDelta(t, 4000.0, p.Notional(), 1e-9)
}
