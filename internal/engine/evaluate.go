package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// Evaluator runs the layered exit-condition chain. It is pure: given a
// position copy, a price, and a clock reading it either returns one exit
// signal or nil, with no side effects.
//
// The checks form a strict priority chain; the first match wins and later
// rules are not evaluated. Capital-preservation rules come before
// profit-taking and housekeeping so that on a single tick where several
// conditions are simultaneously true (a gap move), the protective exit fires.
type Evaluator struct {
	// marketClosed reports whether the global square-off cutoff has passed.
	marketClosed func(time.Time) bool
}

// NewEvaluator creates an Evaluator. marketClosed may be nil to disable the
// market-close rule.
func NewEvaluator(marketClosed func(time.Time) bool) *Evaluator {
	return &Evaluator{marketClosed: marketClosed}
}

// Evaluate returns at most one exit signal for the position at the given
// price and time. Positions with no remaining quantity never signal.
func (e *Evaluator) Evaluate(p *domain.Position, price float64, now time.Time) *domain.ExitSignal {
	if !p.Status.Live() || p.Quantity <= 0 || price <= 0 {
		return nil
	}

	long := p.Direction != domain.DirectionShort
	st := p.ExitStrategy

	// 1. Stop loss.
	if st.StopLoss != 0 {
		if (long && price <= st.StopLoss) || (!long && price >= st.StopLoss) {
			return e.signal(p, domain.ReasonStopLoss, price, 100, -1, now)
		}
	}

	// 2. Target.
	if st.Target != 0 {
		if (long && price >= st.Target) || (!long && price <= st.Target) {
			return e.signal(p, domain.ReasonTarget, price, 100, -1, now)
		}
	}

	// 3. Trailing stop, once a trailing price has been set.
	if p.TrailingStopPrice != nil {
		ts := *p.TrailingStopPrice
		if (long && price <= ts) || (!long && price >= ts) {
			return e.signal(p, domain.ReasonTrailingStop, price, 100, -1, now)
		}
	}

	// 4. Strategy time-based exit.
	if st.TimeBasedExitMinutes > 0 {
		if now.Sub(p.EntryTime) >= time.Duration(st.TimeBasedExitMinutes)*time.Minute {
			return e.signal(p, domain.ReasonTimeBased, price, 100, -1, now)
		}
	}

	// 5. Absolute max hold time.
	if st.MaxHoldTimeMinutes > 0 {
		if now.Sub(p.EntryTime) >= time.Duration(st.MaxHoldTimeMinutes)*time.Minute {
			return e.signal(p, domain.ReasonMaxHoldTime, price, 100, -1, now)
		}
	}

	// 6. Max loss as a percentage of entry notional.
	if st.MaxLossPct > 0 {
		loss := -p.PnLAt(price, p.Quantity)
		if notional := p.Notional(); notional > 0 && loss >= notional*st.MaxLossPct/100 {
			return e.signal(p, domain.ReasonMaxLoss, price, 100, -1, now)
		}
	}

	// 7. Partial profit-taking levels. Consumed levels never re-fire.
	for i, lvl := range st.PartialExitLevels {
		if i < len(p.LevelsConsumed) && p.LevelsConsumed[i] {
			continue
		}
		if (long && price >= lvl.PriceLevel) || (!long && price <= lvl.PriceLevel) {
			return e.signal(p, domain.ReasonPartialLevel, price, lvl.ExitPercent, i, now)
		}
	}

	// 8. Global market-close cutoff.
	if e.marketClosed != nil && e.marketClosed(now) {
		return e.signal(p, domain.ReasonMarketClose, price, 100, -1, now)
	}

	return nil
}

func (e *Evaluator) signal(p *domain.Position, reason domain.ExitReason, price, pct float64, level int, now time.Time) *domain.ExitSignal {
	return &domain.ExitSignal{
		ID:          uuid.New().String(),
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Reason:      reason,
		Price:       price,
		ExitPercent: pct,
		LevelIndex:  level,
		TriggeredAt: now,
	}
}

// MarketCloseCutoff builds a marketClosed predicate from a wall-clock cutoff
// ("15:20") in the given location. Before the cutoff it returns false, at or
// after it true, for the day of the supplied time.
func MarketCloseCutoff(hhmm string, loc *time.Location) (func(time.Time) bool, error) {
	cutoff, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil, err
	}
	h, m := cutoff.Hour(), cutoff.Minute()
	return func(now time.Time) bool {
		local := now.In(loc)
		return local.Hour()*60+local.Minute() >= h*60+m
	}, nil
}
