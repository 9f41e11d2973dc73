package domain

import "fmt"

// PartialExitLevel is one rung of a laddered profit-taking plan: when price
// crosses PriceLevel in the profitable direction, ExitPercent of the remaining
// quantity is closed.
type PartialExitLevel struct {
	PriceLevel  float64 `json:"price_level"`
	ExitPercent float64 `json:"exit_percentage"`
}

// ExitStrategy is the risk policy attached to a position at entry time. It is
// immutable after creation except through the explicit operator surface
// (move-to-breakeven, enable-trailing-stop). A zero value for any price or
// duration field disables that rule.
type ExitStrategy struct {
	StopLoss float64 `json:"stop_loss"`
	Target   float64 `json:"target"`

	TrailingStopEnabled  bool    `json:"trailing_stop_enabled"`
	TrailingStopDistance float64 `json:"trailing_stop_distance"`
	// TrailingStopTrigger, when non-zero, arms the trailing stop only once
	// price has crossed it in the profitable direction.
	TrailingStopTrigger float64 `json:"trailing_stop_trigger,omitempty"`

	TimeBasedExitMinutes int `json:"time_based_exit_minutes"`
	MaxHoldTimeMinutes   int `json:"max_hold_time_minutes"`

	// MaxLossPct closes the position when the unrealized loss reaches this
	// percentage of entry notional.
	MaxLossPct float64 `json:"max_loss_pct"`

	PartialExitLevels []PartialExitLevel `json:"partial_exit_levels,omitempty"`
}

// Clone returns a deep copy of the strategy.
func (s ExitStrategy) Clone() ExitStrategy {
	cp := s
	if s.PartialExitLevels != nil {
		cp.PartialExitLevels = append([]PartialExitLevel(nil), s.PartialExitLevels...)
	}
	return cp
}

// Validate checks the strategy against the entry it will protect. A stop loss
// on the wrong side of entry would fire immediately; a target on the wrong
// side would never fire. Both are configuration errors rejected at admission.
func (s ExitStrategy) Validate(direction Direction, entryPrice float64) error {
	if entryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidStrategy, entryPrice)
	}
	long := direction == DirectionLong
	if s.StopLoss != 0 {
		if long && s.StopLoss >= entryPrice {
			return fmt.Errorf("%w: long stop loss %.2f must be below entry %.2f", ErrInvalidStrategy, s.StopLoss, entryPrice)
		}
		if !long && s.StopLoss <= entryPrice {
			return fmt.Errorf("%w: short stop loss %.2f must be above entry %.2f", ErrInvalidStrategy, s.StopLoss, entryPrice)
		}
	}
	if s.Target != 0 {
		if long && s.Target <= entryPrice {
			return fmt.Errorf("%w: long target %.2f must be above entry %.2f", ErrInvalidStrategy, s.Target, entryPrice)
		}
		if !long && s.Target >= entryPrice {
			return fmt.Errorf("%w: short target %.2f must be below entry %.2f", ErrInvalidStrategy, s.Target, entryPrice)
		}
	}
	if s.TrailingStopEnabled && s.TrailingStopDistance <= 0 {
		return fmt.Errorf("%w: trailing stop distance must be positive", ErrInvalidStrategy)
	}
	if s.MaxLossPct < 0 {
		return fmt.Errorf("%w: max loss pct must not be negative", ErrInvalidStrategy)
	}
	if s.TimeBasedExitMinutes < 0 || s.MaxHoldTimeMinutes < 0 {
		return fmt.Errorf("%w: time limits must not be negative", ErrInvalidStrategy)
	}
	for i, lvl := range s.PartialExitLevels {
		if lvl.ExitPercent <= 0 || lvl.ExitPercent > 100 {
			return fmt.Errorf("%w: partial level %d exit percentage %.2f out of (0,100]", ErrInvalidStrategy, i, lvl.ExitPercent)
		}
		if long && lvl.PriceLevel <= entryPrice {
			return fmt.Errorf("%w: long partial level %d price %.2f must be above entry", ErrInvalidStrategy, i, lvl.PriceLevel)
		}
		if !long && lvl.PriceLevel >= entryPrice {
			return fmt.Errorf("%w: short partial level %d price %.2f must be below entry", ErrInvalidStrategy, i, lvl.PriceLevel)
		}
	}
	return nil
}
