package engine

import "github.com/awsshrinath/autotrade/internal/domain"

// updateWatermarks records the running extrema since entry. Must be called
// with every fresh price before trailing-stop recomputation.
func updateWatermarks(p *domain.Position, price float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}
}

// updateTrailingStop recomputes the trailing stop from the current watermark.
// The stop only ever tightens: for a long it derives from the high watermark
// and never decreases, for a short from the low watermark and never increases.
// A configured trigger keeps the stop unarmed until price has crossed the
// trigger in the profitable direction.
func updateTrailingStop(p *domain.Position) {
	st := p.ExitStrategy
	if !st.TrailingStopEnabled || st.TrailingStopDistance <= 0 {
		return
	}

	var candidate float64
	switch p.Direction {
	case domain.DirectionShort:
		if st.TrailingStopTrigger != 0 && p.LowestPrice > st.TrailingStopTrigger {
			return
		}
		candidate = p.LowestPrice + st.TrailingStopDistance
		if p.TrailingStopPrice == nil || candidate < *p.TrailingStopPrice {
			p.TrailingStopPrice = &candidate
		}
	default:
		if st.TrailingStopTrigger != 0 && p.HighestPrice < st.TrailingStopTrigger {
			return
		}
		candidate = p.HighestPrice - st.TrailingStopDistance
		if p.TrailingStopPrice == nil || candidate > *p.TrailingStopPrice {
			p.TrailingStopPrice = &candidate
		}
	}
}

// applyPriceUpdate is the per-tick mutation run under the table lock: refresh
// current price, unrealized PnL, watermarks, and the trailing stop.
func applyPriceUpdate(p *domain.Position, price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price, p.Quantity)
	updateWatermarks(p, price)
	updateTrailingStop(p)
}
