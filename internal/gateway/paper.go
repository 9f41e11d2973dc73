package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// PaperGateway simulates exit fills without touching the network. Fills are
// immediate at the signal price, optionally worsened by a fixed slippage in
// basis points to keep simulated results honest.
type PaperGateway struct {
	slippageBps float64
	logger      *slog.Logger

	mu    sync.Mutex
	fills []PaperFill
}

// PaperFill records one simulated exit for inspection.
type PaperFill struct {
	OrderID    string
	PositionID string
	Symbol     string
	Quantity   int
	Price      float64
	Reason     domain.ExitReason
	Time       time.Time
}

// NewPaperGateway creates a simulated gateway. slippageBps of 0 fills at the
// requested price exactly.
func NewPaperGateway(slippageBps float64, logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		slippageBps: slippageBps,
		logger:      logger.With(slog.String("component", "paper_gateway")),
	}
}

// Exit simulates a market exit fill.
func (g *PaperGateway) Exit(ctx context.Context, pos domain.Position, quantity int, reason domain.ExitReason) (domain.ExitResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExitResult{}, err
	}
	if quantity <= 0 || quantity > pos.Quantity {
		return domain.ExitResult{}, fmt.Errorf("paper: exit %s: quantity %d out of range (remaining %d)",
			pos.ID, quantity, pos.Quantity)
	}

	price := pos.CurrentPrice
	if price <= 0 {
		price = pos.EntryPrice
	}
	// Slippage always moves the fill against the exit side.
	adj := price * g.slippageBps / 10000
	if pos.Direction == domain.DirectionLong {
		price -= adj
	} else {
		price += adj
	}

	fill := PaperFill{
		OrderID:    "paper-" + uuid.New().String(),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Quantity:   quantity,
		Price:      price,
		Reason:     reason,
		Time:       time.Now().UTC(),
	}
	g.mu.Lock()
	g.fills = append(g.fills, fill)
	g.mu.Unlock()

	g.logger.Info("simulated exit fill",
		slog.String("order_id", fill.OrderID),
		slog.String("symbol", pos.Symbol),
		slog.Int("quantity", quantity),
		slog.Float64("price", price),
		slog.String("reason", string(reason)),
	)
	return domain.ExitResult{OrderID: fill.OrderID, FillPrice: price}, nil
}

// Fills returns a copy of all simulated fills so far.
func (g *PaperGateway) Fills() []PaperFill {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PaperFill, len(g.fills))
	copy(out, g.fills)
	return out
}

var _ domain.OrderGateway = (*PaperGateway)(nil)
