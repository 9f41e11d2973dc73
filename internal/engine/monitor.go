package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// MonitorLoop refreshes prices for all live positions on a fixed interval,
// updates watermarks and PnL, runs the exit evaluator, and enqueues any
// resulting signals. It never performs order I/O: a slow broker can therefore
// never stall price evaluation. A failing feed is logged and retried in full
// on the next tick; nothing a tick does can kill the loop.
type MonitorLoop struct {
	table    *PositionTable
	feed     domain.PriceFeed
	eval     *Evaluator
	signals  chan<- domain.ExitSignal
	pending  *pendingSet
	bus      domain.EventBus
	stats    *StatsCollector
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	now func() time.Time // test hook
}

// NewMonitorLoop creates a MonitorLoop. bus may be nil to disable outbound
// position-update events.
func NewMonitorLoop(
	table *PositionTable,
	feed domain.PriceFeed,
	eval *Evaluator,
	signals chan<- domain.ExitSignal,
	pending *pendingSet,
	bus domain.EventBus,
	stats *StatsCollector,
	interval, feedTimeout time.Duration,
	logger *slog.Logger,
) *MonitorLoop {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if feedTimeout <= 0 {
		feedTimeout = 3 * time.Second
	}
	return &MonitorLoop{
		table:    table,
		feed:     feed,
		eval:     eval,
		signals:  signals,
		pending:  pending,
		bus:      bus,
		stats:    stats,
		interval: interval,
		timeout:  feedTimeout,
		logger:   logger.With(slog.String("component", "monitor_loop")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until the context is cancelled. The in-flight tick always
// finishes before Run returns.
func (m *MonitorLoop) Run(ctx context.Context) error {
	m.logger.Info("monitor loop started", slog.Duration("interval", m.interval))
	defer m.logger.Info("monitor loop stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one full monitoring pass. Exported for the engine's manual
// refresh path and for tests.
func (m *MonitorLoop) Tick(ctx context.Context) {
	symbols := m.table.LiveSymbols()
	if len(symbols) == 0 {
		return
	}

	feedCtx, cancel := context.WithTimeout(ctx, m.timeout)
	prices, err := m.feed.BatchLastPrice(feedCtx, symbols)
	cancel()
	if err != nil {
		// Transient by taxonomy: skip this tick, retry fully on the next.
		m.stats.RecordFeedError()
		m.logger.Warn("price feed query failed, skipping tick",
			slog.Int("symbols", len(symbols)),
			slog.String("error", err.Error()),
		)
		return
	}

	now := m.now()
	for _, pos := range m.table.Live() {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			// Stale or missing symbol: tolerate, the position keeps its last
			// known price until the feed recovers.
			m.logger.Debug("no price for symbol",
				slog.String("symbol", pos.Symbol),
				slog.String("position_id", pos.ID),
			)
			continue
		}

		updated, err := m.table.Mutate(pos.ID, func(p *domain.Position) error {
			if !p.Status.Live() {
				return domain.ErrPositionClosed
			}
			applyPriceUpdate(p, price)
			return nil
		})
		if err != nil {
			if !errors.Is(err, domain.ErrPositionClosed) && !errors.Is(err, domain.ErrNotFound) {
				m.logger.Warn("price update failed",
					slog.String("position_id", pos.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		m.publishUpdate(ctx, updated)

		sig := m.eval.Evaluate(&updated, price, now)
		if sig == nil {
			continue
		}
		m.enqueue(*sig)
	}
	m.stats.RecordTick()
}

// enqueue pushes a signal without ever blocking the tick. If the executor is
// so far behind that the queue is full, the signal is dropped and the
// condition re-fires on a later tick.
func (m *MonitorLoop) enqueue(sig domain.ExitSignal) {
	if !m.pending.tryMark(sig.PositionID) {
		return
	}
	select {
	case m.signals <- sig:
		m.logger.Info("exit signal enqueued",
			slog.String("signal_id", sig.ID),
			slog.String("position_id", sig.PositionID),
			slog.String("reason", string(sig.Reason)),
			slog.Float64("price", sig.Price),
			slog.Float64("exit_pct", sig.ExitPercent),
		)
	default:
		m.pending.clear(sig.PositionID)
		m.logger.Error("exit signal queue full, dropping signal",
			slog.String("signal_id", sig.ID),
			slog.String("position_id", sig.PositionID),
			slog.String("reason", string(sig.Reason)),
		)
	}
}

func (m *MonitorLoop) publishUpdate(ctx context.Context, pos domain.Position) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.PositionEvent{
		Event:     "position_updated",
		Position:  pos,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, "positions", payload); err != nil {
		m.logger.Debug("position update publish failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
