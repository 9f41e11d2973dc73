package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// Options is the explicit engine configuration, injected at construction.
type Options struct {
	MonitorInterval time.Duration
	FeedTimeout     time.Duration
	OrderTimeout    time.Duration
	QueueSize       int
	// MarketClose is the square-off wall-clock cutoff ("15:20"); empty
	// disables the market-close rule.
	MarketClose string
	Timezone    string
	Retry       RetryPolicy
}

// Deps bundles the engine's external collaborators. PaperGateway and Feed are
// required; the rest may be nil. When LiveGateway is nil the engine refuses
// to admit non-paper positions.
type Deps struct {
	Feed         domain.PriceFeed
	PaperGateway domain.OrderGateway
	LiveGateway  domain.OrderGateway
	Snapshots    domain.SnapshotStore
	Archiver     domain.SnapshotArchiver
	ExitLog      domain.ExitLogStore
	Bus          domain.EventBus
	Alerter      Alerter
}

// Engine is the position monitoring and exit-strategy execution core. It owns
// the position table, the monitor loop, and the exit executor, and exposes
// the inbound control surface consumed by the order/strategy layer.
type Engine struct {
	opts        Options
	table       *PositionTable
	eval        *Evaluator
	monitor     *MonitorLoop
	executor    *ExitExecutor
	recovery    *RecoveryManager
	stats       *StatsCollector
	pending     *pendingSet
	signals     chan domain.ExitSignal
	bus         domain.EventBus
	liveEnabled bool
	logger      *slog.Logger
}

// New wires an Engine from options and dependencies.
func New(opts Options, deps Deps, logger *slog.Logger) (*Engine, error) {
	if deps.Feed == nil {
		return nil, fmt.Errorf("engine: price feed is required")
	}
	if deps.PaperGateway == nil {
		return nil, fmt.Errorf("engine: paper gateway is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("engine: snapshot store is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	var marketClosed func(time.Time) bool
	if opts.MarketClose != "" {
		tz := opts.Timezone
		if tz == "" {
			tz = "UTC"
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("engine: load timezone %q: %w", tz, err)
		}
		marketClosed, err = MarketCloseCutoff(opts.MarketClose, loc)
		if err != nil {
			return nil, fmt.Errorf("engine: parse market close %q: %w", opts.MarketClose, err)
		}
	}

	table := NewPositionTable(logger)
	stats := NewStatsCollector()
	pending := newPendingSet()
	signals := make(chan domain.ExitSignal, opts.QueueSize)
	eval := NewEvaluator(marketClosed)
	recovery := NewRecoveryManager(table, deps.Snapshots, deps.Archiver, stats, logger)

	e := &Engine{
		opts:        opts,
		table:       table,
		eval:        eval,
		recovery:    recovery,
		stats:       stats,
		pending:     pending,
		signals:     signals,
		bus:         deps.Bus,
		liveEnabled: deps.LiveGateway != nil,
		logger:      logger.With(slog.String("component", "engine")),
	}
	e.monitor = NewMonitorLoop(table, deps.Feed, eval, signals, pending, deps.Bus, stats,
		opts.MonitorInterval, opts.FeedTimeout, logger)
	e.executor = NewExitExecutor(table, signals, pending, deps.PaperGateway, deps.LiveGateway,
		recovery, stats, deps.Bus, deps.ExitLog, deps.Alerter, opts.Retry, opts.OrderTimeout, logger)
	return e, nil
}

// Run restores state from the latest snapshot, then runs the monitor loop and
// the exit executor until the context is cancelled. On shutdown the in-flight
// tick finishes, the executor drains buffered signals, and one final snapshot
// is written before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if restored, err := e.recovery.Restore(ctx); err != nil {
		// Degraded start: empty store, loudly logged inside Restore.
		e.logger.Warn("recovery degraded, continuing with empty store",
			slog.String("error", err.Error()),
		)
	} else if restored > 0 {
		e.logger.Info("resumed monitoring recovered positions", slog.Int("positions", restored))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.monitor.Run(gctx) })
	g.Go(func() error { return e.executor.Run(gctx) })
	err := g.Wait()

	snapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if snapErr := e.recovery.Snapshot(snapCtx); snapErr != nil {
		e.logger.Error("final snapshot failed", slog.String("error", snapErr.Error()))
	}
	return err
}

// AddPosition validates and admits a new position after a confirmed entry
// fill, snapshots, and returns the position id. Broken entries (non-positive
// quantity, stop loss on the wrong side of entry) are rejected instead of
// being admitted.
func (e *Engine) AddPosition(ctx context.Context, entry domain.EntryOrder) (string, error) {
	if strings.TrimSpace(entry.Symbol) == "" {
		return "", fmt.Errorf("engine: add position: symbol is empty: %w", domain.ErrInvalidEntry)
	}
	if entry.Quantity <= 0 {
		return "", fmt.Errorf("engine: add position: quantity %d must be positive: %w",
			entry.Quantity, domain.ErrInvalidEntry)
	}
	if entry.Direction != domain.DirectionLong && entry.Direction != domain.DirectionShort {
		return "", fmt.Errorf("engine: add position: direction %q: %w", entry.Direction, domain.ErrInvalidEntry)
	}
	// A live position with no live gateway could never be exited; every
	// signal would fail while the position sits open and unprotected.
	// Refuse it at the door instead.
	if !entry.PaperTrade && !e.liveEnabled {
		return "", fmt.Errorf("engine: add position: live entry for %s without a live gateway: %w",
			entry.Symbol, domain.ErrLiveDisabled)
	}
	if err := entry.ExitStrategy.Validate(entry.Direction, entry.EntryPrice); err != nil {
		return "", fmt.Errorf("engine: add position: %w", err)
	}

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	entryTime := entry.EntryTime
	if entryTime.IsZero() {
		entryTime = time.Now().UTC()
	}

	pos := domain.Position{
		ID:               id,
		Symbol:           entry.Symbol,
		Strategy:         entry.Strategy,
		BotType:          entry.BotType,
		Direction:        entry.Direction,
		Quantity:         entry.Quantity,
		OriginalQuantity: entry.Quantity,
		EntryPrice:       entry.EntryPrice,
		CurrentPrice:     entry.EntryPrice,
		EntryTime:        entryTime,
		LastUpdate:       time.Now().UTC(),
		HighestPrice:     entry.EntryPrice,
		LowestPrice:      entry.EntryPrice,
		ExitStrategy:     entry.ExitStrategy.Clone(),
		Status:           domain.StatusOpen,
		LevelsConsumed:   make([]bool, len(entry.ExitStrategy.PartialExitLevels)),
		PaperTrade:       entry.PaperTrade,
	}
	if err := e.table.Add(pos); err != nil {
		return "", err
	}

	if err := e.recovery.Snapshot(ctx); err != nil {
		e.logger.Warn("post-add snapshot failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
	}
	e.publish(ctx, "positions", domain.PositionEvent{
		Event:     "position_added",
		Position:  pos,
		Timestamp: time.Now().UTC(),
	})

	e.logger.Info("position admitted",
		slog.String("position_id", id),
		slog.String("symbol", pos.Symbol),
		slog.String("direction", string(pos.Direction)),
		slog.Int("quantity", pos.Quantity),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Bool("paper", pos.PaperTrade),
	)
	return id, nil
}

// Position returns a copy of one position.
func (e *Engine) Position(id string) (domain.Position, error) {
	return e.table.Get(id)
}

// Positions returns copies of positions, optionally filtered by status.
func (e *Engine) Positions(statuses ...domain.TradeStatus) []domain.Position {
	return e.table.List(statuses...)
}

// ManualExit enqueues an operator-requested exit for pct of the remaining
// quantity at the current price.
func (e *Engine) ManualExit(ctx context.Context, id string, pct float64) error {
	if pct <= 0 || pct > 100 {
		return fmt.Errorf("engine: manual exit %s: percentage %.2f out of (0,100]: %w",
			id, pct, domain.ErrInvalidEntry)
	}
	pos, err := e.table.Get(id)
	if err != nil {
		return err
	}
	if !pos.Status.Live() {
		return fmt.Errorf("engine: manual exit %s: %w", id, domain.ErrPositionClosed)
	}
	price := pos.CurrentPrice
	if price <= 0 {
		price = pos.EntryPrice
	}
	return e.enqueue(domain.ExitSignal{
		ID:          uuid.New().String(),
		PositionID:  id,
		Symbol:      pos.Symbol,
		Reason:      domain.ReasonManual,
		Price:       price,
		ExitPercent: pct,
		LevelIndex:  -1,
		TriggeredAt: time.Now().UTC(),
	})
}

// MoveToBreakeven tightens the stop loss to the entry price.
func (e *Engine) MoveToBreakeven(ctx context.Context, id string) error {
	_, err := e.table.Mutate(id, func(p *domain.Position) error {
		if !p.Status.Live() {
			return fmt.Errorf("engine: breakeven %s: %w", id, domain.ErrPositionClosed)
		}
		p.ExitStrategy.StopLoss = p.EntryPrice
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.recovery.Snapshot(ctx); err != nil {
		e.logger.Warn("post-breakeven snapshot failed", slog.String("error", err.Error()))
	}
	e.logger.Info("stop moved to breakeven", slog.String("position_id", id))
	return nil
}

// EnableTrailingStop arms (or re-arms) the trailing stop with the given
// distance. trigger, when non-zero, defers arming until price crosses it.
func (e *Engine) EnableTrailingStop(ctx context.Context, id string, distance, trigger float64) error {
	if distance <= 0 {
		return fmt.Errorf("engine: enable trailing stop %s: distance must be positive: %w",
			id, domain.ErrInvalidStrategy)
	}
	_, err := e.table.Mutate(id, func(p *domain.Position) error {
		if !p.Status.Live() {
			return fmt.Errorf("engine: enable trailing stop %s: %w", id, domain.ErrPositionClosed)
		}
		p.ExitStrategy.TrailingStopEnabled = true
		p.ExitStrategy.TrailingStopDistance = distance
		p.ExitStrategy.TrailingStopTrigger = trigger
		updateTrailingStop(p)
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.recovery.Snapshot(ctx); err != nil {
		e.logger.Warn("post-trailing snapshot failed", slog.String("error", err.Error()))
	}
	e.logger.Info("trailing stop enabled",
		slog.String("position_id", id),
		slog.Float64("distance", distance),
		slog.Float64("trigger", trigger),
	)
	return nil
}

// EmergencyExitAll enqueues a full-quantity exit for every live position and
// returns the number of signals enqueued. The normal executor path applies
// each exit.
func (e *Engine) EmergencyExitAll(ctx context.Context, reason string) int {
	live := e.table.Live()
	enqueued := 0
	for _, pos := range live {
		price := pos.CurrentPrice
		if price <= 0 {
			price = pos.EntryPrice
		}
		err := e.enqueue(domain.ExitSignal{
			ID:          uuid.New().String(),
			PositionID:  pos.ID,
			Symbol:      pos.Symbol,
			Reason:      domain.ReasonEmergency,
			Price:       price,
			ExitPercent: 100,
			LevelIndex:  -1,
			TriggeredAt: time.Now().UTC(),
		})
		if err != nil {
			e.logger.Error("emergency exit enqueue failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}
	e.logger.Warn("emergency exit requested",
		slog.String("reason", reason),
		slog.Int("live_positions", len(live)),
		slog.Int("enqueued", enqueued),
	)
	return enqueued
}

// Stats returns the running monitoring counters.
func (e *Engine) Stats() domain.StatsSnapshot {
	return e.stats.Snapshot(e.table)
}

// Tick forces one immediate monitoring pass; used by tests and the manual
// refresh endpoint.
func (e *Engine) Tick(ctx context.Context) {
	e.monitor.Tick(ctx)
}

func (e *Engine) enqueue(sig domain.ExitSignal) error {
	if !e.pending.tryMark(sig.PositionID) {
		return fmt.Errorf("engine: position %s already has an exit in flight: %w",
			sig.PositionID, domain.ErrAlreadyExists)
	}
	select {
	case e.signals <- sig:
		return nil
	default:
		e.pending.clear(sig.PositionID)
		return fmt.Errorf("engine: enqueue %s: %w", sig.PositionID, domain.ErrQueueFull)
	}
}

func (e *Engine) publish(ctx context.Context, channel string, evt domain.PositionEvent) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Debug("event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
