package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// RetryPolicy is the named policy for exit orders that fail at the broker.
// Every attempt goes through bounded exponential backoff; when the budget is
// exhausted the position is left live, a failed-exit alert is raised, and the
// monitor re-triggers the condition on a later tick. MaxTries of 0 or 1 means
// a single attempt, no retry.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries twice after the first failure, starting at half
// a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Alerter receives operator-facing alerts from the executor. Implemented by
// the notify package; nil disables alerting.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ExitExecutor is the single consumer of the exit signal queue. It places
// exit orders through the paper or live gateway, applies confirmed fills to
// the position table, persists a recovery snapshot, and publishes execution
// events. Order placement may block on the network without ever stalling the
// monitor, and per-position ordering is preserved because one worker drains
// the queue.
type ExitExecutor struct {
	table    *PositionTable
	signals  <-chan domain.ExitSignal
	pending  *pendingSet
	paper    domain.OrderGateway
	live     domain.OrderGateway
	recovery *RecoveryManager
	stats    *StatsCollector
	bus      domain.EventBus
	exitLog  domain.ExitLogStore
	alerter  Alerter
	dedup    *dedup

	retry        RetryPolicy
	orderTimeout time.Duration
	cleanupEvery time.Duration
	logger       *slog.Logger
}

// NewExitExecutor creates an ExitExecutor. bus, exitLog, and alerter may be
// nil; live may be nil when only paper positions are admitted.
func NewExitExecutor(
	table *PositionTable,
	signals <-chan domain.ExitSignal,
	pending *pendingSet,
	paper, live domain.OrderGateway,
	recovery *RecoveryManager,
	stats *StatsCollector,
	bus domain.EventBus,
	exitLog domain.ExitLogStore,
	alerter Alerter,
	retry RetryPolicy,
	orderTimeout time.Duration,
	logger *slog.Logger,
) *ExitExecutor {
	if orderTimeout <= 0 {
		orderTimeout = 10 * time.Second
	}
	return &ExitExecutor{
		table:        table,
		signals:      signals,
		pending:      pending,
		paper:        paper,
		live:         live,
		recovery:     recovery,
		stats:        stats,
		bus:          bus,
		exitLog:      exitLog,
		alerter:      alerter,
		dedup:        newDedup(2 * time.Minute),
		retry:        retry,
		orderTimeout: orderTimeout,
		cleanupEvery: 30 * time.Second,
		logger:       logger.With(slog.String("component", "exit_executor")),
	}
}

// Run processes signals until the context is cancelled, then drains any
// signals already buffered so in-flight exits are not silently dropped.
func (e *ExitExecutor) Run(ctx context.Context) error {
	e.logger.Info("exit executor started")
	defer e.logger.Info("exit executor stopped")

	cleanup := time.NewTicker(e.cleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()
		case sig, ok := <-e.signals:
			if !ok {
				return nil
			}
			e.process(ctx, sig)
		case <-cleanup.C:
			e.dedup.cleanup()
		}
	}
}

// process handles a single exit signal end to end.
func (e *ExitExecutor) process(ctx context.Context, sig domain.ExitSignal) {
	defer e.pending.clear(sig.PositionID)

	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("position_id", sig.PositionID),
		slog.String("reason", string(sig.Reason)),
	)

	if e.dedup.isDuplicate(sig.ID) {
		log.Debug("signal deduplicated, skipping")
		return
	}

	pos, err := e.table.Get(sig.PositionID)
	if err != nil {
		log.Warn("position gone, skipping signal", slog.String("error", err.Error()))
		return
	}
	if !pos.Status.Live() {
		log.Debug("position no longer live, skipping signal", slog.String("status", string(pos.Status)))
		return
	}

	exitQty := int(math.Floor(float64(pos.Quantity) * sig.ExitPercent / 100))
	if exitQty <= 0 {
		log.Debug("computed exit quantity is zero, skipping",
			slog.Int("remaining", pos.Quantity),
			slog.Float64("exit_pct", sig.ExitPercent),
		)
		return
	}

	result, err := e.placeOrder(ctx, pos, exitQty, sig)
	if err != nil {
		// The position stays live and unchanged; the monitor re-triggers the
		// condition on a later tick.
		e.stats.RecordFailedExit()
		log.Error("exit order failed after retries",
			slog.Int("quantity", exitQty),
			slog.String("error", err.Error()),
		)
		e.publishEvent(ctx, "exit_failed", sig.Reason, pos)
		e.alert(ctx, "exit_failed", "Exit order failed",
			fmt.Sprintf("%s %s qty=%d reason=%s: %v", pos.Symbol, pos.Direction, exitQty, sig.Reason, err))
		return
	}

	fillPrice := result.FillPrice
	if fillPrice <= 0 {
		fillPrice = sig.Price
	}

	updated, err := e.table.ApplyExit(pos.ID, ExitFill{
		Quantity:   exitQty,
		Price:      fillPrice,
		Reason:     sig.Reason,
		OrderID:    result.OrderID,
		LevelIndex: sig.LevelIndex,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPositionClosed) {
			log.Warn("fill raced with a concurrent close, exit not applied twice")
			return
		}
		log.Error("apply exit failed", slog.String("error", err.Error()))
		return
	}

	pnl := updated.PartialExits[len(updated.PartialExits)-1].PnL
	e.stats.RecordExit(updated, sig.Reason, pnl)

	if err := e.recovery.Snapshot(ctx); err != nil {
		log.Warn("post-exit snapshot failed", slog.String("error", err.Error()))
	}

	e.recordExit(ctx, updated, sig, exitQty, fillPrice, result.OrderID, pnl)
	e.publishEvent(ctx, "exit_executed", sig.Reason, updated)
	e.alert(ctx, "exit_executed", "Exit executed",
		fmt.Sprintf("%s %s qty=%d @ %.2f reason=%s pnl=%.2f", updated.Symbol, updated.Direction, exitQty, fillPrice, sig.Reason, pnl))

	log.Info("exit executed",
		slog.Int("quantity", exitQty),
		slog.Float64("fill_price", fillPrice),
		slog.Float64("pnl", pnl),
		slog.String("status", string(updated.Status)),
		slog.String("order_id", result.OrderID),
	)
}

// placeOrder routes the order to the paper or live gateway and applies the
// retry policy. Each attempt gets its own bounded timeout so a hung broker
// cannot stall the executor indefinitely.
func (e *ExitExecutor) placeOrder(ctx context.Context, pos domain.Position, qty int, sig domain.ExitSignal) (domain.ExitResult, error) {
	gw := e.live
	if pos.PaperTrade {
		gw = e.paper
	}
	if gw == nil {
		return domain.ExitResult{}, fmt.Errorf("executor: no gateway for position %s (paper=%v): %w",
			pos.ID, pos.PaperTrade, domain.ErrExecutionFailed)
	}

	op := func() (domain.ExitResult, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
		defer cancel()
		res, err := gw.Exit(attemptCtx, pos, qty, sig.Reason)
		if err != nil && ctx.Err() != nil {
			// Shutdown in progress: do not keep retrying.
			return domain.ExitResult{}, backoff.Permanent(err)
		}
		return res, err
	}

	if e.retry.MaxTries <= 1 {
		return op()
	}

	bo := backoff.NewExponentialBackOff()
	if e.retry.InitialInterval > 0 {
		bo.InitialInterval = e.retry.InitialInterval
	}
	if e.retry.MaxInterval > 0 {
		bo.MaxInterval = e.retry.MaxInterval
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.retry.MaxTries),
	)
}

// drain processes signals already buffered in the channel after cancellation,
// each under a short-lived context so shutdown cannot hang on a dead broker.
func (e *ExitExecutor) drain() {
	for {
		select {
		case sig, ok := <-e.signals:
			if !ok {
				return
			}
			e.logger.Warn("draining exit signal after shutdown",
				slog.String("signal_id", sig.ID),
				slog.String("position_id", sig.PositionID),
			)
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, sig)
			cancel()
		default:
			return
		}
	}
}

func (e *ExitExecutor) recordExit(ctx context.Context, pos domain.Position, sig domain.ExitSignal, qty int, price float64, orderID string, pnl float64) {
	if e.exitLog == nil {
		return
	}
	rec := domain.ExitRecord{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Direction:  pos.Direction,
		Reason:     sig.Reason,
		Quantity:   qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		PnL:        pnl,
		OrderID:    orderID,
		PaperTrade: pos.PaperTrade,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.exitLog.Insert(ctx, rec); err != nil {
		e.logger.Warn("exit record insert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *ExitExecutor) publishEvent(ctx context.Context, event string, reason domain.ExitReason, pos domain.Position) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.PositionEvent{
		Event:     event,
		Reason:    reason,
		Position:  pos,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, "exits", payload); err != nil {
		e.logger.Debug("exit event publish failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, "exits:stream", payload); err != nil {
		e.logger.Debug("exit event stream append failed", slog.String("error", err.Error()))
	}
}

func (e *ExitExecutor) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.Debug("alert dispatch failed", slog.String("error", err.Error()))
	}
}
