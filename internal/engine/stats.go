package engine

import (
	"sync"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// StatsCollector aggregates exit and PnL counters for the observability
// surface. Counters are monotone for the process lifetime; open/closed counts
// and unrealized PnL are derived from the table at snapshot time.
type StatsCollector struct {
	mu          sync.Mutex
	exitCounts  map[domain.ExitReason]int64
	failedExits int64
	feedErrors  int64
	ticks       int64
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{exitCounts: make(map[domain.ExitReason]int64)}
}

// RecordExit counts one executed exit and updates the prometheus series.
func (s *StatsCollector) RecordExit(pos domain.Position, reason domain.ExitReason, pnl float64) {
	s.mu.Lock()
	s.exitCounts[reason]++
	s.mu.Unlock()

	mtxExits.WithLabelValues(string(reason), string(pos.Direction)).Inc()
	mtxRealizedPnL.Add(pnl)
}

// RecordFailedExit counts one exit order that exhausted its retries.
func (s *StatsCollector) RecordFailedExit() {
	s.mu.Lock()
	s.failedExits++
	s.mu.Unlock()
	mtxFailedExits.Inc()
}

// RecordFeedError counts one skipped tick due to a feed failure.
func (s *StatsCollector) RecordFeedError() {
	s.mu.Lock()
	s.feedErrors++
	s.mu.Unlock()
	mtxFeedErrors.Inc()
}

// RecordTick counts one completed monitoring pass.
func (s *StatsCollector) RecordTick() {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

// SeedExitCounts restores per-reason counters from a recovered snapshot.
func (s *StatsCollector) SeedExitCounts(counts map[domain.ExitReason]int64) {
	if len(counts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for reason, n := range counts {
		s.exitCounts[reason] += n
	}
}

// ExitCounts returns a copy of the per-reason exit counters.
func (s *StatsCollector) ExitCounts() map[domain.ExitReason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ExitReason]int64, len(s.exitCounts))
	for k, v := range s.exitCounts {
		out[k] = v
	}
	return out
}

// Snapshot combines the running counters with the table's current state into
// a read-only stats view. It also refreshes the position gauges.
func (s *StatsCollector) Snapshot(table *PositionTable) domain.StatsSnapshot {
	all := table.List()

	snap := domain.StatsSnapshot{
		TotalPositions: len(all),
		ExitCounts:     s.ExitCounts(),
		GeneratedAt:    time.Now().UTC(),
	}
	for _, p := range all {
		switch {
		case p.Status.Live():
			snap.OpenPositions++
			snap.UnrealizedPnL += p.UnrealizedPnL
		case p.Status == domain.StatusClosed:
			snap.ClosedPositions++
		case p.Status == domain.StatusError:
			snap.ErrorPositions++
		}
		snap.RealizedPnL += p.RealizedPnL
	}

	s.mu.Lock()
	snap.FailedExits = s.failedExits
	s.mu.Unlock()

	mtxOpenPositions.Set(float64(snap.OpenPositions))
	mtxUnrealizedPnL.Set(snap.UnrealizedPnL)
	return snap
}
