// Package scheduler runs periodic store maintenance on a cron schedule:
// VACUUM and pruning of control events older than the retention window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceStore is the subset of store.Store the sweep needs.
type MaintenanceStore interface {
	Vacuum(ctx context.Context) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Report summarizes one maintenance sweep.
type Report struct {
	RanAt  time.Time
	Pruned int64
}

// Maintenance checks its cron schedule once per interval and sweeps when due.
type Maintenance struct {
	store     MaintenanceStore
	schedule  cron.Schedule
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	next   time.Time
}

// NewMaintenance parses cronExpr (standard five fields) and returns a
// sweeper that prunes events older than retention. A zero retention
// disables pruning.
func NewMaintenance(s MaintenanceStore, cronExpr string, retention time.Duration, logger *slog.Logger) (*Maintenance, error) {
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		store:     s,
		schedule:  schedule,
		retention: retention,
		interval:  60 * time.Second,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether cronExpr is a valid five-field schedule.
func ValidateSchedule(cronExpr string) error {
	if _, err := parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// NextRun computes the next sweep time after from.
func (m *Maintenance) NextRun(from time.Time) time.Time {
	return m.schedule.Next(from)
}

// Start launches the background loop.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return fmt.Errorf("maintenance already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	next := m.schedule.Next(m.now())
	m.next = next
	m.mu.Unlock()

	go m.loop(loopCtx)
	m.logger.Info("maintenance scheduled", slog.Time("next_run", next))
	return nil
}

func (m *Maintenance) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick sweeps when the next run time has passed and schedules the following one.
func (m *Maintenance) tick(ctx context.Context) {
	now := m.now()
	m.mu.Lock()
	due := !m.next.After(now)
	if due {
		m.next = m.schedule.Next(now)
	}
	m.mu.Unlock()
	if !due {
		return
	}
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Error("maintenance sweep failed", slog.String("error", err.Error()))
	}
}

// RunOnce prunes expired events and vacuums the store.
func (m *Maintenance) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{RanAt: m.now()}
	if m.retention > 0 {
		n, err := m.store.PruneEvents(ctx, rep.RanAt.Add(-m.retention))
		if err != nil {
			return rep, fmt.Errorf("prune events: %w", err)
		}
		rep.Pruned = n
	}
	if err := m.store.Vacuum(ctx); err != nil {
		return rep, fmt.Errorf("vacuum: %w", err)
	}
	m.logger.Info("maintenance sweep done", slog.Int64("pruned", rep.Pruned))
	return rep, nil
}

// Stop gracefully shuts down the loop.
func (m *Maintenance) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.logger.Info("maintenance stopped")
	return nil
}
