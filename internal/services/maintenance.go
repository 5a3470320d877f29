package services

import (
	"fmt"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/matchmaking"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Maintainer is the slice of the matchmaking service the scheduler drives.
type Maintainer interface {
	Maintain() matchmaking.MaintenanceReport
}

// MaintenanceService periodically expires overdue ready-checks, evicts stale
// queue entries and prunes finished matches.
type MaintenanceService struct {
	target   Maintainer
	interval time.Duration
	sched    gocron.Scheduler
}

// NewMaintenanceService creates the scheduler without starting it. A nil clock means real time.
func NewMaintenanceService(target Maintainer, interval time.Duration, clock clockwork.Clock) (*MaintenanceService, error) {
	if interval <= 0 {
		interval = time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance scheduler: %w", err)
	}

	s := &MaintenanceService{
		target:   target,
		interval: interval,
		sched:    sched,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.RunOnce),
		gocron.WithName("matchmaking-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	return s, nil
}

// Start begins running the maintenance job in the background.
func (s *MaintenanceService) Start() {
	s.sched.Start()
	logger.Info("maintenance scheduler started", "interval", s.interval.String())
}

// Stop waits for a running pass to finish and stops the scheduler.
func (s *MaintenanceService) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		logger.Warn("maintenance scheduler shutdown failed", "error", err)
		return
	}
	logger.Info("maintenance scheduler stopped")
}

// RunOnce performs a single maintenance pass.
func (s *MaintenanceService) RunOnce() {
	report := s.target.Maintain()
	if report.Expired == 0 && report.Evicted == 0 && report.Pruned == 0 {
		return
	}
	logger.Info("maintenance pass",
		"expired", report.Expired,
		"evicted", report.Evicted,
		"pruned", report.Pruned,
	)
}
