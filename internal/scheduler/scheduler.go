package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

// Refresher runs one update cycle.
type Refresher interface {
	Refresh(ctx context.Context) (*models.Snapshot, error)
}

type Scheduler struct {
	ctx       context.Context
	refresher Refresher
	logger    *logrus.Logger
	cron      *cron.Cron
	interval  time.Duration
	timeout   time.Duration
}

// NewScheduler polls refresher every interval. Each cycle is bounded by
// timeout; overlapping cycles are skipped.
func NewScheduler(ctx context.Context, refresher Refresher, interval, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		ctx:       ctx,
		refresher: refresher,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		interval:  interval,
		timeout:   timeout,
	}
}

// Start runs a first refresh immediately, then schedules the periodic one.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.collectData()

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.collectData)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// collectData runs one refresh; failures are logged and left to the next tick
func (s *Scheduler) collectData() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.refresher.Refresh(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled refresh failed")
	}
}

// Stop the scheduler and wait for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
