// Package coordinator owns the fetch/update cycle and the latest snapshot.
//
// A Coordinator performs one provider call per Refresh, derives the published
// values and swaps the snapshot as a whole, so readers never observe values
// from two different cycles. After an authentication failure it stops calling
// the provider until UpdateToken installs a working token.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/api"
	"github.com/tejusbharadwaj/apavital/internal/models"
)

var ErrInvalidToken = errors.New("token must not be empty")

// UsageFetcher is implemented by api.UsageClient.
type UsageFetcher interface {
	FetchUsage(ctx context.Context, creds api.Credentials) (*models.Usage, error)
	Validate(ctx context.Context, creds api.Credentials) error
}

// Observer is notified after every cycle. snap is nil when err is set.
type Observer interface {
	Observe(ctx context.Context, snap *models.Snapshot, err error)
}

// Options configures a Coordinator.
type Options struct {
	Credentials    api.Credentials
	LeakThreshold  float64
	UpdateInterval time.Duration
	// PersistToken stores a token accepted by UpdateToken. Optional.
	PersistToken func(token string) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// Diagnostics mirrors the state exposed on the diagnostics endpoint.
type Diagnostics struct {
	ClientCode            string     `json:"client_code"`
	APICalls              int        `json:"api_calls_count"`
	LastSuccessfulUpdate  *time.Time `json:"last_successful_update"`
	ConsecutiveErrors     int        `json:"consecutive_errors"`
	LastError             string     `json:"last_error,omitempty"`
	AuthFailed            bool       `json:"auth_failed"`
	UpdateIntervalMinutes float64    `json:"update_interval_minutes"`
	LeakThreshold         float64    `json:"leak_threshold"`
}

type Coordinator struct {
	fetcher UsageFetcher
	logger  *logrus.Logger
	opts    Options

	// updateMu serialises Refresh and UpdateToken.
	updateMu sync.Mutex

	mu         sync.RWMutex
	creds      api.Credentials
	snapshot   *models.Snapshot
	available  bool
	authFailed bool
	prevIndex  *float64
	diag       Diagnostics
	observers  []Observer
}

func New(fetcher UsageFetcher, opts Options, logger *logrus.Logger) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		fetcher: fetcher,
		logger:  logger,
		opts:    opts,
		creds:   opts.Credentials,
	}
}

// AddObserver registers o for cycle notifications.
func (c *Coordinator) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SeedIndex sets the baseline used for the first daily delta, e.g. the last
// index persisted before a restart. It is ignored once a cycle has succeeded.
func (c *Coordinator) SeedIndex(index float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prevIndex == nil {
		c.prevIndex = &index
	}
}

// Refresh runs one update cycle.
func (c *Coordinator) Refresh(ctx context.Context) (*models.Snapshot, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	if c.authFailed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: waiting for a new token", api.ErrAuthExpired)
	}
	creds := c.creds
	prev := c.prevIndex
	c.diag.APICalls++
	c.mu.Unlock()

	usage, err := c.fetcher.FetchUsage(ctx, creds)
	if err != nil {
		c.fail(ctx, err)
		return nil, err
	}

	now := c.opts.Now()
	snap, clamped := buildSnapshot(usage, prev, c.opts.LeakThreshold, now)
	if clamped {
		c.logger.WithFields(logrus.Fields{
			"index":          snap.Index,
			"previous_index": *prev,
		}).Warn("Meter index decreased, clamping daily consumption to zero")
	}
	if snap.LeakDetected {
		c.logger.WithFields(logrus.Fields{
			"hourly_consumption": snap.Hourly,
			"threshold":          c.opts.LeakThreshold,
		}).Warn("Potential water leak detected")
	}

	c.mu.Lock()
	c.snapshot = snap
	c.available = true
	if !snap.Empty {
		idx := snap.Index
		c.prevIndex = &idx
	}
	c.diag.LastSuccessfulUpdate = &now
	c.diag.ConsecutiveErrors = 0
	c.diag.LastError = ""
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"client_code": creds.MaskedClientCode(),
		"index":       snap.Index,
		"daily_delta": snap.DailyDelta,
		"readings":    snap.TotalReadings,
	}).Info("Updated water usage")

	for _, o := range observers {
		o.Observe(ctx, snap, nil)
	}
	return snap, nil
}

func (c *Coordinator) fail(ctx context.Context, err error) {
	c.mu.Lock()
	c.available = false
	c.diag.ConsecutiveErrors++
	c.diag.LastError = err.Error()
	if errors.Is(err, api.ErrAuthExpired) {
		c.authFailed = true
	}
	observers := append([]Observer(nil), c.observers...)
	masked := c.creds.MaskedClientCode()
	c.mu.Unlock()

	entry := c.logger.WithError(err).WithField("client_code", masked)
	if errors.Is(err, api.ErrAuthExpired) {
		entry.Error("Apavital token expired, reconfigure the token to resume polling")
	} else {
		entry.Warn("Failed to fetch water usage")
	}

	for _, o := range observers {
		o.Observe(ctx, nil, err)
	}
}

// Snapshot returns the latest snapshot. ok is false when no cycle has
// succeeded yet or the most recent cycle failed.
func (c *Coordinator) Snapshot() (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.available || c.snapshot == nil {
		return nil, false
	}
	return c.snapshot, true
}

// AuthFailed reports whether polling is paused on an expired token.
func (c *Coordinator) AuthFailed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authFailed
}

// UpdateToken validates token against the provider, persists it and resumes
// polling. The current snapshot is left untouched.
func (c *Coordinator) UpdateToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	creds.Token = token

	if err := c.fetcher.Validate(ctx, creds); err != nil {
		return err
	}
	if c.opts.PersistToken != nil {
		if err := c.opts.PersistToken(token); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
	}

	c.mu.Lock()
	c.creds = creds
	c.authFailed = false
	c.mu.Unlock()

	c.logger.WithField("client_code", creds.MaskedClientCode()).Info("Apavital token updated")
	return nil
}

// Diagnostics returns a copy of the coordinator's counters.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.diag
	d.ClientCode = c.creds.MaskedClientCode()
	d.AuthFailed = c.authFailed
	d.UpdateIntervalMinutes = c.opts.UpdateInterval.Minutes()
	d.LeakThreshold = c.opts.LeakThreshold
	if d.LastSuccessfulUpdate != nil {
		t := *d.LastSuccessfulUpdate
		d.LastSuccessfulUpdate = &t
	}
	return d
}
