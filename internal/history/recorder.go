// Package history stores meter readings and remembers, in an LRU keyed by
// serial and time, which ones were already written.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/apavital/internal/database"
	"github.com/tejusbharadwaj/apavital/internal/models"
)

const defaultSeenSize = 512

type Recorder struct {
	repo   database.ReadingRepository
	seen   *lru.Cache
	logger *logrus.Logger
}

func NewRecorder(repo database.ReadingRepository, size int, logger *logrus.Logger) (*Recorder, error) {
	if size == 0 {
		size = defaultSeenSize
	}
	seen, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Recorder{repo: repo, seen: seen, logger: logger}, nil
}

func readingKey(r models.Reading) string {
	return fmt.Sprintf("%s|%d", r.Serial, r.Time.Unix())
}

// Record stores readings not seen before. Readings without a parsable
// timestamp cannot be keyed and are skipped.
func (r *Recorder) Record(ctx context.Context, readings []models.Reading) (int, error) {
	var pending []models.Reading
	for _, rd := range readings {
		if rd.Time.IsZero() || r.seen.Contains(readingKey(rd)) {
			continue
		}
		pending = append(pending, rd)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	inserted, err := r.repo.InsertReadings(ctx, pending)
	if err != nil {
		return 0, err
	}
	for _, rd := range pending {
		r.seen.Add(readingKey(rd), struct{}{})
	}
	return inserted, nil
}

// Observe persists the readings of every successful cycle.
func (r *Recorder) Observe(ctx context.Context, snap *models.Snapshot, err error) {
	if err != nil || snap == nil || snap.Empty {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	n, err := r.Record(ctx, snap.Readings)
	if err != nil {
		r.logger.WithError(err).Error("Failed to store readings")
		return
	}
	if n > 0 {
		r.logger.WithField("inserted", n).Debug("Stored readings")
	}
}

// Baseline returns the last stored index, used to seed the daily delta
// after a restart. ok is false when nothing has been stored yet.
func (r *Recorder) Baseline(ctx context.Context) (float64, bool, error) {
	last, err := r.repo.LatestReading(ctx, "")
	if errors.Is(err, database.ErrNoReadings) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return last.Index, true, nil
}
