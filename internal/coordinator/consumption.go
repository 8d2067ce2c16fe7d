package coordinator

import (
	"math"
	"time"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

const keepReadings = 24

// clampDelta returns cur-prev rounded to places, and whether it had to be
// clamped because the index went backwards.
func clampDelta(cur, prev float64, places int) (float64, bool) {
	d := round(cur-prev, places)
	if d < 0 {
		return 0, true
	}
	return d, false
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// readingAtOrBefore returns the latest reading taken at or before target.
// Readings without a parsable timestamp are skipped.
func readingAtOrBefore(readings []models.Reading, target time.Time) (models.Reading, bool) {
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if r.Time.IsZero() {
			continue
		}
		if !r.Time.After(target) {
			return r, true
		}
	}
	return models.Reading{}, false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns Monday midnight of the week containing t.
func startOfWeek(t time.Time) time.Time {
	sinceMonday := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -sinceMonday)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func sinceBoundary(readings []models.Reading, current float64, boundary time.Time) float64 {
	start, ok := readingAtOrBefore(readings, boundary)
	if !ok {
		return 0
	}
	d, _ := clampDelta(current, start.Index, 3)
	return d
}

// buildSnapshot derives every published value from one fetch. prev is the
// index seen on the previous successful cycle, nil when there is none.
func buildSnapshot(u *models.Usage, prev *float64, leakThreshold float64, now time.Time) (*models.Snapshot, bool) {
	snap := &models.Snapshot{
		Average:       u.Average,
		Median:        u.Median,
		TotalReadings: len(u.Readings),
		FetchedAt:     now,
	}
	if len(u.Readings) == 0 {
		snap.Empty = true
		return snap, false
	}

	last := u.Readings[len(u.Readings)-1]
	snap.Index = last.Index
	snap.ReadingTime = last.Time
	snap.RawTime = last.RawTime
	snap.MeterSerial = last.Serial

	var clamped bool
	if prev != nil {
		snap.DailyDelta, clamped = clampDelta(last.Index, *prev, 4)
	}

	if len(u.Readings) >= 2 {
		snap.Hourly, _ = clampDelta(last.Index, u.Readings[len(u.Readings)-2].Index, 4)
	}
	snap.Today = sinceBoundary(u.Readings, last.Index, startOfDay(now))
	snap.Weekly = sinceBoundary(u.Readings, last.Index, startOfWeek(now))
	snap.Monthly = sinceBoundary(u.Readings, last.Index, startOfMonth(now))
	snap.LeakDetected = snap.Hourly > leakThreshold

	tail := u.Readings
	if len(tail) > keepReadings {
		tail = tail[len(tail)-keepReadings:]
	}
	snap.Readings = append([]models.Reading(nil), tail...)

	return snap, clamped
}
