package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

func reading(t time.Time, idx float64) models.Reading {
	return models.Reading{Time: t, Index: idx, Serial: "AB123"}
}

func TestBuildSnapshotPeriods(t *testing.T) {
	// Wednesday 17 Jan 2024, 15:30.
	now := fixedNow
	readings := []models.Reading{
		reading(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), 90.0),
		reading(time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC), 95.0), // Sunday before the week start
		reading(time.Date(2024, 1, 16, 23, 0, 0, 0, time.UTC), 98.0),
		reading(time.Date(2024, 1, 17, 14, 0, 0, 0, time.UTC), 99.9),
		reading(time.Date(2024, 1, 17, 15, 0, 0, 0, time.UTC), 100.25),
	}
	u := &models.Usage{Readings: readings, Average: 0.2, Median: 0.1}

	snap, clamped := buildSnapshot(u, nil, 0.3, now)
	assert.False(t, clamped)
	assert.False(t, snap.Empty)
	assert.InDelta(t, 100.25, snap.Index, 1e-9)
	assert.Equal(t, 0.0, snap.DailyDelta)
	assert.InDelta(t, 0.35, snap.Hourly, 1e-9)
	assert.InDelta(t, 2.25, snap.Today, 1e-9)
	assert.InDelta(t, 5.25, snap.Weekly, 1e-9)
	assert.InDelta(t, 10.25, snap.Monthly, 1e-9)
	assert.True(t, snap.LeakDetected)
	assert.Equal(t, 5, snap.TotalReadings)
	assert.Equal(t, now, snap.FetchedAt)
}

func TestBuildSnapshotWithoutBoundaryReadings(t *testing.T) {
	readings := []models.Reading{
		reading(fixedNow.Add(-time.Hour), 10.0),
		reading(fixedNow, 10.05),
	}
	snap, _ := buildSnapshot(&models.Usage{Readings: readings}, nil, 0.1, fixedNow)

	assert.Equal(t, 0.0, snap.Today)
	assert.Equal(t, 0.0, snap.Weekly)
	assert.Equal(t, 0.0, snap.Monthly)
	assert.InDelta(t, 0.05, snap.Hourly, 1e-9)
	assert.False(t, snap.LeakDetected)
}

func TestBuildSnapshotKeepsLastReadings(t *testing.T) {
	var readings []models.Reading
	for i := 0; i < 30; i++ {
		readings = append(readings, reading(fixedNow.Add(time.Duration(i-30)*time.Hour), float64(i)))
	}
	snap, _ := buildSnapshot(&models.Usage{Readings: readings}, nil, 1, fixedNow)

	assert.Len(t, snap.Readings, keepReadings)
	assert.Equal(t, 6.0, snap.Readings[0].Index)
	assert.Equal(t, 30, snap.TotalReadings)
}

func TestClampDelta(t *testing.T) {
	d, clamped := clampDelta(100.5, 100.0, 4)
	assert.Equal(t, 0.5, d)
	assert.False(t, clamped)

	d, clamped = clampDelta(99.0, 100.0, 4)
	assert.Equal(t, 0.0, d)
	assert.True(t, clamped)
}

func TestStartOfWeek(t *testing.T) {
	sunday := time.Date(2024, 1, 21, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), startOfWeek(sunday))

	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, startOfWeek(monday))
}

func TestReadingAtOrBeforeSkipsUnparsedTimes(t *testing.T) {
	readings := []models.Reading{
		reading(time.Date(2024, 1, 16, 23, 0, 0, 0, time.UTC), 1),
		{Index: 2},
	}
	r, ok := readingAtOrBefore(readings, fixedNow)
	assert.True(t, ok)
	assert.Equal(t, 1.0, r.Index)
}
