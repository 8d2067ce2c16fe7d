package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

var readingTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
}

// ParseReadingTime parses a provider timestamp. The zero time is returned
// when the value matches none of the known layouts.
func ParseReadingTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range readingTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseReadings(raw []models.RawReading, loc *time.Location) ([]models.Reading, error) {
	readings := make([]models.Reading, 0, len(raw))
	for i, r := range raw {
		if r.Index == nil {
			return nil, fmt.Errorf("%w: reading %d has no INDEX_CIT", ErrMalformedResponse, i)
		}
		t, _ := ParseReadingTime(r.Time, loc)
		readings = append(readings, models.Reading{
			Time:    t,
			RawTime: r.Time,
			Index:   float64(*r.Index),
			Serial:  r.MeterSerial,
		})
	}
	return readings, nil
}
