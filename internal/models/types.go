package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UsageResponse represents the response from the get_usage endpoint
type UsageResponse struct {
	Data    json.RawMessage `json:"data"`
	Average FlexFloat       `json:"avg"`
	Median  FlexFloat       `json:"mid"`
}

// RawReading is one entry of the "data" array as sent by the provider
type RawReading struct {
	Index       *FlexFloat `json:"INDEX_CIT"`
	Time        string     `json:"TIME"`
	MeterSerial string     `json:"METERSERIAL"`
}

// FlexFloat accepts both JSON numbers and numeric strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = FlexFloat(v)
	return nil
}

// Reading is a single cumulative meter reading.
type Reading struct {
	Time    time.Time `json:"time"`
	RawTime string    `json:"raw_time"`
	Index   float64   `json:"index"`
	Serial  string    `json:"serial"`
}

// Usage is the parsed result of one fetch.
type Usage struct {
	Readings []Reading
	Average  float64
	Median   float64
}

// Snapshot holds every value published for one polling cycle.
type Snapshot struct {
	Empty bool `json:"empty"`

	Index       float64   `json:"index"`
	DailyDelta  float64   `json:"daily_delta"`
	ReadingTime time.Time `json:"reading_time"`
	RawTime     string    `json:"raw_time"`
	MeterSerial string    `json:"meter_serial"`

	Hourly  float64 `json:"consumption_hourly"`
	Today   float64 `json:"consumption_today"`
	Weekly  float64 `json:"consumption_weekly"`
	Monthly float64 `json:"consumption_monthly"`

	Average       float64 `json:"average"`
	Median        float64 `json:"median"`
	TotalReadings int     `json:"total_readings"`
	LeakDetected  bool    `json:"leak_detected"`

	Readings  []Reading `json:"readings"`
	FetchedAt time.Time `json:"fetched_at"`
}
