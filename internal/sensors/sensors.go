// Package sensors describes the entities published for a water meter and
// reads their values from the latest snapshot.
package sensors

import (
	"errors"
	"time"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

const (
	KeyIndex       = "water_index"
	KeyDaily       = "water_daily"
	KeyLastReading = "last_reading"
	KeyMeterSerial = "meter_serial"
	KeyHourly      = "water_hourly"
	KeyToday       = "water_today"
	KeyWeekly      = "water_weekly"
	KeyMonthly     = "water_monthly"
	KeyLeak        = "leak_detected"
)

const unitCubicMeters = "m³"

var ErrUnknownSensor = errors.New("unknown sensor")

// Source provides the latest snapshot; ok is false while values are unavailable.
type Source interface {
	Snapshot() (*models.Snapshot, bool)
}

// Description is the static metadata of one entity.
type Description struct {
	Key              string
	Name             string
	Component        string
	Unit             string
	DeviceClass      string
	StateClass       string
	Icon             string
	EnabledByDefault bool
	Value            func(*models.Snapshot) (any, bool)
}

// State is the value of one entity at a point in time.
type State struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Available   bool   `json:"available"`
	Value       any    `json:"value"`
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
}

func volume(key, name, stateClass, icon string, fn func(*models.Snapshot) float64) Description {
	return Description{
		Key:              key,
		Name:             name,
		Component:        "sensor",
		Unit:             unitCubicMeters,
		DeviceClass:      "water",
		StateClass:       stateClass,
		Icon:             icon,
		EnabledByDefault: true,
		Value: func(s *models.Snapshot) (any, bool) {
			if s.Empty {
				return nil, false
			}
			return fn(s), true
		},
	}
}

// Descriptions lists every published entity. The first four are the core
// meter values.
var Descriptions = []Description{
	volume(KeyIndex, "Water Index", "total_increasing", "mdi:counter",
		func(s *models.Snapshot) float64 { return s.Index }),
	volume(KeyDaily, "Daily Consumption", "total", "mdi:water",
		func(s *models.Snapshot) float64 { return s.DailyDelta }),
	{
		Key:              KeyLastReading,
		Name:             "Last Reading",
		Component:        "sensor",
		DeviceClass:      "timestamp",
		Icon:             "mdi:clock-outline",
		EnabledByDefault: true,
		Value: func(s *models.Snapshot) (any, bool) {
			if s.Empty || s.ReadingTime.IsZero() {
				return nil, false
			}
			return s.ReadingTime.Format(time.RFC3339), true
		},
	},
	{
		Key:       KeyMeterSerial,
		Name:      "Meter Serial",
		Component: "sensor",
		Icon:      "mdi:identifier",
		Value: func(s *models.Snapshot) (any, bool) {
			if s.Empty || s.MeterSerial == "" {
				return nil, false
			}
			return s.MeterSerial, true
		},
	},
	volume(KeyHourly, "Last Hour", "measurement", "mdi:water-pump",
		func(s *models.Snapshot) float64 { return s.Hourly }),
	volume(KeyToday, "Today", "total", "mdi:water",
		func(s *models.Snapshot) float64 { return s.Today }),
	volume(KeyWeekly, "This Week", "total", "mdi:calendar-week",
		func(s *models.Snapshot) float64 { return s.Weekly }),
	volume(KeyMonthly, "This Month", "total", "mdi:calendar-month",
		func(s *models.Snapshot) float64 { return s.Monthly }),
	{
		Key:              KeyLeak,
		Name:             "Leak Detected",
		Component:        "binary_sensor",
		DeviceClass:      "moisture",
		Icon:             "mdi:pipe-leak",
		EnabledByDefault: true,
		Value: func(s *models.Snapshot) (any, bool) {
			if s.Empty {
				return nil, false
			}
			return s.LeakDetected, true
		},
	},
}

// Lookup returns the description registered under key.
func Lookup(key string) (Description, bool) {
	for _, d := range Descriptions {
		if d.Key == key {
			return d, true
		}
	}
	return Description{}, false
}

func (d Description) stateFrom(snap *models.Snapshot, ok bool) State {
	st := State{
		Key:         d.Key,
		Name:        d.Name,
		Unit:        d.Unit,
		DeviceClass: d.DeviceClass,
	}
	if !ok || snap == nil {
		return st
	}
	st.Value, st.Available = d.Value(snap)
	return st
}

// States returns the state of every entity, all read from one snapshot.
func States(src Source) []State {
	snap, ok := src.Snapshot()
	out := make([]State, 0, len(Descriptions))
	for _, d := range Descriptions {
		out = append(out, d.stateFrom(snap, ok))
	}
	return out
}

// StateOf returns the state of a single entity.
func StateOf(src Source, key string) (State, error) {
	d, found := Lookup(key)
	if !found {
		return State{}, ErrUnknownSensor
	}
	snap, ok := src.Snapshot()
	return d.stateFrom(snap, ok), nil
}

// TotalIndex is the cumulative meter index in m³.
func TotalIndex(src Source) (float64, bool) {
	snap, ok := src.Snapshot()
	if !ok || snap.Empty {
		return 0, false
	}
	return snap.Index, true
}

// DailyDelta is the consumption since the previous successful cycle.
func DailyDelta(src Source) (float64, bool) {
	snap, ok := src.Snapshot()
	if !ok || snap.Empty {
		return 0, false
	}
	return snap.DailyDelta, true
}

// LastReading is the time of the most recent meter reading.
func LastReading(src Source) (time.Time, bool) {
	snap, ok := src.Snapshot()
	if !ok || snap.Empty || snap.ReadingTime.IsZero() {
		return time.Time{}, false
	}
	return snap.ReadingTime, true
}

// MeterSerial is the serial number reported with the latest reading.
func MeterSerial(src Source) (string, bool) {
	snap, ok := src.Snapshot()
	if !ok || snap.Empty || snap.MeterSerial == "" {
		return "", false
	}
	return snap.MeterSerial, true
}
