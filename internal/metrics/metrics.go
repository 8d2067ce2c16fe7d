// Package metrics exposes the meter values and fetch outcomes to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tejusbharadwaj/apavital/internal/api"
	"github.com/tejusbharadwaj/apavital/internal/models"
)

const namespace = "apavital"

type Metrics struct {
	Index        *prometheus.GaugeVec
	Consumption  *prometheus.GaugeVec
	LeakDetected prometheus.Gauge
	Available    prometheus.Gauge
	Fetches      *prometheus.CounterVec
	FetchLatency prometheus.Histogram

	// gRPC server metrics, fed by the metrics interceptor.
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Index: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "water",
			Name:      "index_m3",
			Help:      "Cumulative meter index in cubic meters.",
		}, []string{"serial"}),
		Consumption: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "water",
			Name:      "consumption_m3",
			Help:      "Water consumed over the labelled period in cubic meters.",
		}, []string{"period"}),
		LeakDetected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leak_detected",
			Help:      "1 when the last hour's consumption exceeded the leak threshold.",
		}),
		Available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_available",
			Help:      "1 when the last update cycle succeeded.",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Update cycles by result.",
		}, []string{"result"}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of update cycles in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests served, by method and status code.",
		}, []string{"method", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "gRPC request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{
		m.Index, m.Consumption, m.LeakDetected, m.Available, m.Fetches, m.FetchLatency, m.Requests, m.Latency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, api.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, api.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

// Observe updates the gauges from one update cycle.
func (m *Metrics) Observe(_ context.Context, snap *models.Snapshot, err error) {
	m.Fetches.WithLabelValues(resultLabel(err)).Inc()
	if err != nil || snap == nil {
		m.Available.Set(0)
		return
	}
	m.Available.Set(1)
	if snap.Empty {
		return
	}

	m.Index.WithLabelValues(snap.MeterSerial).Set(snap.Index)
	m.Consumption.WithLabelValues("daily").Set(snap.DailyDelta)
	m.Consumption.WithLabelValues("hour").Set(snap.Hourly)
	m.Consumption.WithLabelValues("today").Set(snap.Today)
	m.Consumption.WithLabelValues("week").Set(snap.Weekly)
	m.Consumption.WithLabelValues("month").Set(snap.Monthly)
	if snap.LeakDetected {
		m.LeakDetected.Set(1)
	} else {
		m.LeakDetected.Set(0)
	}
}

// Refresher runs one update cycle.
type Refresher interface {
	Refresh(ctx context.Context) (*models.Snapshot, error)
}

type timedRefresher struct {
	next    Refresher
	latency prometheus.Histogram
}

// InstrumentRefresher records the duration of every cycle run through r.
func (m *Metrics) InstrumentRefresher(r Refresher) Refresher {
	return &timedRefresher{next: r, latency: m.FetchLatency}
}

func (t *timedRefresher) Refresh(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	defer func() { t.latency.Observe(time.Since(start).Seconds()) }()
	return t.next.Refresh(ctx)
}
