package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atrejom/vcfping/internal/runner"
)

type Metrics struct {
	registry      prometheus.Registerer
	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	targetsTotal  *prometheus.CounterVec
	lastCycleTime prometheus.Gauge
}

func InitMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of monitoring cycles",
			},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of monitoring cycles",
				Buckets:   []float64{.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		targetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "targets_total",
				Help:      "Total number of processed VM targets",
			},
			[]string{"status"},
		),
		lastCycleTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix timestamp of the last completed cycle",
			},
		),
	}

	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.targetsTotal,
		m.lastCycleTime,
	)

	return m
}

func (m *Metrics) RecordCycle(summary runner.Summary, err error, duration time.Duration) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(duration.Seconds())
	m.lastCycleTime.SetToCurrentTime()

	m.targetsTotal.WithLabelValues("succeeded").Add(float64(summary.Succeeded))
	m.targetsTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
	m.targetsTotal.WithLabelValues("failed").Add(float64(summary.Failed))
}
