// Package metrics exposes Prometheus instruments for the guardrail
// pipeline. All recording methods are nil-receiver safe so instrumentation
// stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all Prometheus instruments used by the guardrails.
type Metrics struct {
	ScreensRun    *prometheus.CounterVec
	Blocks        *prometheus.CounterVec
	Throttles     prometheus.Counter
	JudgeFailures prometheus.Counter
	JudgeLatency  prometheus.Histogram
}

// New registers instruments on the default registry under the given
// namespace. Call once per process.
func New(namespace string) *Metrics {
	return &Metrics{
		ScreensRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screens_run_total",
			Help:      "Screening stages executed, by stage.",
		}, []string{"stage"}),
		Blocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Blocked requests by stage and threat category.",
		}, []string{"stage", "category"}),
		Throttles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttles_total",
			Help:      "Requests answered with a rate-limit wait message.",
		}),
		JudgeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_failures_total",
			Help:      "Judge calls that failed open.",
		}),
		JudgeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_latency_ms",
			Help:      "External judge call latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
}

func (m *Metrics) RecordScreen(stage string) {
	if m == nil {
		return
	}
	m.ScreensRun.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordBlock(stage, category string) {
	if m == nil {
		return
	}
	m.Blocks.WithLabelValues(stage, category).Inc()
}

func (m *Metrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.Throttles.Inc()
}

func (m *Metrics) RecordJudgeFailure() {
	if m == nil {
		return
	}
	m.JudgeFailures.Inc()
}

func (m *Metrics) ObserveJudgeLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.JudgeLatency.Observe(float64(d.Milliseconds()))
}
