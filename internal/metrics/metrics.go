// Package metrics exposes Prometheus collectors for event evaluation and alert
// delivery. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cloudtrail_sentry"

// Metrics holds the collectors registered by New.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	MatchesTotal       *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	DeliveriesTotal    *prometheus.CounterVec
	DeliveryAttempts   prometheus.Histogram
	DeliveryDuration   prometheus.Histogram
	ReplayRecordsTotal *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer for the
// process-wide registry or a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Evaluation metrics
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events evaluated",
			},
			[]string{"event_source", "interesting"},
		),
		MatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_matches_total",
				Help:      "Total number of events matched, by rule",
			},
			[]string{"rule_id", "severity"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of extract, classify and build in seconds",
				Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
			},
		),

		// Delivery metrics
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of alert deliveries, by channel and status",
			},
			[]string{"channel", "status"},
		),
		DeliveryAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_attempts",
				Help:      "Attempts needed per delivery",
				Buckets:   []float64{1, 2, 3, 5, 8, 11},
			},
		),
		DeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Duration of alert delivery including retries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		// Replay metrics
		ReplayRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replay_records_total",
				Help:      "Total number of CloudTrail records read during replay, by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveEvaluation records one evaluated event.
func (m *Metrics) ObserveEvaluation(source, ruleID, severity string, interesting bool, d time.Duration) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	label := "false"
	if interesting {
		label = "true"
		m.MatchesTotal.WithLabelValues(ruleID, severity).Inc()
	}
	m.EventsTotal.WithLabelValues(source, label).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
}

// ObserveDelivery records one delivery outcome.
func (m *Metrics) ObserveDelivery(channel string, attempts int, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.DeliveriesTotal.WithLabelValues(channel, status).Inc()
	m.DeliveryAttempts.Observe(float64(attempts))
	m.DeliveryDuration.Observe(d.Seconds())
}

// ObserveReplay records one replayed record. result is "evaluated", "interesting"
// or "invalid".
func (m *Metrics) ObserveReplay(result string) {
	if m == nil {
		return
	}
	m.ReplayRecordsTotal.WithLabelValues(result).Inc()
}
