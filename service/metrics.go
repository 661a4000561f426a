package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cast and registration outcomes used as metric labels.
const (
	resultOK           = "ok"
	resultDoubleVote   = "double_vote"
	resultVerification = "verification_failure"
	resultUnavailable  = "unavailable"
	resultRejected     = "rejected"
)

// MetricsCollector tracks the service's prometheus collectors. Each
// collector owns its registry so several services can live in one process.
type MetricsCollector struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	votes         *prometheus.CounterVec
	voteDuration  prometheus.Histogram
	records       prometheus.Gauge
	countDuration prometheus.Histogram
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ballot",
			Name:      "registrations_total",
			Help:      "Voter registrations by result",
		}, []string{"result"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ballot",
			Name:      "votes_total",
			Help:      "Cast attempts by result",
		}, []string{"result"}),
		voteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ballot",
			Name:      "vote_duration_seconds",
			Help:      "Time to blind, sign, verify and store one vote",
			Buckets:   prometheus.DefBuckets,
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ballot",
			Name:      "records",
			Help:      "Vote records in the ledger",
		}),
		countDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ballot",
			Name:      "count_duration_seconds",
			Help:      "Time to tally the ledger",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	mc.registry.MustRegister(mc.registrations, mc.votes, mc.voteDuration, mc.records, mc.countDuration)
	return mc
}

func (mc *MetricsCollector) RecordRegistration(result string) {
	mc.registrations.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) RecordVote(result string, duration time.Duration, records int) {
	mc.votes.WithLabelValues(result).Inc()
	mc.voteDuration.Observe(duration.Seconds())
	mc.records.Set(float64(records))
}

func (mc *MetricsCollector) RecordCounting(duration time.Duration) {
	mc.countDuration.Observe(duration.Seconds())
}

// Handler serves the collectors in the prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
