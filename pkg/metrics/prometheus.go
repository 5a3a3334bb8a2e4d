package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	skippedTotal  *prometheus.CounterVec
	movingAverage *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceflow_messages_sent_total",
				Help: "Total number of price events published",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		skippedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "priceflow_events_skipped_total",
				Help: "Events dropped as unprocessable",
			},
			[]string{"reason"},
		),
		movingAverage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "priceflow_moving_average",
				Help: "Latest moving average per symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "priceflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a published price event.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSkipped records an event dropped as unprocessable.
func (r *Recorder) RecordSkipped(reason string) {
	r.skippedTotal.WithLabelValues(reason).Inc()
}

// RecordAverage records the latest moving average for a symbol.
func (r *Recorder) RecordAverage(symbol string, average float64) {
	r.movingAverage.WithLabelValues(symbol).Set(average)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
