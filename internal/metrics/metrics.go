// Package metrics exposes worker and ingestion counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives pipeline events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ItemEnqueued(queue string)
	ItemProcessed(queue, status string)
	ReceiveFailed(queue string)
	ObserveWork(queue string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ItemEnqueued(string)               {}
func (noopRecorder) ItemProcessed(string, string)      {}
func (noopRecorder) ReceiveFailed(string)              {}
func (noopRecorder) ObserveWork(string, time.Duration) {}

// Noop returns a recorder that discards everything.
func Noop() Recorder {
	return noopRecorder{}
}

type prometheusRecorder struct {
	enqueued      *prometheus.CounterVec
	processed     *prometheus.CounterVec
	receiveErrors *prometheus.CounterVec
	workDuration  *prometheus.HistogramVec
}

// Prometheus returns a recorder registered on registry.
func Prometheus(registry *prometheus.Registry) Recorder {
	r := prometheusRecorder{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oasconform",
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Total number of items sent to a queue.",
		}, []string{"queue"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oasconform",
			Subsystem: "worker",
			Name:      "processed_total",
			Help:      "Total number of queue items processed, by final record status.",
		}, []string{"queue", "status"}),
		receiveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oasconform",
			Subsystem: "worker",
			Name:      "receive_errors_total",
			Help:      "Total number of failed queue claims.",
		}, []string{"queue"}),
		workDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oasconform",
			Subsystem: "worker",
			Name:      "work_duration_seconds",
			Help:      "How long in seconds processing one queue item takes.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, []string{"queue"}),
	}
	registry.MustRegister(r.enqueued, r.processed, r.receiveErrors, r.workDuration)
	return r
}

func (r prometheusRecorder) ItemEnqueued(queue string) {
	r.enqueued.WithLabelValues(queue).Inc()
}

func (r prometheusRecorder) ItemProcessed(queue, status string) {
	r.processed.WithLabelValues(queue, status).Inc()
}

func (r prometheusRecorder) ReceiveFailed(queue string) {
	r.receiveErrors.WithLabelValues(queue).Inc()
}

func (r prometheusRecorder) ObserveWork(queue string, d time.Duration) {
	r.workDuration.WithLabelValues(queue).Observe(d.Seconds())
}
