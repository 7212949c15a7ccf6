package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records queue throughput for operator dashboards. A nil receiver or
// nil registerer disables collection.
type Metrics struct {
	enqueued *prometheus.CounterVec
	finished *prometheus.CounterVec
	retried  *prometheus.CounterVec
	dead     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the queue metrics on the provided registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_enqueued_total",
		Help: "Jobs placed on a lane.",
	}, []string{"lane", "type"})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_finished_total",
		Help: "Jobs acked by a worker.",
	}, []string{"lane", "type"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_retried_total",
		Help: "Jobs rescheduled after a transient failure.",
	}, []string{"lane", "type"})
	dead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_dead_total",
		Help: "Jobs moved to the dead set.",
	}, []string{"lane", "type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_job_duration_seconds",
		Help:    "Handler execution time per job type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"lane", "type"})
	reg.MustRegister(enqueued, finished, retried, dead, duration)
	return &Metrics{
		enqueued: enqueued,
		finished: finished,
		retried:  retried,
		dead:     dead,
		duration: duration,
	}
}

// IncEnqueued counts a job placed on a lane.
func (m *Metrics) IncEnqueued(lane Lane, jobType string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(lane.String(), jobType).Inc()
}

// IncFinished counts an acked job.
func (m *Metrics) IncFinished(lane Lane, jobType string) {
	if m == nil || m.finished == nil {
		return
	}
	m.finished.WithLabelValues(lane.String(), jobType).Inc()
}

// IncRetried counts a rescheduled job.
func (m *Metrics) IncRetried(lane Lane, jobType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(lane.String(), jobType).Inc()
}

// IncDead counts a job moved to the dead set.
func (m *Metrics) IncDead(lane Lane, jobType string) {
	if m == nil || m.dead == nil {
		return
	}
	m.dead.WithLabelValues(lane.String(), jobType).Inc()
}

// ObserveDuration records handler execution time.
func (m *Metrics) ObserveDuration(lane Lane, jobType string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(lane.String(), jobType).Observe(d.Seconds())
}
