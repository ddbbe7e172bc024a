// Package adapter provides ebr.Observer implementations for external
// monitoring systems.
package adapter

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

const namespace = "ebr"

// PrometheusObserver exports collector events as Prometheus metrics. Every
// metric carries a constant "collector" label. Level gauges read the bound
// collector at scrape time.
type PrometheusObserver struct {
	gauges

	collections  *prometheus.CounterVec
	deferred     prometheus.Counter
	ran          prometheus.Counter
	failures     prometheus.Counter
	pendingG     prometheus.GaugeFunc
	participantG prometheus.GaugeFunc
	generationG  prometheus.GaugeFunc
	duration     prometheus.Histogram
}

var (
	_ ebr.Observer = (*PrometheusObserver)(nil)
	_ ebr.Binder   = (*PrometheusObserver)(nil)
)

// NewPrometheusObserver builds the metrics for the named collector. Call
// Register to expose them.
func NewPrometheusObserver(collector string) *PrometheusObserver {
	labels := prometheus.Labels{"collector": collector}
	o := &PrometheusObserver{
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "collections_total",
			Help:        "Collection attempts by result (advanced or blocked).",
			ConstLabels: labels,
		}, []string{"result"}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_deferred_total",
			Help:        "Tasks deferred into an epoch bucket.",
			ConstLabels: labels,
		}),
		ran: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_run_total",
			Help:        "Deferred tasks executed by collections.",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "task_failures_total",
			Help:        "Deferred tasks that panicked.",
			ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "collect_duration_seconds",
			Help:        "Wall time of one Collect call, including the tasks it ran.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	o.pendingG = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "pending_tasks",
		Help:        "Deferred tasks waiting for their grace period.",
		ConstLabels: labels,
	}, func() float64 { return float64(o.pendingNow()) })
	o.participantG = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "participants",
		Help:        "Registered participants.",
		ConstLabels: labels,
	}, func() float64 { return float64(o.participantsNow()) })
	o.generationG = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "epoch_generation",
		Help:        "Epoch advances since the collector was created.",
		ConstLabels: labels,
	}, func() float64 { return float64(o.generationNow()) })
	return o
}

// Register registers every metric with reg.
func (o *PrometheusObserver) Register(reg prometheus.Registerer) error {
	for _, c := range o.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (o *PrometheusObserver) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.collections, o.deferred, o.ran, o.failures,
		o.pendingG, o.participantG, o.generationG, o.duration,
	}
}

func (o *PrometheusObserver) ParticipantsChanged(live int) {
	o.participants.Store(int64(live))
}

func (o *PrometheusObserver) TaskDeferred(_ ebr.Epoch, pending int) {
	o.deferred.Inc()
	o.pending.Store(int64(pending))
}

func (o *PrometheusObserver) CollectDone(start time.Time, res ebr.Collection, err error) {
	o.duration.Observe(time.Since(start).Seconds())
	o.collections.WithLabelValues(result(res)).Inc()
	o.ran.Add(float64(res.Ran))
	o.failures.Add(float64(taskFailures(err)))
	o.pending.Store(int64(res.Pending))
	o.generation.Store(res.Generation)
}

func result(res ebr.Collection) string {
	if res.Advanced {
		return "advanced"
	}
	return "blocked"
}

// taskFailures counts the task panics inside an error returned by Collect.
func taskFailures(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += taskFailures(e)
		}
		return n
	}
	var perr *ebr.TaskPanicError
	if errors.As(err, &perr) {
		return 1
	}
	return 0
}
