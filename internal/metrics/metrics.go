package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors shared by the scheduler and cache.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QueueDepth   prometheus.Gauge
	ActiveTasks  prometheus.Gauge
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	RetriesTotal *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	CacheEntries prometheus.Gauge
	PollTicks    *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "nestsync",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Tasks waiting for an execution slot.",
		}),
		ActiveTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "nestsync",
			Subsystem: "scheduler",
			Name:      "active_tasks",
			Help:      "Tasks currently holding an execution slot.",
		}),
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestsync",
			Subsystem: "scheduler",
			Name:      "tasks_total",
			Help:      "Settled tasks by kind and outcome.",
		}, []string{"kind", "outcome"}), // outcome: ok, error, timeout, cancelled
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nestsync",
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Time a task held its execution slot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestsync",
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Retry attempts scheduled after a failure.",
		}, []string{"kind"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestsync",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read-through lookups by result source.",
		}, []string{"source"}), // cache, network, stale, miss
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "nestsync",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries held by the response cache.",
		}),
		PollTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestsync",
			Subsystem: "poll",
			Name:      "ticks_total",
			Help:      "Polling callbacks fired by job name.",
		}, []string{"job"}),
	}
}

// ObserveTask records a settled scheduler task.
func (m *Metrics) ObserveTask(kind, outcome string, held time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(kind, outcome).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(held.Seconds())
}

// SetLoad records the scheduler's queue depth and active task count.
func (m *Metrics) SetLoad(queued, active int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(queued))
	m.ActiveTasks.Set(float64(active))
}

// Retry records a scheduled retry attempt.
func (m *Metrics) Retry(kind string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(kind).Inc()
}

// CacheLookup records where a read-through lookup was served from.
func (m *Metrics) CacheLookup(source string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(source).Inc()
}

// SetCacheEntries records the number of cached entries.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// PollTick records a fired polling callback.
func (m *Metrics) PollTick(job string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(job).Inc()
}
