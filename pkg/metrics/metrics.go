// Package metrics provides Prometheus instrumentation for cardflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for cardflow components.
type Registry struct {
	// Pipeline Metrics
	PipelineRuns       *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	PipelineErrors     *prometheus.CounterVec
	StageFailures      *prometheus.CounterVec
	PipelineUnfinished *prometheus.CounterVec

	// Transport Metrics
	TransportAttempts  *prometheus.CounterVec
	TransportExhausted *prometheus.CounterVec
	TransportDuration  *prometheus.HistogramVec

	// Server Metrics
	ServerRequests *prometheus.CounterVec
	DedupHits      *prometheus.CounterVec
	DedupEntries   prometheus.Gauge

	// Worker Pool Metrics
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by cardflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg, Namespace: DefaultNamespace})
}

// NewRegistryWithConfig creates a metrics registry from config.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(prometheus.WrapRegistererWith(config.Labels, reg))

	return &Registry{
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of processor runs by terminal status",
			},
			[]string{"processor", "status"},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Time spent executing a processor tree",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"processor"},
		),

		PipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "pipeline",
				Name:      "context_errors_total",
				Help:      "Structured errors accumulated on contexts, by group",
			},
			[]string{"processor", "group"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Stage bodies that returned an error",
			},
			[]string{"processor", "stage"},
		),

		PipelineUnfinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "pipeline",
				Name:      "unfinished_total",
				Help:      "Runs that left the tree without a terminal status",
			},
			[]string{"processor"},
		),

		TransportAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "transport",
				Name:      "attempts_total",
				Help:      "Request/reply attempts by outcome",
			},
			[]string{"topic", "outcome"},
		),

		TransportExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "transport",
				Name:      "exhausted_total",
				Help:      "Sends that failed after every attempt",
			},
			[]string{"topic"},
		),

		TransportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "transport",
				Name:      "send_duration_seconds",
				Help:      "Total time spent in Send including backoff",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),

		ServerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Requests handled by the remote executor",
			},
			[]string{"topic", "outcome"},
		),

		DedupHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "server",
				Name:      "dedup_hits_total",
				Help:      "Retried requests answered from the reply cache",
			},
			[]string{"topic"},
		),

		DedupEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "server",
				Name:      "dedup_entries",
				Help:      "Replies currently held in the reply cache",
			},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Current worker pool size",
			},
			[]string{"pool_name"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of active workers",
			},
			[]string{"pool_name"},
		),

		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "queued_tasks",
				Help:      "Number of queued tasks",
			},
			[]string{"pool_name"},
		),
	}
}
