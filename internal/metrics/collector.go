// Package metrics collects pipeline metrics for the prometheus endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's prometheus instruments.
type Collector struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	runsResumed   prometheus.Counter

	stageExecutions *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec

	ordersSubmitted prometheus.Counter
	ordersSkipped   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_started_total",
			Help: "Pipeline runs started.",
		}),
		runsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_completed_total",
			Help: "Pipeline runs completed.",
		}),
		runsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_failed_total",
			Help: "Pipeline runs failed.",
		}),
		runsResumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_resumed_total",
			Help: "Pipeline runs resumed from a checkpoint.",
		}),
		stageExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_executions_total",
			Help: "Stage executions by stage name and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Stage execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_submitted_total",
			Help: "Orders submitted to the venue.",
		}),
		ordersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_skipped_total",
			Help: "Trades skipped before submission, by reason.",
		}, []string{"reason"}),
	}
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RunStarted()   { c.runsStarted.Inc() }
func (c *Collector) RunCompleted() { c.runsCompleted.Inc() }
func (c *Collector) RunFailed()    { c.runsFailed.Inc() }
func (c *Collector) RunResumed()   { c.runsResumed.Inc() }

// StageExecuted records one stage execution and its duration.
func (c *Collector) StageExecuted(stage string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.stageExecutions.WithLabelValues(stage, outcome).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// OrderSubmitted records a venue submission.
func (c *Collector) OrderSubmitted() { c.ordersSubmitted.Inc() }

// OrderSkipped records a trade the policy declined, by reason.
func (c *Collector) OrderSkipped(reason string) {
	c.ordersSkipped.WithLabelValues(reason).Inc()
}
