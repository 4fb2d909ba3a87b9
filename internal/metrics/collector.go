package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus vector the engine records against.
// Fields are grouped by the component that writes to them: engine (tick
// loop + fuses), llmclient (LM calls), store (query latency), and the
// task status transitions readiness/executor/reviewer drive.
type Collector struct {
	tickDuration   prometheus.Histogram
	tickIterations prometheus.Counter
	fuseTrips      *prometheus.CounterVec

	llmCallsTotal    *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	llmPromptChars   *prometheus.HistogramVec
	llmResponseChars *prometheus.HistogramVec

	taskStatusTransitions *prometheus.CounterVec
	reviewsTotal          *prometheus.CounterVec

	storeQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers every metric under namespace and returns the
// Collector. Passing a distinct namespace per test keeps parallel test
// runs from colliding on Prometheus's default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Duration of one engine tick (scan, readiness, schedule, executor/reviewer dispatch).",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	c.tickIterations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tick_iterations_total",
		Help:      "Total number of engine ticks run across all plans.",
	})
	c.fuseTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fuse_trips_total",
		Help:      "Total number of times a run-loop fuse (plan timeout, llm call cap) tripped.",
	}, []string{"scope"})

	c.llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Total number of LM calls, by driven agent, scope, and outcome.",
	}, []string{"agent", "scope", "outcome"})
	c.llmCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_call_duration_seconds",
		Help:      "Duration of one LM call, by driven agent and scope.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"agent", "scope"})
	c.llmPromptChars = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_prompt_chars",
		Help:      "Character length of the prompt sent to the LM, before truncation.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"agent", "scope"})
	c.llmResponseChars = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_response_chars",
		Help:      "Character length of the raw LM response, before truncation.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"agent", "scope"})

	c.taskStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_status_transitions_total",
		Help:      "Total number of task_nodes status transitions, by source and destination status.",
	}, []string{"from", "to"})
	c.reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reviews_total",
		Help:      "Total number of reviewer verdicts recorded, by action_required.",
	}, []string{"action_required"})

	c.storeQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_query_duration_seconds",
		Help:      "Duration of a store operation, by the operation name passed to RecordStoreQuery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordTick records the wall-clock duration of one engine tick.
func (c *Collector) RecordTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
	c.tickIterations.Inc()
}

// RecordFuseTrip records that a run-loop fuse tripped, labelled by scope; the
// engine passes the tripped fuse's error code (PLAN_TIMEOUT or
// MAX_LLM_CALLS_EXCEEDED).
func (c *Collector) RecordFuseTrip(scope string) {
	c.fuseTrips.WithLabelValues(scope).Inc()
}

// RecordLLMCall records one LM exchange: its outcome ("ok" or an
// *model.ErrorCode string), duration, and the character lengths of the
// prompt/response before any truncation was applied.
func (c *Collector) RecordLLMCall(agent, scope, outcome string, d time.Duration, promptChars, responseChars int) {
	c.llmCallsTotal.WithLabelValues(agent, scope, outcome).Inc()
	c.llmCallDuration.WithLabelValues(agent, scope).Observe(d.Seconds())
	c.llmPromptChars.WithLabelValues(agent, scope).Observe(float64(promptChars))
	if responseChars > 0 {
		c.llmResponseChars.WithLabelValues(agent, scope).Observe(float64(responseChars))
	}
}

// RecordTaskStatusTransition records a task_nodes status write.
func (c *Collector) RecordTaskStatusTransition(from, to string) {
	c.taskStatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordReview records a persisted reviewer verdict by its action_required.
func (c *Collector) RecordReview(actionRequired string) {
	c.reviewsTotal.WithLabelValues(actionRequired).Inc()
}

// RecordStoreQuery records the duration of one named store operation.
func (c *Collector) RecordStoreQuery(operation string, d time.Duration) {
	c.storeQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}
