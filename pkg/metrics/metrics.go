package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProbeResultsTotal counts completed probes by kind and outcome.
	ProbeResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_probe_results_total",
			Help: "Total number of probe results produced, by check kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// ResultSinkDroppedTotal counts ProbeResults dropped because the
	// bounded outbound queue was full (§4.5 drop-newest policy).
	ResultSinkDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_result_sink_dropped_total",
			Help: "Total number of probe results dropped due to a full result sink queue",
		},
	)

	// AggregateSinkDroppedTotal is the AggregateSink analog of ResultSinkDroppedTotal.
	AggregateSinkDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_aggregate_sink_dropped_total",
			Help: "Total number of aggregate messages dropped due to a full aggregate sink queue",
		},
	)

	// SchedulerTickDuration times one wheel driver tick, end to end.
	SchedulerTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_scheduler_tick_duration_seconds",
			Help:    "Time taken to process one scheduler tick, by interval",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"interval"},
	)

	// ClientPoolSize reports the current size a ClientPool has grown to.
	ClientPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_client_pool_size",
			Help: "Current number of entries in the HTTP client pool",
		},
	)

	// AggregatesEmittedTotal counts closed aggregation rounds.
	AggregatesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_aggregates_emitted_total",
			Help: "Total number of aggregate messages emitted",
		},
	)

	// AggregatorBuffersActive reports the number of open, not-yet-emitted
	// per-check aggregate buffers.
	AggregatorBuffersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_aggregator_buffers_active",
			Help: "Current number of open aggregate buffers awaiting round close",
		},
	)

	// DispatchQueueDroppedTotal counts jobs dropped because a wheel's bounded
	// dispatch pool queue was full (TASK_POOLS_SIZE workers, not keeping up).
	DispatchQueueDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_dispatch_queue_dropped_total",
			Help: "Total number of jobs dropped because a wheel's bounded dispatch queue was full",
		},
	)

	// CommandsProcessedTotal counts Add/Remove commands by outcome.
	CommandsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_commands_processed_total",
			Help: "Total number of commands processed by the command loop, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ProbeResultsTotal)
	prometheus.MustRegister(ResultSinkDroppedTotal)
	prometheus.MustRegister(AggregateSinkDroppedTotal)
	prometheus.MustRegister(SchedulerTickDuration)
	prometheus.MustRegister(ClientPoolSize)
	prometheus.MustRegister(DispatchQueueDroppedTotal)
	prometheus.MustRegister(AggregatesEmittedTotal)
	prometheus.MustRegister(AggregatorBuffersActive)
	prometheus.MustRegister(CommandsProcessedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
