/*
Package metrics defines and registers the process's Prometheus metrics and
exposes the readiness/liveness/health HTTP handlers both binaries serve
alongside /metrics.

Metrics are registered once at package init and are safe for concurrent
use from any goroutine. See metrics.go for the full catalog
(sentinel_probe_results_total, sentinel_result_sink_dropped_total,
sentinel_aggregate_sink_dropped_total, sentinel_dispatch_queue_dropped_total,
sentinel_scheduler_tick_duration_seconds, sentinel_client_pool_size,
sentinel_aggregates_emitted_total, sentinel_aggregator_buffers_active,
sentinel_commands_processed_total) and health.go for the component
health/readiness tracker.
*/
package metrics
