/*
Package monitoring provides Prometheus collectors for bridged workers.

# Metrics

  - workers_created_total, workers_active, worker_init_failures_total
  - messages_posted_total, messages_dropped_total{reason}
  - events_forwarded_total{type}
  - page_calls_total{op,status}, page_call_duration_seconds{op}, page_errors_total{op}

All names carry the configured namespace (browserworker by default).

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer, "browserworker")

	done := metrics.TimePageCall("evaluate")
	_, err := p.Evaluate(ctx, fn)
	done(err)

A nil *Metrics is a valid recorder that drops everything, so callers never
need to guard optional instrumentation.
*/
package monitoring
