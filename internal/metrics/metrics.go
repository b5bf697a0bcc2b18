// Package metrics holds the process-wide Prometheus collectors. They register
// with the default registry at init and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garmin_events_received_total",
		Help: "Total number of Garmin events decoded, labelled by transport.",
	}, []string{"source"})

	RecordsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garmin_records_upserted_total",
		Help: "Total number of successful health record upserts.",
	})

	UpsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garmin_upsert_failures_total",
		Help: "Total number of events that failed to persist.",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garmin_tool_calls_total",
		Help: "Total number of tool invocations, labelled by tool and outcome.",
	}, []string{"tool", "outcome"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garmin_cache_lookups_total",
		Help: "Read-through cache lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garmin_publish_failures_total",
		Help: "Upsert notifications that could not be delivered to Kafka.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "garmin_webhook_rate_limited_total",
		Help: "Webhook requests rejected by the per-IP rate limiter.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "garmin_http_request_duration_seconds",
		Help:    "HTTP request latency, labelled by route pattern, method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
