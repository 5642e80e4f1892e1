// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScrapePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_scrape_passes_total",
			Help: "Scrape passes by outcome",
		},
		[]string{"outcome"},
	)

	PortalFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_portal_fetches_total",
			Help: "Portal fetches by portal and outcome (ok, error, quota_exhausted)",
		},
		[]string{"portal", "outcome"},
	)

	PortalFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoapply_portal_fetch_duration_seconds",
			Help:    "Duration of one portal fetch including listing pacing",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"portal"},
	)

	PostingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_postings_ingested_total",
			Help: "Postings handled after fetch, by portal and result (new, refreshed, excluded, failed)",
		},
		[]string{"portal", "result"},
	)

	ApplicationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_applications_processed_total",
			Help: "Pipeline runs by portal and terminal status",
		},
		[]string{"portal", "status"},
	)

	ApplicationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "autoapply_application_duration_seconds",
			Help: "Duration of one pipeline run",
		},
	)

	AIFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_ai_fallbacks_total",
			Help: "AI provider calls served by the local fallback, by operation and reason",
		},
		[]string{"operation", "reason"},
	)

	QueueTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoapply_queue_tasks_total",
			Help: "Handled queue tasks by kind and outcome (ok, error)",
		},
		[]string{"kind", "outcome"},
	)

	WorkersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoapply_workers_active",
			Help: "Tasks currently being handled, by kind",
		},
		[]string{"kind"},
	)
)
