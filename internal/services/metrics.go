package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activitiesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_recorded_total",
			Help: "Activity log entries written, by activity type",
		},
		[]string{"type"},
	)

	activityWriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_write_retries_total",
			Help: "Retried activity write transactions",
		},
	)

	anomaliesDetected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anomalies_detected",
			Help: "Anomalies found by the most recent detection pass, by type",
		},
		[]string{"type"},
	)

	staleSessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_sessions_closed_total",
			Help: "Login sessions closed by the session sweeper",
		},
	)

	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Background job executions, by job",
		},
		[]string{"job"},
	)
)
