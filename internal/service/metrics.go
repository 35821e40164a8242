package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_fork_operations_total",
			Help: "Fork engine operations partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	commitsAppendedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novel_fork_commits_appended_total",
			Help: "Total number of commits appended to reader forks.",
		},
	)

	previewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novel_fork_generation_duration_seconds",
			Help:    "Duration of streamed chapter generations.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind", "outcome"},
	)

	summaryFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novel_fork_summary_fallbacks_total",
			Help: "Number of preview summaries produced by truncation because the generator failed.",
		},
	)

	prGraftedChaptersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novel_fork_pr_grafted_chapters_total",
			Help: "Number of chapters grafted into story trees on PR approval.",
		},
	)
)

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	forkOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
