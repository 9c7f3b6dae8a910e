package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_model_calls_total",
		Help: "Total number of external model call attempts.",
	})
	modelFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_model_fallbacks_total",
		Help: "Total number of predictions resolved by the local heuristic.",
	})
	predictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_predictions_total",
		Help: "Total number of prediction requests served.",
	})
	trainingJobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_training_jobs_started_total",
		Help: "Total number of training jobs accepted.",
	})
	trainingJobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_training_jobs_completed_total",
		Help: "Total number of training jobs that finished successfully.",
	})
	trainingJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdm_api_training_jobs_failed_total",
		Help: "Total number of training jobs that ended in failure.",
	})
)
