// Package metrics holds the Prometheus collectors shared by the detector,
// the case workflow and the background tasks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicelegal"

var (
	// DetectionsTotal counts detections by outcome ("detected", "abstained") and winning method.
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "detections_total",
		Help:      "Case type detections by outcome and winning method",
	}, []string{"outcome", "method"})

	// ScorerAbstentions counts scorers that produced no candidate, by reason.
	ScorerAbstentions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "scorer_abstentions_total",
		Help:      "Scorers that produced no candidate, by method and reason",
	}, []string{"method", "reason"})

	// DetectionConfidence observes the weighted confidence of winning detections.
	DetectionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "detector",
		Name:      "confidence",
		Help:      "Weighted confidence of winning detections",
		Buckets:   []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4},
	})

	// AnswerValidationFailures counts rejected answers by field type.
	AnswerValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "answer_validation_failures_total",
		Help:      "Answers rejected by field validation",
	}, []string{"field_type"})

	// CaseTransitions counts status transitions by target status.
	CaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Case status transitions by target status",
	}, []string{"status"})

	// DocumentAttempts counts document generation attempts by result.
	DocumentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "document_attempts_total",
		Help:      "Document generation attempts by result",
	}, []string{"result"})

	// StaleCasesSwept counts cases forced into error by the stale sweep.
	StaleCasesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "stale_cases_swept_total",
		Help:      "Cases forced into error by the stale-case sweep",
	})
)
