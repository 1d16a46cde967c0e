package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"voicelegal-backend/classifier"
	"voicelegal-backend/metrics"
	"voicelegal-backend/models"
	"voicelegal-backend/notify"
	"voicelegal-backend/workflow"

	"github.com/google/uuid"
)

// TaskOutcome tells a task scheduler what to do after a task ran
type TaskOutcome string

const (
	TaskSuccess          TaskOutcome = "success"
	TaskRetryableFailure TaskOutcome = "retryable_failure"
	TaskTerminalFailure  TaskOutcome = "terminal_failure"
)

// TaskResult is the outcome of one task run. Reason is empty on success
// unless the task had nothing to do.
type TaskResult struct {
	Outcome TaskOutcome
	Reason  string
}

func succeeded(reason string) TaskResult {
	return TaskResult{Outcome: TaskSuccess, Reason: reason}
}

func retryable(reason string) TaskResult {
	return TaskResult{Outcome: TaskRetryableFailure, Reason: reason}
}

func terminal(reason string) TaskResult {
	return TaskResult{Outcome: TaskTerminalFailure, Reason: reason}
}

// MaxPendingBatch bounds how many pending cases one re-detection batch picks up
const MaxPendingBatch = 10

// sweepStatuses are the statuses a case can get stuck in without user action.
// document_ready only waits on delivery and is left alone.
var sweepStatuses = []models.CaseStatus{
	models.CaseStatusInputReceived,
	models.CaseStatusCaseTypeDetected,
	models.CaseStatusGatheringInfo,
	models.CaseStatusGeneratingDocument,
}

// GenerateDocumentAttempt runs a single generation attempt for a case. It
// never moves the case to error; the caller decides that from the outcome.
func (s *CaseService) GenerateDocumentAttempt(ctx context.Context, id uuid.UUID, attempt int) TaskResult {
	if s.generator == nil {
		return terminal(ErrMissingDependency.Error())
	}
	var ev *caseEvent
	defer func() { s.publish(ctx, ev) }()
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if errors.Is(err, ErrCaseNotFound) {
		return terminal(err.Error())
	}
	if err != nil {
		return retryable(err.Error())
	}

	switch c.Status {
	case models.CaseStatusGeneratingDocument:
	case models.CaseStatusDocumentReady, models.CaseStatusCompleted:
		return succeeded("document already generated")
	default:
		return terminal(fmt.Sprintf("case is %s", c.Status))
	}

	started := s.machine.Now()
	res, genErr := s.generate(ctx, c)
	switch {
	case genErr != nil:
		s.logStep(ctx, c.ID, "generate_document", models.LogOutcomeFailed, models.LogDetails{
			"attempt": attempt,
		}, started, genErr.Error())
		return retryable(genErr.Error())
	case !res.Success:
		s.logStep(ctx, c.ID, "generate_document", models.LogOutcomeFailed, models.LogDetails{
			"attempt": attempt,
		}, started, res.Error)
		return terminal(res.Error)
	}

	if ev, err = s.finishDocument(ctx, c, res, started); err != nil {
		return retryable(err.Error())
	}
	s.logger.Info("document generated",
		slog.String("case_id", c.ID.String()),
		slog.Int("attempt", attempt),
		slog.String("locator", res.Locator))
	return succeeded("")
}

// FailDocument moves a case still waiting on its document to error with reason
func (s *CaseService) FailDocument(ctx context.Context, id uuid.UUID, reason string) error {
	var ev *caseEvent
	defer func() { s.publish(ctx, ev) }()
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != models.CaseStatusGeneratingDocument {
		return nil
	}
	ev, err = s.failCase(ctx, c, "generate_document", "Document generation failed: "+reason, s.machine.Now())
	return err
}

// Redetect re-runs detection on a case that has not reached questioning yet.
// The stored detection only ever improves; cases that moved on are skipped.
func (s *CaseService) Redetect(ctx context.Context, id uuid.UUID) TaskResult {
	if s.detector == nil {
		return terminal(ErrMissingDependency.Error())
	}
	var ev *caseEvent
	defer func() { s.publish(ctx, ev) }()
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if errors.Is(err, ErrCaseNotFound) {
		return terminal(err.Error())
	}
	if err != nil {
		return retryable(err.Error())
	}
	if c.Status != models.CaseStatusInputReceived && c.Status != models.CaseStatusCaseTypeDetected {
		return succeeded(fmt.Sprintf("case is %s", c.Status))
	}

	started := s.machine.Now()
	det, err := s.detector.Detect(ctx, c.InitialInput, c.InputLanguage)
	if errors.Is(err, classifier.ErrEmptyInput) || errors.Is(err, classifier.ErrUnsupportedLanguage) {
		return terminal(err.Error())
	}
	if err != nil {
		return retryable(err.Error())
	}

	changed, err := s.machine.ApplyRedetection(c, workflow.Detection{
		CaseType:   det.CaseType,
		Confidence: det.Confidence,
		Keywords:   det.MatchedKeywords,
	})
	if err != nil {
		return terminal(err.Error())
	}
	if !changed {
		return succeeded("no improvement")
	}

	if err := s.cases.Update(ctx, c); err != nil {
		return retryable(err.Error())
	}
	s.logStep(ctx, c.ID, "redetect_case_type", models.LogOutcomeCompleted, models.LogDetails{
		"case_type":  det.CaseType.Name,
		"confidence": det.Confidence,
		"method":     string(det.Method),
	}, started, "")
	ev = s.newEvent(c, notify.KindProcessingUpdate)

	if c.Status == models.CaseStatusGeneratingDocument {
		s.scheduleDocument(c.ID)
	}
	return succeeded("")
}

// RedetectPending re-runs detection on up to limit pending cases, oldest
// first, and returns how many were processed
func (s *CaseService) RedetectPending(ctx context.Context, limit int) (int, error) {
	if s.cases == nil {
		return 0, ErrMissingDependency
	}
	if limit <= 0 || limit > MaxPendingBatch {
		limit = MaxPendingBatch
	}
	pending, err := s.cases.ListByStatus(ctx, []models.CaseStatus{
		models.CaseStatusInputReceived,
		models.CaseStatusCaseTypeDetected,
	}, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending cases: %w", err)
	}

	for _, c := range pending {
		res := s.Redetect(ctx, c.ID)
		if res.Outcome != TaskSuccess {
			s.logger.Warn("re-detection failed",
				slog.String("case_id", c.ID.String()),
				slog.String("outcome", string(res.Outcome)),
				slog.String("reason", res.Reason))
		}
	}
	return len(pending), nil
}

// SweepStale forces cases idle for longer than the stale timeout into error
// and returns how many were swept
func (s *CaseService) SweepStale(ctx context.Context) (int, error) {
	if s.cases == nil {
		return 0, ErrMissingDependency
	}
	cutoff := s.machine.Now().Add(-s.staleTimeout)
	stale, err := s.cases.ListStale(ctx, sweepStatuses, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale cases: %w", err)
	}

	swept := 0
	for _, candidate := range stale {
		ok, err := s.sweepOne(ctx, candidate.ID, cutoff)
		if err != nil {
			s.logger.Error("failed to sweep case",
				slog.String("case_id", candidate.ID.String()),
				slog.Any("error", err))
			continue
		}
		if ok {
			swept++
		}
	}
	if swept > 0 {
		s.logger.Info("stale cases swept", slog.Int("count", swept))
	}
	return swept, nil
}

// sweepOne re-reads the case under its lock so a case that moved on since
// the listing is not swept.
func (s *CaseService) sweepOne(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	var ev *caseEvent
	defer func() { s.publish(ctx, ev) }()
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if errors.Is(err, ErrCaseNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.Status.IsTerminal() || c.Status == models.CaseStatusDocumentReady || !c.UpdatedAt.Before(cutoff) {
		return false, nil
	}

	detail := fmt.Sprintf("Processing timed out after %s in %s", s.staleTimeout, c.Status)
	if ev, err = s.failCase(ctx, c, "stale_sweep", detail, s.machine.Now()); err != nil {
		return false, err
	}
	metrics.StaleCasesSwept.Inc()
	return true, nil
}

// PurgeResult reports what a retention cleanup removed, or would remove
type PurgeResult struct {
	Cases     int64
	Documents int
	DryRun    bool
}

// PurgeExpired deletes errored cases older than the retention period along
// with their stored documents. A dry run only counts them.
func (s *CaseService) PurgeExpired(ctx context.Context, dryRun bool) (*PurgeResult, error) {
	if s.cases == nil || s.documents == nil {
		return nil, ErrMissingDependency
	}
	cutoff := s.machine.Now().Add(-s.retention)

	paths, err := s.documents.ListStoragePathsByCaseStatusBefore(ctx, models.CaseStatusError, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired documents: %w", err)
	}
	n, err := s.cases.DeleteByStatusBefore(ctx, models.CaseStatusError, cutoff, dryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired cases: %w", err)
	}

	result := &PurgeResult{Cases: n, Documents: len(paths), DryRun: dryRun}
	if dryRun || s.blobs == nil {
		return result, nil
	}
	for _, p := range paths {
		if err := s.blobs.Delete(ctx, p); err != nil {
			s.logger.Warn("failed to delete stored document",
				slog.String("path", p),
				slog.Any("error", err))
		}
	}
	s.logger.Info("expired cases purged",
		slog.Int64("cases", n),
		slog.Int("documents", len(paths)))
	return result, nil
}

// Report summarizes case processing over a time window
type Report struct {
	PeriodStart          time.Time        `json:"period_start"`
	PeriodEnd            time.Time        `json:"period_end"`
	TotalCases           int64            `json:"total_cases"`
	CompletedCases       int64            `json:"completed_cases"`
	ErrorCases           int64            `json:"error_cases"`
	SuccessRate          float64          `json:"success_rate"`
	AvgProcessingTimeMS  float64          `json:"avg_processing_time_ms"`
	CaseTypeDistribution map[string]int64 `json:"case_type_distribution"`
}

// Report builds the analytics report for the last 24 hours
func (s *CaseService) Report(ctx context.Context) (*Report, error) {
	if s.cases == nil {
		return nil, ErrMissingDependency
	}
	end := s.machine.Now()
	start := end.Add(-24 * time.Hour)

	stats, err := s.cases.StatsSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cases: %w", err)
	}

	r := &Report{
		PeriodStart:          start,
		PeriodEnd:            end,
		TotalCases:           stats.Total,
		CompletedCases:       stats.Completed,
		ErrorCases:           stats.Errored,
		AvgProcessingTimeMS:  round2(stats.AvgProcessingTimeMS),
		CaseTypeDistribution: stats.ByCaseType,
	}
	if stats.Total > 0 {
		r.SuccessRate = round2(float64(stats.Completed) / float64(stats.Total) * 100)
	}
	return r, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
