package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/metrics"

	"github.com/google/uuid"
)

// RetryPolicy bounds document generation retries
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy is three attempts with a doubling backoff starting at 2s
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialBackoff: 2 * time.Second}

// DocumentRunner drives document generation attempts in the background
type DocumentRunner struct {
	cases  *CaseService
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	wg     sync.WaitGroup
	logger *slog.Logger
}

// RunnerOption is a functional option for DocumentRunner
type RunnerOption func(*DocumentRunner)

// WithRetryPolicy sets the attempt bound and initial backoff
func WithRetryPolicy(p RetryPolicy) RunnerOption {
	return func(r *DocumentRunner) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		r.policy = p
	}
}

// WithSleep replaces the backoff wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *DocumentRunner) {
		r.sleep = sleep
	}
}

// NewDocumentRunner creates a runner for cases. Queued runs use ctx.
func NewDocumentRunner(ctx context.Context, cases *CaseService, opts ...RunnerOption) *DocumentRunner {
	r := &DocumentRunner{
		cases:  cases,
		policy: DefaultRetryPolicy,
		sleep:  sleepContext,
		ctx:    ctx,
		logger: logging.New("tasks"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDocument attempts generation until it succeeds, fails terminally or
// runs out of attempts. The case is moved to error in the last two cases.
func (r *DocumentRunner) RunDocument(ctx context.Context, id uuid.UUID) TaskResult {
	backoff := r.policy.InitialBackoff
	var last TaskResult

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, backoff); err != nil {
				return retryable(err.Error())
			}
			backoff *= 2
		}

		last = r.cases.GenerateDocumentAttempt(ctx, id, attempt)
		metrics.DocumentAttempts.WithLabelValues(string(last.Outcome)).Inc()

		switch last.Outcome {
		case TaskSuccess:
			return last
		case TaskTerminalFailure:
			r.fail(ctx, id, last.Reason)
			return last
		}
		r.logger.Warn("document generation attempt failed",
			slog.String("case_id", id.String()),
			slog.Int("attempt", attempt),
			slog.String("reason", last.Reason))
	}

	r.fail(ctx, id, last.Reason)
	return terminal(last.Reason)
}

func (r *DocumentRunner) fail(ctx context.Context, id uuid.UUID, reason string) {
	if err := r.cases.FailDocument(ctx, id, reason); err != nil {
		r.logger.Error("failed to move case to error",
			slog.String("case_id", id.String()),
			slog.Any("error", err))
	}
}

// Enqueue starts a background run for the case
func (r *DocumentRunner) Enqueue(id uuid.UUID) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunDocument(r.ctx, id)
	}()
}

// Wait blocks until every queued run has returned
func (r *DocumentRunner) Wait() {
	r.wg.Wait()
}

// RunSweeper sweeps stale cases every interval until ctx is done
func RunSweeper(ctx context.Context, cases *CaseService, interval time.Duration) {
	logger := logging.New("tasks")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cases.SweepStale(ctx); err != nil {
				logger.Error("stale sweep failed", slog.Any("error", err))
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
