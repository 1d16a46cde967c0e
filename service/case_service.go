package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"voicelegal-backend/classifier"
	"voicelegal-backend/document"
	"voicelegal-backend/logging"
	"voicelegal-backend/models"
	"voicelegal-backend/notify"
	"voicelegal-backend/repository"
	"voicelegal-backend/storage"
	"voicelegal-backend/workflow"

	"github.com/google/uuid"
)

var (
	ErrCaseNotFound       = errors.New("case not found")
	ErrDetectionAbstained = errors.New("could not determine the case type from the description, please provide more details")
	ErrDocumentNotReady   = errors.New("document has not been generated yet")
	ErrMissingDependency  = errors.New("case service dependency not set")
)

// CaseStore persists legal cases
type CaseStore interface {
	Create(ctx context.Context, c *models.LegalCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LegalCase, error)
	Update(ctx context.Context, c *models.LegalCase) error
	ListStale(ctx context.Context, statuses []models.CaseStatus, cutoff time.Time) ([]*models.LegalCase, error)
	ListByStatus(ctx context.Context, statuses []models.CaseStatus, limit int) ([]*models.LegalCase, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LegalCase, error)
	DeleteByStatusBefore(ctx context.Context, status models.CaseStatus, cutoff time.Time, dryRun bool) (int64, error)
	StatsSince(ctx context.Context, since time.Time) (*repository.CaseStats, error)
}

// LogStore appends processing log entries
type LogStore interface {
	Append(ctx context.Context, entry *models.ProcessingLogEntry) error
}

// DocumentStore reads generated document metadata
type DocumentStore interface {
	GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.GeneratedDocument, error)
	ListStoragePathsByCaseStatusBefore(ctx context.Context, status models.CaseStatus, cutoff time.Time) ([]string, error)
}

// DocumentGenerator renders and stores a case document
type DocumentGenerator interface {
	Generate(ctx context.Context, c *models.LegalCase, ct *models.CaseTypeDefinition) (document.Result, error)
}

// DocumentScheduler queues document generation outside the request
type DocumentScheduler interface {
	Enqueue(caseID uuid.UUID)
}

// CaseService runs the case workflow against persistent storage
type CaseService struct {
	cases     CaseStore
	logs      LogStore
	documents DocumentStore
	detector  *classifier.Detector
	machine   *workflow.Machine
	notifier  notify.Notifier
	generator DocumentGenerator
	blobs     storage.Storage
	scheduler DocumentScheduler

	staleTimeout        time.Duration
	retention           time.Duration
	collaboratorTimeout time.Duration

	locks  *caseLocks
	logger *slog.Logger
}

// CaseServiceOption is a functional option for CaseService
type CaseServiceOption func(*CaseService)

// WithCaseStore sets the case store
func WithCaseStore(store CaseStore) CaseServiceOption {
	return func(s *CaseService) {
		s.cases = store
	}
}

// WithLogStore sets the processing log store
func WithLogStore(store LogStore) CaseServiceOption {
	return func(s *CaseService) {
		s.logs = store
	}
}

// WithDocumentStore sets the generated document store
func WithDocumentStore(store DocumentStore) CaseServiceOption {
	return func(s *CaseService) {
		s.documents = store
	}
}

// WithDetector sets the case-type detector
func WithDetector(d *classifier.Detector) CaseServiceOption {
	return func(s *CaseService) {
		s.detector = d
	}
}

// WithMachine sets the workflow state machine
func WithMachine(m *workflow.Machine) CaseServiceOption {
	return func(s *CaseService) {
		s.machine = m
	}
}

// WithNotifier sets the user notification collaborator
func WithNotifier(n notify.Notifier) CaseServiceOption {
	return func(s *CaseService) {
		s.notifier = n
	}
}

// WithGenerator sets the document generator
func WithGenerator(g DocumentGenerator) CaseServiceOption {
	return func(s *CaseService) {
		s.generator = g
	}
}

// WithBlobStorage sets the storage documents are read from and purged in
func WithBlobStorage(store storage.Storage) CaseServiceOption {
	return func(s *CaseService) {
		s.blobs = store
	}
}

// WithDocumentScheduler sets where document generation is queued
func WithDocumentScheduler(sched DocumentScheduler) CaseServiceOption {
	return func(s *CaseService) {
		s.scheduler = sched
	}
}

// WithStaleTimeout sets how long a case may sit in a non-terminal status
func WithStaleTimeout(d time.Duration) CaseServiceOption {
	return func(s *CaseService) {
		s.staleTimeout = d
	}
}

// WithRetention sets how long errored cases are kept
func WithRetention(d time.Duration) CaseServiceOption {
	return func(s *CaseService) {
		s.retention = d
	}
}

// WithCollaboratorTimeout bounds each document generation call
func WithCollaboratorTimeout(d time.Duration) CaseServiceOption {
	return func(s *CaseService) {
		if d > 0 {
			s.collaboratorTimeout = d
		}
	}
}

// NewCaseService creates a new case service
func NewCaseService(opts ...CaseServiceOption) *CaseService {
	s := &CaseService{
		staleTimeout:        2 * time.Hour,
		retention:           30 * 24 * time.Hour,
		collaboratorTimeout: 15 * time.Second,
		locks:               newCaseLocks(),
		logger:              logging.New("cases"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.machine == nil {
		s.machine = workflow.New()
	}
	return s
}

// SetDocumentScheduler sets the scheduler after construction, for schedulers
// that themselves depend on the service
func (s *CaseService) SetDocumentScheduler(sched DocumentScheduler) {
	s.scheduler = sched
}

// StartCaseRequest represents a request to open a case from a first description
type StartCaseRequest struct {
	UserID   uuid.UUID
	Text     string
	Mode     models.InputMode
	Language string
}

// StartCaseResult represents the result of opening a case
type StartCaseResult struct {
	Case        *models.LegalCase
	Detection   classifier.Detection
	Suggestions []string
}

// StartCase stores a case in input_received and runs detection on it. A case
// whose type cannot be detected is moved to error with suggestions. Invalid
// input is rejected before anything is stored; if detection is interrupted the
// case stays in input_received for re-detection to pick up.
func (s *CaseService) StartCase(ctx context.Context, req StartCaseRequest) (*StartCaseResult, error) {
	if s.cases == nil || s.detector == nil {
		return nil, ErrMissingDependency
	}
	if err := s.detector.Validate(req.Text, req.Language); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = models.InputModeText
	}

	c := s.machine.NewCase(req.UserID, req.Text, req.Mode, req.Language)
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	unlock := s.locks.lock(c.ID)
	defer unlock()

	started := s.machine.Now()
	det, err := s.detector.Detect(ctx, req.Text, req.Language)
	if err != nil {
		s.logStep(context.WithoutCancel(ctx), c.ID, "detect_case_type", models.LogOutcomeFailed, models.LogDetails{
			"language": req.Language,
		}, started, err.Error())
		s.logger.Warn("detection interrupted, case left pending",
			slog.String("case_id", c.ID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("detection interrupted for case %s: %w", c.ID, err)
	}

	result := &StartCaseResult{Case: c, Detection: det}
	if det.Found() {
		err = s.machine.ApplyDetection(c, workflow.Detection{
			CaseType:   det.CaseType,
			Confidence: det.Confidence,
			Keywords:   det.MatchedKeywords,
		})
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.machine.Fail(c, ErrDetectionAbstained.Error()); err != nil {
			return nil, err
		}
		result.Suggestions = s.suggestions()
	}

	if err := s.cases.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save detection: %w", err)
	}

	if det.Found() {
		s.logStep(ctx, c.ID, "detect_case_type", models.LogOutcomeCompleted, models.LogDetails{
			"case_type":  det.CaseType.Name,
			"confidence": det.Confidence,
			"keywords":   det.MatchedKeywords,
			"method":     string(det.Method),
		}, started, "")
		s.logger.Info("case started",
			slog.String("case_id", c.ID.String()),
			slog.String("case_type", det.CaseType.Name),
			slog.Float64("confidence", det.Confidence))
	} else {
		s.logStep(ctx, c.ID, "detect_case_type", models.LogOutcomeFailed, models.LogDetails{
			"language": req.Language,
		}, started, ErrDetectionAbstained.Error())
		s.logger.Info("case type not detected", slog.String("case_id", c.ID.String()))
	}

	if c.Status == models.CaseStatusGeneratingDocument {
		s.scheduleDocument(c.ID)
	}
	return result, nil
}

// AnswerRequest represents an answer to the case's current question
type AnswerRequest struct {
	CaseID uuid.UUID
	Answer string
}

// AnswerResult represents the case after an accepted answer
type AnswerResult struct {
	Case   *models.LegalCase
	Status workflow.Status
}

// AnswerCurrentQuestion validates and records an answer. A *workflow.ValidationError
// is returned unchanged and leaves the stored case untouched.
func (s *CaseService) AnswerCurrentQuestion(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	unlock := s.locks.lock(req.CaseID)
	defer unlock()

	c, err := s.load(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	started := s.machine.Now()
	index := c.CurrentQuestionIndex
	question, _ := c.CurrentQuestion()
	if err := s.machine.SubmitAnswer(c, s.questionsFor(c), req.Answer); err != nil {
		return nil, err
	}

	if err := s.cases.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	s.logStep(ctx, c.ID, "submit_answer", models.LogOutcomeCompleted, models.LogDetails{
		"question_index": index,
		"question":       question,
	}, started, "")

	if c.Status == models.CaseStatusGeneratingDocument {
		s.logStep(ctx, c.ID, "questioning_complete", models.LogOutcomeCompleted, models.LogDetails{
			"questions_answered": len(c.AnswersReceived),
		}, started, "")
		s.scheduleDocument(c.ID)
	}

	return &AnswerResult{Case: c, Status: workflow.StatusOf(c, nil)}, nil
}

// GetCase retrieves a case
func (s *CaseService) GetCase(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	return s.load(ctx, id)
}

// ListUserCases returns a user's cases, newest first
func (s *CaseService) ListUserCases(ctx context.Context, userID uuid.UUID) ([]*models.LegalCase, error) {
	if s.cases == nil {
		return nil, ErrMissingDependency
	}
	cases, err := s.cases.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases for user: %w", err)
	}
	return cases, nil
}

// CaseStatus returns the reporting view of a case
func (s *CaseService) CaseStatus(ctx context.Context, id uuid.UUID) (*workflow.Status, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var suggestions []string
	if c.Status == models.CaseStatusError {
		suggestions = s.suggestions()
	}
	status := workflow.StatusOf(c, suggestions)
	return &status, nil
}

// RequestDocument makes a single generation attempt for a case in
// generating_document. Any failure moves the case to error with its answers kept.
func (s *CaseService) RequestDocument(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	if s.generator == nil {
		return nil, ErrMissingDependency
	}
	var ev *caseEvent
	defer func() { s.publish(ctx, ev) }()
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseStatusGeneratingDocument {
		return nil, fmt.Errorf("%w: document requested in %s", workflow.ErrInvalidTransition, c.Status)
	}

	started := s.machine.Now()
	res, genErr := s.generate(ctx, c)
	if genErr == nil && res.Success {
		ev, err = s.finishDocument(ctx, c, res, started)
		return c, err
	}

	detail := res.Error
	if genErr != nil {
		detail = genErr.Error()
	}
	ev, err = s.failCase(ctx, c, "generate_document", "Document generation failed: "+detail, started)
	return c, err
}

// ScheduleDocument queues generation for a case waiting in generating_document.
// A case whose document is already ready is left alone.
func (s *CaseService) ScheduleDocument(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case models.CaseStatusGeneratingDocument:
		if s.scheduler == nil {
			return nil, ErrMissingDependency
		}
		s.scheduler.Enqueue(c.ID)
	case models.CaseStatusDocumentReady, models.CaseStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: document requested in %s", workflow.ErrInvalidTransition, c.Status)
	}
	return c, nil
}

// ConfirmDelivery closes a case after its document has been delivered
func (s *CaseService) ConfirmDelivery(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	started := s.machine.Now()
	if err := s.machine.ConfirmDelivery(c); err != nil {
		return nil, err
	}
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	s.logStep(ctx, c.ID, "confirm_delivery", models.LogOutcomeCompleted, nil, started, "")
	return c, nil
}

// OpenDocument streams the newest generated document of a case
func (s *CaseService) OpenDocument(ctx context.Context, id uuid.UUID) (io.ReadCloser, *models.GeneratedDocument, error) {
	if s.documents == nil || s.blobs == nil {
		return nil, nil, ErrMissingDependency
	}
	doc, err := s.documents.GetLatestByCase(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrDocumentNotReady
	}
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, doc.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrDocumentNotReady
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

// CaseTypes returns the active case types of the current registry snapshot
func (s *CaseService) CaseTypes() []*models.CaseTypeDefinition {
	if s.detector == nil {
		return nil
	}
	return s.detector.Registry().Snapshot().CaseTypes()
}

// RefreshCaseTypes reloads the registry and returns the new snapshot's case types
func (s *CaseService) RefreshCaseTypes(ctx context.Context) ([]*models.CaseTypeDefinition, error) {
	if s.detector == nil {
		return nil, ErrMissingDependency
	}
	snap, err := s.detector.Registry().Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.CaseTypes(), nil
}

func (s *CaseService) load(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	if s.cases == nil {
		return nil, ErrMissingDependency
	}
	c, err := s.cases.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CaseService) suggestions() []string {
	if s.detector == nil {
		return nil
	}
	return s.detector.Registry().Snapshot().Names()
}

// questionsFor returns the current definitions of the case's detected type.
func (s *CaseService) questionsFor(c *models.LegalCase) []models.QuestionDefinition {
	if s.detector == nil || c.DetectedCaseTypeID == nil {
		return nil
	}
	ct, ok := s.detector.Registry().Snapshot().ByID(*c.DetectedCaseTypeID)
	if !ok {
		return nil
	}
	return ct.Questions
}

// caseTypeFor resolves the case's detected type, falling back to the recorded
// name when the type has since been deactivated.
func (s *CaseService) caseTypeFor(c *models.LegalCase) *models.CaseTypeDefinition {
	if c.DetectedCaseTypeID == nil {
		return nil
	}
	if s.detector != nil {
		if ct, ok := s.detector.Registry().Snapshot().ByID(*c.DetectedCaseTypeID); ok {
			return ct
		}
	}
	return &models.CaseTypeDefinition{ID: *c.DetectedCaseTypeID, Name: c.DetectedCaseType}
}

func (s *CaseService) scheduleDocument(id uuid.UUID) {
	if s.scheduler != nil {
		s.scheduler.Enqueue(id)
	}
}

// generate runs the generator under the collaborator timeout. A call cut off
// by the deadline is reported as an error, which makes it retryable.
func (s *CaseService) generate(ctx context.Context, c *models.LegalCase) (document.Result, error) {
	gctx, cancel := context.WithTimeout(ctx, s.collaboratorTimeout)
	defer cancel()

	res, err := s.generator.Generate(gctx, c, s.caseTypeFor(c))
	timedOut := errors.Is(gctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if timedOut && (err != nil || !res.Success) {
		return document.Result{}, fmt.Errorf("document generation timed out after %s: %w",
			s.collaboratorTimeout, context.DeadlineExceeded)
	}
	return res, err
}

// finishDocument records a generated document on c and saves it. The returned
// event is published once the case lock is released.
func (s *CaseService) finishDocument(ctx context.Context, c *models.LegalCase, res document.Result, started time.Time) (*caseEvent, error) {
	if err := s.machine.DocumentReady(c, res.Locator); err != nil {
		return nil, err
	}
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	s.logStep(ctx, c.ID, "generate_document", models.LogOutcomeCompleted, models.LogDetails{
		"document_url":  res.Locator,
		"template_used": res.TemplateUsed,
	}, started, "")
	return s.newEvent(c, notify.KindDocumentReady), nil
}

// failCase moves c to error, saves it and logs the failure. The returned
// event is published once the case lock is released.
func (s *CaseService) failCase(ctx context.Context, c *models.LegalCase, step, detail string, started time.Time) (*caseEvent, error) {
	if err := s.machine.Fail(c, detail); err != nil {
		return nil, err
	}
	if err := s.cases.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	s.logStep(ctx, c.ID, step, models.LogOutcomeFailed, nil, started, detail)
	s.logger.Warn("case moved to error",
		slog.String("case_id", c.ID.String()),
		slog.String("step", step),
		slog.String("detail", detail))
	return s.newEvent(c, notify.KindError), nil
}

// caseEvent is a user notification captured while the case lock is held.
type caseEvent struct {
	userID uuid.UUID
	kind   notify.Kind
	data   map[string]any
}

func (s *CaseService) newEvent(c *models.LegalCase, kind notify.Kind) *caseEvent {
	data := map[string]any{
		"case_id":       c.ID.String(),
		"status":        string(c.Status),
		"case_type":     c.DetectedCaseType,
		"progress":      workflow.Progress(c),
		"error_details": c.ErrorDetails,
	}
	if c.GeneratedDocumentURL != nil {
		data["document_url"] = *c.GeneratedDocumentURL
	}
	return &caseEvent{userID: c.UserID, kind: kind, data: data}
}

// publish sends ev. Callers defer it ahead of the lock release so the
// notifier never runs under the case lock.
func (s *CaseService) publish(ctx context.Context, ev *caseEvent) {
	if ev == nil || s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, ev.userID, ev.kind, ev.data)
}

// logStep appends a processing log entry. Failures to log are not fatal.
func (s *CaseService) logStep(ctx context.Context, caseID uuid.UUID, step string, outcome models.LogOutcome, details models.LogDetails, started time.Time, errMsg string) {
	if s.logs == nil {
		return
	}
	now := s.machine.Now()
	elapsed := now.Sub(started).Milliseconds()
	entry := &models.ProcessingLogEntry{
		CaseID:           caseID,
		Step:             step,
		Outcome:          outcome,
		Details:          details,
		ProcessingTimeMS: &elapsed,
		ErrorMessage:     errMsg,
		Timestamp:        now,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append processing log",
			slog.String("case_id", caseID.String()),
			slog.String("step", step),
			slog.Any("error", err))
	}
}
