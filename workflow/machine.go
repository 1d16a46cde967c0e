// Package workflow implements the legal-case lifecycle: status transitions,
// question cursor handling and progress reporting. It mutates case values in
// memory only; persistence and locking belong to the caller.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/metrics"
	"voicelegal-backend/models"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed from the case's status
	ErrInvalidTransition = errors.New("invalid case status transition")
	// ErrQuestioningComplete is returned when an answer arrives after the last question
	ErrQuestioningComplete = errors.New("all questions have already been answered")
	// ErrNoCaseType is returned when a detection result carries no case type
	ErrNoCaseType = errors.New("no case type detected")
)

// transitions lists the statuses reachable from each status.
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseStatusInputReceived:      {models.CaseStatusCaseTypeDetected, models.CaseStatusError},
	models.CaseStatusCaseTypeDetected:   {models.CaseStatusGatheringInfo, models.CaseStatusGeneratingDocument, models.CaseStatusError},
	models.CaseStatusGatheringInfo:      {models.CaseStatusGeneratingDocument, models.CaseStatusError},
	models.CaseStatusGeneratingDocument: {models.CaseStatusDocumentReady, models.CaseStatusError},
	models.CaseStatusDocumentReady:      {models.CaseStatusCompleted, models.CaseStatusError},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to models.CaseStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Detection is the outcome of case-type detection applied to a case.
type Detection struct {
	CaseType   *models.CaseTypeDefinition
	Confidence float64
	Keywords   []string
}

// Machine applies lifecycle rules to case values.
type Machine struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Machine
type Option func(*Machine)

// WithClock overrides the time source used for timestamps and date validation
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// New creates a Machine
func New(opts ...Option) *Machine {
	m := &Machine{
		now:    time.Now,
		logger: logging.New("workflow"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the machine's current time.
func (m *Machine) Now() time.Time {
	return m.now()
}

// NewCase creates a case in input_received. The id is assigned once here.
func (m *Machine) NewCase(userID uuid.UUID, text string, mode models.InputMode, language string) *models.LegalCase {
	now := m.now()
	c := &models.LegalCase{
		ID:               uuid.New(),
		UserID:           userID,
		InitialInput:     text,
		InputMode:        mode,
		InputLanguage:    language,
		DetectedKeywords: models.StringList{},
		QuestionsAsked:   models.StringList{},
		AnswersReceived:  models.Answers{},
		Status:           models.CaseStatusInputReceived,
		ProcessingSteps:  models.ProcessingSteps{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	c.AddProcessingStep("Input received", now)
	metrics.CaseTransitions.WithLabelValues(string(models.CaseStatusInputReceived)).Inc()
	return c
}

func (m *Machine) transition(c *models.LegalCase, to models.CaseStatus, step string) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	now := m.now()
	m.logger.Debug("case transition",
		slog.String("case_id", c.ID.String()),
		slog.String("from", string(c.Status)),
		slog.String("to", string(to)))
	c.Status = to
	c.UpdatedAt = now
	if step != "" {
		c.AddProcessingStep(step, now)
	}
	metrics.CaseTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// ApplyDetection records a detected case type on a case in input_received,
// snapshots its questions and advances to gathering_info, or straight to
// generating_document when the type has no questions.
func (m *Machine) ApplyDetection(c *models.LegalCase, d Detection) error {
	if d.CaseType == nil {
		return ErrNoCaseType
	}
	if c.Status != models.CaseStatusInputReceived {
		return fmt.Errorf("%w: detection applied in %s", ErrInvalidTransition, c.Status)
	}
	if err := m.transition(c, models.CaseStatusCaseTypeDetected, "Case type detected: "+d.CaseType.Name); err != nil {
		return err
	}
	m.recordDetection(c, d)
	return m.advanceFromDetected(c)
}

func (m *Machine) recordDetection(c *models.LegalCase, d Detection) {
	id := d.CaseType.ID
	c.DetectedCaseTypeID = &id
	c.DetectedCaseType = d.CaseType.Name
	c.DetectionConfidence = d.Confidence
	c.DetectedKeywords = append(models.StringList{}, d.Keywords...)

	questions := make(models.StringList, 0, len(d.CaseType.Questions))
	for _, q := range d.CaseType.Questions {
		questions = append(questions, q.Question)
	}
	c.QuestionsAsked = questions
	c.AnswersReceived = models.Answers{}
	c.CurrentQuestionIndex = 0
}

func (m *Machine) advanceFromDetected(c *models.LegalCase) error {
	if len(c.QuestionsAsked) == 0 {
		return m.transition(c, models.CaseStatusGeneratingDocument, "No questions required")
	}
	return m.transition(c, models.CaseStatusGatheringInfo, "Gathering information")
}

// ApplyRedetection replaces the detection on a case still in input_received
// or case_type_detected, but only when the new confidence is strictly higher.
// It reports whether the case changed.
func (m *Machine) ApplyRedetection(c *models.LegalCase, d Detection) (bool, error) {
	if d.CaseType == nil {
		return false, nil
	}
	switch c.Status {
	case models.CaseStatusInputReceived:
		if c.DetectedCaseTypeID != nil && d.Confidence <= c.DetectionConfidence {
			return false, nil
		}
		return true, m.ApplyDetection(c, d)
	case models.CaseStatusCaseTypeDetected:
		if d.Confidence <= c.DetectionConfidence {
			return false, nil
		}
		m.recordDetection(c, d)
		c.UpdatedAt = m.now()
		c.AddProcessingStep("Case type re-detected: "+d.CaseType.Name, c.UpdatedAt)
		return true, m.advanceFromDetected(c)
	default:
		return false, fmt.Errorf("%w: re-detection in %s", ErrInvalidTransition, c.Status)
	}
}

// SubmitAnswer validates answer against the question under the cursor, stores
// it and advances the cursor by one. defs are the case type's question
// definitions; a snapshotted question with no definition is validated as
// required free text. Validation failures leave c untouched.
func (m *Machine) SubmitAnswer(c *models.LegalCase, defs []models.QuestionDefinition, answer string) error {
	if c.Status != models.CaseStatusGatheringInfo {
		if c.IsQuestioningComplete() && c.Status == models.CaseStatusGeneratingDocument {
			return ErrQuestioningComplete
		}
		return fmt.Errorf("%w: answer submitted in %s", ErrInvalidTransition, c.Status)
	}
	question, ok := c.CurrentQuestion()
	if !ok {
		return ErrQuestioningComplete
	}

	def := lookupQuestion(defs, question)
	value, err := ValidateAnswer(def, answer, m.now())
	if err != nil {
		metrics.AnswerValidationFailures.WithLabelValues(string(def.FieldType)).Inc()
		return err
	}

	if c.AnswersReceived == nil {
		c.AnswersReceived = models.Answers{}
	}
	c.AnswersReceived[question] = value
	c.CurrentQuestionIndex++
	c.UpdatedAt = m.now()

	if c.IsQuestioningComplete() {
		return m.transition(c, models.CaseStatusGeneratingDocument, "All questions answered")
	}
	return nil
}

// lookupQuestion finds the definition for a snapshotted question by text.
func lookupQuestion(defs []models.QuestionDefinition, question string) models.QuestionDefinition {
	for _, d := range defs {
		if d.Question == question {
			return d
		}
	}
	return models.QuestionDefinition{
		Question:   question,
		FieldType:  models.FieldTypeText,
		IsRequired: true,
	}
}

// DocumentReady records a generated document on a case in generating_document.
func (m *Machine) DocumentReady(c *models.LegalCase, locator string) error {
	if err := m.transition(c, models.CaseStatusDocumentReady, "Document generated"); err != nil {
		return err
	}
	loc := locator
	c.GeneratedDocumentURL = &loc
	c.ErrorDetails = ""
	completed := c.UpdatedAt
	c.CompletedAt = &completed
	return nil
}

// ConfirmDelivery closes a case whose document has been delivered.
func (m *Machine) ConfirmDelivery(c *models.LegalCase) error {
	return m.transition(c, models.CaseStatusCompleted, "Document delivered")
}

// Fail moves a non-terminal case to error with detail. Collected answers are kept.
func (m *Machine) Fail(c *models.LegalCase, detail string) error {
	if err := m.transition(c, models.CaseStatusError, "Error: "+detail); err != nil {
		return err
	}
	c.ErrorDetails = detail
	return nil
}

// Progress reports a 0-100 completion estimate for c.
func Progress(c *models.LegalCase) float64 {
	switch c.Status {
	case models.CaseStatusInputReceived:
		return 10
	case models.CaseStatusCaseTypeDetected:
		return 25
	case models.CaseStatusGatheringInfo:
		total := len(c.QuestionsAsked)
		if total == 0 {
			return 50
		}
		answered := c.CurrentQuestionIndex
		if answered > total {
			answered = total
		}
		return 25 + 50*float64(answered)/float64(total)
	case models.CaseStatusGeneratingDocument:
		return 80
	case models.CaseStatusDocumentReady:
		return 95
	case models.CaseStatusCompleted:
		return 100
	default:
		return 0
	}
}

// Status is the reporting view of a case.
type Status struct {
	CaseID            uuid.UUID         `json:"case_id"`
	Status            models.CaseStatus `json:"status"`
	Progress          float64           `json:"progress"`
	CurrentStep       *string           `json:"current_step"`
	CurrentQuestion   *string           `json:"current_question"`
	QuestionsTotal    int               `json:"questions_total"`
	QuestionsAnswered int               `json:"questions_answered"`
	CaseType          *string           `json:"case_type"`
	Confidence        float64           `json:"confidence"`
	ErrorDetails      string            `json:"error_details,omitempty"`
	Suggestions       []string          `json:"suggestions,omitempty"`
}

// StatusOf builds the status view. suggestions are offered only for cases in error.
func StatusOf(c *models.LegalCase, suggestions []string) Status {
	s := Status{
		CaseID:            c.ID,
		Status:            c.Status,
		Progress:          Progress(c),
		CurrentStep:       c.LastStep(),
		QuestionsTotal:    len(c.QuestionsAsked),
		QuestionsAnswered: c.CurrentQuestionIndex,
		Confidence:        c.DetectionConfidence,
	}
	if c.Status == models.CaseStatusGatheringInfo {
		if q, ok := c.CurrentQuestion(); ok {
			s.CurrentQuestion = &q
		}
	}
	if c.DetectedCaseType != "" {
		name := c.DetectedCaseType
		s.CaseType = &name
	}
	if c.Status == models.CaseStatusError {
		s.ErrorDetails = c.ErrorDetails
		s.Suggestions = suggestions
	}
	return s
}
