package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CaseStatus represents the lifecycle status of a legal case
type CaseStatus string

const (
	CaseStatusInputReceived      CaseStatus = "input_received"
	CaseStatusCaseTypeDetected   CaseStatus = "case_type_detected"
	CaseStatusGatheringInfo      CaseStatus = "gathering_info"
	CaseStatusGeneratingDocument CaseStatus = "generating_document"
	CaseStatusDocumentReady      CaseStatus = "document_ready"
	CaseStatusCompleted          CaseStatus = "completed"
	CaseStatusError              CaseStatus = "error"
)

// IsTerminal reports whether no further transition can leave the status
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusError
}

// InputMode is how the initial description was captured
type InputMode string

const (
	InputModeVoice InputMode = "voice"
	InputModeText  InputMode = "text"
)

// StringList is a JSONB-backed list of strings
type StringList []string

// Value implements driver.Valuer for JSONB
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner for JSONB
func (l *StringList) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Answers maps a question text to its normalized answer
type Answers map[string]string

// Value implements driver.Valuer for JSONB
func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(map[string]string(a))
}

// Scan implements sql.Scanner for JSONB
func (a *Answers) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*a = make(Answers)
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// ProcessingStep is an audit marker on the case itself
type ProcessingStep struct {
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessingSteps represents the ordered list of processing steps
type ProcessingSteps []ProcessingStep

// Value implements driver.Valuer for JSONB
func (p ProcessingSteps) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal([]ProcessingStep{})
	}
	return json.Marshal([]ProcessingStep(p))
}

// Scan implements sql.Scanner for JSONB
func (p *ProcessingSteps) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*p = make(ProcessingSteps, 0)
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// jsonBytes handles the different types pgx might return for JSONB
func jsonBytes(value interface{}) ([]byte, bool) {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil, false
	}
	if len(bytes) == 0 {
		return nil, false
	}
	return bytes, true
}

// LegalCase represents a legal case entity
type LegalCase struct {
	ID            uuid.UUID `json:"case_id"`
	UserID        uuid.UUID `json:"user_id"`
	InitialInput  string    `json:"initial_input"`
	InputMode     InputMode `json:"input_mode"`
	InputLanguage string    `json:"input_language"`

	// Detection
	DetectedCaseTypeID  *int64     `json:"detected_case_type_id,omitempty"`
	DetectedCaseType    string     `json:"detected_case_type,omitempty"`
	DetectionConfidence float64    `json:"detection_confidence"`
	DetectedKeywords    StringList `json:"detected_keywords"`

	// Dialogue
	QuestionsAsked       StringList `json:"questions_asked"`
	AnswersReceived      Answers    `json:"answers_received"`
	CurrentQuestionIndex int        `json:"current_question_index"`

	Status               CaseStatus      `json:"status"`
	ErrorDetails         string          `json:"error_details,omitempty"`
	GeneratedDocumentURL *string         `json:"generated_document_url,omitempty"`
	ProcessingSteps      ProcessingSteps `json:"processing_steps"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CurrentQuestion returns the question under the cursor, if any
func (c *LegalCase) CurrentQuestion() (string, bool) {
	if c.CurrentQuestionIndex < 0 || c.CurrentQuestionIndex >= len(c.QuestionsAsked) {
		return "", false
	}
	return c.QuestionsAsked[c.CurrentQuestionIndex], true
}

// IsQuestioningComplete reports whether every snapshotted question has an answer
func (c *LegalCase) IsQuestioningComplete() bool {
	return c.CurrentQuestionIndex >= len(c.QuestionsAsked)
}

// AddProcessingStep appends an audit marker
func (c *LegalCase) AddProcessingStep(step string, at time.Time) {
	c.ProcessingSteps = append(c.ProcessingSteps, ProcessingStep{Step: step, Timestamp: at})
}

// LastStep returns the most recent processing step name
func (c *LegalCase) LastStep() *string {
	if len(c.ProcessingSteps) == 0 {
		return nil
	}
	step := c.ProcessingSteps[len(c.ProcessingSteps)-1].Step
	return &step
}
