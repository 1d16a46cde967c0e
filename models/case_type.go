package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// FieldType represents the kind of value a question collects
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeDate     FieldType = "date"
	FieldTypeNumber   FieldType = "number"
	FieldTypeAddress  FieldType = "address"
	FieldTypePhone    FieldType = "phone"
	FieldTypeEmail    FieldType = "email"
	FieldTypeSelect   FieldType = "select"
	FieldTypeLongText FieldType = "long-text"
)

// ParseFieldType maps a stored field type to a FieldType.
// Seed data written for the form builder uses "textarea" for long text.
func ParseFieldType(s string) (FieldType, bool) {
	switch ft := FieldType(strings.ToLower(strings.TrimSpace(s))); ft {
	case FieldTypeText, FieldTypeDate, FieldTypeNumber, FieldTypeAddress,
		FieldTypePhone, FieldTypeEmail, FieldTypeSelect, FieldTypeLongText:
		return ft, true
	case "textarea", "long_text":
		return FieldTypeLongText, true
	default:
		return "", false
	}
}

// ValidationRules holds the structured constraints applied to an answer
type ValidationRules struct {
	MinLength *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	NotFuture bool     `json:"not_future,omitempty" yaml:"not_future,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Value implements driver.Valuer for JSONB
func (v ValidationRules) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *ValidationRules) Scan(value interface{}) error {
	var bytes []byte
	switch val := value.(type) {
	case nil:
		*v = ValidationRules{}
		return nil
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		*v = ValidationRules{}
		return nil
	}
	if len(bytes) == 0 {
		*v = ValidationRules{}
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// QuestionDefinition is one question in a case type's dialogue
type QuestionDefinition struct {
	ID              int64           `json:"id"`
	CaseTypeID      int64           `json:"case_type_id"`
	Question        string          `json:"question"`
	FieldName       string          `json:"field_name"`
	FieldType       FieldType       `json:"field_type"`
	IsRequired      bool            `json:"is_required"`
	Order           int             `json:"order"`
	ValidationRules ValidationRules `json:"validation_rules"`
	HelpText        string          `json:"help_text,omitempty"`
}

// CaseTypeDefinition is an operator-maintained category of legal problem
type CaseTypeDefinition struct {
	ID                  int64                `json:"id"`
	Name                string               `json:"name"`
	Keywords            []string             `json:"keywords"`
	ConfidenceThreshold float64              `json:"confidence_threshold"`
	Priority            int                  `json:"priority"`
	IsActive            bool                 `json:"is_active"`
	Questions           []QuestionDefinition `json:"questions,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}
