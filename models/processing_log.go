package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LogOutcome represents the outcome recorded for a processing step
type LogOutcome string

const (
	LogOutcomeStarted   LogOutcome = "started"
	LogOutcomeCompleted LogOutcome = "completed"
	LogOutcomeFailed    LogOutcome = "failed"
)

// LogDetails holds structured details for a processing log entry
type LogDetails map[string]interface{}

// Value implements driver.Valuer for JSONB
func (d LogDetails) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(map[string]interface{}(d))
}

// Scan implements sql.Scanner for JSONB
func (d *LogDetails) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*d = make(LogDetails)
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// ProcessingLogEntry is a write-once audit record for a case
type ProcessingLogEntry struct {
	ID               int64      `json:"id"`
	CaseID           uuid.UUID  `json:"case_id"`
	Step             string     `json:"step"`
	Outcome          LogOutcome `json:"outcome"`
	Details          LogDetails `json:"details"`
	ProcessingTimeMS *int64     `json:"processing_time_ms,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}
