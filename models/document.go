package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedDocument represents a document produced for a case
type GeneratedDocument struct {
	ID           uuid.UUID `json:"id"`
	CaseID       uuid.UUID `json:"case_id"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	StoragePath  string    `json:"storage_path"`
	TemplateUsed string    `json:"template_used"`
	CreatedAt    time.Time `json:"created_at"`
}
