package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatement is one DDL step of the database schema
type SchemaStatement struct {
	Name string
	SQL  string
}

// Schema lists the tables and indexes in creation order
var Schema = []SchemaStatement{
	{
		Name: "users table",
		SQL: `CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    phone_number VARCHAR(20),
    preferred_language VARCHAR(10) NOT NULL DEFAULT 'en',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name: "user_preferences table",
		SQL: `CREATE TABLE IF NOT EXISTS user_preferences (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    email_notifications BOOLEAN NOT NULL DEFAULT true,
    sms_notifications BOOLEAN NOT NULL DEFAULT false,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name: "case_types table",
		SQL: `CREATE TABLE IF NOT EXISTS case_types (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL UNIQUE,
    keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
    confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.7
        CHECK (confidence_threshold >= 0 AND confidence_threshold <= 1),
    priority INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name: "questions table",
		SQL: `CREATE TABLE IF NOT EXISTS questions (
    id BIGSERIAL PRIMARY KEY,
    case_type_id BIGINT NOT NULL REFERENCES case_types(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    field_name VARCHAR(100) NOT NULL,
    field_type VARCHAR(20) NOT NULL DEFAULT 'text',
    is_required BOOLEAN NOT NULL DEFAULT true,
    question_order INTEGER NOT NULL DEFAULT 0,
    validation_rules JSONB NOT NULL DEFAULT '{}'::jsonb,
    help_text TEXT NOT NULL DEFAULT '',
    CONSTRAINT question_order_unique UNIQUE (case_type_id, question_order)
);`,
	},
	{
		Name: "legal_cases table",
		SQL: `CREATE TABLE IF NOT EXISTS legal_cases (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    initial_input TEXT NOT NULL,
    input_mode VARCHAR(10) NOT NULL DEFAULT 'text',
    input_language VARCHAR(10) NOT NULL DEFAULT 'en',
    detected_case_type_id BIGINT REFERENCES case_types(id) ON DELETE SET NULL,
    detected_case_type VARCHAR(100) NOT NULL DEFAULT '',
    detection_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    detected_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
    questions_asked JSONB NOT NULL DEFAULT '[]'::jsonb,
    answers_received JSONB NOT NULL DEFAULT '{}'::jsonb,
    current_question_index INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(30) NOT NULL DEFAULT 'input_received',
    error_details TEXT NOT NULL DEFAULT '',
    generated_document_url TEXT,
    processing_steps JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);`,
	},
	{
		Name: "case_processing_logs table",
		SQL: `CREATE TABLE IF NOT EXISTS case_processing_logs (
    id BIGSERIAL PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES legal_cases(id) ON DELETE CASCADE,
    step VARCHAR(100) NOT NULL,
    status VARCHAR(20) NOT NULL,
    details JSONB NOT NULL DEFAULT '{}'::jsonb,
    processing_time_ms BIGINT,
    error_message TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name: "generated_documents table",
		SQL: `CREATE TABLE IF NOT EXISTS generated_documents (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES legal_cases(id) ON DELETE CASCADE,
    filename VARCHAR(255) NOT NULL,
    mime_type VARCHAR(255) NOT NULL,
    size BIGINT NOT NULL,
    storage_path TEXT NOT NULL,
    template_used VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name: "case status index",
		SQL:  "CREATE INDEX IF NOT EXISTS idx_legal_cases_status_updated ON legal_cases(status, updated_at);",
	},
	{
		Name: "case user index",
		SQL:  "CREATE INDEX IF NOT EXISTS idx_legal_cases_user ON legal_cases(user_id, created_at DESC);",
	},
	{
		Name: "processing log case index",
		SQL:  "CREATE INDEX IF NOT EXISTS idx_processing_logs_case ON case_processing_logs(case_id, timestamp);",
	},
	{
		Name: "document case index",
		SQL:  "CREATE INDEX IF NOT EXISTS idx_generated_documents_case ON generated_documents(case_id, created_at DESC);",
	},
}

// ApplySchema creates every table and index that does not exist yet
func ApplySchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt.SQL); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.Name, err)
		}
	}
	return nil
}
