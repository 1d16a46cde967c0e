package repository

import (
	"context"

	"voicelegal-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessingLogRepository handles the append-only case processing log
type ProcessingLogRepository struct {
	db *pgxpool.Pool
}

// NewProcessingLogRepository creates a new processing log repository
func NewProcessingLogRepository(db *pgxpool.Pool) *ProcessingLogRepository {
	return &ProcessingLogRepository{db: db}
}

// Append inserts a log entry
func (r *ProcessingLogRepository) Append(ctx context.Context, entry *models.ProcessingLogEntry) error {
	query := `
		INSERT INTO case_processing_logs (
			case_id, step, status, details, processing_time_ms, error_message, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return r.db.QueryRow(
		ctx, query,
		entry.CaseID,
		entry.Step,
		entry.Outcome,
		entry.Details,
		entry.ProcessingTimeMS,
		entry.ErrorMessage,
		entry.Timestamp,
	).Scan(&entry.ID)
}

// ListByCase retrieves the log of a case in insertion order
func (r *ProcessingLogRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.ProcessingLogEntry, error) {
	query := `
		SELECT id, case_id, step, status, details, processing_time_ms, error_message, timestamp
		FROM case_processing_logs
		WHERE case_id = $1
		ORDER BY timestamp ASC, id ASC`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ProcessingLogEntry
	for rows.Next() {
		e := &models.ProcessingLogEntry{}
		err := rows.Scan(
			&e.ID,
			&e.CaseID,
			&e.Step,
			&e.Outcome,
			&e.Details,
			&e.ProcessingTimeMS,
			&e.ErrorMessage,
			&e.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
