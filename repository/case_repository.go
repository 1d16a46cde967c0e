package repository

import (
	"context"
	"errors"
	"time"

	"voicelegal-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

const caseColumns = `id, user_id, initial_input, input_mode, input_language,
	detected_case_type_id, detected_case_type, detection_confidence, detected_keywords,
	questions_asked, answers_received, current_question_index,
	status, error_details, generated_document_url, processing_steps,
	created_at, updated_at, completed_at`

// CaseRepository handles database operations for legal cases
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

func scanCase(row pgx.Row) (*models.LegalCase, error) {
	c := &models.LegalCase{}
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.InitialInput,
		&c.InputMode,
		&c.InputLanguage,
		&c.DetectedCaseTypeID,
		&c.DetectedCaseType,
		&c.DetectionConfidence,
		&c.DetectedKeywords,
		&c.QuestionsAsked,
		&c.AnswersReceived,
		&c.CurrentQuestionIndex,
		&c.Status,
		&c.ErrorDetails,
		&c.GeneratedDocumentURL,
		&c.ProcessingSteps,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.AnswersReceived == nil {
		c.AnswersReceived = make(models.Answers)
	}
	return c, nil
}

func collectCases(rows pgx.Rows) ([]*models.LegalCase, error) {
	defer rows.Close()

	var cases []*models.LegalCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Create inserts a new case. The id and timestamps are assigned by the caller.
func (r *CaseRepository) Create(ctx context.Context, c *models.LegalCase) error {
	query := `
		INSERT INTO legal_cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.Exec(
		ctx, query,
		c.ID,
		c.UserID,
		c.InitialInput,
		c.InputMode,
		c.InputLanguage,
		c.DetectedCaseTypeID,
		c.DetectedCaseType,
		c.DetectionConfidence,
		c.DetectedKeywords,
		c.QuestionsAsked,
		c.AnswersReceived,
		c.CurrentQuestionIndex,
		c.Status,
		c.ErrorDetails,
		c.GeneratedDocumentURL,
		c.ProcessingSteps,
		c.CreatedAt,
		c.UpdatedAt,
		c.CompletedAt,
	)
	return err
}

// GetByID retrieves a case by ID
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LegalCase, error) {
	query := `SELECT ` + caseColumns + ` FROM legal_cases WHERE id = $1`
	return scanCase(r.db.QueryRow(ctx, query, id))
}

// Update writes every mutable field of a case
func (r *CaseRepository) Update(ctx context.Context, c *models.LegalCase) error {
	query := `
		UPDATE legal_cases SET
			detected_case_type_id = $2,
			detected_case_type = $3,
			detection_confidence = $4,
			detected_keywords = $5,
			questions_asked = $6,
			answers_received = $7,
			current_question_index = $8,
			status = $9,
			error_details = $10,
			generated_document_url = $11,
			processing_steps = $12,
			updated_at = $13,
			completed_at = $14
		WHERE id = $1`

	tag, err := r.db.Exec(
		ctx, query,
		c.ID,
		c.DetectedCaseTypeID,
		c.DetectedCaseType,
		c.DetectionConfidence,
		c.DetectedKeywords,
		c.QuestionsAsked,
		c.AnswersReceived,
		c.CurrentQuestionIndex,
		c.Status,
		c.ErrorDetails,
		c.GeneratedDocumentURL,
		c.ProcessingSteps,
		c.UpdatedAt,
		c.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale returns cases in one of statuses last updated before cutoff
func (r *CaseRepository) ListStale(ctx context.Context, statuses []models.CaseStatus, cutoff time.Time) ([]*models.LegalCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM legal_cases
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC`

	rows, err := r.db.Query(ctx, query, statusStrings(statuses), cutoff)
	if err != nil {
		return nil, err
	}
	return collectCases(rows)
}

// ListByStatus returns up to limit cases in one of statuses, oldest first
func (r *CaseRepository) ListByStatus(ctx context.Context, statuses []models.CaseStatus, limit int) ([]*models.LegalCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM legal_cases
		WHERE status = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	return collectCases(rows)
}

// ListByUserID retrieves all cases for a user, newest first
func (r *CaseRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LegalCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM legal_cases
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectCases(rows)
}

// DeleteByStatusBefore removes cases in status created before cutoff and
// returns how many were removed. With dryRun the rows are only counted.
func (r *CaseRepository) DeleteByStatusBefore(ctx context.Context, status models.CaseStatus, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var n int64
		err := r.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM legal_cases WHERE status = $1 AND created_at < $2`,
			status, cutoff).Scan(&n)
		return n, err
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM legal_cases WHERE status = $1 AND created_at < $2`,
		status, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CaseStats aggregates cases created in a time window
type CaseStats struct {
	Total      int64
	Completed  int64
	Errored    int64
	ByCaseType map[string]int64
	// AvgProcessingTimeMS averages the timed processing log entries in the window
	AvgProcessingTimeMS float64
}

// StatsSince aggregates cases created, and processing steps logged, at or
// after since
func (r *CaseRepository) StatsSince(ctx context.Context, since time.Time) (*CaseStats, error) {
	stats := &CaseStats{ByCaseType: make(map[string]int64)}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'error')
		FROM legal_cases
		WHERE created_at >= $1`, since).Scan(&stats.Total, &stats.Completed, &stats.Errored)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT detected_case_type, COUNT(*)
		FROM legal_cases
		WHERE created_at >= $1 AND detected_case_type <> ''
		GROUP BY detected_case_type`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		stats.ByCaseType[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(processing_time_ms), 0)::float8
		FROM case_processing_logs
		WHERE timestamp >= $1 AND processing_time_ms IS NOT NULL`, since).Scan(&stats.AvgProcessingTimeMS)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func statusStrings(statuses []models.CaseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
