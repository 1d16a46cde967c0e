package repository

import (
	"context"
	"fmt"

	"voicelegal-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseTypeRepository handles database operations for case types and their questions
type CaseTypeRepository struct {
	db *pgxpool.Pool
}

// NewCaseTypeRepository creates a new case type repository
func NewCaseTypeRepository(db *pgxpool.Pool) *CaseTypeRepository {
	return &CaseTypeRepository{db: db}
}

// ListActive retrieves every active case type with its questions in order
func (r *CaseTypeRepository) ListActive(ctx context.Context) ([]models.CaseTypeDefinition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, keywords, confidence_threshold, priority, is_active, created_at, updated_at
		FROM case_types
		WHERE is_active = true
		ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []models.CaseTypeDefinition
	index := make(map[int64]int)
	for rows.Next() {
		var def models.CaseTypeDefinition
		var keywords models.StringList
		err := rows.Scan(
			&def.ID,
			&def.Name,
			&keywords,
			&def.ConfidenceThreshold,
			&def.Priority,
			&def.IsActive,
			&def.CreatedAt,
			&def.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		def.Keywords = []string(keywords)
		index[def.ID] = len(defs)
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return defs, nil
	}

	ids := make([]int64, 0, len(defs))
	for id := range index {
		ids = append(ids, id)
	}

	qrows, err := r.db.Query(ctx, `
		SELECT id, case_type_id, question, field_name, field_type, is_required,
			question_order, validation_rules, help_text
		FROM questions
		WHERE case_type_id = ANY($1)
		ORDER BY case_type_id, question_order`, ids)
	if err != nil {
		return nil, err
	}
	defer qrows.Close()

	for qrows.Next() {
		var q models.QuestionDefinition
		var fieldType string
		err := qrows.Scan(
			&q.ID,
			&q.CaseTypeID,
			&q.Question,
			&q.FieldName,
			&fieldType,
			&q.IsRequired,
			&q.Order,
			&q.ValidationRules,
			&q.HelpText,
		)
		if err != nil {
			return nil, err
		}
		ft, ok := models.ParseFieldType(fieldType)
		if !ok {
			return nil, fmt.Errorf("question %d has unknown field type %q", q.ID, fieldType)
		}
		q.FieldType = ft

		i := index[q.CaseTypeID]
		defs[i].Questions = append(defs[i].Questions, q)
	}

	return defs, qrows.Err()
}

// Upsert creates or replaces a case type by name, replacing its questions
func (r *CaseTypeRepository) Upsert(ctx context.Context, def *models.CaseTypeDefinition) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO case_types (name, keywords, confidence_threshold, priority, is_active)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO UPDATE SET
				keywords = EXCLUDED.keywords,
				confidence_threshold = EXCLUDED.confidence_threshold,
				priority = EXCLUDED.priority,
				is_active = EXCLUDED.is_active,
				updated_at = NOW()
			RETURNING id, created_at, updated_at`,
			def.Name,
			models.StringList(def.Keywords),
			def.ConfidenceThreshold,
			def.Priority,
			def.IsActive,
		).Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert case type %s: %w", def.Name, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE case_type_id = $1`, def.ID); err != nil {
			return fmt.Errorf("failed to clear questions for %s: %w", def.Name, err)
		}

		for i := range def.Questions {
			q := &def.Questions[i]
			q.CaseTypeID = def.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO questions (
					case_type_id, question, field_name, field_type, is_required,
					question_order, validation_rules, help_text
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`,
				q.CaseTypeID,
				q.Question,
				q.FieldName,
				string(q.FieldType),
				q.IsRequired,
				q.Order,
				q.ValidationRules,
				q.HelpText,
			).Scan(&q.ID)
			if err != nil {
				return fmt.Errorf("failed to insert question %q: %w", q.Question, err)
			}
		}
		return nil
	})
}

// DeleteAll removes every case type and question
func (r *CaseTypeRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM case_types`)
	return err
}
