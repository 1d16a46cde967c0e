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

// DocumentRepository handles database operations for generated documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *models.GeneratedDocument) error {
	query := `
		INSERT INTO generated_documents (
			id, case_id, filename, mime_type, size, storage_path, template_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(
		ctx, query,
		doc.ID,
		doc.CaseID,
		doc.Filename,
		doc.MimeType,
		doc.Size,
		doc.StoragePath,
		doc.TemplateUsed,
		doc.CreatedAt,
	)
	return err
}

// GetLatestByCase retrieves the newest document generated for a case
func (r *DocumentRepository) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.GeneratedDocument, error) {
	doc := &models.GeneratedDocument{}
	query := `
		SELECT id, case_id, filename, mime_type, size, storage_path, template_used, created_at
		FROM generated_documents
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.QueryRow(ctx, query, caseID).Scan(
		&doc.ID,
		&doc.CaseID,
		&doc.Filename,
		&doc.MimeType,
		&doc.Size,
		&doc.StoragePath,
		&doc.TemplateUsed,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// ListStoragePathsByCaseStatusBefore returns the blob paths of documents that
// belong to cases in status created before cutoff
func (r *DocumentRepository) ListStoragePathsByCaseStatusBefore(ctx context.Context, status models.CaseStatus, cutoff time.Time) ([]string, error) {
	query := `
		SELECT d.storage_path
		FROM generated_documents d
		JOIN legal_cases c ON c.id = d.case_id
		WHERE c.status = $1 AND c.created_at < $2`

	rows, err := r.db.Query(ctx, query, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}
