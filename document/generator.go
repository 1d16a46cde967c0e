// Package document renders case documents and stores them in blob storage.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/models"
	"voicelegal-backend/storage"

	"github.com/google/uuid"
)

// TemplateMarkdown names the built-in Markdown layout
const TemplateMarkdown = "markdown-v1"

var (
	// ErrNoCaseType is reported when a case has no detected case type
	ErrNoCaseType = errors.New("case has no detected case type")
	// ErrQuestionsPending is reported when a case still has unanswered questions
	ErrQuestionsPending = errors.New("case has unanswered questions")
)

// Result is the outcome of a generation attempt. A failed Result is final;
// transient failures are returned as errors instead.
type Result struct {
	Success      bool
	Locator      string
	Error        string
	TemplateUsed string
}

// Recorder persists generated document metadata
type Recorder interface {
	Create(ctx context.Context, doc *models.GeneratedDocument) error
}

// Generator renders Markdown documents for cases
type Generator struct {
	storage  storage.Storage
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithRecorder records a generated_documents row for each document
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		g.recorder = r
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a generator writing to store
func NewGenerator(store storage.Storage, opts ...Option) *Generator {
	g := &Generator{
		storage: store,
		now:     time.Now,
		logger:  logging.New("document"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders c using the questions of ct, stores the document and
// returns its storage path as the locator.
func (g *Generator) Generate(ctx context.Context, c *models.LegalCase, ct *models.CaseTypeDefinition) (Result, error) {
	if c.DetectedCaseTypeID == nil || ct == nil {
		return Result{Error: ErrNoCaseType.Error()}, nil
	}
	if !c.IsQuestioningComplete() {
		return Result{Error: fmt.Sprintf("%s: %d of %d answered",
			ErrQuestionsPending, c.CurrentQuestionIndex, len(c.QuestionsAsked))}, nil
	}

	now := g.now()
	content := Render(c, ct, now)
	filename := fmt.Sprintf("legal_doc_%s_%s.md", c.ID, now.Format("20060102_150405"))

	path, err := g.storage.Save(ctx, c.ID, filename, bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("failed to store document: %w", err)
	}

	if g.recorder != nil {
		doc := &models.GeneratedDocument{
			ID:           uuid.New(),
			CaseID:       c.ID,
			Filename:     filename,
			MimeType:     storage.ContentType(filename),
			Size:         int64(len(content)),
			StoragePath:  path,
			TemplateUsed: TemplateMarkdown,
			CreatedAt:    now,
		}
		if err := g.recorder.Create(ctx, doc); err != nil {
			if delErr := g.storage.Delete(ctx, path); delErr != nil {
				g.logger.Warn("failed to remove orphaned document",
					slog.String("path", path), slog.Any("error", delErr))
			}
			return Result{}, fmt.Errorf("failed to record document: %w", err)
		}
	}

	g.logger.Info("document generated",
		slog.String("case_id", c.ID.String()),
		slog.String("path", path),
		slog.Int("bytes", len(content)))

	return Result{Success: true, Locator: path, TemplateUsed: TemplateMarkdown}, nil
}

// Render builds the Markdown document for a case.
func Render(c *models.LegalCase, ct *models.CaseTypeDefinition, now time.Time) []byte {
	var b strings.Builder

	b.WriteString("# " + strings.ToUpper(ct.Name) + "\n\n")
	fmt.Fprintf(&b, "**Case ID:** %s  \n", c.ID)
	fmt.Fprintf(&b, "**Date:** %s  \n", now.Format("January 2, 2006"))
	fmt.Fprintf(&b, "**Filed on:** %s\n\n", c.CreatedAt.Format("January 2, 2006"))

	b.WriteString("## I. STATEMENT OF THE PROBLEM\n\n")
	b.WriteString(strings.TrimSpace(c.InitialInput) + "\n\n")

	b.WriteString("## II. PARTICULARS\n\n")
	labels := fieldLabels(ct)
	for _, q := range c.QuestionsAsked {
		answer, ok := c.AnswersReceived[q]
		if !ok || answer == "" {
			answer = "Not provided"
		}
		label := labels[q]
		if label == "" {
			label = q
		}
		if strings.Contains(answer, "\n") {
			fmt.Fprintf(&b, "**%s:**\n\n%s\n\n", label, answer)
			continue
		}
		fmt.Fprintf(&b, "- **%s:** %s\n", label, answer)
	}
	b.WriteString("\n")

	b.WriteString("## III. DECLARATION\n\n")
	b.WriteString("I declare that the information given above is true and correct to the best of my knowledge and belief.\n")

	return []byte(b.String())
}

// fieldLabels maps question text to a readable label built from its field name.
func fieldLabels(ct *models.CaseTypeDefinition) map[string]string {
	labels := make(map[string]string, len(ct.Questions))
	for _, q := range ct.Questions {
		if q.FieldName == "" {
			continue
		}
		words := strings.Fields(strings.ReplaceAll(q.FieldName, "_", " "))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		labels[q.Question] = strings.Join(words, " ")
	}
	return labels
}
