package document

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"voicelegal-backend/models"
	"voicelegal-backend/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	docs []*models.GeneratedDocument
	err  error
}

func (f *fakeRecorder) Create(ctx context.Context, doc *models.GeneratedDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

var genTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func rentalCase() (*models.LegalCase, *models.CaseTypeDefinition) {
	ct := &models.CaseTypeDefinition{
		ID:   2,
		Name: "Rental Issues",
		Questions: []models.QuestionDefinition{
			{Question: "What is your landlord's name?", FieldName: "landlord_name", Order: 1},
			{Question: "Describe the issue", FieldName: "issue_description", FieldType: models.FieldTypeLongText, Order: 2},
		},
	}
	id := ct.ID
	c := &models.LegalCase{
		ID:                 uuid.New(),
		InitialInput:       "My landlord is not returning my deposit",
		DetectedCaseTypeID: &id,
		DetectedCaseType:   ct.Name,
		QuestionsAsked:     models.StringList{"What is your landlord's name?", "Describe the issue"},
		AnswersReceived: models.Answers{
			"What is your landlord's name?": "Suresh Patil",
			"Describe the issue":            "Vacated in March.\nDeposit of 40000 not returned.",
		},
		CurrentQuestionIndex: 2,
		Status:               models.CaseStatusGeneratingDocument,
		CreatedAt:            genTime.Add(-48 * time.Hour),
	}
	return c, ct
}

func TestRender(t *testing.T) {
	c, ct := rentalCase()
	out := string(Render(c, ct, genTime))

	assert.True(t, strings.HasPrefix(out, "# RENTAL ISSUES\n"))
	assert.Contains(t, out, "**Date:** May 4, 2026")
	assert.Contains(t, out, "My landlord is not returning my deposit")
	assert.Contains(t, out, "- **Landlord Name:** Suresh Patil\n")
	assert.Contains(t, out, "**Issue Description:**\n\nVacated in March.\nDeposit of 40000 not returned.")
	assert.Contains(t, out, "## III. DECLARATION")
}

func TestGenerate_StoresAndRecords(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	rec := &fakeRecorder{}
	gen := NewGenerator(store, WithRecorder(rec), WithClock(func() time.Time { return genTime }))

	c, ct := rentalCase()
	res, err := gen.Generate(context.Background(), c, ct)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, TemplateMarkdown, res.TemplateUsed)
	assert.True(t, strings.HasSuffix(res.Locator, "_20260504_093000.md"))

	require.Len(t, rec.docs, 1)
	assert.Equal(t, c.ID, rec.docs[0].CaseID)
	assert.Equal(t, res.Locator, rec.docs[0].StoragePath)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.docs[0].MimeType)

	rc, err := store.Open(context.Background(), res.Locator)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, rec.docs[0].Size, int64(len(body)))
}

func TestGenerate_TerminalFailures(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	gen := NewGenerator(store)

	c, ct := rentalCase()
	c.DetectedCaseTypeID = nil
	res, err := gen.Generate(context.Background(), c, ct)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no detected case type")

	c, ct = rentalCase()
	c.CurrentQuestionIndex = 1
	res, err = gen.Generate(context.Background(), c, ct)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "1 of 2 answered")
}

func TestGenerate_RecorderFailureIsRetryable(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	gen := NewGenerator(store, WithRecorder(&fakeRecorder{err: errors.New("db unavailable")}),
		WithClock(func() time.Time { return genTime }))

	c, ct := rentalCase()
	res, err := gen.Generate(context.Background(), c, ct)
	require.Error(t, err)
	assert.False(t, res.Success)
}
