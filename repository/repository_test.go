package repository

import (
	"context"
	"testing"
	"time"

	"voicelegal-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("voicelegal"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, ApplySchema(ctx, pool))
	return pool
}

func TestRepositories(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	users := NewUserRepository(pool)
	caseTypes := NewCaseTypeRepository(pool)
	cases := NewCaseRepository(pool)
	logs := NewProcessingLogRepository(pool)
	docs := NewDocumentRepository(pool)

	phone := "+919812345678"
	user := &models.User{Email: "kiran@example.in", PasswordHash: "x", Name: "Kiran", PhoneNumber: &phone, Language: "te"}
	require.NoError(t, users.Create(ctx, user))

	t.Run("user with preferences", func(t *testing.T) {
		got, prefs, err := users.GetWithPreferences(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "kiran@example.in", got.Email)
		require.NotNil(t, prefs)
		assert.True(t, prefs.EmailNotifications)
		assert.True(t, prefs.SMSNotifications)

		_, _, err = users.GetWithPreferences(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)

		updated := &models.UserPreferences{UserID: user.ID, EmailNotifications: true, SMSNotifications: false}
		require.NoError(t, users.UpdatePreferences(ctx, updated))
		assert.NotZero(t, updated.UpdatedAt)

		_, prefs, err = users.GetWithPreferences(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, prefs)
		assert.True(t, prefs.EmailNotifications)
		assert.False(t, prefs.SMSNotifications)
	})

	minLen := 3
	rental := &models.CaseTypeDefinition{
		Name:                "Rental Issues",
		Keywords:            []string{"rent", "landlord", "deposit"},
		ConfidenceThreshold: 0.6,
		Priority:            8,
		IsActive:            true,
		Questions: []models.QuestionDefinition{
			{Question: "What is your landlord's name?", FieldName: "landlord_name", FieldType: models.FieldTypeText, IsRequired: true, Order: 1,
				ValidationRules: models.ValidationRules{MinLength: &minLen}},
			{Question: "When did you move in?", FieldName: "move_in_date", FieldType: models.FieldTypeDate, IsRequired: true, Order: 2},
		},
	}
	inactive := &models.CaseTypeDefinition{Name: "Archived", Keywords: []string{"old"}, ConfidenceThreshold: 0.5, IsActive: false}

	t.Run("case types upsert and list", func(t *testing.T) {
		require.NoError(t, caseTypes.Upsert(ctx, rental))
		require.NoError(t, caseTypes.Upsert(ctx, inactive))
		firstID := rental.ID

		rental.Priority = 9
		require.NoError(t, caseTypes.Upsert(ctx, rental))
		assert.Equal(t, firstID, rental.ID, "upsert keeps the id of an existing name")

		defs, err := caseTypes.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, 9, defs[0].Priority)
		assert.Equal(t, []string{"rent", "landlord", "deposit"}, defs[0].Keywords)
		require.Len(t, defs[0].Questions, 2)
		assert.Equal(t, models.FieldTypeDate, defs[0].Questions[1].FieldType)
		require.NotNil(t, defs[0].Questions[0].ValidationRules.MinLength)
		assert.Equal(t, 3, *defs[0].Questions[0].ValidationRules.MinLength)
	})

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &models.LegalCase{
		ID:               uuid.New(),
		UserID:           user.ID,
		InitialInput:     "landlord kept my deposit",
		InputMode:        models.InputModeVoice,
		InputLanguage:    "te",
		DetectedKeywords: models.StringList{},
		QuestionsAsked:   models.StringList{},
		AnswersReceived:  models.Answers{},
		Status:           models.CaseStatusInputReceived,
		ProcessingSteps:  models.ProcessingSteps{{Step: "Input received", Timestamp: now}},
		CreatedAt:        now.Add(-3 * time.Hour),
		UpdatedAt:        now.Add(-3 * time.Hour),
	}

	t.Run("case create, update, get", func(t *testing.T) {
		require.NoError(t, cases.Create(ctx, c))

		id := rental.ID
		c.DetectedCaseTypeID = &id
		c.DetectedCaseType = rental.Name
		c.DetectionConfidence = 0.28
		c.DetectedKeywords = models.StringList{"deposit", "landlord"}
		c.QuestionsAsked = models.StringList{"What is your landlord's name?", "When did you move in?"}
		c.AnswersReceived = models.Answers{"What is your landlord's name?": "Ramesh"}
		c.CurrentQuestionIndex = 1
		c.Status = models.CaseStatusGatheringInfo
		require.NoError(t, cases.Update(ctx, c))

		got, err := cases.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CaseStatusGatheringInfo, got.Status)
		assert.Equal(t, 1, got.CurrentQuestionIndex)
		assert.Equal(t, "Ramesh", got.AnswersReceived["What is your landlord's name?"])
		assert.Equal(t, models.StringList{"deposit", "landlord"}, got.DetectedKeywords)
		require.Len(t, got.ProcessingSteps, 1)

		_, err = cases.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)

		mine, err := cases.ListByUserID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, c.ID, mine[0].ID)

		none, err := cases.ListByUserID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("stale and pending queries", func(t *testing.T) {
		stale, err := cases.ListStale(ctx, []models.CaseStatus{models.CaseStatusGatheringInfo}, now.Add(-2*time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, c.ID, stale[0].ID)

		pending, err := cases.ListByStatus(ctx, []models.CaseStatus{models.CaseStatusInputReceived}, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("processing log", func(t *testing.T) {
		elapsed := int64(42)
		entry := &models.ProcessingLogEntry{
			CaseID:           c.ID,
			Step:             "submit_answer",
			Outcome:          models.LogOutcomeCompleted,
			Details:          models.LogDetails{"question_index": 0},
			ProcessingTimeMS: &elapsed,
			Timestamp:        now,
		}
		require.NoError(t, logs.Append(ctx, entry))
		assert.NotZero(t, entry.ID)

		entries, err := logs.ListByCase(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.LogOutcomeCompleted, entries[0].Outcome)
		assert.EqualValues(t, 0, entries[0].Details["question_index"])
	})

	t.Run("documents and retention", func(t *testing.T) {
		doc := &models.GeneratedDocument{
			ID:           uuid.New(),
			CaseID:       c.ID,
			Filename:     "legal_doc.md",
			MimeType:     "text/markdown; charset=utf-8",
			Size:         120,
			StoragePath:  "cases/ab/legal_doc.md",
			TemplateUsed: "markdown-v1",
			CreatedAt:    now,
		}
		require.NoError(t, docs.Create(ctx, doc))

		latest, err := docs.GetLatestByCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.StoragePath, latest.StoragePath)

		c.Status = models.CaseStatusError
		c.ErrorDetails = "timed out"
		require.NoError(t, cases.Update(ctx, c))

		paths, err := docs.ListStoragePathsByCaseStatusBefore(ctx, models.CaseStatusError, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"cases/ab/legal_doc.md"}, paths)

		n, err := cases.DeleteByStatusBefore(ctx, models.CaseStatusError, now, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = cases.GetByID(ctx, c.ID)
		require.NoError(t, err, "dry run keeps the case")

		stats, err := cases.StatsSince(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Total)
		assert.Equal(t, int64(1), stats.Errored)
		assert.Equal(t, int64(1), stats.ByCaseType["Rental Issues"])
		assert.Equal(t, 42.0, stats.AvgProcessingTimeMS)

		n, err = cases.DeleteByStatusBefore(ctx, models.CaseStatusError, now, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = docs.GetLatestByCase(ctx, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
