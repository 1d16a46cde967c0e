package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voicelegal-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	mu   sync.Mutex
	defs []models.CaseTypeDefinition
	err  error
}

func (s *staticSource) ListActive(ctx context.Context) ([]models.CaseTypeDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defs, s.err
}

func (s *staticSource) set(defs []models.CaseTypeDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
}

func propertyDamage() models.CaseTypeDefinition {
	return models.CaseTypeDefinition{
		ID:   1,
		Name: "Property Damage",
		Keywords: []string{
			"property damage", "neighbor", "wall", "damaged",
			"fence", "garden", "building damage", "house damage",
		},
		ConfidenceThreshold: 0.6,
		Priority:            10,
		IsActive:            true,
	}
}

func rentalIssues() models.CaseTypeDefinition {
	return models.CaseTypeDefinition{
		ID:                  2,
		Name:                "Rental Issues",
		Keywords:            []string{"rent", "landlord", "tenant", "eviction", "deposit"},
		ConfidenceThreshold: 0.4,
		Priority:            8,
		IsActive:            true,
	}
}

func newTestRegistry(t *testing.T, defs ...models.CaseTypeDefinition) *Registry {
	t.Helper()
	reg := NewRegistry(&staticSource{defs: defs})
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	return reg
}

// fixedScorer proposes a fixed case type by name, or abstains.
type fixedScorer struct {
	method   Method
	name     string
	score    float64
	keywords []string
	err      error
	panics   bool
}

func (f fixedScorer) Method() Method { return f.method }

func (f fixedScorer) Score(ctx context.Context, snap *Snapshot, text string) (*Candidate, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.name == "" {
		return nil, nil
	}
	ct, ok := snap.ByName(f.name)
	if !ok {
		return nil, nil
	}
	return &Candidate{CaseType: ct, Score: f.score, Keywords: f.keywords}, nil
}

type fakeClassifier struct {
	label      string
	confidence float64
	err        error
	delay      time.Duration
	gotLabels  []string
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	f.gotLabels = labels
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	return f.label, f.confidence, f.err
}

type fakeTranslator struct {
	out string
	err error
}

func (f fakeTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	return f.out, f.err
}

func TestDetect_KeywordOnlyConfidenceIsWeightedScore(t *testing.T) {
	def := models.CaseTypeDefinition{
		ID: 7, Name: "Property Damage", IsActive: true,
		Keywords:            []string{"wall", "damage", "fence", "neighbor"},
		ConfidenceThreshold: 0.5,
	}
	d := NewDetector(newTestRegistry(t, def), WithScorers(KeywordScorer{}))

	got, err := d.Detect(context.Background(), "My neighbor damaged my wall!", "en")
	require.NoError(t, err)

	require.True(t, got.Found())
	assert.Equal(t, int64(7), got.CaseType.ID)
	assert.InDelta(t, 0.4*0.75, got.Confidence, 1e-9)
	assert.Equal(t, []string{"damage", "neighbor", "wall"}, got.MatchedKeywords)
	assert.Equal(t, MethodKeyword, got.Method)
}

func TestDetect_ScenarioA_AllMethodsAbstain(t *testing.T) {
	reg := newTestRegistry(t, propertyDamage())
	d := NewDetector(reg, WithScorers(
		KeywordScorer{},
		fixedScorer{method: MethodSimilarity},
		ExternalScorer{Classifier: &fakeClassifier{label: "other", confidence: 0.9}},
	))

	snap := reg.Snapshot()
	ct, _ := snap.ByName("Property Damage")
	score, matched := KeywordScore("my neighbor damaged my wall", ct.Keywords, snap.keywords[0])
	assert.InDelta(t, 0.375, score, 1e-9)
	assert.Len(t, matched, 3)

	got, err := d.Detect(context.Background(), "my neighbor damaged my wall", "en")
	require.NoError(t, err)
	assert.False(t, got.Found())
	assert.Equal(t, 0.0, got.Confidence)
	assert.Empty(t, got.MatchedKeywords)
}

func TestDetect_ScenarioB_StrongestSingleSignalWins(t *testing.T) {
	classifier := &fakeClassifier{label: "Property Damage", confidence: 0.5}
	d := NewDetector(newTestRegistry(t, propertyDamage(), rentalIssues()), WithScorers(
		fixedScorer{method: MethodKeyword, name: "Property Damage", score: 0.7, keywords: []string{"wall", "damage"}},
		fixedScorer{method: MethodSimilarity},
		ExternalScorer{Classifier: classifier},
	))

	got, err := d.Detect(context.Background(), "damage to the wall", "en")
	require.NoError(t, err)

	require.True(t, got.Found())
	assert.Equal(t, "Property Damage", got.CaseType.Name)
	assert.InDelta(t, 0.28, got.Confidence, 1e-9)
	assert.Equal(t, []string{"damage", "wall"}, got.MatchedKeywords)
	assert.Equal(t, MethodKeyword, got.Method)
	require.Len(t, got.Candidates, 2)
	assert.InDelta(t, 0.15, got.Candidates[1].Weighted, 1e-9)
	assert.Equal(t, []string{"Property Damage", "Rental Issues", "other"}, classifier.gotLabels)
}

func TestDetect_ExternalFailuresDegrade(t *testing.T) {
	tests := []struct {
		name       string
		classifier *fakeClassifier
	}{
		{"error", &fakeClassifier{err: errors.New("503 from upstream")}},
		{"unknown label", &fakeClassifier{label: "Divorce", confidence: 0.9}},
		{"confidence out of range", &fakeClassifier{label: "Rental Issues", confidence: 1.7}},
		{"timeout", &fakeClassifier{label: "Rental Issues", confidence: 0.9, delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, propertyDamage(), rentalIssues())
			d := NewDetector(reg,
				WithScorers(KeywordScorer{}, ExternalScorer{Classifier: tt.classifier}),
				WithCollaboratorTimeout(20*time.Millisecond))

			got, err := d.Detect(context.Background(), "my landlord kept the deposit and sent an eviction notice", "en")
			require.NoError(t, err)
			require.True(t, got.Found())
			assert.Equal(t, "Rental Issues", got.CaseType.Name)
			assert.Equal(t, MethodKeyword, got.Method)
			assert.Len(t, got.Candidates, 1)
		})
	}
}

func TestDetect_PanickingScorerAbstains(t *testing.T) {
	d := NewDetector(newTestRegistry(t, rentalIssues()), WithScorers(
		fixedScorer{method: MethodSimilarity, panics: true},
		KeywordScorer{},
	))

	got, err := d.Detect(context.Background(), "landlord wants more rent", "en")
	require.NoError(t, err)
	require.True(t, got.Found())
	assert.Equal(t, "Rental Issues", got.CaseType.Name)
}

func TestDetect_AllScorersFail(t *testing.T) {
	d := NewDetector(newTestRegistry(t, rentalIssues()), WithScorers(
		fixedScorer{method: MethodKeyword, err: errors.New("db down")},
		fixedScorer{method: MethodSimilarity, panics: true},
		ExternalScorer{Classifier: &fakeClassifier{err: context.DeadlineExceeded}},
	))

	got, err := d.Detect(context.Background(), "landlord wants more rent", "en")
	require.NoError(t, err)
	assert.False(t, got.Found())
	assert.Equal(t, 0.0, got.Confidence)
	assert.Empty(t, got.MatchedKeywords)
}

func TestDetect_Preconditions(t *testing.T) {
	d := NewDetector(newTestRegistry(t, rentalIssues()), WithSupportedLanguages([]string{"en", "hi"}))

	_, err := d.Detect(context.Background(), "   ", "en")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = d.Detect(context.Background(), "rent", "xx")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestDetect_CancelledCallerGetsContextError(t *testing.T) {
	d := NewDetector(newTestRegistry(t, rentalIssues()), WithScorers(
		fixedScorer{method: MethodKeyword, err: context.Canceled},
	))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, "landlord wants more rent", "en")
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, d.Validate("landlord wants more rent", "en"))
	assert.ErrorIs(t, d.Validate("", "en"), ErrEmptyInput)
}

func TestDetect_TranslationFallback(t *testing.T) {
	reg := newTestRegistry(t, rentalIssues())

	translated := NewDetector(reg,
		WithScorers(KeywordScorer{}),
		WithTranslator(fakeTranslator{out: "The landlord is demanding rent and the deposit"}))
	got, err := translated.Detect(context.Background(), "मकान मालिक किराया मांग रहा है", "hi")
	require.NoError(t, err)
	require.True(t, got.Found())
	assert.Equal(t, "the landlord is demanding rent and the deposit", got.NormalizedText)

	failing := NewDetector(reg,
		WithScorers(KeywordScorer{}),
		WithTranslator(fakeTranslator{err: errors.New("translation service unavailable")}))
	got, err = failing.Detect(context.Background(), "Landlord, rent & deposit!", "hi")
	require.NoError(t, err)
	assert.Equal(t, "landlord rent deposit", got.NormalizedText)
	assert.True(t, got.Found())
}

func TestDetect_SimilarityScorer(t *testing.T) {
	reg := newTestRegistry(t, propertyDamage(), rentalIssues())
	d := NewDetector(reg, WithScorers(SimilarityScorer{}))

	got, err := d.Detect(context.Background(), "tenant eviction by landlord", "en")
	require.NoError(t, err)
	require.True(t, got.Found())
	assert.Equal(t, "Rental Issues", got.CaseType.Name)
	assert.Equal(t, MethodSimilarity, got.Method)
	assert.Greater(t, got.Confidence, SimilarityFloor*SimilarityWeight)

	got, err = d.Detect(context.Background(), "completely unrelated sentence", "en")
	require.NoError(t, err)
	assert.False(t, got.Found())
}

func TestKeywordScore_MonotoneAndBounded(t *testing.T) {
	keywords := []string{"rent", "landlord", "tenant", "eviction", "deposit"}
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = Normalize(kw)
	}

	prev := 0.0
	var text []string
	for _, kw := range keywords {
		text = append(text, kw)
		score, matched := KeywordScore(strings.Join(text, " "), keywords, normalized)
		assert.GreaterOrEqual(t, score, prev)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		assert.Len(t, matched, len(text))
		prev = score
	}
	assert.Equal(t, 1.0, prev)
}

func TestCombine_TieBreaks(t *testing.T) {
	low := &models.CaseTypeDefinition{ID: 1, Name: "A", Priority: 1}
	high := &models.CaseTypeDefinition{ID: 2, Name: "B", Priority: 5}
	sameHighLowerID := &models.CaseTypeDefinition{ID: 0, Name: "C", Priority: 5}

	got := Combine([]Candidate{
		{Method: MethodSimilarity, CaseType: low, Weighted: 0.15},
		{Method: MethodExternal, CaseType: high, Weighted: 0.15},
	})
	assert.Equal(t, "B", got.CaseType.Name)

	got = Combine([]Candidate{
		{Method: MethodSimilarity, CaseType: high, Weighted: 0.15},
		{Method: MethodExternal, CaseType: sameHighLowerID, Weighted: 0.15},
	})
	assert.Equal(t, "C", got.CaseType.Name)

	assert.False(t, Combine(nil).Found())
}

func TestCombine_DoesNotSumAcrossMethods(t *testing.T) {
	a := &models.CaseTypeDefinition{ID: 1, Name: "A"}
	b := &models.CaseTypeDefinition{ID: 2, Name: "B"}

	got := Combine([]Candidate{
		{Method: MethodSimilarity, CaseType: a, Weighted: 0.2},
		{Method: MethodExternal, CaseType: a, Weighted: 0.2},
		{Method: MethodKeyword, CaseType: b, Weighted: 0.25, Keywords: []string{"x"}},
	})
	assert.Equal(t, "B", got.CaseType.Name)
	assert.InDelta(t, 0.25, got.Confidence, 1e-9)
	assert.Equal(t, []string{"x"}, got.MatchedKeywords)
}
