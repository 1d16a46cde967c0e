package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/metrics"
	"voicelegal-backend/models"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyInput          = errors.New("input text is empty")
	ErrUnsupportedLanguage = errors.New("unsupported source language")
)

// Translator converts text between language tags. Failures are tolerated.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Detection is the ensemble decision. CaseType is nil when every method abstained.
type Detection struct {
	CaseType        *models.CaseTypeDefinition
	Confidence      float64
	MatchedKeywords []string
	Method          Method
	NormalizedText  string
	Candidates      []Candidate
}

// Found reports whether a case type was detected
func (d Detection) Found() bool {
	return d.CaseType != nil
}

// Detector combines the keyword, similarity and external scorers
type Detector struct {
	registry              *Registry
	scorers               []Scorer
	translator            Translator
	normalizationLanguage string
	supportedLanguages    map[string]struct{}
	timeout               time.Duration
	logger                *slog.Logger
}

// DetectorOption is a functional option for Detector
type DetectorOption func(*Detector)

// WithTranslator sets the translation collaborator
func WithTranslator(t Translator) DetectorOption {
	return func(d *Detector) {
		d.translator = t
	}
}

// WithExternalClassifier adds the external classification method
func WithExternalClassifier(c ExternalClassifier) DetectorOption {
	return func(d *Detector) {
		if c != nil {
			d.scorers = append(d.scorers, ExternalScorer{Classifier: c})
		}
	}
}

// WithScorers replaces the scorer set
func WithScorers(scorers ...Scorer) DetectorOption {
	return func(d *Detector) {
		d.scorers = scorers
	}
}

// WithNormalizationLanguage sets the language text is translated into
func WithNormalizationLanguage(lang string) DetectorOption {
	return func(d *Detector) {
		d.normalizationLanguage = strings.ToLower(lang)
	}
}

// WithSupportedLanguages restricts the accepted source language tags
func WithSupportedLanguages(langs []string) DetectorOption {
	return func(d *Detector) {
		d.supportedLanguages = make(map[string]struct{}, len(langs))
		for _, l := range langs {
			d.supportedLanguages[strings.ToLower(l)] = struct{}{}
		}
	}
}

// WithCollaboratorTimeout bounds each call to an external collaborator
func WithCollaboratorTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		d.timeout = timeout
	}
}

// NewDetector creates a detector with the keyword and similarity scorers
func NewDetector(registry *Registry, opts ...DetectorOption) *Detector {
	d := &Detector{
		registry:              registry,
		scorers:               []Scorer{KeywordScorer{}, SimilarityScorer{}},
		normalizationLanguage: "en",
		timeout:               15 * time.Second,
		logger:                logging.New("detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i, s := range d.scorers {
		if ext, ok := s.(ExternalScorer); ok && ext.Timeout == 0 {
			ext.Timeout = d.timeout
			d.scorers[i] = ext
		}
	}
	return d
}

// Registry returns the registry the detector reads snapshots from
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Validate checks the detection preconditions without scoring.
func (d *Detector) Validate(text, sourceLanguage string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	lang := strings.ToLower(strings.TrimSpace(sourceLanguage))
	if d.supportedLanguages != nil {
		if _, ok := d.supportedLanguages[lang]; !ok {
			return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, sourceLanguage)
		}
	}
	return nil
}

// Detect classifies text into an active case type. Scorer failures degrade to
// abstentions. Precondition violations are returned as errors, as is the
// context error when ctx ends before scoring completes.
func (d *Detector) Detect(ctx context.Context, text, sourceLanguage string) (Detection, error) {
	if err := d.Validate(text, sourceLanguage); err != nil {
		return Detection{}, err
	}
	lang := strings.ToLower(strings.TrimSpace(sourceLanguage))

	snap := d.registry.Snapshot()
	normalized := d.prepare(ctx, text, lang)

	results := make([]*Candidate, len(d.scorers))
	var g errgroup.Group
	for i, scorer := range d.scorers {
		g.Go(func() error {
			results[i] = d.runScorer(ctx, scorer, snap, normalized)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}

	var candidates []Candidate
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}

	detection := Combine(candidates)
	detection.NormalizedText = normalized
	if detection.Found() {
		metrics.DetectionsTotal.WithLabelValues("detected", string(detection.Method)).Inc()
		metrics.DetectionConfidence.Observe(detection.Confidence)
		d.logger.Info("case type detected",
			"case_type", detection.CaseType.Name,
			"method", detection.Method,
			"confidence", detection.Confidence,
			"candidates", len(candidates))
	} else {
		metrics.DetectionsTotal.WithLabelValues("abstained", "none").Inc()
		d.logger.Info("no case type detected", "case_types", snap.Len())
	}
	return detection, nil
}

// prepare normalizes text and translates it into the normalization language
// when needed, falling back to the untranslated text on failure.
func (d *Detector) prepare(ctx context.Context, text, lang string) string {
	normalized := Normalize(text)
	if d.translator == nil || lang == "" || lang == d.normalizationLanguage {
		return normalized
	}

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	translated, err := d.translator.Translate(tctx, normalized, lang, d.normalizationLanguage)
	if err != nil {
		d.logger.Warn("translation failed, using original text", "language", lang, "error", err)
		return normalized
	}
	if t := Normalize(translated); t != "" {
		return t
	}
	d.logger.Warn("translation returned empty text, using original text", "language", lang)
	return normalized
}

// runScorer converts scorer errors and panics into abstentions.
func (d *Detector) runScorer(ctx context.Context, scorer Scorer, snap *Snapshot, text string) (cand *Candidate) {
	method := scorer.Method()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("scorer panicked", "method", method, "panic", r)
			metrics.ScorerAbstentions.WithLabelValues(string(method), "panic").Inc()
			cand = nil
		}
	}()

	c, err := scorer.Score(ctx, snap, text)
	switch {
	case err != nil:
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, ErrMalformedResponse) {
			reason = "malformed"
		}
		d.logger.Warn("scorer failed", "method", method, "reason", reason, "error", err)
		metrics.ScorerAbstentions.WithLabelValues(string(method), reason).Inc()
		return nil
	case c == nil || c.CaseType == nil:
		metrics.ScorerAbstentions.WithLabelValues(string(method), "no_match").Inc()
		return nil
	}

	c.Method = method
	c.Weighted = c.Score * method.Weight()
	return c
}

// Combine picks the case type with the highest single weighted contribution.
// Contributions are not summed across methods. Ties go to the higher registry
// priority, then the lower id. Keyword evidence is gathered from every method
// whose candidate is the winner.
func Combine(candidates []Candidate) Detection {
	if len(candidates) == 0 {
		return Detection{}
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		c, b := candidates[i], candidates[best]
		if c.Weighted > b.Weighted ||
			(c.Weighted == b.Weighted && c.CaseType.ID != b.CaseType.ID && Outranks(c.CaseType, b.CaseType)) {
			best = i
		}
	}
	winner := candidates[best]

	seen := make(map[string]struct{})
	keywords := []string{}
	for _, c := range candidates {
		if c.CaseType.ID != winner.CaseType.ID {
			continue
		}
		for _, kw := range c.Keywords {
			if _, dup := seen[kw]; !dup {
				seen[kw] = struct{}{}
				keywords = append(keywords, kw)
			}
		}
	}
	sort.Strings(keywords)

	return Detection{
		CaseType:        winner.CaseType,
		Confidence:      winner.Weighted,
		MatchedKeywords: keywords,
		Method:          winner.Method,
		Candidates:      candidates,
	}
}
