package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"voicelegal-backend/models"
)

// Method identifies a detection method
type Method string

const (
	MethodKeyword    Method = "keyword"
	MethodSimilarity Method = "similarity"
	MethodExternal   Method = "external"
)

// Fixed ensemble weights per method.
const (
	KeywordWeight    = 0.4
	SimilarityWeight = 0.3
	ExternalWeight   = 0.3

	// SimilarityFloor is the cosine similarity a match must exceed.
	SimilarityFloor = 0.3

	// OtherLabel is the sentinel the external classifier uses for "no fit".
	OtherLabel = "other"
)

// Weight returns the ensemble weight of a method
func (m Method) Weight() float64 {
	switch m {
	case MethodKeyword:
		return KeywordWeight
	case MethodSimilarity:
		return SimilarityWeight
	case MethodExternal:
		return ExternalWeight
	default:
		return 0
	}
}

// ErrMalformedResponse is returned when the external classifier answers with
// something that cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed classifier response")

// Candidate is one method's proposed case type.
type Candidate struct {
	Method   Method                     `json:"method"`
	CaseType *models.CaseTypeDefinition `json:"-"`
	// Score is the method's own confidence in [0,1].
	Score float64 `json:"score"`
	// Weighted is Score multiplied by the method weight.
	Weighted float64  `json:"weighted"`
	Keywords []string `json:"keywords,omitempty"`
}

// Scorer proposes at most one case type for normalized text.
// A nil candidate with a nil error is an abstention.
type Scorer interface {
	Method() Method
	Score(ctx context.Context, snap *Snapshot, text string) (*Candidate, error)
}

// KeywordScorer scores the fraction of each case type's keywords found in the text.
type KeywordScorer struct{}

// Method implements Scorer
func (KeywordScorer) Method() Method { return MethodKeyword }

// Score keeps the best-scoring case type whose score reaches its own threshold.
func (KeywordScorer) Score(ctx context.Context, snap *Snapshot, text string) (*Candidate, error) {
	var best *Candidate
	for i, ct := range snap.caseTypes {
		score, matched := KeywordScore(text, ct.Keywords, snap.keywords[i])
		if score < ct.ConfidenceThreshold || score == 0 {
			continue
		}
		if best == nil || score > best.Score {
			best = &Candidate{
				Method:   MethodKeyword,
				CaseType: ct,
				Score:    score,
				Keywords: matched,
			}
		}
	}
	return best, nil
}

// KeywordScore returns matches/len(keywords) and the matched keywords in
// their configured form. normalized[i] is the normalized form of keywords[i].
func KeywordScore(text string, keywords, normalized []string) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	var matched []string
	for i, kw := range keywords {
		if normalized[i] != "" && strings.Contains(text, normalized[i]) {
			matched = append(matched, kw)
		}
	}
	return float64(len(matched)) / float64(len(keywords)), matched
}

// SimilarityScorer picks the case type whose keyword document is closest in TF-IDF space.
type SimilarityScorer struct{}

// Method implements Scorer
func (SimilarityScorer) Method() Method { return MethodSimilarity }

// Score accepts the arg-max only above SimilarityFloor.
func (SimilarityScorer) Score(ctx context.Context, snap *Snapshot, text string) (*Candidate, error) {
	if snap.Len() == 0 || snap.space.Size() == 0 {
		return nil, nil
	}
	input := snap.space.Transform(text)
	if len(input) == 0 {
		return nil, nil
	}

	bestIdx, bestSim := -1, 0.0
	for i, doc := range snap.docVectors {
		if sim := cosine(input, doc); bestIdx < 0 || sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestSim <= SimilarityFloor {
		return nil, nil
	}
	return &Candidate{
		Method:   MethodSimilarity,
		CaseType: snap.caseTypes[bestIdx],
		Score:    math.Min(bestSim, 1),
	}, nil
}

// ExternalClassifier labels text with one of the candidate labels or "other".
type ExternalClassifier interface {
	Classify(ctx context.Context, text string, labels []string) (label string, confidence float64, err error)
}

// ExternalScorer adapts an untrusted ExternalClassifier to the Scorer contract.
type ExternalScorer struct {
	Classifier ExternalClassifier
	Timeout    time.Duration
}

// Method implements Scorer
func (ExternalScorer) Method() Method { return MethodExternal }

// Score asks the classifier for a label and maps it back to an active case type.
func (s ExternalScorer) Score(ctx context.Context, snap *Snapshot, text string) (*Candidate, error) {
	if s.Classifier == nil || snap.Len() == 0 {
		return nil, nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	labels := append(snap.Names(), OtherLabel)
	label, confidence, err := s.Classifier.Classify(ctx, text, labels)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v", ErrMalformedResponse, confidence)
	}
	label = strings.TrimSpace(label)
	if strings.EqualFold(label, OtherLabel) {
		return nil, nil
	}
	ct, ok := snap.ByName(label)
	if !ok {
		return nil, fmt.Errorf("%w: unknown label %q", ErrMalformedResponse, label)
	}
	return &Candidate{
		Method:   MethodExternal,
		CaseType: ct,
		Score:    confidence,
	}, nil
}
