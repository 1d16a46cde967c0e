package clients

import (
	"context"
	"fmt"
	"math"
	"strings"

	"voicelegal-backend/classifier"
)

const classifyPrompt = `Analyze the following legal case description and classify it into one of these categories:
%s

Case description: %q

Respond with JSON in this format:
{"case_type": "most_likely_case_type", "confidence": 0.85, "reasoning": "brief explanation"}

If none of the categories fit well, use "%s" as the case_type.`

type classification struct {
	CaseType   string   `json:"case_type"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classifier asks a language model to pick a case-type label.
// It satisfies classifier.ExternalClassifier.
type Classifier struct {
	gen TextGenerator
}

// NewClassifier creates a model-backed classifier
func NewClassifier(gen TextGenerator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns the model's label and confidence. Responses that do not
// decode, omit the label or omit the confidence wrap classifier.ErrMalformedResponse.
func (c *Classifier) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	categories := make([]string, 0, len(labels))
	for _, l := range labels {
		if !strings.EqualFold(l, classifier.OtherLabel) {
			categories = append(categories, l)
		}
	}
	prompt := fmt.Sprintf(classifyPrompt, strings.Join(categories, ", "), text, classifier.OtherLabel)

	raw, err := c.gen.Generate(ctx, prompt, 0.1, true)
	if err != nil {
		return "", 0, err
	}

	var out classification
	if err := decodeJSON(raw, &out); err != nil {
		return "", 0, fmt.Errorf("%w: %v", classifier.ErrMalformedResponse, err)
	}
	label := strings.TrimSpace(out.CaseType)
	if label == "" || out.Confidence == nil || math.IsNaN(*out.Confidence) {
		return "", 0, fmt.Errorf("%w: missing case_type or confidence", classifier.ErrMalformedResponse)
	}
	return label, *out.Confidence, nil
}
