package clients

import (
	"context"
	"fmt"
	"strings"
)

// languageNames covers the tags accepted by the default configuration.
var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"te": "Telugu",
	"ta": "Tamil",
	"bn": "Bengali",
	"mr": "Marathi",
	"gu": "Gujarati",
	"kn": "Kannada",
	"ml": "Malayalam",
	"pa": "Punjabi",
	"or": "Odia",
}

func languageName(tag string) string {
	if name, ok := languageNames[strings.ToLower(tag)]; ok {
		return name
	}
	return tag
}

// Translator translates text with a language model.
// It satisfies classifier.Translator.
type Translator struct {
	gen TextGenerator
}

// NewTranslator creates a model-backed translator
func NewTranslator(gen TextGenerator) *Translator {
	return &Translator{gen: gen}
}

// Translate returns text rendered in targetLang
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following %s text into %s. Respond with the translation only, without quotes or commentary.\n\n%s",
		languageName(sourceLang), languageName(targetLang), text)

	out, err := t.gen.Generate(ctx, prompt, 0, false)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", sourceLang, targetLang, err)
	}
	return strings.Trim(stripCodeFence(out), "\"' \n"), nil
}
