package classifier

import (
	"strings"
	"unicode"
)

// Normalize lower-cases text, replaces punctuation with spaces and collapses
// whitespace. Combining marks are kept so Indic scripts survive intact.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenize splits normalized text into word tokens of at least two runes.
func tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// englishStopWords is the stop list applied before n-grams are built.
var englishStopWords = toSet(`a about above after again against all almost also am an and any are as at
be because been before being below between both but by can cannot could did do does doing down during
each either else etc ever every few for from further get got had has have having he her here hers herself
him himself his how i if in into is it its itself just me might more most much must my myself neither no
nor not now of off often on once only or other our ours ourselves out over own per please rather same
she should since so some still such than that the their theirs them themselves then there these they
this those though through thus to too under until up upon us very via was we well were what when where
whether which while who whom whose why will with within without would yet you your yours yourself yourselves`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}
