package classifier

import (
	"math"
	"sort"
	"strings"
)

const maxVocabulary = 1000

// sparseVector maps a vocabulary index to a weight.
type sparseVector map[int]float64

// VectorSpace is a fitted TF-IDF space over unigrams and bigrams. It is never
// mutated after FitVectorSpace returns, so it is safe for concurrent readers.
type VectorSpace struct {
	vocab map[string]int
	idf   []float64
}

// FitVectorSpace learns the vocabulary and smoothed inverse document
// frequencies of docs. The vocabulary is capped at the most frequent terms.
func FitVectorSpace(docs []string) *VectorSpace {
	docTerms := make([]map[string]int, len(docs))
	totals := make(map[string]int)
	docFreq := make(map[string]int)
	for i, doc := range docs {
		counts := termCounts(doc)
		docTerms[i] = counts
		for term, n := range counts {
			totals[term] += n
			docFreq[term]++
		}
	}

	terms := make([]string, 0, len(totals))
	for term := range totals {
		terms = append(terms, term)
	}
	if len(terms) > maxVocabulary {
		sort.Slice(terms, func(i, j int) bool {
			if totals[terms[i]] != totals[terms[j]] {
				return totals[terms[i]] > totals[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxVocabulary]
	}
	sort.Strings(terms)

	vs := &VectorSpace{
		vocab: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		vs.vocab[term] = i
		vs.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return vs
}

// Size returns the vocabulary size.
func (vs *VectorSpace) Size() int {
	return len(vs.vocab)
}

// Transform vectorizes text into the fitted space and L2-normalizes it.
// Terms outside the vocabulary are ignored.
func (vs *VectorSpace) Transform(text string) sparseVector {
	vec := make(sparseVector)
	for term, count := range termCounts(text) {
		idx, ok := vs.vocab[term]
		if !ok {
			continue
		}
		vec[idx] = float64(count) * vs.idf[idx]
	}

	var norm float64
	for _, w := range vec {
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for idx := range vec {
		vec[idx] /= norm
	}
	return vec
}

// cosine returns the cosine similarity of two L2-normalized vectors.
func cosine(a, b sparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for idx, w := range a {
		dot += w * b[idx]
	}
	return dot
}

// termCounts counts unigrams and bigrams after stop-word removal.
func termCounts(text string) map[string]int {
	var words []string
	for _, tok := range tokenize(text) {
		if _, stop := englishStopWords[tok]; !stop {
			words = append(words, tok)
		}
	}

	counts := make(map[string]int, len(words)*2)
	for i, w := range words {
		counts[w]++
		if i > 0 {
			counts[strings.Join(words[i-1:i+1], " ")]++
		}
	}
	return counts
}
