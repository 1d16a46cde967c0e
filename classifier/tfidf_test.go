package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitVectorSpace_UnigramsAndBigrams(t *testing.T) {
	vs := FitVectorSpace([]string{"wall damage", "rent problem"})

	// wall, damage, "wall damage", rent, problem, "rent problem"
	assert.Equal(t, 6, vs.Size())
}

func TestTransform_IsUnitLength(t *testing.T) {
	vs := FitVectorSpace([]string{"wall damage fence damage", "rent problem landlord"})

	vec := vs.Transform("the fence and the wall had damage")
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTransform_UnknownTermsIgnored(t *testing.T) {
	vs := FitVectorSpace([]string{"wall damage"})

	assert.Empty(t, vs.Transform("completely unrelated words"))
}

func TestCosine_IdenticalDocumentScoresOne(t *testing.T) {
	docs := []string{"loan recovery debt recovery", "tenant rights eviction notice"}
	vs := FitVectorSpace(docs)

	self := cosine(vs.Transform(docs[0]), vs.Transform(docs[0]))
	other := cosine(vs.Transform(docs[0]), vs.Transform(docs[1]))

	assert.InDelta(t, 1.0, self, 1e-9)
	assert.InDelta(t, 0.0, other, 1e-9)
}

func TestTermCounts_DropsStopWordsBeforeBigrams(t *testing.T) {
	counts := termCounts("damage to the wall")

	require.Contains(t, counts, "damage wall")
	assert.NotContains(t, counts, "the")
	assert.NotContains(t, counts, "to")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "my neighbor damaged my wall", Normalize("  My neighbor, DAMAGED my wall!!  "))
	assert.Equal(t, "दीवार का नुकसान", Normalize("दीवार का नुकसान।"))
}
