package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/models"
)

func stubDocs(filenames ...string) []DocumentStub {
	stubs := make([]DocumentStub, 0, len(filenames))
	for _, name := range filenames {
		stubs = append(stubs, DocumentStub{ID: primitive.NewObjectID(), Filename: name})
	}
	return stubs
}

func TestDetectExplicitReferences_SeePhrase(t *testing.T) {
	existing := stubDocs("widget x manual.pdf", "unrelated-notes.txt")

	refs := DetectExplicitReferences(
		"Widget X requires 5V supply, see also widget x manual for wiring details.",
		existing)

	require.Len(t, refs, 1)
	assert.Equal(t, existing[0].ID, refs[0].TargetDocID)
	assert.Equal(t, "widget x manual.pdf", refs[0].TargetFilename)
}

func TestDetectExplicitReferences_SectionPhrase(t *testing.T) {
	existing := stubDocs("power-specification.pdf")

	refs := DetectExplicitReferences(
		"Limits are defined in section 3.2 of power-specification and must not be exceeded.",
		existing)

	require.Len(t, refs, 1)
	assert.Equal(t, "power-specification.pdf", refs[0].TargetFilename)
}

func TestDetectExplicitReferences_DocCode(t *testing.T) {
	existing := stubDocs("ICD-4.2.pdf")

	refs := DetectExplicitReferences(
		"The bus protocol follows ICD-4.2 for all telemetry frames.",
		existing)

	require.Len(t, refs, 1)
	assert.Equal(t, "ICD-4.2.pdf", refs[0].TargetFilename)
	assert.Equal(t, "ICD-4.2", refs[0].CitationText)
}

func TestDetectExplicitReferences_OnePerTarget(t *testing.T) {
	existing := stubDocs("ops-manual.pdf")

	refs := DetectExplicitReferences(
		"See ops manual. Also described in ops manual. Refer to ops manual again.",
		existing)

	assert.Len(t, refs, 1)
}

func TestDetectExplicitReferences_NoFalseMatch(t *testing.T) {
	existing := stubDocs("antenna-alignment-procedure.pdf")

	refs := DetectExplicitReferences(
		"See the installation guide for bracket torque values.",
		existing)

	assert.Empty(t, refs)
}

func TestLevenshteinSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, levenshteinSimilarity("widget manual", "widget manual"))
	assert.Greater(t, levenshteinSimilarity("widget x manual", "widget-x-manual"), 0.7)
	assert.Less(t, levenshteinSimilarity("completely different", "short"), 0.3)
	assert.Equal(t, 0.0, levenshteinSimilarity("", "anything"))
}

func TestSharedEntityStrength(t *testing.T) {
	// Threshold of 2 shared entities maps to 0.5, each extra adds 0.1.
	assert.InDelta(t, 0.5, SharedEntityStrength(2), 1e-9)
	assert.InDelta(t, 0.6, SharedEntityStrength(3), 1e-9)
	assert.InDelta(t, 0.7, SharedEntityStrength(4), 1e-9)

	// Monotonic and capped at 0.9.
	prev := 0.0
	for n := 2; n < 20; n++ {
		s := SharedEntityStrength(n)
		assert.GreaterOrEqual(t, s, prev)
		assert.LessOrEqual(t, s, 0.9)
		prev = s
	}
	assert.InDelta(t, 0.9, SharedEntityStrength(10), 1e-9)
}

func TestEligibleSharedPair(t *testing.T) {
	pair := graph.SharedPair{
		DocID1:    "a",
		Filename1: "a.pdf",
		DocID2:    "b",
		Filename2: "b.pdf",
		Shared:    []string{"flight controller", "gps module"},
	}
	done := map[string]bool{"b": true}

	otherID, otherFilename, ok := eligibleSharedPair(pair, "a", done)
	require.True(t, ok)
	assert.Equal(t, "b", otherID)
	assert.Equal(t, "b.pdf", otherFilename)

	// Other document never finished processing.
	_, _, ok = eligibleSharedPair(pair, "a", map[string]bool{})
	assert.False(t, ok)

	// Below the shared-entity threshold.
	weak := pair
	weak.Shared = []string{"flight controller"}
	_, _, ok = eligibleSharedPair(weak, "a", done)
	assert.False(t, ok)

	// Pair does not involve this document.
	_, _, ok = eligibleSharedPair(pair, "c", map[string]bool{"a": true, "b": true})
	assert.False(t, ok)
}

func TestSortRelations_StrengthThenTargetID(t *testing.T) {
	oid := func(hex string) primitive.ObjectID {
		id, err := primitive.ObjectIDFromHex(hex)
		require.NoError(t, err)
		return id
	}

	rels := []models.DocRelationship{
		{TargetDocID: oid("bbbbbbbbbbbbbbbbbbbbbbbb"), Strength: 0.7},
		{TargetDocID: oid("cccccccccccccccccccccccc"), Strength: 1.0},
		{TargetDocID: oid("aaaaaaaaaaaaaaaaaaaaaaaa"), Strength: 0.7},
	}

	sortRelations(rels)

	assert.InDelta(t, 1.0, rels[0].Strength, 1e-9)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", rels[1].TargetDocID.Hex())
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbb", rels[2].TargetDocID.Hex())
}
