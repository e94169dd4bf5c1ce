package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdocs-rag-platform/models"
)

func chunk(id string, score float64, source string) models.RetrievedChunk {
	return models.RetrievedChunk{
		ChunkID:    id,
		DocumentID: "doc1",
		Filename:   "manual.pdf",
		Text:       "text for " + id,
		Score:      score,
		Source:     source,
	}
}

func TestFuseRankedLists_RRFScores(t *testing.T) {
	semantic := []models.RetrievedChunk{
		chunk("a", 0.95, models.SourceSemantic),
		chunk("b", 0.90, models.SourceSemantic),
	}
	lexical := []models.RetrievedChunk{
		chunk("b", 12.5, models.SourceLexical),
		chunk("c", 11.0, models.SourceLexical),
	}

	fused := FuseRankedLists(semantic, lexical, 60, 10)
	require.Len(t, fused, 3)

	// b appears in both lists at ranks 2 and 1.
	assert.Equal(t, "b", fused[0].ChunkID)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-12)
	assert.Equal(t, models.SourceHybrid, fused[0].Source)

	// a and c are single-list hits at rank 1 and 2 respectively.
	assert.Equal(t, "a", fused[1].ChunkID)
	assert.InDelta(t, 1.0/61, fused[1].Score, 1e-12)
	assert.Equal(t, models.SourceSemantic, fused[1].Source)

	assert.Equal(t, "c", fused[2].ChunkID)
	assert.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
	assert.Equal(t, models.SourceLexical, fused[2].Source)
}

func TestFuseRankedLists_Deterministic(t *testing.T) {
	semantic := []models.RetrievedChunk{
		chunk("a", 0.9, models.SourceSemantic),
		chunk("b", 0.8, models.SourceSemantic),
		chunk("c", 0.7, models.SourceSemantic),
	}
	lexical := []models.RetrievedChunk{
		chunk("c", 9.1, models.SourceLexical),
		chunk("d", 8.2, models.SourceLexical),
	}

	first := FuseRankedLists(semantic, lexical, 60, 10)
	for i := 0; i < 50; i++ {
		again := FuseRankedLists(semantic, lexical, 60, 10)
		assert.Equal(t, first, again)
	}
}

func TestFuseRankedLists_TieBreaks(t *testing.T) {
	// Same-rank single-list hits fuse to identical scores; the raw
	// semantic score must win the tie.
	semantic := []models.RetrievedChunk{chunk("sem", 0.9, models.SourceSemantic)}
	lexical := []models.RetrievedChunk{chunk("lex", 5.0, models.SourceLexical)}

	fused := FuseRankedLists(semantic, lexical, 60, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "sem", fused[0].ChunkID)
	assert.Equal(t, "lex", fused[1].ChunkID)

	// Identical fused and raw scores: lower chunk id first.
	semantic = []models.RetrievedChunk{chunk("zz", 0.0, models.SourceSemantic)}
	lexical = []models.RetrievedChunk{chunk("aa", 0.0, models.SourceLexical)}

	fused = FuseRankedLists(semantic, lexical, 60, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "aa", fused[0].ChunkID)
	assert.Equal(t, "zz", fused[1].ChunkID)
}

func TestFuseRankedLists_Limit(t *testing.T) {
	semantic := make([]models.RetrievedChunk, 0, 30)
	for i := 0; i < 30; i++ {
		semantic = append(semantic, chunk(string(rune('a'+i)), 1.0-float64(i)*0.01, models.SourceSemantic))
	}

	fused := FuseRankedLists(semantic, nil, 60, 5)
	assert.Len(t, fused, 5)
}

func TestFuseRankedLists_EmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRankedLists(nil, nil, 60, 10))

	lexOnly := FuseRankedLists(nil, []models.RetrievedChunk{chunk("x", 3.0, models.SourceLexical)}, 60, 10)
	require.Len(t, lexOnly, 1)
	assert.Equal(t, models.SourceLexical, lexOnly[0].Source)
}
