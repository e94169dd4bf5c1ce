package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdocs-rag-platform/models"
)

func docChunks(docID string, n int) []models.RetrievedChunk {
	chunks := make([]models.RetrievedChunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, models.RetrievedChunk{
			ChunkID:    docID + "_" + string(rune('0'+i)),
			DocumentID: docID,
			Filename:   docID + ".pdf",
			Text:       "content",
			Source:     models.SourceHybrid,
		})
	}
	return chunks
}

func TestShouldSynthesize_Boundary(t *testing.T) {
	// Two documents with two chunks each activates synthesis.
	both := append(docChunks("docA", 2), docChunks("docB", 2)...)
	assert.True(t, ShouldSynthesize(both))

	// One stray chunk from a second document does not.
	stray := append(docChunks("docA", 1), docChunks("docB", 3)...)
	assert.False(t, ShouldSynthesize(stray))

	// A single document never synthesizes.
	assert.False(t, ShouldSynthesize(docChunks("docA", 2)))
	assert.False(t, ShouldSynthesize(nil))
}

func TestShouldSynthesize_GraphChunksExcluded(t *testing.T) {
	chunks := append(docChunks("docA", 2), docChunks("docB", 1)...)
	graphChunks := []models.RetrievedChunk{
		{ChunkID: "graph-x", DocumentID: "graph", Source: models.SourceGraph},
		{ChunkID: "graph-y", DocumentID: "graph", Source: models.SourceGraph},
	}
	// Graph entries would push the "graph" pseudo-document over the
	// threshold if counted.
	assert.False(t, ShouldSynthesize(append(chunks, graphChunks...)))
}

func TestParseCitedOrdinals_Forms(t *testing.T) {
	cited := ParseCitedOrdinals("... as shown [1-3] and also [5].", 10)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 5: true}, cited)

	cited = ParseCitedOrdinals("claims [2,5] and [7]", 10)
	assert.Equal(t, map[int]bool{2: true, 5: true, 7: true}, cited)

	cited = ParseCitedOrdinals("spaced list [2, 4] and range [ignored]", 10)
	assert.Equal(t, map[int]bool{2: true, 4: true}, cited)
}

func TestParseCitedOrdinals_OutOfRange(t *testing.T) {
	cited := ParseCitedOrdinals("valid [2] invalid [9] range [3-12]", 4)
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true}, cited)

	assert.Empty(t, ParseCitedOrdinals("no citations here", 4))
	assert.Empty(t, ParseCitedOrdinals("[0] is not a valid ordinal", 4))
	assert.Empty(t, ParseCitedOrdinals("reversed [5-3] is discarded", 10))
}

func TestParseCitations_MultiSourceAdjacency(t *testing.T) {
	chunks := append(docChunks("docA", 3), docChunks("docB", 3)...)
	citations := ParseCitations("supported [1-3] and separately [5]", chunks)
	require.Len(t, citations, 4)

	byMarker := make(map[int]models.Citation)
	for _, c := range citations {
		byMarker[c.Marker] = c
	}

	// 1, 2, 3 are each adjacent to another cited ordinal.
	assert.True(t, byMarker[1].MultiSource)
	assert.True(t, byMarker[2].MultiSource)
	assert.True(t, byMarker[3].MultiSource)
	// 5 is isolated: neither 4 nor 6 was cited.
	assert.False(t, byMarker[5].MultiSource)
}

func TestParseCitations_Metadata(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{
			ChunkID:    "doc1_0",
			DocumentID: "doc1",
			Filename:   "install-guide.pdf",
			Text:       strings.Repeat("long text ", 40),
			Score:      0.87,
			Source:     models.SourceHybrid,
			Page:       4,
			Section:    "Installation",
		},
		{
			ChunkID:    "graph-gps",
			DocumentID: "graph",
			Filename:   "Knowledge Graph",
			Text:       "GPS Module: Depends on: INS",
			Score:      0.9,
			Source:     models.SourceGraph,
		},
	}

	citations := ParseCitations("see [1] and [2]", chunks)
	require.Len(t, citations, 2)

	first := citations[0]
	assert.Equal(t, 1, first.Marker)
	assert.Equal(t, "install-guide.pdf", first.Filename)
	assert.Equal(t, 4, first.Page)
	assert.Equal(t, "Installation", first.Section)
	assert.Equal(t, "document", first.Source)
	assert.LessOrEqual(t, len(first.Snippet), snippetMaxLen+3)
	assert.True(t, strings.HasSuffix(first.Snippet, "..."))

	assert.Equal(t, "graph", citations[1].Source)
}

func TestGenerate_NoCandidates(t *testing.T) {
	gs := &GeneratorService{}

	answer, err := gs.Generate(context.Background(), "anything", nil, nil)
	require.NoError(t, err)
	assert.True(t, answer.Insufficient)
	assert.Equal(t, InsufficientInfoReply, answer.Reply)
	assert.Empty(t, answer.Citations)
	assert.False(t, answer.SynthesisMode)
	assert.Zero(t, answer.SourceDocCount)
}

func TestAnswerStatus(t *testing.T) {
	insufficient := &Answer{Insufficient: true, Reply: InsufficientInfoReply}
	assert.Equal(t, models.ResponseStatusNoCandidates, insufficient.Status())

	answered := &Answer{Reply: "The voltage is 12V [1]."}
	assert.Equal(t, models.ResponseStatusOK, answered.Status())
}

func TestCountSourceDocuments(t *testing.T) {
	citations := []models.Citation{
		{Marker: 1, DocumentID: "docA", Source: "document"},
		{Marker: 2, DocumentID: "docA", Source: "document"},
		{Marker: 3, DocumentID: "docB", Source: "document"},
		{Marker: 4, DocumentID: "graph", Source: "graph"},
	}
	assert.Equal(t, 2, countSourceDocuments(citations))
}

func TestBuildPrompt_GroupedKeepsGlobalOrdinals(t *testing.T) {
	gs := &GeneratorService{}
	chunks := append(docChunks("docA", 2), docChunks("docB", 2)...)

	prompt := gs.buildPrompt(synthesisSystemPrompt, "what voltage?", chunks, nil, true)

	assert.Contains(t, prompt, "=== docA.pdf ===")
	assert.Contains(t, prompt, "=== docB.pdf ===")
	// Ordinals stay global across groups so markers resolve correctly.
	assert.Contains(t, prompt, "[3]")
	assert.Contains(t, prompt, "[4]")
	assert.Contains(t, prompt, "what voltage?")
}
