package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_EmptyInput(t *testing.T) {
	cs := NewChunkingService(100, 500, 50)

	assert.Empty(t, cs.ChunkText("doc1", ""))
	assert.Empty(t, cs.ChunkText("doc1", "   \n\n  \n"))
}

func TestChunkText_DeterministicIDs(t *testing.T) {
	cs := NewChunkingService(10, 60, 10)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf("Paragraph %d describes the calibration procedure for the inertial sensors in detail.\n\n", i))
	}
	text := sb.String()

	first := cs.ChunkText("doc1", text)
	second := cs.ChunkText("doc1", text)

	require.NotEmpty(t, first)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, fmt.Sprintf("doc1_%d", i), first[i].ChunkID)
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, i, first[i].Order)
	}
}

func TestChunkText_TokenBounds(t *testing.T) {
	minTokens, maxTokens, overlap := 20, 80, 15
	cs := NewChunkingService(minTokens, maxTokens, overlap)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(fmt.Sprintf("Section paragraph %d covers the wiring harness and connector pinout for the avionics bay.\n\n", i))
	}

	chunks := cs.ChunkText("doc1", sb.String())
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.Positive(t, c.TokenCount)
		// A chunk may carry overlap from its predecessor on top of the cap.
		assert.LessOrEqual(t, c.TokenCount, maxTokens+overlap)
	}
}

func TestChunkText_SectionDetection(t *testing.T) {
	cs := NewChunkingService(5, 30, 0)

	body1 := "The unit draws twelve volts at two amps under nominal operating load in level cruise flight."
	body2 := "Peak current rises to five amps when the landing gear motors retract during the climb phase."
	body3 := "The enclosure sheds heat through a finned plate bonded to the rear face of the chassis."

	text := "1.2 Power Requirements\n\n" + body1 + "\n\n" + body2 + "\n\n" +
		"# Thermal Limits\n\n" + body3

	chunks := cs.ChunkText("doc1", text)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "Power Requirements", chunks[0].Section)
	assert.Equal(t, "Thermal Limits", chunks[len(chunks)-1].Section)
}

func TestChunkText_OversizedParagraphSplit(t *testing.T) {
	cs := NewChunkingService(10, 40, 0)

	var sb strings.Builder
	for i := 0; i < 25; i++ {
		sb.WriteString(fmt.Sprintf("Sentence %d states a fact about the propulsion system. ", i))
	}

	chunks := cs.ChunkText("doc1", sb.String())
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestSplitLongParagraph_SentenceAligned(t *testing.T) {
	cs := NewChunkingService(10, 30, 0)

	paragraph := "The first sentence is short. The second sentence is also short. " +
		"The third sentence keeps going a bit longer than the others. The fourth wraps up."

	pieces := cs.splitLongParagraph(paragraph)
	require.NotEmpty(t, pieces)

	joined := strings.Join(pieces, " ")
	assert.Contains(t, joined, "first sentence")
	assert.Contains(t, joined, "fourth wraps up")
}

func TestCountTokens(t *testing.T) {
	cs := NewChunkingService(100, 500, 50)

	assert.Zero(t, cs.CountTokens(""))
	short := cs.CountTokens("hello world")
	long := cs.CountTokens(strings.Repeat("hello world ", 50))
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestChunkText_PageTracking(t *testing.T) {
	// Max is sized so each page's paragraph lands in its own chunk.
	cs := NewChunkingService(5, 18, 0)

	text := "--- PAGE 1 ---\nThe power section covers supply voltage and current limits.\n\n" +
		"--- PAGE 2 ---\nThe thermal section covers heatsink sizing and airflow."

	chunks := cs.ChunkText("doc1", text)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
	for _, c := range chunks {
		assert.NotContains(t, c.Text, "--- PAGE")
	}
}

func TestChunkText_NoPageMarkers(t *testing.T) {
	cs := NewChunkingService(5, 500, 0)

	chunks := cs.ChunkText("doc1", "Plain text documents carry no page provenance at all.")
	require.NotEmpty(t, chunks)
	assert.Zero(t, chunks[0].Page)
}

func TestExtractKeywords(t *testing.T) {
	cs := NewChunkingService(100, 500, 50)

	text := "gyroscope drift affects gyroscope calibration and the gyroscope output during drift events"
	keywords := cs.extractKeywords(text, 5)

	// Frequency order: gyroscope appears three times, drift twice.
	require.Len(t, keywords, 2)
	assert.Equal(t, []string{"gyroscope", "drift"}, keywords)
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "and")

	for i := 0; i < 10; i++ {
		assert.Equal(t, keywords, cs.extractKeywords(text, 5))
	}
}

func TestGetOverlapText(t *testing.T) {
	cs := NewChunkingService(10, 100, 20)

	text := "First sentence here. Second sentence here. Third sentence closes the chunk."
	overlap := cs.getOverlapText(text)

	assert.NotEmpty(t, overlap)
	assert.Contains(t, overlap, "Third sentence closes the chunk")

	none := NewChunkingService(10, 100, 0)
	assert.Empty(t, none.getOverlapText(text))
}
