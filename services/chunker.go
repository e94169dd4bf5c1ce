package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkingService splits extracted text into token-bounded chunks with
// sentence boundary awareness.
type ChunkingService struct {
	minTokens      int
	maxTokens      int
	overlapTokens  int
	encoder        *tiktoken.Tiktoken
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
	headingRegex   *regexp.Regexp
	pageRegex      *regexp.Regexp
}

// ChunkDraft is a chunk produced by the chunker before it is embedded and
// indexed.
type ChunkDraft struct {
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Order      int      `json:"order"`
	Page       int      `json:"page,omitempty"`
	Section    string   `json:"section,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	TokenCount int      `json:"token_count"`
}

// NewChunkingService creates a chunker with the given token bounds.
// Falls back to a character estimate if the tokenizer cannot load its
// encoding data.
func NewChunkingService(minTokens, maxTokens, overlapTokens int) *ChunkingService {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}

	return &ChunkingService{
		minTokens:      minTokens,
		maxTokens:      maxTokens,
		overlapTokens:  overlapTokens,
		encoder:        encoder,
		sentenceRegex:  regexp.MustCompile(`[.!?]+[\s]+`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
		headingRegex:   regexp.MustCompile(`(?m)^(?:\d+(?:\.\d+)*\s+|#+\s+)(.{3,80})$`),
		pageRegex:      regexp.MustCompile(`^--- PAGE (\d+) ---\s*`),
	}
}

// CountTokens returns the token count of text, estimating 4 characters
// per token when no encoder is available.
func (cs *ChunkingService) CountTokens(text string) int {
	if cs.encoder != nil {
		return len(cs.encoder.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// ChunkText splits text into chunks between minTokens and maxTokens,
// preferring paragraph boundaries and carrying sentence overlap between
// adjacent chunks. Chunk ids are deterministic per document.
func (cs *ChunkingService) ChunkText(documentID, text string) []ChunkDraft {
	paragraphs := cs.paragraphRegex.Split(text, -1)
	paragraphs = filterEmpty(paragraphs)

	if len(paragraphs) == 0 {
		return []ChunkDraft{}
	}

	var chunks []ChunkDraft
	currentChunk := new(strings.Builder)
	currentTokens := 0
	chunkIndex := 0
	currentSection := ""
	currentPage := 0
	chunkPage := 0

	flush := func() {
		if currentChunk.Len() == 0 {
			return
		}
		chunks = append(chunks, cs.createChunk(documentID, currentChunk.String(), chunkIndex, currentSection, chunkPage))
		chunkIndex++
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)

		// Page markers from PDF extraction carry provenance but are not
		// content.
		if marker := cs.pageRegex.FindStringSubmatch(paragraph); marker != nil {
			if page, err := strconv.Atoi(marker[1]); err == nil {
				currentPage = page
			}
			paragraph = strings.TrimSpace(cs.pageRegex.ReplaceAllString(paragraph, ""))
		}
		if len(paragraph) == 0 {
			continue
		}

		if heading := cs.headingRegex.FindStringSubmatch(paragraph); heading != nil {
			currentSection = strings.TrimSpace(heading[1])
		}

		paraTokens := cs.CountTokens(paragraph)

		// Oversized paragraph: split on sentence boundaries.
		if paraTokens > cs.maxTokens {
			flush()
			currentChunk = new(strings.Builder)
			currentTokens = 0
			for _, piece := range cs.splitLongParagraph(paragraph) {
				chunks = append(chunks, cs.createChunk(documentID, piece, chunkIndex, currentSection, currentPage))
				chunkIndex++
			}
			continue
		}

		if currentTokens+paraTokens > cs.maxTokens && currentTokens >= cs.minTokens {
			flush()

			// Start new chunk with sentence overlap from the previous one.
			overlapText := ""
			if len(chunks) > 0 && cs.overlapTokens > 0 {
				overlapText = cs.getOverlapText(chunks[len(chunks)-1].Text)
			}
			currentChunk = new(strings.Builder)
			currentTokens = 0
			chunkPage = currentPage
			if overlapText != "" {
				currentChunk.WriteString(overlapText)
				currentTokens = cs.CountTokens(overlapText)
			}
		}

		if currentChunk.Len() == 0 {
			chunkPage = currentPage
		}
		if currentChunk.Len() > 0 {
			currentChunk.WriteString("\n\n")
		}
		currentChunk.WriteString(paragraph)
		currentTokens += paraTokens
	}

	flush()

	return chunks
}

func (cs *ChunkingService) createChunk(documentID, text string, order int, section string, page int) ChunkDraft {
	return ChunkDraft{
		ChunkID:    fmt.Sprintf("%s_%d", documentID, order),
		Text:       text,
		Order:      order,
		Page:       page,
		Section:    section,
		Keywords:   cs.extractKeywords(text, 5),
		TokenCount: cs.CountTokens(text),
	}
}

// splitLongParagraph cuts a paragraph that exceeds maxTokens into
// sentence-aligned pieces.
func (cs *ChunkingService) splitLongParagraph(paragraph string) []string {
	sentences := cs.sentenceRegex.Split(paragraph, -1)
	sentences = filterEmpty(sentences)
	if len(sentences) == 0 {
		return []string{paragraph}
	}

	var pieces []string
	current := new(strings.Builder)
	currentTokens := 0

	for _, sentence := range sentences {
		tokens := cs.CountTokens(sentence)
		if currentTokens+tokens > cs.maxTokens && current.Len() > 0 {
			pieces = append(pieces, current.String())
			current = new(strings.Builder)
			currentTokens = 0
		}
		if current.Len() > 0 {
			current.WriteString(". ")
		}
		current.WriteString(sentence)
		currentTokens += tokens
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}

// extractKeywords extracts top keywords from text
func (cs *ChunkingService) extractKeywords(text string, limit int) []string {
	words := strings.Fields(strings.ToLower(text))

	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "is": true, "are": true, "was": true, "were": true,
	}

	wordFreq := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?()[]{}\"")
		if len(word) > 2 && !stopWords[word] {
			wordFreq[word]++
		}
	}

	candidates := make([]string, 0, len(wordFreq))
	for word, freq := range wordFreq {
		if freq >= 2 {
			candidates = append(candidates, word)
		}
	}

	// Most frequent first, alphabetical on ties, so the indexed keywords
	// are stable for identical text.
	sort.Slice(candidates, func(i, j int) bool {
		if wordFreq[candidates[i]] != wordFreq[candidates[j]] {
			return wordFreq[candidates[i]] > wordFreq[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// getOverlapText extracts trailing sentences from the previous chunk up
// to the overlap token budget.
func (cs *ChunkingService) getOverlapText(text string) string {
	sentences := cs.sentenceRegex.Split(text, -1)
	sentences = filterEmpty(sentences)
	if len(sentences) == 0 {
		return ""
	}

	overlap := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		candidate := sentences[i]
		if overlap != "" {
			candidate = candidate + ". " + overlap
		}
		if cs.CountTokens(candidate) > cs.overlapTokens {
			break
		}
		overlap = candidate
	}

	return overlap
}

// filterEmpty removes empty strings from slice
func filterEmpty(slice []string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if len(strings.TrimSpace(s)) > 0 {
			result = append(result, s)
		}
	}
	return result
}
