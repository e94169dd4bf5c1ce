package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// InsufficientInfoReply is returned when retrieval produced no usable
// context. It is an explicit answer state, not a generation failure.
const InsufficientInfoReply = "I don't have enough information in the uploaded documents to answer that question. Try uploading the relevant document or rephrasing the question."

const maxHistoryMessages = 10

const snippetMaxLen = 200

var citationMarkerRegex = regexp.MustCompile(`\[(\d+(?:\s*[-,]\s*\d+)*)\]`)

// GeneratorService builds the model prompt from retrieved chunks,
// invokes Gemini with one fallback-model retry, and parses citation
// markers out of the answer.
type GeneratorService struct {
	cfg    *config.Config
	gemini *ai.GeminiClient
}

// Answer is the structured generation result for one query.
type Answer struct {
	Reply          string
	Citations      []models.Citation
	SynthesisMode  bool
	SourceDocCount int
	TokensUsed     int
	ModelUsed      string
	FallbackUsed   bool
	Insufficient   bool
}

func NewGeneratorService(cfg *config.Config, gemini *ai.GeminiClient) *GeneratorService {
	return &GeneratorService{cfg: cfg, gemini: gemini}
}

// Status is the machine-readable outcome callers branch on instead of
// matching the reply text.
func (a *Answer) Status() string {
	if a.Insufficient {
		return models.ResponseStatusNoCandidates
	}
	return models.ResponseStatusOK
}

// ShouldSynthesize reports whether the candidate set spans enough real
// documents to warrant multi-source synthesis: at least 2 distinct
// documents each contributing at least 2 chunks. Graph-derived chunks
// supplement context but do not count toward the threshold.
func ShouldSynthesize(chunks []models.RetrievedChunk) bool {
	perDoc := make(map[string]int)
	for _, chunk := range chunks {
		if chunk.Source == models.SourceGraph {
			continue
		}
		perDoc[chunk.DocumentID]++
	}

	docsWithEnough := 0
	for _, count := range perDoc {
		if count >= 2 {
			docsWithEnough++
		}
	}
	return docsWithEnough >= 2
}

// Generate produces an answer for the query from the reranked chunks.
// With no chunks it returns the explicit insufficient-information answer
// without calling the model.
func (gs *GeneratorService) Generate(ctx context.Context, query string, chunks []models.RetrievedChunk, history []models.Message) (*Answer, error) {
	if len(chunks) == 0 {
		return &Answer{Reply: InsufficientInfoReply, Insufficient: true}, nil
	}

	synthesize := ShouldSynthesize(chunks)

	systemPrompt := singleSourceSystemPrompt
	if synthesize {
		systemPrompt = synthesisSystemPrompt
	}

	prompt := gs.buildPrompt(systemPrompt, query, chunks, history, synthesize)

	maxTokens := int32(gs.cfg.MaxOutputTokens)
	if synthesize {
		maxTokens += int32(gs.cfg.SynthesisTokenBonus)
	}

	result, fallbackUsed, err := gs.generateWithFallback(ctx, prompt, maxTokens)
	if err != nil {
		if err == ai.ErrEmptyResponse {
			return &Answer{Reply: InsufficientInfoReply, Insufficient: true}, nil
		}
		return nil, err
	}

	citations := ParseCitations(result.Text, chunks)

	return &Answer{
		Reply:          result.Text,
		Citations:      citations,
		SynthesisMode:  synthesize,
		SourceDocCount: countSourceDocuments(citations),
		TokensUsed:     result.TokensUsed,
		ModelUsed:      result.ModelUsed,
		FallbackUsed:   fallbackUsed,
	}, nil
}

func (gs *GeneratorService) generateWithFallback(ctx context.Context, prompt string, maxTokens int32) (*ai.GenerateResult, bool, error) {
	result, err := gs.gemini.Generate(ctx, gs.cfg.GeminiModel, prompt, maxTokens, 0.3)
	if err == nil {
		return result, false, nil
	}
	if !ai.ShouldRetryWithFallback(err) {
		return nil, false, err
	}

	logger.Warn("Primary model rejected request, retrying with fallback",
		"primary", gs.cfg.GeminiModel,
		"fallback", gs.cfg.GeminiFallbackModel,
		"error", err)

	result, fallbackErr := gs.gemini.Generate(ctx, gs.cfg.GeminiFallbackModel, prompt, maxTokens, 0.3)
	if fallbackErr != nil {
		return nil, false, fmt.Errorf("generation failed on both models: primary: %v, fallback: %w", err, fallbackErr)
	}
	return result, true, nil
}

const singleSourceSystemPrompt = `You are a technical documentation assistant. Answer the question using ONLY the numbered context passages below.

Rules:
- Cite the passage number in square brackets after each claim, like [2].
- If the context does not contain the answer, say so plainly instead of guessing.
- Keep the answer focused and technical. Do not repeat the question.`

const synthesisSystemPrompt = `You are a technical documentation assistant. The context below comes from MULTIPLE documents, grouped by source file. Answer by synthesizing across them.

Rules:
- Organize the answer by subtopic, not by document.
- When several sources agree, say "multiple sources indicate" rather than counting them.
- When sources disagree, state each position with its own citation.
- Cite passage numbers in square brackets after each claim, like [2]. For claims supported by three or more consecutive passages, use a range like [1-3].
- If the context does not contain the answer, say so plainly instead of guessing.

Before answering, work through these steps internally: identify the subtopics the question touches, note what each document says about them, note agreements and conflicts, then write the answer.`

func (gs *GeneratorService) buildPrompt(systemPrompt, query string, chunks []models.RetrievedChunk, history []models.Message, synthesize bool) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	if len(history) > 0 {
		start := 0
		if len(history) > maxHistoryMessages {
			start = len(history) - maxHistoryMessages
		}
		sb.WriteString("Conversation so far:\n")
		for _, msg := range history[start:] {
			sb.WriteString(msg.Role)
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Context:\n")
	if synthesize {
		writeGroupedContext(&sb, chunks)
	} else {
		writeFlatContext(&sb, chunks)
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// writeFlatContext numbers passages in rerank order.
func writeFlatContext(sb *strings.Builder, chunks []models.RetrievedChunk) {
	for i, chunk := range chunks {
		fmt.Fprintf(sb, "[%d: %s%s] %s\n\n", i+1, chunk.Filename, pageSuffix(chunk), chunk.Text)
	}
}

// writeGroupedContext groups passages under their source document so
// cross-document agreement is visible to the model. Passage numbers stay
// global so citation markers map back to the same candidate list.
func writeGroupedContext(sb *strings.Builder, chunks []models.RetrievedChunk) {
	order := make([]string, 0)
	grouped := make(map[string][]int)
	for i, chunk := range chunks {
		if _, ok := grouped[chunk.Filename]; !ok {
			order = append(order, chunk.Filename)
		}
		grouped[chunk.Filename] = append(grouped[chunk.Filename], i)
	}

	for _, filename := range order {
		fmt.Fprintf(sb, "=== %s ===\n", filename)
		for _, i := range grouped[filename] {
			chunk := chunks[i]
			fmt.Fprintf(sb, "[%d%s] %s\n\n", i+1, pageSuffix(chunk), chunk.Text)
		}
	}
}

func pageSuffix(chunk models.RetrievedChunk) string {
	if chunk.Page > 0 {
		return fmt.Sprintf(" p.%d", chunk.Page)
	}
	return ""
}

// ParseCitations scans the answer for bracketed numeric markers in
// single [3], list [2,5], and range [1-3] forms, and resolves each
// in-range ordinal to its candidate chunk. A citation is multi_source
// when an adjacent ordinal is also cited anywhere in the answer.
func ParseCitations(answer string, chunks []models.RetrievedChunk) []models.Citation {
	cited := ParseCitedOrdinals(answer, len(chunks))
	if len(cited) == 0 {
		return nil
	}

	ordinals := make([]int, 0, len(cited))
	for n := range cited {
		ordinals = append(ordinals, n)
	}
	sort.Ints(ordinals)

	citations := make([]models.Citation, 0, len(ordinals))
	for _, n := range ordinals {
		chunk := chunks[n-1]
		citations = append(citations, models.Citation{
			Marker:      n,
			ChunkID:     chunk.ChunkID,
			DocumentID:  chunk.DocumentID,
			Filename:    chunk.Filename,
			Snippet:     truncateSnippet(chunk.Text),
			Page:        chunk.Page,
			Section:     chunk.Section,
			Score:       chunk.Score,
			Source:      citationSource(chunk),
			MultiSource: cited[n-1] || cited[n+1],
		})
	}
	return citations
}

// ParseCitedOrdinals extracts the set of cited 1-based ordinals from the
// answer text, expanding ranges and comma lists, and discarding ordinals
// outside [1, candidateCount].
func ParseCitedOrdinals(answer string, candidateCount int) map[int]bool {
	cited := make(map[int]bool)
	for _, match := range citationMarkerRegex.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(match[1], ",") {
			part = strings.TrimSpace(part)
			if lo, hi, ok := parseOrdinalRange(part); ok {
				for n := lo; n <= hi; n++ {
					if n >= 1 && n <= candidateCount {
						cited[n] = true
					}
				}
				continue
			}
			if n, err := strconv.Atoi(part); err == nil && n >= 1 && n <= candidateCount {
				cited[n] = true
			}
		}
	}
	return cited
}

func parseOrdinalRange(part string) (int, int, bool) {
	lo, hi, found := strings.Cut(part, "-")
	if !found {
		return 0, 0, false
	}
	loN, errLo := strconv.Atoi(strings.TrimSpace(lo))
	hiN, errHi := strconv.Atoi(strings.TrimSpace(hi))
	if errLo != nil || errHi != nil || loN > hiN {
		return 0, 0, false
	}
	return loN, hiN, true
}

func citationSource(chunk models.RetrievedChunk) string {
	if chunk.Source == models.SourceGraph {
		return "graph"
	}
	return "document"
}

func truncateSnippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetMaxLen {
		return text
	}
	cut := text[:snippetMaxLen]
	if idx := strings.LastIndex(cut, " "); idx > snippetMaxLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func countSourceDocuments(citations []models.Citation) int {
	docs := make(map[string]bool)
	for _, c := range citations {
		if c.Source == "graph" {
			continue
		}
		docs[c.DocumentID] = true
	}
	return len(docs)
}
