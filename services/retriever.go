package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// Domain acronyms expanded into queries to improve semantic recall. The
// same table backs entity name normalization in the graph, so both
// spellings of an acronym land on one node.
var AcronymMap = graph.AcronymAliases

var acronymTokenRegex = regexp.MustCompile(`\b[A-Z]{2,}\b`)

// ExpandAcronyms rewrites known acronyms as "ACRO (Expansion)" so both
// the short and long forms participate in search.
func ExpandAcronyms(query string) string {
	expanded := acronymTokenRegex.ReplaceAllStringFunc(query, func(acronym string) string {
		if expansion, ok := AcronymMap[acronym]; ok {
			return fmt.Sprintf("%s (%s)", acronym, expansion)
		}
		return acronym
	})
	return strings.TrimSpace(expanded)
}

// SemanticSearcher ranks chunks by vector similarity.
type SemanticSearcher interface {
	SemanticSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error)
}

// LexicalSearcher ranks chunks by keyword relevance.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error)
}

// GraphExpander contributes graph-derived context entries.
type GraphExpander interface {
	Available() bool
	RetrieveGraphContext(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, bool)
}

// RelationSource serves cached document relationships.
type RelationSource interface {
	StrongRelations(ctx context.Context, ownerID string, docIDs []string, minStrength float64) ([]models.DocRelationship, error)
}

// ChunkSource fetches leading chunks of a document for related-document
// expansion.
type ChunkSource interface {
	LeadingChunks(ctx context.Context, ownerID, docID string, n int) ([]models.RetrievedChunk, error)
}

// RetrievalResult is the fused, expanded candidate set plus the
// diagnostics the chat layer reports.
type RetrievalResult struct {
	Chunks        []models.RetrievedChunk
	ExpandedQuery string
	SemanticCount int
	LexicalCount  int
	GraphCount    int
	FusedCount    int
	GraphDegraded bool
	LatencyMs     int64
}

// Retriever runs the hybrid retrieval pipeline: acronym expansion, dual
// search, reciprocal rank fusion, graph expansion, and related-document
// expansion.
type Retriever struct {
	cfg       *config.Config
	semantic  SemanticSearcher
	lexical   LexicalSearcher
	graph     GraphExpander
	relations RelationSource
	chunks    ChunkSource
}

func NewRetriever(cfg *config.Config, semantic SemanticSearcher, lexical LexicalSearcher, graphExp GraphExpander, relations RelationSource, chunks ChunkSource) *Retriever {
	return &Retriever{
		cfg:       cfg,
		semantic:  semantic,
		lexical:   lexical,
		graph:     graphExp,
		relations: relations,
		chunks:    chunks,
	}
}

// Retrieve returns the candidate chunks for a query. One search leg
// failing degrades to the other; both failing is an error. Graph and
// relationship expansion never fail the call.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string) (*RetrievalResult, error) {
	start := time.Now()

	expandedQuery := ExpandAcronyms(query)

	var semanticResults, lexicalResults []models.RetrievedChunk
	var semanticErr, lexicalErr error

	// Each leg overfetches so chunks ranked just past the cutoff in both
	// lists can still fuse into the top results.
	legLimit := 2 * r.cfg.RetrievalLimit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semanticResults, semanticErr = r.semantic.SemanticSearch(gctx, ownerID, expandedQuery, legLimit)
		return nil
	})
	g.Go(func() error {
		lexicalResults, lexicalErr = r.lexical.LexicalSearch(gctx, ownerID, expandedQuery, legLimit)
		return nil
	})
	_ = g.Wait()

	if semanticErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("both search legs failed: semantic: %v; lexical: %v", semanticErr, lexicalErr)
	}
	if semanticErr != nil {
		logger.Warn("Semantic search failed, using lexical only", "owner_id", ownerID, "error", semanticErr)
		semanticResults = nil
	}
	if lexicalErr != nil {
		logger.Warn("Lexical search failed, using semantic only", "owner_id", ownerID, "error", lexicalErr)
		lexicalResults = nil
	}

	fused := FuseRankedLists(semanticResults, lexicalResults, r.cfg.RRFConstant, r.cfg.RetrievalLimit)

	result := &RetrievalResult{
		ExpandedQuery: expandedQuery,
		SemanticCount: len(semanticResults),
		LexicalCount:  len(lexicalResults),
		FusedCount:    len(fused),
	}

	// Graph expansion. In auto mode only relationship-focused queries
	// pay the traversal cost.
	if r.graph != nil && r.graph.Available() {
		if r.cfg.GraphExpansionMode == "always" || IsRelationshipQuery(query) {
			graphChunks, degraded := r.graph.RetrieveGraphContext(ctx, ownerID, query, r.cfg.RetrievalLimit)
			result.GraphDegraded = degraded
			result.GraphCount = len(graphChunks)
			fused = append(fused, graphChunks...)
		}
	}

	// Related-document expansion: pull leading chunks from documents
	// strongly linked to the top candidates.
	fused = r.expandRelatedDocuments(ctx, ownerID, fused)

	result.Chunks = fused
	result.LatencyMs = time.Since(start).Milliseconds()

	logger.Debug("Retrieval complete",
		"owner_id", ownerID,
		"semantic", result.SemanticCount,
		"lexical", result.LexicalCount,
		"graph", result.GraphCount,
		"total", len(fused),
		"latency_ms", result.LatencyMs)

	return result, nil
}

func (r *Retriever) expandRelatedDocuments(ctx context.Context, ownerID string, fused []models.RetrievedChunk) []models.RetrievedChunk {
	if r.relations == nil || r.chunks == nil || len(fused) == 0 {
		return fused
	}

	present := make(map[string]bool, len(fused))
	docIDs := make([]string, 0)
	seenDocs := make(map[string]bool)
	for _, chunk := range fused {
		present[chunk.ChunkID] = true
		if chunk.Source != models.SourceGraph && !seenDocs[chunk.DocumentID] {
			seenDocs[chunk.DocumentID] = true
			docIDs = append(docIDs, chunk.DocumentID)
		}
	}

	rels, err := r.relations.StrongRelations(ctx, ownerID, docIDs, r.cfg.RelationshipMinStrength)
	if err != nil {
		logger.Warn("Relationship lookup failed, skipping related-document expansion", "error", err)
		return fused
	}

	perSource := make(map[string]int)
	for _, rel := range rels {
		sourceID := rel.SourceDocID.Hex()
		targetID := rel.TargetDocID.Hex()
		if seenDocs[targetID] {
			continue
		}
		if perSource[sourceID] >= r.cfg.RelatedDocsPerDoc {
			continue
		}

		leading, err := r.chunks.LeadingChunks(ctx, ownerID, targetID, 1)
		if err != nil {
			logger.Warn("Failed to fetch related document chunks", "doc_id", targetID, "error", err)
			continue
		}
		for _, chunk := range leading {
			if present[chunk.ChunkID] {
				continue
			}
			// Related chunks rank below directly retrieved ones.
			chunk.Score = 0.01 * rel.Strength
			chunk.Source = models.SourceHybrid
			chunk.ExpandedFromRelationship = true
			present[chunk.ChunkID] = true
			fused = append(fused, chunk)
		}
		perSource[sourceID]++
		seenDocs[targetID] = true
	}

	return fused
}
