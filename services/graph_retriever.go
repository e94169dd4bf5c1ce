package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// GraphRetriever expands queries through the knowledge graph. Entity
// facts come back as pseudo-chunks that merge into the fused candidate
// list with a fixed high score.
type GraphRetriever struct {
	store *graph.Store
}

func NewGraphRetriever(store *graph.Store) *GraphRetriever {
	return &GraphRetriever{store: store}
}

// Available reports whether graph expansion can run at all.
func (gr *GraphRetriever) Available() bool {
	return gr != nil && gr.store.Available()
}

var (
	capitalizedPhraseRegex = regexp.MustCompile(`\b[A-Z][A-Za-z0-9\-]+(?:\s+[A-Z][A-Za-z0-9\-]+)*\b`)
	acronymRegex           = regexp.MustCompile(`\b[A-Z]{2,}[0-9]*\b`)
)

var questionWords = map[string]bool{
	"what": true, "how": true, "when": true, "where": true, "who": true,
	"why": true, "which": true, "is": true, "are": true, "does": true,
	"do": true, "can": true, "the": true,
}

var relationshipKeywords = []string{
	"connect", "depend", "configure", "interface", "relate",
	"work with", "interact", "communicate", "link",
	"how does", "what connects", "what depends", "relationship",
}

// ExtractQueryEntities pulls candidate entity names out of the query
// text: capitalized phrases and acronyms, minus question words. Names
// that do not exist in the graph simply match nothing downstream.
func ExtractQueryEntities(query string) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, 4)

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || questionWords[strings.ToLower(name)] {
			return
		}
		key := graph.NormalizeEntityName(name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	}

	for _, match := range capitalizedPhraseRegex.FindAllString(query, -1) {
		add(match)
	}
	for _, match := range acronymRegex.FindAllString(query, -1) {
		add(match)
	}

	return names
}

// IsRelationshipQuery detects queries about connections or dependencies
// between components. Those get a deeper graph traversal.
func IsRelationshipQuery(query string) bool {
	queryLower := strings.ToLower(query)
	for _, keyword := range relationshipKeywords {
		if strings.Contains(queryLower, keyword) {
			return true
		}
	}

	// Multiple capitalized non-question words suggest the user named
	// two or more components.
	entityWords := 0
	for _, word := range capitalizedPhraseRegex.FindAllString(query, -1) {
		if !questionWords[strings.ToLower(word)] {
			entityWords++
		}
	}
	return entityWords >= 2
}

// RetrieveGraphContext expands the query through the graph and formats
// the results as chunk-shaped context entries. The second return value
// reports degradation: a graph failure never fails retrieval, it only
// drops the expansion.
func (gr *GraphRetriever) RetrieveGraphContext(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, bool) {
	if !gr.Available() {
		return nil, false
	}

	entityNames := ExtractQueryEntities(query)
	if len(entityNames) == 0 {
		return nil, false
	}

	// Cap the seed entities to avoid traversal explosion.
	if len(entityNames) > 3 {
		entityNames = entityNames[:3]
	}

	depth := 1
	if IsRelationshipQuery(query) {
		depth = 2
	}

	facts, err := gr.store.Expand(ctx, ownerID, entityNames, depth, limit)
	if err != nil {
		logger.Warn("Graph expansion failed, continuing without graph context",
			"owner_id", ownerID, "error", err)
		return nil, true
	}
	if len(facts) == 0 {
		return nil, false
	}

	return formatGraphChunks(facts), false
}

// formatGraphChunks groups facts by source entity and renders each group
// as one natural language context entry.
func formatGraphChunks(facts []models.GraphFact) []models.RetrievedChunk {
	type entityFacts struct {
		entity   models.Entity
		outgoing []models.GraphFact
		incoming []models.GraphFact
	}

	byEntity := make(map[string]*entityFacts)
	order := make([]string, 0)

	get := func(e models.Entity) *entityFacts {
		key := e.NameNorm
		if key == "" {
			key = graph.NormalizeEntityName(e.Name)
		}
		ef, ok := byEntity[key]
		if !ok {
			ef = &entityFacts{entity: e}
			byEntity[key] = ef
			order = append(order, key)
		}
		return ef
	}

	for _, fact := range facts {
		get(fact.Source).outgoing = append(get(fact.Source).outgoing, fact)
		get(fact.Target).incoming = append(get(fact.Target).incoming, fact)
	}

	sort.Strings(order)

	chunks := make([]models.RetrievedChunk, 0, len(order))
	for _, key := range order {
		ef := byEntity[key]
		text := formatEntityContext(ef.entity, ef.outgoing, ef.incoming)
		chunks = append(chunks, models.RetrievedChunk{
			ChunkID:    fmt.Sprintf("graph-%s", key),
			DocumentID: "graph",
			Filename:   "Knowledge Graph",
			Text:       text,
			Score:      0.9,
			Source:     models.SourceGraph,
		})
	}
	return chunks
}

func formatEntityContext(entity models.Entity, outgoing, incoming []models.GraphFact) string {
	desc := entity.Description
	if desc == "" {
		desc = "No description available"
	}
	parts := []string{fmt.Sprintf("%s: %s.", entity.Name, desc)}

	grouped := map[string][]string{}
	for _, fact := range outgoing {
		grouped[fact.Relation] = append(grouped[fact.Relation], fact.Target.Name)
	}

	if targets := grouped[models.RelationDependsOn]; len(targets) > 0 {
		parts = append(parts, fmt.Sprintf("Depends on: %s.", strings.Join(targets, ", ")))
	}
	if targets := grouped[models.RelationConfigures]; len(targets) > 0 {
		parts = append(parts, fmt.Sprintf("Configures: %s.", strings.Join(targets, ", ")))
	}
	if targets := grouped[models.RelationConnectsTo]; len(targets) > 0 {
		parts = append(parts, fmt.Sprintf("Connects to: %s.", strings.Join(targets, ", ")))
	}
	if targets := grouped[models.RelationIsPartOf]; len(targets) > 0 {
		parts = append(parts, fmt.Sprintf("Is part of: %s.", strings.Join(targets, ", ")))
	}

	// Incoming edges read in reverse.
	for _, fact := range incoming {
		switch fact.Relation {
		case models.RelationDependsOn:
			parts = append(parts, fmt.Sprintf("Required by: %s.", fact.Source.Name))
		case models.RelationConfigures:
			parts = append(parts, fmt.Sprintf("Configured by: %s.", fact.Source.Name))
		case models.RelationIsPartOf:
			parts = append(parts, fmt.Sprintf("Contains: %s.", fact.Source.Name))
		}
	}

	return strings.Join(parts, " ")
}
