package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

const extractionPrompt = `You are extracting entities and relationships from technical documentation.

ENTITIES - extract all of these types:
- hardware: physical systems, subsystems, modules, sensors, actuators, components
- software: APIs, services, protocols, algorithms, interfaces
- configuration: settings, thresholds, modes, flags, parameters
- error: error codes, fault conditions, failure scenarios, warning types
- other: anything relevant that fits none of the above

Expand acronyms in descriptions (e.g. UAV = Unmanned Aerial Vehicle). Include entities mentioned only once.

RELATIONSHIPS - identify:
- depends_on: X requires Y to function
- configures: X sets parameters for Y
- connects_to: X interfaces or communicates with Y
- is_part_of: X is a component or subsystem of Y

Respond with ONLY a JSON object, no markdown fences, in this exact shape:
{"entities": [{"name": "...", "type": "hardware|software|configuration|error|other", "description": "..."}], "relationships": [{"source": "...", "target": "...", "type": "depends_on|configures|connects_to|is_part_of"}]}

Text to analyze:
`

// chunkExtraction is the JSON shape the model is instructed to return.
type chunkExtraction struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relationships []struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Type   string `json:"type"`
	} `json:"relationships"`
}

// GraphExtraction aggregates entities and relations across a document's
// chunks.
type GraphExtraction struct {
	Entities    []models.Entity
	Relations   []models.Relation
	ChunkErrors int
}

// EntityExtractor pulls typed entities and relations out of chunk text
// with an LLM call per chunk, bounded concurrency across a document.
// Per-chunk failures are logged and skipped so one bad chunk never fails
// document processing.
type EntityExtractor struct {
	cfg    *config.Config
	gemini *ai.GeminiClient
}

func NewEntityExtractor(cfg *config.Config, gemini *ai.GeminiClient) *EntityExtractor {
	return &EntityExtractor{cfg: cfg, gemini: gemini}
}

// ExtractFromChunks runs extraction over every chunk and merges the
// results, deduplicating entities by normalized name with chunk and
// document provenance accumulated.
func (ee *EntityExtractor) ExtractFromChunks(ctx context.Context, documentID string, chunks []ChunkDraft) (*GraphExtraction, error) {
	var mu sync.Mutex
	extractions := make(map[string]chunkExtraction, len(chunks))
	chunkErrors := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ee.cfg.ExtractionConcurrency)

	for _, chunk := range chunks {
		g.Go(func() error {
			extraction, err := ee.extractFromChunk(gctx, chunk.Text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				chunkErrors++
				logger.Warn("Entity extraction failed for chunk, skipping",
					"chunk_id", chunk.ChunkID, "error", err)
				return nil
			}
			extractions[chunk.ChunkID] = *extraction
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := mergeExtractions(documentID, extractions)
	result.ChunkErrors = chunkErrors

	logger.Info("Entity extraction completed",
		"document_id", documentID,
		"chunks", len(chunks),
		"entities", len(result.Entities),
		"relations", len(result.Relations),
		"chunk_errors", chunkErrors)

	return result, nil
}

func (ee *EntityExtractor) extractFromChunk(ctx context.Context, text string) (*chunkExtraction, error) {
	result, err := ee.gemini.Generate(ctx, ee.cfg.GeminiModel, extractionPrompt+text, 2048, 0)
	if err != nil {
		return nil, err
	}

	var extraction chunkExtraction
	if err := json.Unmarshal([]byte(stripJSONFences(result.Text)), &extraction); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return &extraction, nil
}

// stripJSONFences removes markdown code fences the model sometimes wraps
// JSON in despite instructions.
func stripJSONFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

func mergeExtractions(documentID string, extractions map[string]chunkExtraction) *GraphExtraction {
	byNorm := make(map[string]*models.Entity)
	order := make([]string, 0)
	relations := make([]models.Relation, 0)

	for chunkID, extraction := range extractions {
		for _, raw := range extraction.Entities {
			name := strings.TrimSpace(raw.Name)
			if name == "" {
				continue
			}
			entityType := raw.Type
			if !validEntityType(entityType) {
				entityType = models.EntityTypeOther
			}
			norm := graph.NormalizeEntityName(name)
			entity, ok := byNorm[norm]
			if !ok {
				entity = &models.Entity{
					Name:        name,
					NameNorm:    norm,
					Type:        entityType,
					Description: raw.Description,
					DocumentIDs: []string{documentID},
				}
				byNorm[norm] = entity
				order = append(order, norm)
			}
			if entity.Description == "" {
				entity.Description = raw.Description
			}
			entity.ChunkIDs = appendUnique(entity.ChunkIDs, chunkID)
		}

		for _, raw := range extraction.Relationships {
			source := strings.TrimSpace(raw.Source)
			target := strings.TrimSpace(raw.Target)
			if source == "" || target == "" || !validRelationType(raw.Type) {
				continue
			}
			relations = append(relations, models.Relation{
				SourceName: source,
				TargetName: target,
				Type:       raw.Type,
				ChunkID:    chunkID,
				DocumentID: documentID,
			})
		}
	}

	entities := make([]models.Entity, 0, len(order))
	for _, norm := range order {
		entities = append(entities, *byNorm[norm])
	}
	return &GraphExtraction{Entities: entities, Relations: relations}
}

func validEntityType(t string) bool {
	switch t {
	case models.EntityTypeHardware, models.EntityTypeSoftware,
		models.EntityTypeConfiguration, models.EntityTypeError,
		models.EntityTypeOther:
		return true
	}
	return false
}

func validRelationType(t string) bool {
	switch t {
	case models.RelationDependsOn, models.RelationConfigures,
		models.RelationConnectsTo, models.RelationIsPartOf:
		return true
	}
	return false
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
