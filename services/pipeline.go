package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

const embeddingBatchSize = 50

// PipelineService processes an uploaded document through the ingestion
// stages: parsing, chunking, indexing, entity extraction, and
// cross-reference linking. Graph work degrades to a warning when the
// graph store is down; parsing, chunking, and indexing failures fail the
// document.
type PipelineService struct {
	cfg        *config.Config
	docsCol    *mongo.Collection
	chunksCol  *mongo.Collection
	extractor  *PDFExtractor
	chunker    *ChunkingService
	entities   *EntityExtractor
	crossRef   *CrossRefService
	graphStore *graph.Store
}

func NewPipelineService(cfg *config.Config, db *mongo.Database, gemini *ai.GeminiClient, graphStore *graph.Store, crossRef *CrossRefService) *PipelineService {
	return &PipelineService{
		cfg:        cfg,
		docsCol:    db.Collection("documents"),
		chunksCol:  db.Collection("doc_chunks"),
		extractor:  NewPDFExtractor(cfg),
		chunker:    NewChunkingService(cfg.MinChunkTokens, cfg.MaxChunkTokens, cfg.ChunkOverlap),
		entities:   NewEntityExtractor(cfg, gemini),
		crossRef:   crossRef,
		graphStore: graphStore,
	}
}

// ProcessDocument runs the full ingestion pipeline for one document.
// Returned errors mean the document landed in failed status; the error
// is also recorded on the document record.
func (ps *PipelineService) ProcessDocument(ctx context.Context, documentID primitive.ObjectID) error {
	doc, err := ps.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	started := time.Now()
	logger.Info("Document processing started",
		"document_id", documentID.Hex(), "filename", doc.Filename)

	if err := ps.runStages(ctx, doc); err != nil {
		ps.markFailed(ctx, documentID, err)
		return err
	}

	now := time.Now()
	_, err = ps.docsCol.UpdateOne(ctx,
		bson.M{"_id": documentID},
		bson.M{"$set": bson.M{
			"status":       models.StatusDone,
			"progress":     models.StageProgress[models.StatusDone],
			"processed_at": now,
		}})
	if err != nil {
		return err
	}

	logger.Info("Document processing completed",
		"document_id", documentID.Hex(),
		"duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (ps *PipelineService) runStages(ctx context.Context, doc *models.Document) error {
	// Parsing
	if err := ps.setStage(ctx, doc.ID, models.StatusParsing); err != nil {
		return err
	}
	extraction, err := ps.extractor.ExtractText(ctx, doc.FilePath, doc.ContentType)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	// Chunking
	if err := ps.setStage(ctx, doc.ID, models.StatusChunking); err != nil {
		return err
	}
	drafts := ps.chunker.ChunkText(doc.ID.Hex(), extraction.Text)
	if len(drafts) == 0 {
		return fmt.Errorf("document produced no chunks")
	}

	// Indexing
	if err := ps.setStage(ctx, doc.ID, models.StatusIndexing); err != nil {
		return err
	}
	totalTokens, err := ps.indexChunks(ctx, doc, drafts)
	if err != nil {
		return fmt.Errorf("chunk indexing failed: %w", err)
	}

	// Extracting
	if err := ps.setStage(ctx, doc.ID, models.StatusExtracting); err != nil {
		return err
	}
	entityCount := ps.extractAndStoreGraph(ctx, doc, drafts)

	// Linking
	if err := ps.setStage(ctx, doc.ID, models.StatusLinking); err != nil {
		return err
	}
	if err := ps.crossRef.DetectAndStore(ctx, doc.OwnerID, doc.ID, doc.Filename, extraction.Text); err != nil {
		logger.Warn("Cross-reference detection failed, continuing",
			"document_id", doc.ID.Hex(), "error", err)
	}

	_, err = ps.docsCol.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"chunk_count":  len(drafts),
			"entity_count": entityCount,
			"total_tokens": totalTokens,
			"metadata.pages":             extraction.Pages,
			"metadata.extraction_method": extraction.Method,
			"metadata.word_count":        extraction.WordCount,
			"metadata.character_count":   extraction.CharacterCount,
		}})
	return err
}

// indexChunks embeds chunk texts in batches and writes them to the chunk
// collection. Returns the total token count across chunks.
func (ps *PipelineService) indexChunks(ctx context.Context, doc *models.Document, drafts []ChunkDraft) (int, error) {
	// Reprocessing replaces the previous index.
	if _, err := ps.chunksCol.DeleteMany(ctx, bson.M{"document_id": doc.ID}); err != nil {
		return 0, err
	}

	totalTokens := 0
	records := make([]interface{}, 0, len(drafts))

	for start := 0; start < len(drafts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(drafts) {
			end = len(drafts)
		}
		batch := drafts[start:end]

		texts := make([]string, len(batch))
		for i, draft := range batch {
			texts[i] = draft.Text
		}

		vectors, err := ai.GenerateEmbeddingBatch(ctx, ps.cfg, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding batch failed: %w", err)
		}

		for i, draft := range batch {
			totalTokens += draft.TokenCount
			records = append(records, models.DocChunk{
				OwnerID:    doc.OwnerID,
				DocumentID: doc.ID,
				ChunkID:    draft.ChunkID,
				Order:      draft.Order,
				Text:       draft.Text,
				Page:       draft.Page,
				Section:    draft.Section,
				Keywords:   draft.Keywords,
				TokenCount: draft.TokenCount,
				Vector:     vectors[i],
			})
		}
	}

	if _, err := ps.chunksCol.InsertMany(ctx, records); err != nil {
		return 0, err
	}
	return totalTokens, nil
}

// extractAndStoreGraph runs entity extraction and writes the results to
// the graph store. Both steps are enhancements: failures log a warning
// and the pipeline continues. Returns the extracted entity count.
func (ps *PipelineService) extractAndStoreGraph(ctx context.Context, doc *models.Document, drafts []ChunkDraft) int {
	extraction, err := ps.entities.ExtractFromChunks(ctx, doc.ID.Hex(), drafts)
	if err != nil {
		logger.Warn("Entity extraction failed, continuing without graph data",
			"document_id", doc.ID.Hex(), "error", err)
		return 0
	}

	if !ps.graphStore.Available() {
		return len(extraction.Entities)
	}

	ownerID := doc.OwnerID.Hex()
	if err := ps.graphStore.UpsertEntities(ctx, ownerID, doc.ID.Hex(), doc.Filename, extraction.Entities); err != nil {
		logger.Warn("Graph entity upsert failed, continuing",
			"document_id", doc.ID.Hex(), "error", err)
		return len(extraction.Entities)
	}
	if err := ps.graphStore.UpsertRelations(ctx, ownerID, extraction.Relations); err != nil {
		logger.Warn("Graph relation upsert failed, continuing",
			"document_id", doc.ID.Hex(), "error", err)
	}
	return len(extraction.Entities)
}

// DeleteDocument removes a document and everything derived from it:
// chunks, relationship edges, graph nodes, and the stored file. Mongo
// cleanup failures abort; graph and file cleanup are best effort.
func (ps *PipelineService) DeleteDocument(ctx context.Context, ownerID, documentID primitive.ObjectID) error {
	doc, err := ps.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != ownerID {
		return fmt.Errorf("document %s does not belong to owner %s", documentID.Hex(), ownerID.Hex())
	}

	if _, err := ps.chunksCol.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return err
	}
	if err := ps.crossRef.DeleteForDocument(ctx, ownerID, documentID); err != nil {
		return err
	}
	if err := ps.graphStore.DeleteDocument(ctx, ownerID.Hex(), documentID.Hex()); err != nil {
		logger.Warn("Graph cleanup failed for deleted document",
			"document_id", documentID.Hex(), "error", err)
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove stored file", "path", doc.FilePath, "error", err)
		}
	}

	_, err = ps.docsCol.DeleteOne(ctx, bson.M{"_id": documentID})
	return err
}

func (ps *PipelineService) loadDocument(ctx context.Context, documentID primitive.ObjectID) (*models.Document, error) {
	var doc models.Document
	if err := ps.docsCol.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("document %s not found: %w", documentID.Hex(), err)
	}
	return &doc, nil
}

func (ps *PipelineService) setStage(ctx context.Context, documentID primitive.ObjectID, stage string) error {
	_, err := ps.docsCol.UpdateOne(ctx,
		bson.M{"_id": documentID},
		bson.M{"$set": bson.M{
			"status":   stage,
			"progress": models.StageProgress[stage],
		}})
	return err
}

func (ps *PipelineService) markFailed(ctx context.Context, documentID primitive.ObjectID, cause error) {
	_, err := ps.docsCol.UpdateOne(ctx,
		bson.M{"_id": documentID},
		bson.M{"$set": bson.M{
			"status":        models.StatusFailed,
			"error_message": cause.Error(),
		}})
	if err != nil {
		logger.Error("Failed to record document failure",
			"document_id", documentID.Hex(), "error", err)
	}
	logger.Error("Document processing failed",
		"document_id", documentID.Hex(), "error", cause)
}
