package services

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// SearchService answers semantic and lexical chunk queries, always scoped
// to one owner. Atlas $vectorSearch/$search pipelines are used when
// enabled; otherwise it scans the owner's chunks in process, which is
// fine at the few-hundred-document scale this serves.
type SearchService struct {
	cfg       *config.Config
	chunksCol *mongo.Collection
	docsCol   *mongo.Collection
}

func NewSearchService(cfg *config.Config, db *mongo.Database) *SearchService {
	return &SearchService{
		cfg:       cfg,
		chunksCol: db.Collection("doc_chunks"),
		docsCol:   db.Collection("documents"),
	}
}

// SemanticSearch embeds the query and returns the owner's chunks ranked
// by vector similarity.
func (ss *SearchService) SemanticSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error) {
	queryVec, err := ai.GenerateEmbedding(ctx, ss.cfg, query)
	if err != nil {
		return nil, err
	}

	if ss.cfg.VectorSearchEnabled {
		results, err := ss.atlasVectorSearch(ctx, ownerID, queryVec, limit)
		if err == nil {
			return results, nil
		}
		logger.Warn("Atlas vector search failed, falling back to scan", "error", err)
	}

	return ss.scanVectorSearch(ctx, ownerID, queryVec, limit)
}

// LexicalSearch returns the owner's chunks ranked by keyword relevance.
func (ss *SearchService) LexicalSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error) {
	if ss.cfg.AtlasTextSearchEnabled {
		results, err := ss.atlasTextSearch(ctx, ownerID, query, limit)
		if err == nil {
			return results, nil
		}
		logger.Warn("Atlas text search failed, falling back to scan", "error", err)
	}

	return ss.scanLexicalSearch(ctx, ownerID, query, limit)
}

func (ss *SearchService) atlasVectorSearch(ctx context.Context, ownerID string, queryVec []float32, limit int) ([]models.RetrievedChunk, error) {
	ownerOID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: ss.cfg.VectorIndexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: queryVec},
			{Key: "numCandidates", Value: limit * 10},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{{Key: "owner_id", Value: ownerOID}}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "search_score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	return ss.runChunkPipeline(ctx, pipeline, models.SourceSemantic)
}

func (ss *SearchService) atlasTextSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error) {
	ownerOID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "index", Value: ss.cfg.SearchIndexName},
			{Key: "text", Value: bson.D{
				{Key: "query", Value: query},
				{Key: "path", Value: bson.A{"text", "keywords"}},
			}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "owner_id", Value: ownerOID}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "search_score", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
		}}},
	}

	return ss.runChunkPipeline(ctx, pipeline, models.SourceLexical)
}

type scoredChunkDoc struct {
	models.DocChunk `bson:",inline"`
	SearchScore     float64 `bson:"search_score"`
}

func (ss *SearchService) runChunkPipeline(ctx context.Context, pipeline mongo.Pipeline, source string) ([]models.RetrievedChunk, error) {
	cursor, err := ss.chunksCol.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []scoredChunkDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	filenames, err := ss.filenamesByDocID(ctx, docs)
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievedChunk, 0, len(docs))
	for _, doc := range docs {
		results = append(results, models.RetrievedChunk{
			ChunkID:    doc.ChunkID,
			DocumentID: doc.DocumentID.Hex(),
			Filename:   filenames[doc.DocumentID.Hex()],
			Text:       doc.Text,
			Score:      doc.SearchScore,
			Source:     source,
			Page:       doc.Page,
			Section:    doc.Section,
		})
	}
	return results, nil
}

// scanVectorSearch ranks owner chunks by cosine similarity in process.
func (ss *SearchService) scanVectorSearch(ctx context.Context, ownerID string, queryVec []float32, limit int) ([]models.RetrievedChunk, error) {
	chunks, filenames, err := ss.loadOwnerChunks(ctx, ownerID, true)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk models.DocChunk
		score float64
	}
	candidates := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			continue
		}
		candidates = append(candidates, scored{chunk, cosineSimilarity(queryVec, chunk.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.ChunkID < candidates[j].chunk.ChunkID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]models.RetrievedChunk, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, models.RetrievedChunk{
			ChunkID:    cand.chunk.ChunkID,
			DocumentID: cand.chunk.DocumentID.Hex(),
			Filename:   filenames[cand.chunk.DocumentID.Hex()],
			Text:       cand.chunk.Text,
			Score:      cand.score,
			Source:     models.SourceSemantic,
			Page:       cand.chunk.Page,
			Section:    cand.chunk.Section,
		})
	}
	return results, nil
}

// scanLexicalSearch ranks owner chunks with BM25 computed over the
// owner's corpus.
func (ss *SearchService) scanLexicalSearch(ctx context.Context, ownerID, query string, limit int) ([]models.RetrievedChunk, error) {
	chunks, filenames, err := ss.loadOwnerChunks(ctx, ownerID, false)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryTerms := tokenizeQuery(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	// Document frequencies and lengths across the corpus.
	termFreqs := make([]map[string]int, len(chunks))
	docLens := make([]int, len(chunks))
	df := make(map[string]int)
	totalLen := 0
	for i, chunk := range chunks {
		terms := tokenizeQuery(chunk.Text)
		tf := make(map[string]int)
		for _, term := range terms {
			tf[term]++
		}
		termFreqs[i] = tf
		docLens[i] = len(terms)
		for term := range tf {
			df[term]++
		}
		totalLen += docLens[i]
	}
	avgLen := float64(totalLen) / float64(len(chunks))
	if avgLen == 0 {
		avgLen = 1
	}

	const k1, b = 1.5, 0.75
	n := float64(len(chunks))

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(chunks))
	for i := range chunks {
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			norm := tf * (k1 + 1) / (tf + k1*(1-b+b*float64(docLens[i])/avgLen))
			score += idf * norm
		}
		if score > 0 {
			candidates = append(candidates, scored{i, score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return chunks[candidates[i].idx].ChunkID < chunks[candidates[j].idx].ChunkID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]models.RetrievedChunk, 0, len(candidates))
	for _, cand := range candidates {
		chunk := chunks[cand.idx]
		results = append(results, models.RetrievedChunk{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID.Hex(),
			Filename:   filenames[chunk.DocumentID.Hex()],
			Text:       chunk.Text,
			Score:      cand.score,
			Source:     models.SourceLexical,
			Page:       chunk.Page,
			Section:    chunk.Section,
		})
	}
	return results, nil
}

// LeadingChunks returns the first n chunks of a document in order, used
// by related-document expansion.
func (ss *SearchService) LeadingChunks(ctx context.Context, ownerID, docID string, n int) ([]models.RetrievedChunk, error) {
	ownerOID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, err
	}
	docOID, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return nil, err
	}

	cursor, err := ss.chunksCol.Find(ctx,
		bson.M{"owner_id": ownerOID, "document_id": docOID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}}).SetLimit(int64(n)).SetProjection(bson.M{"vector": 0}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.DocChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}

	docs := make([]scoredChunkDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = scoredChunkDoc{DocChunk: c}
	}
	filenames, err := ss.filenamesByDocID(ctx, docs)
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, models.RetrievedChunk{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID.Hex(),
			Filename:   filenames[chunk.DocumentID.Hex()],
			Text:       chunk.Text,
			Source:     models.SourceLexical,
			Page:       chunk.Page,
			Section:    chunk.Section,
		})
	}
	return results, nil
}

func (ss *SearchService) loadOwnerChunks(ctx context.Context, ownerID string, withVectors bool) ([]models.DocChunk, map[string]string, error) {
	ownerOID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, nil, err
	}

	projection := bson.M{"vector": 0}
	if withVectors {
		projection = bson.M{}
	}

	cursor, err := ss.chunksCol.Find(ctx, bson.M{"owner_id": ownerOID},
		options.Find().SetProjection(projection))
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.DocChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, nil, err
	}

	docs := make([]scoredChunkDoc, len(chunks))
	for i, c := range chunks {
		docs[i] = scoredChunkDoc{DocChunk: c}
	}
	filenames, err := ss.filenamesByDocID(ctx, docs)
	if err != nil {
		return nil, nil, err
	}
	return chunks, filenames, nil
}

func (ss *SearchService) filenamesByDocID(ctx context.Context, docs []scoredChunkDoc) (map[string]string, error) {
	ids := make([]primitive.ObjectID, 0, len(docs))
	seen := make(map[primitive.ObjectID]bool)
	for _, doc := range docs {
		if !seen[doc.DocumentID] {
			seen[doc.DocumentID] = true
			ids = append(ids, doc.DocumentID)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	cursor, err := ss.docsCol.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var documents []models.Document
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, err
	}

	filenames := make(map[string]string, len(documents))
	for _, doc := range documents {
		filenames[doc.ID.Hex()] = doc.Filename
	}
	return filenames, nil
}

var queryTokenRegex = regexp.MustCompile(`[a-z0-9][a-z0-9\-\._]*`)

var searchStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"what": true, "how": true, "does": true, "do": true, "can": true,
}

func tokenizeQuery(text string) []string {
	tokens := queryTokenRegex.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.Trim(token, "-._")
		if len(token) > 1 && !searchStopWords[token] {
			out = append(out, token)
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
