package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// DocChunk is a denormalized chunk for Atlas Search/VectorSearch.
// Keeping a separate collection enables efficient $search/$vectorSearch.
type DocChunk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID    primitive.ObjectID `bson:"owner_id"`
	DocumentID primitive.ObjectID `bson:"document_id"`
	ChunkID    string             `bson:"chunk_id"`
	Order      int                `bson:"order"`
	Text       string             `bson:"text"`
	Page       int                `bson:"page,omitempty"`
	Section    string             `bson:"section,omitempty"`
	Keywords   []string           `bson:"keywords,omitempty"`
	TokenCount int                `bson:"token_count,omitempty"`
	Vector     []float32          `bson:"vector,omitempty"`
}

// Chunk retrieval sources. Graph chunks are synthesized from knowledge
// graph facts rather than fetched from the chunk collection.
const (
	SourceSemantic = "semantic"
	SourceLexical  = "lexical"
	SourceHybrid   = "hybrid"
	SourceGraph    = "graph"
)

// RetrievedChunk is a chunk scored by the retrieval pipeline. Score
// semantics depend on Source: cosine similarity for semantic, BM25-style
// for lexical, fused RRF score for hybrid, fixed 0.9 for graph.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	Section    string  `json:"section,omitempty"`

	// FusedScore preserves the RRF score after the reranker rewrites
	// Score with the cross-encoder's.
	FusedScore float64 `json:"fused_score,omitempty"`

	// ExpandedFromRelationship marks chunks pulled in from documents
	// linked to a direct hit rather than retrieved themselves.
	ExpandedFromRelationship bool `json:"expanded_from_relationship,omitempty"`
}
