package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID        primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Role           string             `bson:"role" json:"role"` // "user" or "assistant"
	Content        string             `bson:"content" json:"content"`
	Citations      []Citation         `bson:"citations,omitempty" json:"citations,omitempty"`
	TokenCost      int                `bson:"token_cost,omitempty" json:"token_cost,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required,min=1,max=2000"`
	ConversationID string `json:"conversation_id,omitempty"`
	Debug          bool   `json:"debug,omitempty"`
}

// Response states a caller can branch on without inspecting the reply
// text.
const (
	ResponseStatusOK               = "ok"
	ResponseStatusNoCandidates     = "no_candidates"
	ResponseStatusGenerationFailed = "generation_failed"
)

type ChatResponse struct {
	Reply          string           `json:"reply"`
	Status         string           `json:"status"`
	Citations      []Citation       `json:"citations"`
	ConversationID string           `json:"conversation_id"`
	SynthesisMode  bool             `json:"synthesis_mode"`
	SourceDocCount int              `json:"source_doc_count"`
	TokensUsed     int              `json:"tokens_used"`
	Timestamp      time.Time        `json:"timestamp"`
	Diagnostics    *ChatDiagnostics `json:"diagnostics,omitempty"`
}

// Citation maps a numeric marker in the answer back to its source chunk.
// MultiSource marks citations whose adjacent ordinal (n-1 or n+1) is also
// cited somewhere in the answer, a heuristic for claims drawn from
// multiple sources at once.
type Citation struct {
	Marker      int     `bson:"marker" json:"marker"`
	ChunkID     string  `bson:"chunk_id" json:"chunk_id"`
	DocumentID  string  `bson:"document_id" json:"document_id"`
	Filename    string  `bson:"filename" json:"filename"`
	Snippet     string  `bson:"snippet" json:"snippet"`
	Page        int     `bson:"page,omitempty" json:"page,omitempty"`
	Section     string  `bson:"section,omitempty" json:"section,omitempty"`
	Score       float64 `bson:"score,omitempty" json:"score,omitempty"`
	Source      string  `bson:"source,omitempty" json:"source,omitempty"`
	MultiSource bool    `bson:"multi_source" json:"multi_source"`
}

// ChatDiagnostics is returned when the request sets debug, exposing how
// the answer was assembled.
type ChatDiagnostics struct {
	SemanticCount   int      `json:"semantic_count"`
	LexicalCount    int      `json:"lexical_count"`
	GraphCount      int      `json:"graph_count"`
	FusedCount      int      `json:"fused_count"`
	RelatedCount    int      `json:"related_count"`
	RerankedCount   int      `json:"reranked_count"`
	SynthesisMode   bool     `json:"synthesis_mode"`
	SourceDocuments []string `json:"source_documents"`
	ModelUsed       string   `json:"model_used"`
	FallbackUsed    bool     `json:"fallback_used"`
	GraphDegraded   bool     `json:"graph_degraded"`
	RerankDegraded  bool     `json:"rerank_degraded"`
	RetrievalMs     int64    `json:"retrieval_ms"`
	GenerationMs    int64    `json:"generation_ms"`
}

type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	TotalTokens    int       `json:"total_tokens"`
}
