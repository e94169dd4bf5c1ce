package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents an uploaded technical document tracked through the
// ingestion pipeline.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID      primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"file_path"`
	FileHash     string             `bson:"file_hash" json:"file_hash"` // For deduplication
	ContentType  string             `bson:"content_type" json:"content_type"`
	Status       string             `bson:"status" json:"status"`
	Progress     int                `bson:"progress" json:"progress"` // 0-100
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	EntityCount  int                `bson:"entity_count" json:"entity_count"`
	TotalTokens  int                `bson:"total_tokens" json:"total_tokens"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Metadata     DocumentMetadata   `bson:"metadata" json:"metadata"`
}

// DocumentMetadata contains extraction metadata
type DocumentMetadata struct {
	Size             int64  `bson:"size" json:"size"`
	Pages            int    `bson:"pages" json:"pages"`
	ExtractionMethod string `bson:"extraction_method" json:"extraction_method"`
	WordCount        int    `bson:"word_count" json:"word_count"`
	CharacterCount   int    `bson:"character_count" json:"character_count"`
}

// UploadResponse represents the response after successful upload
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	TaskID   string `json:"task_id,omitempty"`
}

// DocumentStatusResponse reports pipeline progress for one document
type DocumentStatusResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
	EntityCount  int    `json:"entity_count,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Pipeline stage constants. A document moves through the stages in order
// and lands on done or failed.
const (
	StatusUploaded   = "uploaded"
	StatusParsing    = "parsing"
	StatusChunking   = "chunking"
	StatusIndexing   = "indexing"
	StatusExtracting = "extracting"
	StatusLinking    = "linking"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// StageProgress maps each stage to the cumulative progress shown when the
// stage begins.
var StageProgress = map[string]int{
	StatusUploaded:   0,
	StatusParsing:    10,
	StatusChunking:   30,
	StatusIndexing:   50,
	StatusExtracting: 70,
	StatusLinking:    90,
	StatusDone:       100,
}

// ExtractionMethod represents different extraction methods
const (
	ExtractionMethodGemini = "gemini"
	ExtractionMethodGoPDF  = "go-pdf"
	ExtractionMethodPlain  = "plain-text"
)
