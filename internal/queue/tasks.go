package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/services"
)

const TaskProcessDocument = "document:process"

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}

// NewDocumentProcessTask enqueues full ingestion for one uploaded
// document. Processing is retried on transient failures; a bad payload
// never is.
func NewDocumentProcessTask(documentID, ownerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{
		DocumentID: documentID,
		OwnerID:    ownerID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("critical"),
	), nil
}

type TaskProcessor struct {
	pipeline *services.PipelineService
}

func NewTaskProcessor(pipeline *services.PipelineService) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	logger.Info("Processing document task",
		"document_id", payload.DocumentID, "owner_id", payload.OwnerID)

	return p.pipeline.ProcessDocument(ctx, documentID)
}

// RegisterHandlers wires task types to their handlers on the worker mux.
func (p *TaskProcessor) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, p.ProcessDocument)
}
