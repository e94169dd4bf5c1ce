package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/internal/telemetry"
	"techdocs-rag-platform/middleware"
	"techdocs-rag-platform/models"
	"techdocs-rag-platform/services"
	"techdocs-rag-platform/utils"
)

// ChatHandler orchestrates the query pipeline: hybrid retrieval,
// reranking, and synthesis-aware generation, with conversation history
// persisted per user.
type ChatHandler struct {
	retriever   *services.Retriever
	reranker    *services.RerankerService
	generator   *services.GeneratorService
	messagesCol *mongo.Collection
	metrics     *telemetry.Metrics
}

func SetupChatRoutes(router *gin.Engine, db *mongo.Database, authMW *middleware.AuthMiddleware, retriever *services.Retriever, reranker *services.RerankerService, generator *services.GeneratorService, metrics *telemetry.Metrics) {
	handler := &ChatHandler{
		retriever:   retriever,
		reranker:    reranker,
		generator:   generator,
		messagesCol: db.Collection("messages"),
		metrics:     metrics,
	}

	chat := router.Group("/chat")
	chat.Use(authMW.RequireAuth())
	chat.POST("", handler.HandleMessage)
	chat.GET("/history/:conversationID", handler.HandleHistory)
}

func (h *ChatHandler) HandleMessage(c *gin.Context) {
	ownerID, ok := ownerObjectID(c)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx, cancel := utils.WithLongTimeout(c.Request.Context())
	defer cancel()

	pipelineStart := time.Now()

	history, err := h.loadHistory(c, ownerID, conversationID)
	if err != nil {
		logger.Warn("Failed to load conversation history", "error", err)
	}

	retrieval, err := h.retriever.Retrieve(ctx, ownerID.Hex(), req.Message)
	if err != nil {
		utils.RespondWithServiceUnavailable(c, "Retrieval is temporarily unavailable")
		return
	}

	reranked, rerankDegraded := h.reranker.Rerank(ctx, req.Message, retrieval.Chunks)

	generationStart := time.Now()
	answer, err := h.generator.Generate(ctx, req.Message, reranked, history)
	if err != nil {
		h.metrics.RecordPipeline(time.Since(pipelineStart).Seconds(), "error")
		utils.RespondWithError(c, http.StatusServiceUnavailable,
			models.ResponseStatusGenerationFailed,
			"Answer generation failed. Please try again.", nil)
		return
	}
	generationMs := time.Since(generationStart).Milliseconds()

	h.metrics.RecordRetrieval(float64(retrieval.LatencyMs)/1000.0, answer.SynthesisMode)
	h.metrics.RecordPipeline(time.Since(pipelineStart).Seconds(), "success")
	if answer.TokensUsed > 0 {
		h.metrics.RecordTokensUsed(int64(answer.TokensUsed), answer.ModelUsed)
	}

	h.persistExchange(c, ownerID, conversationID, req.Message, answer)

	response := models.ChatResponse{
		Reply:          answer.Reply,
		Status:         answer.Status(),
		Citations:      answer.Citations,
		ConversationID: conversationID,
		SynthesisMode:  answer.SynthesisMode,
		SourceDocCount: answer.SourceDocCount,
		TokensUsed:     answer.TokensUsed,
		Timestamp:      time.Now(),
	}

	if req.Debug {
		response.Diagnostics = &models.ChatDiagnostics{
			SemanticCount:   retrieval.SemanticCount,
			LexicalCount:    retrieval.LexicalCount,
			GraphCount:      retrieval.GraphCount,
			FusedCount:      retrieval.FusedCount,
			RelatedCount:    expandedChunkCount(retrieval.Chunks),
			RerankedCount:   len(reranked),
			SynthesisMode:   answer.SynthesisMode,
			SourceDocuments: sourceDocumentNames(answer.Citations),
			ModelUsed:       answer.ModelUsed,
			FallbackUsed:    answer.FallbackUsed,
			GraphDegraded:   retrieval.GraphDegraded,
			RerankDegraded:  rerankDegraded,
			RetrievalMs:     retrieval.LatencyMs,
			GenerationMs:    generationMs,
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *ChatHandler) HandleHistory(c *gin.Context) {
	ownerID, ok := ownerObjectID(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversationID")

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	cursor, err := h.messagesCol.Find(ctx,
		bson.M{"owner_id": ownerID, "conversation_id": conversationID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to retrieve history", nil)
		return
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode history", nil)
		return
	}

	totalTokens := 0
	for _, msg := range messages {
		totalTokens += msg.TokenCost
	}

	c.JSON(http.StatusOK, models.ConversationHistory{
		ConversationID: conversationID,
		Messages:       messages,
		TotalTokens:    totalTokens,
	})
}

func (h *ChatHandler) loadHistory(c *gin.Context, ownerID primitive.ObjectID, conversationID string) ([]models.Message, error) {
	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	cursor, err := h.messagesCol.Find(ctx,
		bson.M{"owner_id": ownerID, "conversation_id": conversationID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// persistExchange stores the user message and the assistant reply.
// Persistence failures are logged; the user still gets the answer.
func (h *ChatHandler) persistExchange(c *gin.Context, ownerID primitive.ObjectID, conversationID, question string, answer *services.Answer) {
	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()

	now := time.Now()
	userMsg := models.Message{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Role:           "user",
		Content:        question,
		CreatedAt:      now,
	}
	assistantMsg := models.Message{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        answer.Reply,
		Citations:      answer.Citations,
		TokenCost:      answer.TokensUsed,
		CreatedAt:      now.Add(time.Millisecond),
	}

	if _, err := h.messagesCol.InsertMany(ctx, []interface{}{userMsg, assistantMsg}); err != nil {
		logger.Warn("Failed to persist conversation messages", "error", err)
	}
}

func expandedChunkCount(chunks []models.RetrievedChunk) int {
	count := 0
	for _, chunk := range chunks {
		if chunk.ExpandedFromRelationship {
			count++
		}
	}
	return count
}

func sourceDocumentNames(citations []models.Citation) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, citation := range citations {
		if citation.Source == "graph" || seen[citation.Filename] {
			continue
		}
		seen[citation.Filename] = true
		names = append(names, citation.Filename)
	}
	return names
}
