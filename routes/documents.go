package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/queue"
	"techdocs-rag-platform/middleware"
	"techdocs-rag-platform/models"
	"techdocs-rag-platform/services"
	"techdocs-rag-platform/utils"
)

func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, authMW *middleware.AuthMiddleware, queueClient *asynq.Client, pipeline *services.PipelineService, crossRef *services.CrossRefService) {
	docs := router.Group("/documents")
	docs.Use(authMW.RequireAuth())

	docsCol := db.Collection("documents")

	docs.POST("", handleUpload(cfg, docsCol, queueClient))
	docs.GET("", handleList(docsCol))
	docs.GET("/:id/status", handleStatus(docsCol))
	docs.GET("/relationships", handleRelationships(crossRef))
	docs.DELETE("/:id", handleDelete(pipeline))
}

func handleUpload(cfg *config.Config, docsCol *mongo.Collection, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if !supportedContentType(contentType, header.Filename) {
			utils.RespondWithBadRequest(c, "Only PDF, text, and markdown files are supported", nil)
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read uploaded file", nil)
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		// Same file uploaded twice by the same owner is a no-op.
		fileHash := utils.HashFileContent(content)
		var existing models.Document
		if err := docsCol.FindOne(ctx, bson.M{"owner_id": ownerID, "file_hash": fileHash}).Decode(&existing); err == nil {
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:       existing.ID.Hex(),
				Filename: existing.Filename,
				Status:   existing.Status,
				Message:  "Document already uploaded",
			})
			return
		}

		uploadDir := filepath.Join(cfg.FileStorageDir, ownerID.Hex())
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
			return
		}

		filePath := filepath.Join(uploadDir, uuid.NewString()+filepath.Ext(header.Filename))
		if err := os.WriteFile(filePath, content, 0600); err != nil {
			utils.RespondWithInternalError(c, "Failed to save file", nil)
			return
		}

		doc := models.Document{
			OwnerID:      ownerID,
			Filename:     header.Filename,
			OriginalName: header.Filename,
			FilePath:     filePath,
			FileHash:     fileHash,
			ContentType:  contentType,
			Status:       models.StatusUploaded,
			Progress:     models.StageProgress[models.StatusUploaded],
			UploadedAt:   time.Now(),
			Metadata:     models.DocumentMetadata{Size: header.Size},
		}

		result, err := docsCol.InsertOne(ctx, doc)
		if err != nil {
			os.Remove(filePath)
			utils.RespondWithInternalError(c, "Failed to create document record", nil)
			return
		}
		docID := result.InsertedID.(primitive.ObjectID)

		task, err := queue.NewDocumentProcessTask(docID.Hex(), ownerID.Hex())
		if err == nil {
			_, err = queueClient.Enqueue(task)
		}
		if err != nil {
			os.Remove(filePath)
			docsCol.DeleteOne(ctx, bson.M{"_id": docID})
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ID:       docID.Hex(),
			Filename: header.Filename,
			Status:   models.StatusUploaded,
			Message:  "Document accepted for processing",
		})
	}
}

func handleList(docsCol *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}

		page, limit := 1, 20
		if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
			page = p
		}
		if l, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && l > 0 && l <= 100 {
			limit = l
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		cursor, err := docsCol.Find(ctx,
			bson.M{"owner_id": ownerID},
			options.Find().
				SetSort(bson.M{"uploaded_at": -1}).
				SetSkip(int64((page-1)*limit)).
				SetLimit(int64(limit)))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		defer cursor.Close(ctx)

		var documents []models.Document
		if err := cursor.All(ctx, &documents); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode documents", nil)
			return
		}

		total, err := docsCol.CountDocuments(ctx, bson.M{"owner_id": ownerID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count documents", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": documents,
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": total,
			},
		})
	}
}

func handleStatus(docsCol *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		var doc models.Document
		err = docsCol.FindOne(ctx, bson.M{"_id": docID, "owner_id": ownerID}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retrieve document", nil)
			return
		}

		c.JSON(http.StatusOK, models.DocumentStatusResponse{
			ID:           doc.ID.Hex(),
			Filename:     doc.Filename,
			Status:       doc.Status,
			Progress:     doc.Progress,
			ChunkCount:   doc.ChunkCount,
			EntityCount:  doc.EntityCount,
			ErrorMessage: doc.ErrorMessage,
		})
	}
}

func handleRelationships(crossRef *services.CrossRefService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		rels, err := crossRef.RelationshipsForOwner(ctx, ownerID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retrieve relationships", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"relationships": rels, "count": len(rels)})
	}
}

func handleDelete(pipeline *services.PipelineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}
		docID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		if err := pipeline.DeleteDocument(ctx, ownerID, docID); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
	}
}

func supportedContentType(contentType, filename string) bool {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(contentType, "pdf") || strings.HasSuffix(lower, ".pdf"):
		return true
	case strings.HasPrefix(contentType, "text/") ||
		strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".md"):
		return true
	}
	return false
}

// ownerObjectID resolves the authenticated user's id as an ObjectID, or
// writes the error response and returns false.
func ownerObjectID(c *gin.Context) (primitive.ObjectID, bool) {
	userID := middleware.GetUserID(c)
	ownerID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		utils.RespondWithUnauthorized(c, "Invalid authentication context")
		return primitive.NilObjectID, false
	}
	return ownerID, true
}

