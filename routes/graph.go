package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/middleware"
	"techdocs-rag-platform/services"
	"techdocs-rag-platform/utils"
)

// SetupGraphRoutes exposes knowledge graph inspection endpoints used by
// the UI's graph view and for debugging extraction quality.
func SetupGraphRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware, store *graph.Store) {
	graphGroup := router.Group("/graph")
	graphGroup.Use(authMW.RequireAuth())

	graphGroup.GET("/expand", func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}
		if !store.Available() {
			utils.RespondWithServiceUnavailable(c, "Knowledge graph is not configured")
			return
		}

		query := c.Query("q")
		if query == "" {
			utils.RespondWithBadRequest(c, "Query parameter q is required", nil)
			return
		}

		names := services.ExtractQueryEntities(query)
		if len(names) == 0 {
			c.JSON(http.StatusOK, gin.H{"entities": names, "facts": []any{}})
			return
		}

		normalized := make([]string, len(names))
		for i, name := range names {
			normalized[i] = graph.NormalizeEntityName(name)
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		facts, err := store.Expand(ctx, ownerID.Hex(), normalized, 2, 50)
		if err != nil {
			utils.RespondWithInternalError(c, "Graph expansion failed", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"entities": names, "facts": facts})
	})

	graphGroup.GET("/documents/:id/entities", func(c *gin.Context) {
		ownerID, ok := ownerObjectID(c)
		if !ok {
			return
		}
		if !store.Available() {
			utils.RespondWithServiceUnavailable(c, "Knowledge graph is not configured")
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		count, err := store.EntityCount(ctx, ownerID.Hex(), c.Param("id"))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count entities", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"document_id": c.Param("id"), "entity_count": count})
	})
}
