package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/internal/telemetry"
	"techdocs-rag-platform/middleware"
	"techdocs-rag-platform/routes"
	"techdocs-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("techdocs-rag-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	graphClient, err := graph.NewClient(cfg)
	if err != nil {
		logger.Warn("Knowledge graph unavailable, continuing without it", "error", err)
	}
	graphStore := graph.NewStore(graphClient)
	if graphStore.Available() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		graphStore.EnsureSchema(ctx)
		cancel()
	}
	if graphClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			graphClient.Close(ctx)
		}()
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURL})
	defer queueClient.Close()

	// Service graph
	search := services.NewSearchService(cfg, db)
	crossRef := services.NewCrossRefService(db, graphStore)
	graphRetriever := services.NewGraphRetriever(graphStore)
	retriever := services.NewRetriever(cfg, search, search, graphRetriever, crossRef, search)
	reranker := services.NewRerankerService(cfg)
	generator := services.NewGeneratorService(cfg, geminiClient)
	pipeline := services.NewPipelineService(cfg, db, geminiClient, graphStore, crossRef)

	maintenance := services.NewMaintenanceService(cfg, graphStore, crossRef)
	if err := maintenance.Start(); err != nil {
		logger.Warn("Failed to start maintenance scheduler", "error", err)
	}
	defer maintenance.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMW := middleware.NewAuthMiddleware(rdb)

	routes.SetupAuthRoutes(router, cfg, db, rdb)
	routes.SetupDocumentRoutes(router, cfg, db, authMW, queueClient, pipeline, crossRef)
	routes.SetupChatRoutes(router, db, authMW, retriever, reranker, generator, metrics)
	routes.SetupGraphRoutes(router, authMW, graphStore)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
