package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"techdocs-rag-platform/internal/ai"
	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/internal/queue"
	"techdocs-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	graphClient, err := graph.NewClient(cfg)
	if err != nil {
		logger.Warn("Knowledge graph unavailable, ingestion will skip graph writes", "error", err)
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

	crossRef := services.NewCrossRefService(db, graphStore)
	pipeline := services.NewPipelineService(cfg, db, geminiClient, graphStore, crossRef)

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisURL},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(pipeline)
	mux := asynq.NewServeMux()
	processor.RegisterHandlers(mux)

	logger.Info("Starting ingestion worker", "redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
