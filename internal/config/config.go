package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	Port         string
	GinMode      string
	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string
	BcryptCost   int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// JWT Token Secrets
	AccessSecret  string
	RefreshSecret string

	// Gemini / LLM Configuration
	GeminiAPIKey        string
	GeminiModel         string
	GeminiFallbackModel string
	GeminiTier          string
	LLMTimeoutSeconds   int
	MaxOutputTokens     int
	SynthesisTokenBonus int

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default)
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	VectorDimensions      int

	// MongoDB Atlas Search/Vector Search
	AtlasTextSearchEnabled bool
	VectorSearchEnabled    bool
	SearchIndexName        string
	VectorIndexName        string

	// Retrieval pipeline
	RetrievalLimit          int    // fused candidate count returned by hybrid retrieval
	RerankLimit             int    // candidates kept after rerank
	ContextLimit            int    // chunks sent to the LLM
	RRFConstant             int    // k in reciprocal rank fusion
	GraphExpansionMode      string // "auto" (relationship queries only) or "always"
	RelationshipMinStrength float64
	RelatedDocsPerDoc       int

	// Reranker service
	RerankerURL            string
	RerankerEnabled        bool
	RerankerTimeoutSeconds int

	// Neo4j graph store
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	Neo4jDatabase    string
	Neo4jTimeoutSecs int
	Neo4jMaxPoolSize int

	// Chunking
	MinChunkTokens int
	MaxChunkTokens int
	ChunkOverlap   int

	// Entity extraction
	ExtractionConcurrency int

	// Graph maintenance sweep (cron expression for gocron)
	GraphSweepCron string

	FileStorageDir string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/techdocs_rag"),
		DBName:       getEnv("DB_NAME", "techdocs_rag"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf"), ","),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiFallbackModel: getEnv("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash"),
		GeminiTier:          getEnv("GEMINI_TIER", "free"),
		LLMTimeoutSeconds:   getEnvInt("LLM_TIMEOUT_SECONDS", 30),
		MaxOutputTokens:     getEnvInt("LLM_MAX_OUTPUT_TOKENS", 1024),
		SynthesisTokenBonus: getEnvInt("SYNTHESIS_TOKEN_BONUS", 200),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),

		AtlasTextSearchEnabled: getEnvBool("MONGODB_SEARCH_ENABLED", false),
		VectorSearchEnabled:    getEnvBool("MONGODB_VECTOR_ENABLED", false),
		SearchIndexName:        getEnv("MONGODB_SEARCH_INDEX", "doc_chunks_text"),
		VectorIndexName:        getEnv("MONGODB_VECTOR_INDEX", "doc_chunks_vector"),

		RetrievalLimit:          getEnvInt("RETRIEVAL_LIMIT", 25),
		RerankLimit:             getEnvInt("RERANK_LIMIT", 12),
		ContextLimit:            getEnvInt("CONTEXT_LIMIT", 10),
		RRFConstant:             getEnvInt("RRF_K", 60),
		GraphExpansionMode:      getEnv("GRAPH_EXPANSION_MODE", "auto"),
		RelationshipMinStrength: getEnvFloat64("RELATIONSHIP_MIN_STRENGTH", 0.5),
		RelatedDocsPerDoc:       getEnvInt("RELATED_DOCS_PER_DOC", 2),

		RerankerURL:            getEnv("RERANKER_URL", "http://localhost:8001"),
		RerankerEnabled:        getEnvBool("RERANKER_ENABLED", true),
		RerankerTimeoutSeconds: getEnvInt("RERANKER_TIMEOUT", 5),

		Neo4jURI:         getEnv("NEO4J_URI", ""),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:    getEnv("NEO4J_DATABASE", ""),
		Neo4jTimeoutSecs: getEnvInt("NEO4J_TIMEOUT_SECONDS", 10),
		Neo4jMaxPoolSize: getEnvInt("NEO4J_MAX_POOL_SIZE", 50),

		MinChunkTokens: getEnvInt("MIN_CHUNK_TOKENS", 120),
		MaxChunkTokens: getEnvInt("MAX_CHUNK_TOKENS", 512),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 50),

		ExtractionConcurrency: getEnvInt("EXTRACTION_CONCURRENCY", 5),

		GraphSweepCron: getEnv("GRAPH_SWEEP_CRON", "0 3 * * *"),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
