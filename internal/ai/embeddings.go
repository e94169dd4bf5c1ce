package ai

import (
	"context"
	"fmt"

	"techdocs-rag-platform/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GenerateEmbedding returns an embedding vector for the given text.
// Default provider is Google Generative AI (text-embedding-004).
func GenerateEmbedding(ctx context.Context, cfg *config.Config, text string) ([]float32, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		defer client.Close()

		model := client.EmbeddingModel(cfg.GoogleEmbeddingsModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}

		return resp.Embedding.Values, nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

// GenerateEmbeddingBatch embeds a batch of texts in one API round trip.
// Used by the indexing stage where chunks arrive in bulk.
func GenerateEmbeddingBatch(ctx context.Context, cfg *config.Config, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	model := client.EmbeddingModel(cfg.GoogleEmbeddingsModel)
	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("no embedding returned for text %d", i)
		}
		vectors[i] = emb.Values
	}

	return vectors, nil
}
