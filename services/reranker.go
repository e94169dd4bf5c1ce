package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// RerankerService calls an external cross-encoder service to reorder
// fused candidates by query relevance. Any failure falls back to the
// fused order truncated to the rerank limit; retrieval never fails
// because the reranker is down.
type RerankerService struct {
	url     string
	enabled bool
	limit   int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func NewRerankerService(cfg *config.Config) *RerankerService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reranker",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name,
				"from", from.String(), "to", to.String())
		},
	})

	return &RerankerService{
		url:     cfg.RerankerURL,
		enabled: cfg.RerankerEnabled,
		limit:   cfg.RerankLimit,
		client:  &http.Client{Timeout: time.Duration(cfg.RerankerTimeoutSeconds) * time.Second},
		breaker: breaker,
	}
}

// Rerank reorders chunks by cross-encoder score and truncates to the
// rerank limit. The degraded flag reports that the fused order was kept
// because the reranker was disabled, unreachable, or returned garbage.
func (rs *RerankerService) Rerank(ctx context.Context, query string, chunks []models.RetrievedChunk) ([]models.RetrievedChunk, bool) {
	if len(chunks) == 0 {
		return chunks, false
	}
	if !rs.enabled {
		return truncateChunks(chunks, rs.limit), false
	}

	reranked, err := rs.callReranker(ctx, query, chunks)
	if err != nil {
		logger.Warn("Reranker unavailable, keeping fused order", "error", err)
		return truncateChunks(chunks, rs.limit), true
	}
	return reranked, false
}

func (rs *RerankerService) callReranker(ctx context.Context, query string, chunks []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	documents := make([]string, len(chunks))
	for i, chunk := range chunks {
		documents[i] = chunk.Text
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: documents,
		TopK:      rs.limit,
	})
	if err != nil {
		return nil, err
	}

	result, err := rs.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.url+"/rerank", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := rs.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("reranker returned status %d", resp.StatusCode)
		}

		var parsed rerankResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode reranker response: %w", err)
		}
		return &parsed, nil
	})
	if err != nil {
		return nil, err
	}

	parsed := result.(*rerankResponse)
	reranked := make([]models.RetrievedChunk, 0, len(parsed.Results))
	for _, entry := range parsed.Results {
		if entry.Index < 0 || entry.Index >= len(chunks) {
			return nil, fmt.Errorf("reranker returned out of range index %d", entry.Index)
		}
		chunk := chunks[entry.Index]
		chunk.FusedScore = chunk.Score
		chunk.Score = entry.Score
		reranked = append(reranked, chunk)
	}
	if len(reranked) == 0 {
		return nil, fmt.Errorf("reranker returned no results")
	}
	if len(reranked) > rs.limit {
		reranked = reranked[:rs.limit]
	}
	return reranked, nil
}

func truncateChunks(chunks []models.RetrievedChunk, limit int) []models.RetrievedChunk {
	if len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}
