package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdocs-rag-platform/models"
)

func newTestReranker(url string, enabled bool, limit int) *RerankerService {
	return &RerankerService{
		url:     url,
		enabled: enabled,
		limit:   limit,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "reranker-test",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func rerankCandidates(n int) []models.RetrievedChunk {
	chunks := make([]models.RetrievedChunk, n)
	for i := range chunks {
		chunks[i] = models.RetrievedChunk{
			ChunkID:    fmt.Sprintf("c%d", i),
			DocumentID: "doc1",
			Filename:   "manual.pdf",
			Text:       fmt.Sprintf("candidate text %d", i),
			Score:      0.05 - float64(i)*0.001,
			Source:     models.SourceHybrid,
		}
	}
	return chunks
}

func TestRerank_ReordersByScore(t *testing.T) {
	var requested rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&requested))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 2, "score": 0.95},
				{"index": 0, "score": 0.40},
			},
		})
	}))
	defer server.Close()

	rs := newTestReranker(server.URL, true, 5)
	chunks := rerankCandidates(3)

	reranked, degraded := rs.Rerank(context.Background(), "pinout", chunks)

	assert.False(t, degraded)
	require.Len(t, reranked, 2)
	assert.Equal(t, "c2", reranked[0].ChunkID)
	assert.InDelta(t, 0.95, reranked[0].Score, 1e-9)
	assert.Equal(t, "c0", reranked[1].ChunkID)
	assert.InDelta(t, 0.40, reranked[1].Score, 1e-9)

	// The fused score survives the rewrite as secondary metadata.
	assert.InDelta(t, chunks[2].Score, reranked[0].FusedScore, 1e-9)
	assert.InDelta(t, chunks[0].Score, reranked[1].FusedScore, 1e-9)

	assert.Equal(t, "pinout", requested.Query)
	assert.Len(t, requested.Documents, 3)
	assert.Equal(t, 5, requested.TopK)
}

func TestRerank_TruncatesToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := make([]map[string]interface{}, 4)
		for i := range results {
			results[i] = map[string]interface{}{"index": i, "score": 1.0 - float64(i)*0.1}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer server.Close()

	rs := newTestReranker(server.URL, true, 2)

	reranked, degraded := rs.Rerank(context.Background(), "q", rerankCandidates(4))

	assert.False(t, degraded)
	assert.Len(t, reranked, 2)
}

func TestRerank_Disabled(t *testing.T) {
	rs := newTestReranker("http://unreachable.invalid", false, 3)
	chunks := rerankCandidates(5)

	reranked, degraded := rs.Rerank(context.Background(), "q", chunks)

	assert.False(t, degraded)
	require.Len(t, reranked, 3)
	// Fused order preserved.
	assert.Equal(t, "c0", reranked[0].ChunkID)
	assert.Equal(t, "c2", reranked[2].ChunkID)
}

func TestRerank_ServerErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rs := newTestReranker(server.URL, true, 3)
	chunks := rerankCandidates(5)

	reranked, degraded := rs.Rerank(context.Background(), "q", chunks)

	assert.True(t, degraded)
	require.Len(t, reranked, 3)
	assert.Equal(t, "c0", reranked[0].ChunkID)
}

func TestRerank_OutOfRangeIndexFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"index": 99, "score": 0.9}},
		})
	}))
	defer server.Close()

	rs := newTestReranker(server.URL, true, 3)

	reranked, degraded := rs.Rerank(context.Background(), "q", rerankCandidates(2))

	assert.True(t, degraded)
	assert.Len(t, reranked, 2)
}

func TestRerank_EmptyCandidates(t *testing.T) {
	rs := newTestReranker("http://unreachable.invalid", true, 3)

	reranked, degraded := rs.Rerank(context.Background(), "q", nil)

	assert.False(t, degraded)
	assert.Empty(t, reranked)
}

func TestRerank_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rs := newTestReranker(server.URL, true, 3)
	chunks := rerankCandidates(3)

	for i := 0; i < 5; i++ {
		_, degraded := rs.Rerank(context.Background(), "q", chunks)
		assert.True(t, degraded)
	}

	// After three consecutive failures the breaker rejects without
	// reaching the backend.
	assert.EqualValues(t, 3, hits.Load())
}
