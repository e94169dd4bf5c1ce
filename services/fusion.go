package services

import (
	"sort"

	"techdocs-rag-platform/models"
)

// fusedCandidate tracks one chunk across both ranked lists during fusion.
type fusedCandidate struct {
	chunk         models.RetrievedChunk
	fusedScore    float64
	semanticScore float64
	lexicalScore  float64
	inSemantic    bool
	inLexical     bool
}

// FuseRankedLists merges the semantic and lexical result lists with
// reciprocal rank fusion: each chunk scores sum(1/(k+rank)) over the
// lists it appears in, rank counted from 1.
//
// Ordering is fully deterministic. Ties on the fused score break by raw
// semantic score, then raw lexical score, then chunk id, so repeated
// queries over unchanged data always return the same ranking.
func FuseRankedLists(semantic, lexical []models.RetrievedChunk, k, limit int) []models.RetrievedChunk {
	if k <= 0 {
		k = 60
	}

	byID := make(map[string]*fusedCandidate)
	order := make([]string, 0, len(semantic)+len(lexical))

	add := func(chunk models.RetrievedChunk, rank int, isSemantic bool) {
		cand, ok := byID[chunk.ChunkID]
		if !ok {
			cand = &fusedCandidate{chunk: chunk}
			byID[chunk.ChunkID] = cand
			order = append(order, chunk.ChunkID)
		}
		cand.fusedScore += 1.0 / float64(k+rank)
		if isSemantic {
			cand.inSemantic = true
			cand.semanticScore = chunk.Score
		} else {
			cand.inLexical = true
			cand.lexicalScore = chunk.Score
		}
	}

	for i, chunk := range semantic {
		add(chunk, i+1, true)
	}
	for i, chunk := range lexical {
		add(chunk, i+1, false)
	}

	candidates := make([]*fusedCandidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, byID[id])
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.fusedScore != b.fusedScore {
			return a.fusedScore > b.fusedScore
		}
		if a.semanticScore != b.semanticScore {
			return a.semanticScore > b.semanticScore
		}
		if a.lexicalScore != b.lexicalScore {
			return a.lexicalScore > b.lexicalScore
		}
		return a.chunk.ChunkID < b.chunk.ChunkID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	fused := make([]models.RetrievedChunk, 0, len(candidates))
	for _, cand := range candidates {
		chunk := cand.chunk
		chunk.Score = cand.fusedScore
		if cand.inSemantic && cand.inLexical {
			chunk.Source = models.SourceHybrid
		}
		fused = append(fused, chunk)
	}

	return fused
}
