package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/models"
)

type fakeSearcher struct {
	results       []models.RetrievedChunk
	err           error
	semanticLimit int
	lexicalLimit  int
}

func (f *fakeSearcher) SemanticSearch(_ context.Context, _, _ string, limit int) ([]models.RetrievedChunk, error) {
	f.semanticLimit = limit
	return f.results, f.err
}

func (f *fakeSearcher) LexicalSearch(_ context.Context, _, _ string, limit int) ([]models.RetrievedChunk, error) {
	f.lexicalLimit = limit
	return f.results, f.err
}

type fakeGraph struct {
	available bool
	chunks    []models.RetrievedChunk
	degraded  bool
}

func (f *fakeGraph) Available() bool { return f.available }

func (f *fakeGraph) RetrieveGraphContext(_ context.Context, _, _ string, _ int) ([]models.RetrievedChunk, bool) {
	return f.chunks, f.degraded
}

type fakeRelations struct {
	rels []models.DocRelationship
	err  error
}

func (f *fakeRelations) StrongRelations(_ context.Context, _ string, _ []string, _ float64) ([]models.DocRelationship, error) {
	return f.rels, f.err
}

type fakeChunkSource struct {
	byDoc map[string][]models.RetrievedChunk
}

func (f *fakeChunkSource) LeadingChunks(_ context.Context, _, docID string, _ int) ([]models.RetrievedChunk, error) {
	return f.byDoc[docID], nil
}

func retrievalConfig() *config.Config {
	return &config.Config{
		RetrievalLimit:          25,
		RRFConstant:             60,
		GraphExpansionMode:      "auto",
		RelationshipMinStrength: 0.5,
		RelatedDocsPerDoc:       2,
	}
}

func TestExpandAcronyms(t *testing.T) {
	expanded := ExpandAcronyms("How does the GPS connect to the IMU?")
	assert.Contains(t, expanded, "GPS (Global Positioning System)")
	assert.Contains(t, expanded, "IMU (Inertial Measurement Unit)")

	// Unknown acronyms and lowercase words pass through untouched.
	assert.Equal(t, "what is the voltage", ExpandAcronyms("what is the voltage"))
	assert.Equal(t, "the ZZZZ subsystem", ExpandAcronyms("the ZZZZ subsystem"))
}

func TestIsRelationshipQuery(t *testing.T) {
	assert.True(t, IsRelationshipQuery("What depends on the flight controller?"))
	assert.True(t, IsRelationshipQuery("How does the radio interface with the autopilot?"))
	assert.True(t, IsRelationshipQuery("Show the Navigation System and Flight Controller"))

	assert.False(t, IsRelationshipQuery("what is the maximum operating temperature"))
	assert.False(t, IsRelationshipQuery("battery capacity"))
}

func TestRetrieve_GracefulGraphDegradation(t *testing.T) {
	semantic := &fakeSearcher{results: docChunks("docA", 3)}
	lexical := &fakeSearcher{results: docChunks("docA", 2)}
	graphExp := &fakeGraph{available: true, degraded: true}

	r := NewRetriever(retrievalConfig(), semantic, lexical, graphExp, &fakeRelations{}, &fakeChunkSource{})

	result, err := r.Retrieve(context.Background(), "owner1", "what depends on the bus?")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Chunks)
	assert.True(t, result.GraphDegraded)
	assert.Zero(t, result.GraphCount)
}

func TestRetrieve_OneLegFailureDegrades(t *testing.T) {
	semantic := &fakeSearcher{err: errors.New("vector index down")}
	lexical := &fakeSearcher{results: docChunks("docA", 2)}

	r := NewRetriever(retrievalConfig(), semantic, lexical, &fakeGraph{}, &fakeRelations{}, &fakeChunkSource{})

	result, err := r.Retrieve(context.Background(), "owner1", "operating voltage")
	require.NoError(t, err)
	assert.Zero(t, result.SemanticCount)
	assert.Equal(t, 2, result.LexicalCount)
	assert.Len(t, result.Chunks, 2)
}

func TestRetrieve_BothLegsFailing(t *testing.T) {
	failing := &fakeSearcher{err: errors.New("backend down")}

	r := NewRetriever(retrievalConfig(), failing, failing, &fakeGraph{}, &fakeRelations{}, &fakeChunkSource{})

	_, err := r.Retrieve(context.Background(), "owner1", "anything")
	assert.Error(t, err)
}

func TestRetrieve_GraphSkippedForPlainQueries(t *testing.T) {
	graphExp := &fakeGraph{
		available: true,
		chunks:    []models.RetrievedChunk{{ChunkID: "graph-x", Source: models.SourceGraph}},
	}
	searcher := &fakeSearcher{results: docChunks("docA", 2)}

	r := NewRetriever(retrievalConfig(), searcher, searcher, graphExp, &fakeRelations{}, &fakeChunkSource{})

	result, err := r.Retrieve(context.Background(), "owner1", "maximum takeoff weight")
	require.NoError(t, err)
	assert.Zero(t, result.GraphCount)

	// always mode expands regardless of query shape.
	cfg := retrievalConfig()
	cfg.GraphExpansionMode = "always"
	r = NewRetriever(cfg, searcher, searcher, graphExp, &fakeRelations{}, &fakeChunkSource{})

	result, err = r.Retrieve(context.Background(), "owner1", "maximum takeoff weight")
	require.NoError(t, err)
	assert.Equal(t, 1, result.GraphCount)
}

func TestRetrieve_RelatedDocumentExpansion(t *testing.T) {
	sourceOID := primitive.NewObjectID()
	targetOID := primitive.NewObjectID()

	base := docChunks(sourceOID.Hex(), 2)
	related := models.RetrievedChunk{
		ChunkID:    targetOID.Hex() + "_0",
		DocumentID: targetOID.Hex(),
		Filename:   "related.pdf",
		Text:       "related document intro",
		Score:      0.4,
		Source:     models.SourceSemantic,
	}

	rels := &fakeRelations{rels: []models.DocRelationship{{
		SourceDocID: sourceOID,
		TargetDocID: targetOID,
		Type:        models.RelExplicitCitation,
		Strength:    1.0,
	}}}
	chunks := &fakeChunkSource{byDoc: map[string][]models.RetrievedChunk{
		targetOID.Hex(): {related},
	}}

	searcher := &fakeSearcher{results: base}
	r := NewRetriever(retrievalConfig(), searcher, searcher, &fakeGraph{}, rels, chunks)

	result, err := r.Retrieve(context.Background(), "owner1", "input voltage")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	appended := result.Chunks[2]
	assert.Equal(t, related.ChunkID, appended.ChunkID)
	assert.Equal(t, models.SourceHybrid, appended.Source)
	assert.True(t, appended.ExpandedFromRelationship)
	assert.False(t, result.Chunks[0].ExpandedFromRelationship)
	// Related chunks score below any direct RRF hit.
	assert.Less(t, appended.Score, result.Chunks[1].Score)
}

func TestRetrieve_LegsOverfetch(t *testing.T) {
	searcher := &fakeSearcher{results: docChunks("docA", 3)}
	r := NewRetriever(retrievalConfig(), searcher, searcher, &fakeGraph{}, &fakeRelations{}, &fakeChunkSource{})

	result, err := r.Retrieve(context.Background(), "owner1", "input voltage")
	require.NoError(t, err)

	// Legs fetch twice the fused limit so near-cutoff chunks from both
	// lists can still fuse in.
	assert.Equal(t, 50, searcher.semanticLimit)
	assert.Equal(t, 50, searcher.lexicalLimit)
	assert.LessOrEqual(t, len(result.Chunks), 25)
}

func TestRetrieve_Deterministic(t *testing.T) {
	searcher := &fakeSearcher{results: docChunks("docA", 5)}
	r := NewRetriever(retrievalConfig(), searcher, searcher, &fakeGraph{}, &fakeRelations{}, &fakeChunkSource{})

	first, err := r.Retrieve(context.Background(), "owner1", "test query")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := r.Retrieve(context.Background(), "owner1", "test query")
		require.NoError(t, err)
		assert.Equal(t, first.Chunks, again.Chunks)
	}
}
