package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// Store persists the per-owner knowledge graph:
//
//	(:Entity {owner_id, name_norm})-[:RELATES_TO {type}]->(:Entity)
//	(:Entity)-[:MENTIONED_IN {chunk_ids}]->(:Document {owner_id, id})
//	(:Document)-[:CITES|SHARES_ENTITIES {strength}]->(:Document)
//
// Every query is scoped by owner_id so tenants never see each other's
// entities.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Available reports whether graph operations can run.
func (s *Store) Available() bool {
	return s != nil && s.client.Available()
}

// SharedPair is one undirected document pair with the entity names both
// documents mention.
type SharedPair struct {
	DocID1    string
	Filename1 string
	DocID2    string
	Filename2 string
	Shared    []string
}

// EnsureSchema creates constraints and indexes, best effort. Failures are
// logged and ignored so older server editions still work.
func (s *Store) EnsureSchema(ctx context.Context) {
	if !s.Available() {
		return
	}

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT entity_owner_name_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.owner_id, e.name_norm) IS UNIQUE`,
		`CREATE CONSTRAINT document_owner_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE (d.owner_id, d.id) IS UNIQUE`,
		`CREATE INDEX entity_owner_idx IF NOT EXISTS FOR (e:Entity) ON (e.owner_id)`,
		`CREATE INDEX document_owner_idx IF NOT EXISTS FOR (d:Document) ON (d.owner_id)`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			logger.Warn("Graph schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

// UpsertEntities merges extracted entities and their mention edges for one
// document in a single write transaction.
func (s *Store) UpsertEntities(ctx context.Context, ownerID, documentID, filename string, entities []models.Entity) error {
	if !s.Available() || len(entities) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		norm := e.NameNorm
		if norm == "" {
			norm = NormalizeEntityName(e.Name)
		}
		if norm == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"name":        e.Name,
			"name_norm":   norm,
			"type":        e.Type,
			"description": e.Description,
			"chunk_ids":   e.ChunkIDs,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (d:Document {owner_id: $owner_id, id: $document_id})
SET d.filename = $filename, d.synced_at = $now
WITH d
UNWIND $entities AS e
MERGE (n:Entity {owner_id: $owner_id, name_norm: e.name_norm})
ON CREATE SET n.created_at = $now
SET n.name = e.name,
    n.type = e.type,
    n.description = e.description,
    n.updated_at = $now
MERGE (n)-[m:MENTIONED_IN]->(d)
SET m.chunk_ids = e.chunk_ids, m.updated_at = $now
`, map[string]any{
			"owner_id":    ownerID,
			"document_id": documentID,
			"filename":    filename,
			"entities":    rows,
			"now":         now,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// UpsertRelations merges typed edges between already-upserted entities.
// Chunk and document ids accumulate on the edge without duplicates.
func (s *Store) UpsertRelations(ctx context.Context, ownerID string, relations []models.Relation) error {
	if !s.Available() || len(relations) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(relations))
	for _, r := range relations {
		sourceNorm := NormalizeEntityName(r.SourceName)
		targetNorm := NormalizeEntityName(r.TargetName)
		if sourceNorm == "" || targetNorm == "" || sourceNorm == targetNorm {
			continue
		}
		rows = append(rows, map[string]any{
			"source_norm": sourceNorm,
			"target_norm": targetNorm,
			"type":        r.Type,
			"chunk_id":    r.ChunkID,
			"document_id": r.DocumentID,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $relations AS rel
MATCH (a:Entity {owner_id: $owner_id, name_norm: rel.source_norm})
MATCH (b:Entity {owner_id: $owner_id, name_norm: rel.target_norm})
MERGE (a)-[r:RELATES_TO {type: rel.type}]->(b)
ON CREATE SET r.owner_id = $owner_id, r.chunk_ids = [], r.document_ids = []
SET r.chunk_ids = CASE
      WHEN rel.chunk_id = '' OR rel.chunk_id IN coalesce(r.chunk_ids, []) THEN coalesce(r.chunk_ids, [])
      ELSE coalesce(r.chunk_ids, []) + rel.chunk_id END,
    r.document_ids = CASE
      WHEN rel.document_id = '' OR rel.document_id IN coalesce(r.document_ids, []) THEN coalesce(r.document_ids, [])
      ELSE coalesce(r.document_ids, []) + rel.document_id END,
    r.updated_at = $now
`, map[string]any{
			"owner_id":  ownerID,
			"relations": rows,
			"now":       now,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// Expand walks the graph from the named entities up to depth hops and
// returns the distinct relation triples found. Depth is clamped to 1..3.
func (s *Store) Expand(ctx context.Context, ownerID string, names []string, depth, limit int) ([]models.GraphFact, error) {
	if !s.Available() || len(names) == 0 {
		return nil, nil
	}

	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}
	if limit <= 0 {
		limit = 25
	}

	norms := make([]string, 0, len(names))
	for _, n := range names {
		if norm := NormalizeEntityName(n); norm != "" {
			norms = append(norms, norm)
		}
	}
	if len(norms) == 0 {
		return nil, nil
	}

	// Variable-length bounds cannot be query parameters.
	query := fmt.Sprintf(`
MATCH p = (a:Entity {owner_id: $owner_id})-[:RELATES_TO*1..%d]-(b:Entity)
WHERE a.name_norm IN $names
UNWIND relationships(p) AS r
WITH DISTINCT r, startNode(r) AS s, endNode(r) AS t
RETURN s.name AS source_name, s.name_norm AS source_norm, s.type AS source_type, s.description AS source_desc,
       r.type AS relation, r.chunk_ids AS chunk_ids, r.document_ids AS document_ids,
       t.name AS target_name, t.name_norm AS target_norm, t.type AS target_type, t.description AS target_desc
LIMIT %d`, depth, limit)

	session := s.client.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"owner_id": ownerID,
			"names":    norms,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	facts := make([]models.GraphFact, 0)
	for _, rec := range records.([]*neo4j.Record) {
		facts = append(facts, models.GraphFact{
			Source: models.Entity{
				Name:        stringValue(rec, "source_name"),
				NameNorm:    stringValue(rec, "source_norm"),
				Type:        stringValue(rec, "source_type"),
				Description: stringValue(rec, "source_desc"),
			},
			Relation: stringValue(rec, "relation"),
			Target: models.Entity{
				Name:        stringValue(rec, "target_name"),
				NameNorm:    stringValue(rec, "target_norm"),
				Type:        stringValue(rec, "target_type"),
				Description: stringValue(rec, "target_desc"),
			},
			ChunkIDs:    stringSliceValue(rec, "chunk_ids"),
			DocumentIDs: stringSliceValue(rec, "document_ids"),
		})
	}
	return facts, nil
}

// SharedEntityPairs returns every document pair of this owner together
// with the entity names mentioned by both.
func (s *Store) SharedEntityPairs(ctx context.Context, ownerID string) ([]SharedPair, error) {
	if !s.Available() {
		return nil, nil
	}

	session := s.client.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d1:Document {owner_id: $owner_id})<-[:MENTIONED_IN]-(e:Entity)-[:MENTIONED_IN]->(d2:Document {owner_id: $owner_id})
WHERE d1.id < d2.id
RETURN d1.id AS doc1, d1.filename AS file1, d2.id AS doc2, d2.filename AS file2,
       collect(DISTINCT e.name) AS shared
`, map[string]any{"owner_id": ownerID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	pairs := make([]SharedPair, 0)
	for _, rec := range records.([]*neo4j.Record) {
		pairs = append(pairs, SharedPair{
			DocID1:    stringValue(rec, "doc1"),
			Filename1: stringValue(rec, "file1"),
			DocID2:    stringValue(rec, "doc2"),
			Filename2: stringValue(rec, "file2"),
			Shared:    stringSliceValue(rec, "shared"),
		})
	}
	return pairs, nil
}

// UpsertDocumentLink mirrors one detected document relationship as a
// typed edge between document nodes.
func (s *Store) UpsertDocumentLink(ctx context.Context, rel models.DocRelationship) error {
	if !s.Available() {
		return nil
	}

	edge := "SHARES_ENTITIES"
	if rel.Type == models.RelExplicitCitation {
		edge = "CITES"
	}

	query := fmt.Sprintf(`
MATCH (d1:Document {owner_id: $owner_id, id: $source_id})
MATCH (d2:Document {owner_id: $owner_id, id: $target_id})
MERGE (d1)-[r:%s]->(d2)
SET r.strength = $strength,
    r.shared_entities = $shared,
    r.evidence = $evidence,
    r.detected_at = $detected_at
`, edge)

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"owner_id":    rel.OwnerID.Hex(),
			"source_id":   rel.SourceDocID.Hex(),
			"target_id":   rel.TargetDocID.Hex(),
			"strength":    rel.Strength,
			"shared":      rel.SharedEntities,
			"evidence":    rel.Evidence,
			"detected_at": rel.DetectedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// DeleteDocument removes a document node and any entities left without a
// mention once the document is gone.
func (s *Store) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if !s.Available() {
		return nil
	}

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d:Document {owner_id: $owner_id, id: $document_id})
DETACH DELETE d
`, map[string]any{"owner_id": ownerID, "document_id": documentID})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (e:Entity {owner_id: $owner_id})
WHERE NOT (e)-[:MENTIONED_IN]->(:Document)
DETACH DELETE e
`, map[string]any{"owner_id": ownerID})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// SweepOrphans deletes entities across all owners that no longer have a
// backing document mention. Returns the number of nodes removed.
func (s *Store) SweepOrphans(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, nil
	}

	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted := 0
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity)
WHERE NOT (e)-[:MENTIONED_IN]->(:Document)
DETACH DELETE e
`, nil)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		deleted = summary.Counters().NodesDeleted()
		return nil, nil
	})
	return deleted, err
}

// EntityCount returns the number of entities mentioned by a document.
func (s *Store) EntityCount(ctx context.Context, ownerID, documentID string) (int, error) {
	if !s.Available() {
		return 0, nil
	}

	session := s.client.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	count, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:Document {owner_id: $owner_id, id: $document_id})<-[:MENTIONED_IN]-(e:Entity)
RETURN count(e) AS n
`, map[string]any{"owner_id": ownerID, "document_id": documentID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := rec.Get("n")
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	if n, ok := count.(int64); ok {
		return int(n), nil
	}
	return 0, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringSliceValue(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
