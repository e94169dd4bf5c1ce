package services

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"techdocs-rag-platform/internal/graph"
	"techdocs-rag-platform/internal/logger"
	"techdocs-rag-platform/models"
)

// Citation patterns for explicit reference detection.
var (
	docCodeRegex    = regexp.MustCompile(`\b[A-Z]{2,}-[\d\.]+\b`)
	seeDocRegex     = regexp.MustCompile(`(?i)(?:see|refer to|described in|detailed in|according to)\s+([A-Za-z\s\-]+(?:manual|guide|specification|document|spec))`)
	sectionRefRegex = regexp.MustCompile(`(?i)section\s+[\d\.]+\s+of\s+([A-Za-z\s\-]+)`)
	extensionRegex  = regexp.MustCompile(`\.[^.]+$`)
)

const (
	// Fuzzy filename match threshold for explicit citations.
	citationSimilarityThreshold = 0.70

	// Minimum shared entities before a shared_entities edge exists.
	sharedEntityThreshold = 2
)

// CrossRefService detects relationships between documents during the
// linking stage and caches them for retrieval. Explicit citations
// (strength 1.0) supersede shared-entity edges for the same pair.
type CrossRefService struct {
	docsCol    *mongo.Collection
	relsCol    *mongo.Collection
	graphStore *graph.Store
}

func NewCrossRefService(db *mongo.Database, graphStore *graph.Store) *CrossRefService {
	return &CrossRefService{
		docsCol:    db.Collection("documents"),
		relsCol:    db.Collection("doc_relationships"),
		graphStore: graphStore,
	}
}

// DetectAndStore finds relationships between the newly processed document
// and the owner's other completed documents, then persists them. Only
// done documents participate; in-flight ones have no stable entity set.
func (cs *CrossRefService) DetectAndStore(ctx context.Context, ownerID, docID primitive.ObjectID, filename, docText string) error {
	existing, err := cs.completedDocuments(ctx, ownerID, docID)
	if err != nil {
		return err
	}

	// Only fully processed documents participate. A failed document can
	// have entities in the graph from before its failure; its pairs are
	// skipped here.
	doneDocs := make(map[string]bool, len(existing))
	for _, doc := range existing {
		doneDocs[doc.ID.Hex()] = true
	}

	relationships := make([]models.DocRelationship, 0)
	explicitTargets := make(map[string]bool)

	for _, ref := range DetectExplicitReferences(docText, existing) {
		explicitTargets[ref.TargetDocID.Hex()] = true
		relationships = append(relationships, models.DocRelationship{
			OwnerID:        ownerID,
			SourceDocID:    docID,
			TargetDocID:    ref.TargetDocID,
			SourceFilename: filename,
			TargetFilename: ref.TargetFilename,
			Type:           models.RelExplicitCitation,
			Strength:       1.0,
			Evidence:       ref.CitationText,
			DetectedAt:     time.Now(),
		})
	}

	if cs.graphStore.Available() {
		pairs, err := cs.graphStore.SharedEntityPairs(ctx, ownerID.Hex())
		if err != nil {
			logger.Warn("Shared entity lookup failed, keeping explicit citations only",
				"doc_id", docID.Hex(), "error", err)
		} else {
			for _, pair := range pairs {
				otherID, otherFilename, ok := eligibleSharedPair(pair, docID.Hex(), doneDocs)
				if !ok {
					continue
				}
				if explicitTargets[otherID] {
					continue
				}

				targetOID, err := primitive.ObjectIDFromHex(otherID)
				if err != nil {
					continue
				}

				shared := pair.Shared
				sort.Strings(shared)
				if len(shared) > 10 {
					shared = shared[:10]
				}

				relationships = append(relationships, models.DocRelationship{
					OwnerID:        ownerID,
					SourceDocID:    docID,
					TargetDocID:    targetOID,
					SourceFilename: filename,
					TargetFilename: otherFilename,
					Type:           models.RelSharedEntities,
					Strength:       SharedEntityStrength(len(pair.Shared)),
					SharedEntities: shared,
					DetectedAt:     time.Now(),
				})
			}
		}
	}

	for _, rel := range relationships {
		if err := cs.upsertRelationship(ctx, rel); err != nil {
			return err
		}
		if err := cs.graphStore.UpsertDocumentLink(ctx, rel); err != nil {
			logger.Warn("Failed to mirror relationship to graph", "error", err)
		}
	}

	logger.Info("Cross-references detected",
		"doc_id", docID.Hex(),
		"explicit", len(explicitTargets),
		"total", len(relationships))

	return nil
}

// SharedEntityStrength maps a shared entity count to edge strength:
// 0.5 at the threshold, +0.1 per extra entity, capped at 0.9.
func SharedEntityStrength(sharedCount int) float64 {
	strength := 0.5 + float64(sharedCount-sharedEntityThreshold)*0.1
	if strength > 0.9 {
		strength = 0.9
	}
	return strength
}

// ExplicitReference is one matched citation from document text to an
// existing document.
type ExplicitReference struct {
	TargetDocID    primitive.ObjectID
	TargetFilename string
	CitationText   string
}

// DocumentStub is the minimal view of an existing document used during
// citation matching.
type DocumentStub struct {
	ID       primitive.ObjectID
	Filename string
}

// DetectExplicitReferences scans text for document codes, "see X"
// phrases, and section references, then fuzzy-matches the mentions
// against existing filenames. One reference per target document.
func DetectExplicitReferences(text string, existing []DocumentStub) []ExplicitReference {
	mentions := make([]string, 0)
	mentions = append(mentions, docCodeRegex.FindAllString(text, -1)...)
	for _, match := range seeDocRegex.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, match[1])
	}
	for _, match := range sectionRefRegex.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, match[1])
	}

	refs := make([]ExplicitReference, 0)
	seen := make(map[string]bool)

	for _, mention := range mentions {
		mentionClean := strings.ToLower(strings.TrimSpace(mention))
		if mentionClean == "" {
			continue
		}

		for _, doc := range existing {
			if seen[doc.ID.Hex()] {
				continue
			}
			filenameBase := strings.ToLower(extensionRegex.ReplaceAllString(doc.Filename, ""))

			matched := levenshteinSimilarity(mentionClean, filenameBase) > citationSimilarityThreshold ||
				strings.Contains(filenameBase, mentionClean) ||
				strings.Contains(mentionClean, filenameBase)
			if matched {
				seen[doc.ID.Hex()] = true
				refs = append(refs, ExplicitReference{
					TargetDocID:    doc.ID,
					TargetFilename: doc.Filename,
					CitationText:   strings.TrimSpace(mention),
				})
				break
			}
		}
	}

	return refs
}

func levenshteinSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// StrongRelations returns cached relationships whose source is one of
// the given documents and whose strength clears the threshold, strongest
// first.
func (cs *CrossRefService) StrongRelations(ctx context.Context, ownerID string, docIDs []string, minStrength float64) ([]models.DocRelationship, error) {
	ownerOID, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, err
	}

	sourceOIDs := make([]primitive.ObjectID, 0, len(docIDs))
	for _, id := range docIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			sourceOIDs = append(sourceOIDs, oid)
		}
	}
	if len(sourceOIDs) == 0 {
		return nil, nil
	}

	cursor, err := cs.relsCol.Find(ctx, bson.M{
		"owner_id":      ownerOID,
		"source_doc_id": bson.M{"$in": sourceOIDs},
		"strength":      bson.M{"$gte": minStrength},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []models.DocRelationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	sortRelations(rels)
	return rels, nil
}

// sortRelations orders edges strongest first with a target document id
// tie-break so expansion order is stable across queries.
func sortRelations(rels []models.DocRelationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Strength != rels[j].Strength {
			return rels[i].Strength > rels[j].Strength
		}
		return rels[i].TargetDocID.Hex() < rels[j].TargetDocID.Hex()
	})
}

// RelationshipsForOwner lists every cached relationship of an owner.
func (cs *CrossRefService) RelationshipsForOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.DocRelationship, error) {
	cursor, err := cs.relsCol.Find(ctx, bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "strength", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []models.DocRelationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// DeleteForDocument removes every cached relationship touching the
// document, in either direction.
func (cs *CrossRefService) DeleteForDocument(ctx context.Context, ownerID, docID primitive.ObjectID) error {
	_, err := cs.relsCol.DeleteMany(ctx, bson.M{
		"owner_id": ownerID,
		"$or": []bson.M{
			{"source_doc_id": docID},
			{"target_doc_id": docID},
		},
	})
	return err
}

// PruneStaleRelationships deletes relationship edges whose source or
// target document no longer exists. Deletion already cascades, so this
// only catches edges left behind by interrupted deletes.
func (cs *CrossRefService) PruneStaleRelationships(ctx context.Context) (int, error) {
	cursor, err := cs.relsCol.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"source_doc_id": 1, "target_doc_id": 1}))
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	type edge struct {
		ID          primitive.ObjectID `bson:"_id"`
		SourceDocID primitive.ObjectID `bson:"source_doc_id"`
		TargetDocID primitive.ObjectID `bson:"target_doc_id"`
	}

	var stale []primitive.ObjectID
	alive := make(map[primitive.ObjectID]bool)

	exists := func(docID primitive.ObjectID) (bool, error) {
		if ok, seen := alive[docID]; seen {
			return ok, nil
		}
		count, err := cs.docsCol.CountDocuments(ctx, bson.M{"_id": docID})
		if err != nil {
			return false, err
		}
		alive[docID] = count > 0
		return count > 0, nil
	}

	for cursor.Next(ctx) {
		var e edge
		if err := cursor.Decode(&e); err != nil {
			return 0, err
		}
		srcOK, err := exists(e.SourceDocID)
		if err != nil {
			return 0, err
		}
		tgtOK, err := exists(e.TargetDocID)
		if err != nil {
			return 0, err
		}
		if !srcOK || !tgtOK {
			stale = append(stale, e.ID)
		}
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}

	if len(stale) == 0 {
		return 0, nil
	}
	res, err := cs.relsCol.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": stale}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (cs *CrossRefService) upsertRelationship(ctx context.Context, rel models.DocRelationship) error {
	filter := bson.M{
		"owner_id":      rel.OwnerID,
		"source_doc_id": rel.SourceDocID,
		"target_doc_id": rel.TargetDocID,
	}
	update := bson.M{"$set": bson.M{
		"owner_id":        rel.OwnerID,
		"source_doc_id":   rel.SourceDocID,
		"target_doc_id":   rel.TargetDocID,
		"source_filename": rel.SourceFilename,
		"target_filename": rel.TargetFilename,
		"type":            rel.Type,
		"strength":        rel.Strength,
		"shared_entities": rel.SharedEntities,
		"evidence":        rel.Evidence,
		"detected_at":     rel.DetectedAt,
	}}
	_, err := cs.relsCol.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (cs *CrossRefService) completedDocuments(ctx context.Context, ownerID, excludeID primitive.ObjectID) ([]DocumentStub, error) {
	cursor, err := cs.docsCol.Find(ctx, bson.M{
		"owner_id": ownerID,
		"status":   models.StatusDone,
		"_id":      bson.M{"$ne": excludeID},
	}, options.Find().SetProjection(bson.M{"_id": 1, "filename": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	stubs := make([]DocumentStub, 0, len(docs))
	for _, doc := range docs {
		stubs = append(stubs, DocumentStub{ID: doc.ID, Filename: doc.Filename})
	}
	return stubs, nil
}

// eligibleSharedPair resolves the other end of a shared-entity pair and
// applies the edge conditions: the pair involves this document, meets
// the shared-entity threshold, and the other document finished
// processing.
func eligibleSharedPair(pair graph.SharedPair, docID string, done map[string]bool) (string, string, bool) {
	otherID, otherFilename, ok := pairOther(pair, docID)
	if !ok || len(pair.Shared) < sharedEntityThreshold {
		return "", "", false
	}
	if !done[otherID] {
		return "", "", false
	}
	return otherID, otherFilename, true
}

func pairOther(pair graph.SharedPair, docID string) (string, string, bool) {
	switch docID {
	case pair.DocID1:
		return pair.DocID2, pair.Filename2, true
	case pair.DocID2:
		return pair.DocID1, pair.Filename1, true
	}
	return "", "", false
}
