package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entity node types recognized by the extraction prompt.
const (
	EntityTypeHardware      = "hardware"
	EntityTypeSoftware      = "software"
	EntityTypeConfiguration = "configuration"
	EntityTypeError         = "error"
	EntityTypeOther         = "other"
)

// Relation types between entities.
const (
	RelationDependsOn  = "depends_on"
	RelationConfigures = "configures"
	RelationConnectsTo = "connects_to"
	RelationIsPartOf   = "is_part_of"
)

// Entity is a knowledge graph node extracted from document chunks.
// Entities are keyed per owner by normalized name.
type Entity struct {
	Name        string   `json:"name"`
	NameNorm    string   `json:"name_norm"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
}

// Relation is a typed edge between two entities.
type Relation struct {
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name"`
	Type       string `json:"type"`
	ChunkID    string `json:"chunk_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

// GraphFact is one (entity)-[relation]->(entity) triple returned by graph
// expansion, with the chunks that asserted it.
type GraphFact struct {
	Source      Entity   `json:"source"`
	Relation    string   `json:"relation"`
	Target      Entity   `json:"target"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Relationship kinds between documents.
const (
	RelExplicitCitation = "explicit_citation"
	RelSharedEntities   = "shared_entities"
)

// DocRelationship is a directed edge between two documents detected during
// the linking stage. Explicit citations carry strength 1.0 and supersede
// shared-entity edges for the same pair.
type DocRelationship struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID        primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	SourceDocID    primitive.ObjectID `bson:"source_doc_id" json:"source_doc_id"`
	TargetDocID    primitive.ObjectID `bson:"target_doc_id" json:"target_doc_id"`
	SourceFilename string             `bson:"source_filename" json:"source_filename"`
	TargetFilename string             `bson:"target_filename" json:"target_filename"`
	Type           string             `bson:"type" json:"type"`
	Strength       float64            `bson:"strength" json:"strength"`
	SharedEntities []string           `bson:"shared_entities,omitempty" json:"shared_entities,omitempty"`
	Evidence       string             `bson:"evidence,omitempty" json:"evidence,omitempty"`
	DetectedAt     time.Time          `bson:"detected_at" json:"detected_at"`
}
