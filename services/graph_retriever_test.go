package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdocs-rag-platform/models"
)

func TestExtractQueryEntities(t *testing.T) {
	names := ExtractQueryEntities("How does the Flight Controller talk to the GPS?")

	assert.Contains(t, names, "Flight Controller")
	assert.Contains(t, names, "GPS")
	assert.NotContains(t, names, "How")
}

func TestExtractQueryEntities_Dedupe(t *testing.T) {
	names := ExtractQueryEntities("GPS accuracy depends on GPS antenna placement")

	count := 0
	for _, n := range names {
		if n == "GPS" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractQueryEntities_NoEntities(t *testing.T) {
	assert.Empty(t, ExtractQueryEntities("what is the maximum range"))
	assert.Empty(t, ExtractQueryEntities(""))
}

func TestFormatGraphChunks_GroupsBySourceEntity(t *testing.T) {
	fc := models.Entity{Name: "Flight Controller", NameNorm: "flight controller", Description: "Main autopilot board"}
	gps := models.Entity{Name: "GPS Module", NameNorm: "gps module"}
	imu := models.Entity{Name: "IMU", NameNorm: "imu"}

	facts := []models.GraphFact{
		{Source: fc, Relation: models.RelationDependsOn, Target: gps},
		{Source: fc, Relation: models.RelationDependsOn, Target: imu},
	}

	chunks := formatGraphChunks(facts)
	require.Len(t, chunks, 3)

	for _, c := range chunks {
		assert.Equal(t, models.SourceGraph, c.Source)
		assert.Equal(t, "graph", c.DocumentID)
		assert.Equal(t, "Knowledge Graph", c.Filename)
		assert.InDelta(t, 0.9, c.Score, 1e-9)
	}

	// Keys sort alphabetically by normalized name.
	assert.Equal(t, "graph-flight controller", chunks[0].ChunkID)
	assert.Contains(t, chunks[0].Text, "Main autopilot board")
	assert.Contains(t, chunks[0].Text, "Depends on: GPS Module, IMU.")
}

func TestFormatEntityContext_IncomingEdges(t *testing.T) {
	bus := models.Entity{Name: "CAN Bus", NameNorm: "can bus"}
	fc := models.Entity{Name: "Flight Controller", NameNorm: "flight controller"}

	incoming := []models.GraphFact{
		{Source: fc, Relation: models.RelationDependsOn, Target: bus},
	}

	text := formatEntityContext(bus, nil, incoming)

	assert.Contains(t, text, "CAN Bus: No description available.")
	assert.Contains(t, text, "Required by: Flight Controller.")
}

func TestFormatEntityContext_RelationOrdering(t *testing.T) {
	e := models.Entity{Name: "Radio", Description: "Telemetry link"}
	outgoing := []models.GraphFact{
		{Source: e, Relation: models.RelationConnectsTo, Target: models.Entity{Name: "Ground Station"}},
		{Source: e, Relation: models.RelationIsPartOf, Target: models.Entity{Name: "Comms Subsystem"}},
	}

	text := formatEntityContext(e, outgoing, nil)

	assert.Contains(t, text, "Connects to: Ground Station.")
	assert.Contains(t, text, "Is part of: Comms Subsystem.")
}
