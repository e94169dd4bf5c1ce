package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdocs-rag-platform/models"
)

func TestStripJSONFences(t *testing.T) {
	assert.Equal(t, `{"entities": []}`, stripJSONFences(`{"entities": []}`))
	assert.Equal(t, `{"entities": []}`, stripJSONFences("```json\n{\"entities\": []}\n```"))
	assert.Equal(t, `{"entities": []}`, stripJSONFences("```\n{\"entities\": []}\n```"))
	assert.Equal(t, `{"relationships": []}`, stripJSONFences("  \n```json\n{\"relationships\": []}\n```\n  "))
}

func mustParseExtraction(t *testing.T, raw string) chunkExtraction {
	t.Helper()
	var extraction chunkExtraction
	require.NoError(t, json.Unmarshal([]byte(raw), &extraction))
	return extraction
}

func TestMergeExtractions_DedupesByNormalizedName(t *testing.T) {
	first := mustParseExtraction(t, `{
		"entities": [
			{"name": "Flight Controller", "type": "hardware", "description": "Main autopilot board"},
			{"name": "GPS Module", "type": "hardware", "description": ""}
		],
		"relationships": [
			{"source": "Flight Controller", "target": "GPS Module", "type": "depends_on"}
		]
	}`)
	second := mustParseExtraction(t, `{
		"entities": [
			{"name": "flight controller", "type": "hardware", "description": "Autopilot"},
			{"name": "GPS Module", "type": "hardware", "description": "Satellite receiver"}
		],
		"relationships": []
	}`)

	result := mergeExtractions("doc1", map[string]chunkExtraction{
		"doc1_0": first,
		"doc1_1": second,
	})

	require.Len(t, result.Entities, 2)

	byNorm := make(map[string]int)
	for i, e := range result.Entities {
		byNorm[e.NameNorm] = i
	}

	fc := result.Entities[byNorm["flight controller"]]
	assert.NotEmpty(t, fc.Description)
	assert.ElementsMatch(t, []string{"doc1_0", "doc1_1"}, fc.ChunkIDs)
	assert.Equal(t, []string{"doc1"}, fc.DocumentIDs)

	// The acronym folds into its long form in the graph key.
	gps := result.Entities[byNorm["global positioning system module"]]
	assert.Equal(t, "Satellite receiver", gps.Description)

	require.Len(t, result.Relations, 1)
	assert.Equal(t, "Flight Controller", result.Relations[0].SourceName)
	assert.Equal(t, "doc1_0", result.Relations[0].ChunkID)
	assert.Equal(t, "doc1", result.Relations[0].DocumentID)
}

func TestMergeExtractions_TypeHandling(t *testing.T) {
	extraction := mustParseExtraction(t, `{
		"entities": [
			{"name": "ESC", "type": "hardware", "description": "Motor controller"},
			{"name": "Maintenance Crew", "type": "person", "description": "unrecognized type"},
			{"name": "", "type": "hardware", "description": "nameless"}
		],
		"relationships": [
			{"source": "ESC", "target": "Motor", "type": "powers"},
			{"source": "ESC", "target": "", "type": "connects_to"},
			{"source": "ESC", "target": "Motor", "type": "connects_to"}
		]
	}`)

	result := mergeExtractions("doc1", map[string]chunkExtraction{"doc1_0": extraction})

	// Unrecognized entity types bucket as "other" instead of being
	// dropped; nameless entities are dropped.
	require.Len(t, result.Entities, 2)
	types := make(map[string]string)
	for _, e := range result.Entities {
		types[e.Name] = e.Type
	}
	assert.Equal(t, models.EntityTypeHardware, types["ESC"])
	assert.Equal(t, models.EntityTypeOther, types["Maintenance Crew"])

	// Relation types have no fallback bucket.
	require.Len(t, result.Relations, 1)
	assert.Equal(t, models.RelationConnectsTo, result.Relations[0].Type)
}

func TestAppendUnique(t *testing.T) {
	list := appendUnique(nil, "a")
	list = appendUnique(list, "b")
	list = appendUnique(list, "a")
	assert.Equal(t, []string{"a", "b"}, list)
}
