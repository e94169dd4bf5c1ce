package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntityName_CaseAndWhitespace(t *testing.T) {
	assert.Equal(t, "flight controller", NormalizeEntityName("  Flight   Controller "))
	assert.Equal(t, "", NormalizeEntityName("   "))
}

func TestNormalizeEntityName_AcronymFolding(t *testing.T) {
	// Short and long forms of an acronym key the same graph node.
	assert.Equal(t,
		NormalizeEntityName("GPS"),
		NormalizeEntityName("Global Positioning System"))
	assert.Equal(t,
		NormalizeEntityName("GPS Module"),
		NormalizeEntityName("global positioning system module"))
	assert.Equal(t,
		NormalizeEntityName("IMU calibration"),
		NormalizeEntityName("Inertial Measurement Unit Calibration"))

	// Unknown tokens pass through untouched.
	assert.Equal(t, "esc firmware", NormalizeEntityName("ESC Firmware"))
}
