package damage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("sintmaarten")
	require.NoError(t, err)
	assert.Equal(t, SintMaarten, r)

	_, err = ParseRegion("Atlantis")
	assert.Error(t, err)
}

func TestParseClassConfig(t *testing.T) {
	cfg, err := ParseClassConfig("DUAL")
	require.NoError(t, err)
	assert.Equal(t, DualClass, cfg)

	_, err = ParseClassConfig("triple")
	assert.Error(t, err)
}

func TestClassConfigClasses(t *testing.T) {
	assert.Equal(t, []Class{Decking, Hole}, DualClass.Classes())
	assert.Equal(t, []Class{Decking}, RoofDeckingOnly.Classes())
	assert.Equal(t, []Class{Hole}, RoofHoleOnly.Classes())
	assert.Equal(t, []string{"Decking", "Hole"}, DualClass.ClassNames())
}
