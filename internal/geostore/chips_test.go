package geostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
)

func testSchema() ChipSchema {
	return ChipSchema{
		ChipSize:  4,
		CellSize:  0.05,
		BandNames: []string{"Band_1", "Band_2", "Band_3"},
		Classes:   []string{"Decking", "Hole"},
	}
}

func makeChip(image string, col, row int, fill uint8) Chip {
	pixels := make([]uint8, 3*4*4)
	for i := range pixels {
		pixels[i] = fill + uint8(i%7)
	}
	mask := make([]uint8, 4*4)
	mask[0] = 1
	return Chip{Image: image, Col: col, Row: row, Origin: geo.Point{X: 0, Y: 0}, Pixels: pixels, Mask: mask}
}

func TestAppendChipsCreatesDataset(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendChips("chips_small", testSchema(), []Chip{
		makeChip("Dominica_1", 0, 0, 10),
		makeChip("Dominica_1", 1, 0, 20),
	}))

	count, err := store.CountChips("chips_small")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	schema, err := store.GetSchema("chips_small")
	require.NoError(t, err)
	assert.True(t, schema.Equal(testSchema()))
}

func TestAppendChipsSecondRegionAppends(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendChips("chips", testSchema(), []Chip{makeChip("Dominica_1", 0, 0, 10)}))
	require.NoError(t, store.AppendChips("chips", testSchema(), []Chip{
		makeChip("USVI_3", 0, 0, 200),
		makeChip("USVI_3", 1, 0, 100),
	}))

	chips, err := store.GetChips("chips")
	require.NoError(t, err)
	require.Len(t, chips, 3)
	assert.Equal(t, "Dominica_1", chips[0].Image)
	assert.Equal(t, "USVI_3", chips[2].Image)
}

func TestAppendChipsEmptyBandNamesRejected(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendChips("chips", testSchema(), []Chip{makeChip("Dominica_1", 0, 0, 10)}))

	// the failure mode seen in the field: a second region exported with
	// empty band metadata must be rejected, not silently appended
	bad := testSchema()
	bad.BandNames = []string{"", "", ""}
	err := store.AppendChips("chips", bad, []Chip{makeChip("USVI_3", 0, 0, 50)})
	require.Error(t, err)

	count, err := store.CountChips("chips")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "failed append must not write chips")
}

func TestAppendChipsEmptyBandNamesRejectedAtFirstWrite(t *testing.T) {
	store := openTestStore(t)
	bad := testSchema()
	bad.BandNames = []string{"", "", ""}
	err := store.AppendChips("chips", bad, []Chip{makeChip("Dominica_1", 0, 0, 10)})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestAppendChipsSchemaMismatchCategory(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendChips("chips", testSchema(), []Chip{makeChip("Dominica_1", 0, 0, 10)}))

	other := testSchema()
	other.Classes = []string{"Decking"}
	err := store.AppendChips("chips", other, []Chip{makeChip("USVI_3", 0, 0, 50)})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySchemaMismatch))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, []string{"Decking", "Hole"}, ee.GetContext()["existing_classes"])
}

func TestBandStatsOrderIndependent(t *testing.T) {
	a := []Chip{makeChip("a1", 0, 0, 10), makeChip("a2", 1, 0, 30)}
	b := []Chip{makeChip("b1", 0, 0, 200), makeChip("b2", 1, 0, 120), makeChip("b3", 2, 0, 90)}

	storeAB := openTestStore(t)
	require.NoError(t, storeAB.AppendChips("chips", testSchema(), a))
	require.NoError(t, storeAB.AppendChips("chips", testSchema(), b))

	storeBA := openTestStore(t)
	require.NoError(t, storeBA.AppendChips("chips", testSchema(), b))
	require.NoError(t, storeBA.AppendChips("chips", testSchema(), a))

	statsAB, err := storeAB.GetBandStats("chips")
	require.NoError(t, err)
	statsBA, err := storeBA.GetBandStats("chips")
	require.NoError(t, err)

	require.Len(t, statsAB, 3)
	for i := range statsAB {
		assert.Equal(t, statsAB[i].BandName, statsBA[i].BandName)
		assert.Equal(t, statsAB[i].Count, statsBA[i].Count)
		assert.InDelta(t, statsAB[i].Mean, statsBA[i].Mean, 1e-9)
		assert.InDelta(t, statsAB[i].StdDev, statsBA[i].StdDev, 1e-9)
	}

	countAB, err := storeAB.CountChips("chips")
	require.NoError(t, err)
	countBA, err := storeBA.CountChips("chips")
	require.NoError(t, err)
	assert.Equal(t, countAB, countBA)
}

func TestAppendChipsPixelLengthValidated(t *testing.T) {
	store := openTestStore(t)
	chip := makeChip("img", 0, 0, 10)
	chip.Pixels = chip.Pixels[:5]
	err := store.AppendChips("chips", testSchema(), []Chip{chip})
	assert.Error(t, err)
}
