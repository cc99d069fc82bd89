package accuracy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
)

var projected = geo.CRS{Code: "EPSG:32620", Kind: geo.KindProjected}

func accuracyTestStores(t *testing.T) (prepared, predicted, reference, tables *geostore.Store) {
	t.Helper()
	dir := t.TempDir()
	open := func(name string) *geostore.Store {
		store, err := geostore.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
	return open("prepared.db"), open("predicted.db"), open("reference.db"), open("tables.db")
}

// validImage builds a fully valid size x size image at cell size 1.
func validImage(name string, size int) *geo.Raster {
	r := geo.NewRaster(name, projected, geo.Grid{
		Origin: geo.Point{X: 0, Y: float64(size)}, CellSize: 1, Width: size, Height: size,
	}, []string{"Band_1", "Band_2", "Band_3"})
	for b := range r.Bands {
		for i := range r.Bands[b].Data {
			r.Bands[b].Data[i] = 128
		}
	}
	return r
}

func findRow(t *testing.T, rows []geostore.AccuracyRecord, image string) geostore.AccuracyRecord {
	t.Helper()
	for _, row := range rows {
		if row.Image == image {
			return row
		}
	}
	t.Fatalf("no row for image %q", image)
	return geostore.AccuracyRecord{}
}

func TestRunPerfectAgreementScoresOne(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)
	require.NoError(t, prepared.SaveRaster(validImage("Test_1", 500), "Test"))

	// a polygon covering 10% of the 500x500 image, identical in both layers
	poly := geo.NewRect(geo.Rect{MinX: 50, MinY: 100, MaxX: 300, MaxY: 200})
	require.NoError(t, predicted.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Decking", Model: "dual_model", Polygon: poly},
	}))
	require.NoError(t, reference.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Decking", Polygon: poly},
	}))

	result, err := Run(prepared, predicted, reference, tables)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImagesEvaluated)
	assert.Equal(t, []string{"Accuracy_Decking", "Accuracy_Hole"}, result.Tables)

	rows, err := tables.GetAccuracyTable("Accuracy_Decking")
	require.NoError(t, err)
	require.Len(t, rows, 2, "one image row plus the summary row")

	row := findRow(t, rows, "Test_1")
	assert.EqualValues(t, 25000, row.TP, "250x100 cells inside the polygon")
	assert.EqualValues(t, 0, row.FP)
	assert.EqualValues(t, 0, row.FN)
	assert.Equal(t, 1.0, row.Precision)
	assert.Equal(t, 1.0, row.Recall)
	assert.Equal(t, 1.0, row.F1)
	assert.Equal(t, 1.0, row.IoU)

	summary := findRow(t, rows, SummaryImage)
	assert.Equal(t, row.TP, summary.TP)
	assert.Equal(t, 1.0, summary.IoU)

	// the hole table reports zero counts for an image with no hole polygons
	holeRows, err := tables.GetAccuracyTable("Accuracy_Hole")
	require.NoError(t, err)
	holeRow := findRow(t, holeRows, "Test_1")
	assert.EqualValues(t, 0, holeRow.Union)
	assert.Equal(t, 0.0, holeRow.IoU)
}

func TestRunPartialOverlapCounts(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)
	require.NoError(t, prepared.SaveRaster(validImage("Test_1", 20), "Test"))

	// prediction 0..10 x 0..10, reference 5..15 x 0..10: 50 shared cells
	require.NoError(t, predicted.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Hole", Polygon: geo.NewRect(geo.Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})},
	}))
	require.NoError(t, reference.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Hole", Polygon: geo.NewRect(geo.Rect{MinX: 5, MinY: 0, MaxX: 15, MaxY: 10})},
	}))

	_, err := Run(prepared, predicted, reference, tables)
	require.NoError(t, err)

	rows, err := tables.GetAccuracyTable("Accuracy_Hole")
	require.NoError(t, err)
	row := findRow(t, rows, "Test_1")
	assert.EqualValues(t, 50, row.TP)
	assert.EqualValues(t, 50, row.FP)
	assert.EqualValues(t, 50, row.FN)
	assert.EqualValues(t, 150, row.Union)
	assert.Equal(t, 0.5, row.Precision)
	assert.Equal(t, 0.5, row.Recall)
	assert.Equal(t, 0.33, row.IoU, "metrics are rounded to two decimals")
	assert.Equal(t, 0.5, row.F1)
}

func TestRunIgnoresNodataCells(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)

	// left half of the image is nodata
	r := validImage("Test_1", 10)
	for b := range r.Bands {
		for row := 0; row < 10; row++ {
			for col := 0; col < 5; col++ {
				r.Set(b, col, row, geo.NoData)
			}
		}
	}
	require.NoError(t, prepared.SaveRaster(r, "Test"))

	// prediction spans both halves; only the valid half counts
	require.NoError(t, predicted.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Decking", Polygon: geo.NewRect(geo.Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})},
	}))
	require.NoError(t, reference.SaveFeatures("Test_1", projected, []geostore.Feature{
		{Class: "Decking", Polygon: geo.NewRect(geo.Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})},
	}))

	_, err := Run(prepared, predicted, reference, tables)
	require.NoError(t, err)

	rows, err := tables.GetAccuracyTable("Accuracy_Decking")
	require.NoError(t, err)
	row := findRow(t, rows, "Test_1")
	assert.EqualValues(t, 50, row.TP, "nodata cells are excluded from counting")
}

func TestRunSkipsLayersWithoutReference(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)
	require.NoError(t, prepared.SaveRaster(validImage("Test_1", 10), "Test"))
	require.NoError(t, prepared.SaveRaster(validImage("Test_2", 10), "Test"))

	poly := geo.NewRect(geo.Rect{MinX: 1, MinY: 1, MaxX: 5, MaxY: 5})
	require.NoError(t, predicted.SaveFeatures("Test_1", projected, []geostore.Feature{{Class: "Decking", Polygon: poly}}))
	require.NoError(t, predicted.SaveFeatures("Test_2", projected, []geostore.Feature{{Class: "Decking", Polygon: poly}}))
	require.NoError(t, reference.SaveFeatures("Test_1", projected, []geostore.Feature{{Class: "Decking", Polygon: poly}}))

	result, err := Run(prepared, predicted, reference, tables)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImagesEvaluated)
	assert.Equal(t, 1, result.ImagesSkipped)
}

func TestRunFailsWhenNothingEvaluates(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)
	_, err := Run(prepared, predicted, reference, tables)
	assert.Error(t, err)
}

func TestRunOverwritesTablesOnRerun(t *testing.T) {
	prepared, predicted, reference, tables := accuracyTestStores(t)
	require.NoError(t, prepared.SaveRaster(validImage("Test_1", 10), "Test"))
	poly := geo.NewRect(geo.Rect{MinX: 1, MinY: 1, MaxX: 5, MaxY: 5})
	require.NoError(t, predicted.SaveFeatures("Test_1", projected, []geostore.Feature{{Class: "Decking", Polygon: poly}}))
	require.NoError(t, reference.SaveFeatures("Test_1", projected, []geostore.Feature{{Class: "Decking", Polygon: poly}}))

	_, err := Run(prepared, predicted, reference, tables)
	require.NoError(t, err)
	_, err = Run(prepared, predicted, reference, tables)
	require.NoError(t, err)

	rows, err := tables.GetAccuracyTable("Accuracy_Decking")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "re-running replaces the table instead of appending")
}
