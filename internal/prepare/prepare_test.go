package prepare

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
)

// writeTestImage writes an 8x8 PNG with world and crs sidecars. The top-left
// cell center sits at (0.5, 7.5) so the grid origin is (0, 8).
func writeTestImage(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 100, A: 255})
		}
	}
	path := filepath.Join(dir, name+".png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	world := "1.0\n0.0\n0.0\n-1.0\n0.5\n7.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".pgw"), []byte(world), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".crs"), []byte("EPSG:32620 projected\n"), 0o644))
	return path
}

func prepareTestStores(t *testing.T) (prepared, boundaries *geostore.Store) {
	t.Helper()
	dir := t.TempDir()
	var err error
	prepared, err = geostore.Open(filepath.Join(dir, "prepared.db"))
	require.NoError(t, err)
	boundaries, err = geostore.Open(filepath.Join(dir, "boundaries.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = prepared.Close()
		_ = boundaries.Close()
	})
	return prepared, boundaries
}

func TestLoadImageReadsGridAndPixels(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "Dominica_1")

	r, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "Dominica_1", r.Name)
	assert.Equal(t, geo.CRS{Code: "EPSG:32620", Kind: geo.KindProjected}, r.CRS)
	assert.Equal(t, geo.Point{X: 0, Y: 8}, r.Grid.Origin)
	assert.Equal(t, 1.0, r.Grid.CellSize)
	assert.Equal(t, 8, r.Grid.Width)
	assert.Equal(t, 8, r.Grid.Height)
	require.Len(t, r.Bands, 4)

	assert.Equal(t, 90.0, r.At(0, 3, 0), "red channel of column 3")
	assert.Equal(t, 60.0, r.At(1, 0, 2), "green channel of row 2")
	assert.Equal(t, 100.0, r.At(2, 5, 5))
	assert.Equal(t, 255.0, r.At(3, 0, 0), "alpha channel")
}

func TestLoadImageWithoutWorldFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "img")
	require.NoError(t, os.Remove(filepath.Join(dir, "img.pgw")))

	_, err := LoadImage(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world file")
}

func TestReadWorldFileRejectsRotation(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "img")
	world := "1.0\n0.2\n0.0\n-1.0\n0.5\n7.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img.pgw"), []byte(world), 0o644))

	_, err := LoadImage(path)
	assert.Error(t, err)
}

func TestRunPreparesAndClips(t *testing.T) {
	prepared, boundaries := prepareTestStores(t)
	inputDir := t.TempDir()
	writeTestImage(t, inputDir, "Dominica_1")

	crs := geo.CRS{Code: "EPSG:32620", Kind: geo.KindProjected}
	boundary := geo.NewRect(geo.Rect{MinX: 1, MinY: 1, MaxX: 6, MaxY: 6})
	require.NoError(t, boundaries.SaveFeatures("Dominica_1", crs, []geostore.Feature{{Polygon: boundary}}))

	result, err := Run(prepared, boundaries, conf.PrepareSettings{
		InputDir: inputDir,
		Region:   "Dominica",
		CellSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImagesPrepared)
	assert.Empty(t, result.Skipped)

	r, err := prepared.GetRaster("Dominica_1")
	require.NoError(t, err)
	require.Len(t, r.Bands, 3, "alpha band is dropped")

	// the prepared extent stays inside the boundary, padded by one cell for
	// the outward grid snap
	assert.True(t, boundary.Bounds().ContainsRect(r.Grid.Extent(), r.Grid.CellSize),
		"prepared extent %+v escapes boundary %+v", r.Grid.Extent(), boundary.Bounds())

	// cells outside the boundary polygon are nodata
	for row := 0; row < r.Grid.Height; row++ {
		for col := 0; col < r.Grid.Width; col++ {
			inside := boundary.ContainsPoint(r.Grid.CellCenter(col, row))
			assert.Equal(t, inside, r.Valid(col, row), "cell (%d,%d)", col, row)
		}
	}

	names, err := prepared.ListRasters("Dominica")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dominica_1"}, names)
}

func TestRunSkipsImageWithoutBoundary(t *testing.T) {
	prepared, boundaries := prepareTestStores(t)
	inputDir := t.TempDir()
	writeTestImage(t, inputDir, "Dominica_1")
	writeTestImage(t, inputDir, "Dominica_2")

	crs := geo.CRS{Code: "EPSG:32620", Kind: geo.KindProjected}
	boundary := geo.NewRect(geo.Rect{MinX: 1, MinY: 1, MaxX: 6, MaxY: 6})
	require.NoError(t, boundaries.SaveFeatures("Dominica_1", crs, []geostore.Feature{{Polygon: boundary}}))

	result, err := Run(prepared, boundaries, conf.PrepareSettings{
		InputDir: inputDir,
		Region:   "Dominica",
		CellSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImagesPrepared)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "Dominica_2", result.Skipped[0].Name)
	assert.Contains(t, result.Skipped[0].Reason, "boundary")
}

func TestRunSkipsImageWithoutCoordinateSystem(t *testing.T) {
	prepared, boundaries := prepareTestStores(t)
	inputDir := t.TempDir()
	writeTestImage(t, inputDir, "img")
	require.NoError(t, os.Remove(filepath.Join(inputDir, "img.crs")))

	result, err := Run(prepared, boundaries, conf.PrepareSettings{
		InputDir: inputDir,
		Region:   "Test",
		CellSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ImagesPrepared)
	require.Len(t, result.Skipped, 1)
}

func TestRunRejectsUnknownRegion(t *testing.T) {
	prepared, boundaries := prepareTestStores(t)
	_, err := Run(prepared, boundaries, conf.PrepareSettings{
		InputDir: t.TempDir(),
		Region:   "Atlantis",
		CellSize: 1,
	})
	assert.Error(t, err)
}
