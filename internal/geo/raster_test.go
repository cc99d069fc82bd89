package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRaster(w, h int, cellSize float64, fill float64) *Raster {
	r := NewRaster("test", CRS{Code: "EPSG:32620", Kind: KindProjected}, Grid{
		Origin:   Point{0, float64(h) * cellSize},
		CellSize: cellSize,
		Width:    w,
		Height:   h,
	}, []string{"Band_1", "Band_2", "Band_3"})
	for b := range r.Bands {
		for i := range r.Bands[b].Data {
			r.Bands[b].Data[i] = fill
		}
	}
	return r
}

func TestGridExtentAndCells(t *testing.T) {
	g := Grid{Origin: Point{100, 200}, CellSize: 0.5, Width: 10, Height: 20}
	ext := g.Extent()
	assert.Equal(t, Rect{MinX: 100, MinY: 190, MaxX: 105, MaxY: 200}, ext)

	c := g.CellCenter(0, 0)
	assert.Equal(t, Point{100.25, 199.75}, c)

	col, row := g.CellAt(c)
	assert.Equal(t, 0, col)
	assert.Equal(t, 0, row)
}

func TestResamplePreservesConstantField(t *testing.T) {
	r := testRaster(8, 8, 1.0, 42)
	out, err := r.Resample(0.5)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Grid.Width)
	assert.Equal(t, 16, out.Grid.Height)
	for _, v := range out.Bands[0].Data {
		assert.InDelta(t, 42.0, v, 1e-9)
	}
}

func TestResampleKeepsExtent(t *testing.T) {
	r := testRaster(10, 6, 0.2, 7)
	out, err := r.Resample(0.05)
	require.NoError(t, err)
	assert.Equal(t, r.Grid.Extent(), out.Grid.Extent())
}

func TestClipExtentWithinBoundary(t *testing.T) {
	r := testRaster(20, 20, 1.0, 10)
	boundary := NewRect(Rect{MinX: 3, MinY: 3, MaxX: 12, MaxY: 12})

	out, err := r.Clip(boundary)
	require.NoError(t, err)

	// the clipped extent never exceeds the boundary by more than one cell of
	// grid snap, and every valid cell center is inside the boundary
	for row := 0; row < out.Grid.Height; row++ {
		for col := 0; col < out.Grid.Width; col++ {
			if out.Valid(col, row) {
				assert.True(t, boundary.ContainsPoint(out.Grid.CellCenter(col, row)))
			}
		}
	}
	assert.True(t, r.Grid.Extent().ContainsRect(out.Grid.Extent(), 1e-9))
}

func TestClipOutsideBoundaryIsNoData(t *testing.T) {
	r := testRaster(10, 10, 1.0, 5)
	// triangle covering the lower-left of the raster
	boundary := Polygon{Rings: []Ring{{{0, 0}, {10, 0}, {0, 10}}}}

	out, err := r.Clip(boundary)
	require.NoError(t, err)

	valid, nodata := 0, 0
	for row := 0; row < out.Grid.Height; row++ {
		for col := 0; col < out.Grid.Width; col++ {
			if out.Valid(col, row) {
				valid++
			} else {
				nodata++
			}
		}
	}
	assert.Positive(t, valid)
	assert.Positive(t, nodata)
}

func TestClipDisjointBoundaryFails(t *testing.T) {
	r := testRaster(10, 10, 1.0, 5)
	boundary := NewRect(Rect{MinX: 100, MinY: 100, MaxX: 110, MaxY: 110})
	_, err := r.Clip(boundary)
	assert.Error(t, err)
}

func TestExtractBands(t *testing.T) {
	r := testRaster(4, 4, 1.0, 1)
	rgb, err := r.ExtractBands(0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Band_1", "Band_2", "Band_3"}, rgb.BandNames())

	_, err = r.ExtractBands(7)
	assert.Error(t, err)
}

func TestTo8Bit(t *testing.T) {
	r := testRaster(2, 2, 1.0, 0)
	r.Bands[0].Data = []float64{-4.2, 99.6, 300, NoData}
	out := r.To8Bit()
	assert.Equal(t, 0.0, out.Bands[0].Data[0])
	assert.Equal(t, 100.0, out.Bands[0].Data[1])
	assert.Equal(t, 255.0, out.Bands[0].Data[2])
	assert.True(t, IsNoData(out.Bands[0].Data[3]))
}

func TestReprojectGeographicToProjected(t *testing.T) {
	src := NewRaster("aerial", CRS{Code: "EPSG:4326", Kind: KindGeographic}, Grid{
		Origin:   Point{-61.4, 15.4},
		CellSize: 0.00001,
		Width:    50,
		Height:   50,
	}, []string{"Band_1"})
	for i := range src.Bands[0].Data {
		src.Bands[0].Data[i] = 128
	}

	target := CRS{Code: "EPSG:32620", Kind: KindProjected}
	tr, err := LookupTransform(src.CRS, target, Point{-61.4, 15.4})
	require.NoError(t, err)
	require.NotNil(t, tr)

	out, err := src.Reproject(target, tr, 0.05)
	require.NoError(t, err)
	assert.Equal(t, target, out.CRS)
	assert.Positive(t, out.Grid.Width)
	assert.Positive(t, out.Grid.Height)

	// the source spans ~0.0005 degrees, a little over 50 m in both axes
	ext := out.Grid.Extent()
	assert.InDelta(t, 55.0, ext.Width(), 10)
	assert.InDelta(t, 55.0, ext.Height(), 10)
}

func TestLookupTransformUnknownFails(t *testing.T) {
	_, err := LookupTransform(CRS{Kind: KindUnknown}, CRS{Code: "EPSG:32620", Kind: KindProjected}, Point{})
	assert.Error(t, err)
}

func TestLookupTransformIdentity(t *testing.T) {
	crs := CRS{Code: "EPSG:32620", Kind: KindProjected}
	tr, err := LookupTransform(crs, crs, Point{})
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestEquirectangularRoundTrip(t *testing.T) {
	e := NewEquirectangular(Point{-61.4, 15.4})
	p := Point{-61.39, 15.41}
	back := e.Inverse(e.Forward(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
	assert.False(t, math.IsNaN(e.Forward(p).X))
}
