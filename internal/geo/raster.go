package geo

import (
	"math"

	"github.com/roofsense/roofsense-go/internal/errors"
)

// NoData marks cells outside the valid image area.
var NoData = math.NaN()

// IsNoData reports whether a cell value is the nodata marker.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// Grid describes a georeferenced pixel grid. Origin is the map position of
// the top-left corner of cell (0,0); rows advance south.
type Grid struct {
	Origin   Point
	CellSize float64
	Width    int
	Height   int
}

// Extent returns the map extent covered by the grid.
func (g Grid) Extent() Rect {
	return Rect{
		MinX: g.Origin.X,
		MaxX: g.Origin.X + float64(g.Width)*g.CellSize,
		MinY: g.Origin.Y - float64(g.Height)*g.CellSize,
		MaxY: g.Origin.Y,
	}
}

// CellCenter returns the map position of the center of cell (col,row).
func (g Grid) CellCenter(col, row int) Point {
	return Point{
		X: g.Origin.X + (float64(col)+0.5)*g.CellSize,
		Y: g.Origin.Y - (float64(row)+0.5)*g.CellSize,
	}
}

// Corner returns the map position of the top-left corner of cell (col,row).
func (g Grid) Corner(col, row int) Point {
	return Point{
		X: g.Origin.X + float64(col)*g.CellSize,
		Y: g.Origin.Y - float64(row)*g.CellSize,
	}
}

// CellAt returns the cell containing the map point.
func (g Grid) CellAt(p Point) (col, row int) {
	col = int(math.Floor((p.X - g.Origin.X) / g.CellSize))
	row = int(math.Floor((g.Origin.Y - p.Y) / g.CellSize))
	return col, row
}

// Index returns the row-major index of cell (col,row).
func (g Grid) Index(col, row int) int { return row*g.Width + col }

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int { return g.Width * g.Height }

// Band is one raster band with named cell values in row-major order.
type Band struct {
	Name string
	Data []float64
}

// Raster is a georeferenced multi-band pixel grid. Prepared rasters are
// immutable once written to a store.
type Raster struct {
	Name  string
	CRS   CRS
	Grid  Grid
	Bands []Band
}

// NewRaster allocates a raster with nodata-filled bands.
func NewRaster(name string, crs CRS, grid Grid, bandNames []string) *Raster {
	bands := make([]Band, len(bandNames))
	for i, bn := range bandNames {
		data := make([]float64, grid.Cells())
		for j := range data {
			data[j] = NoData
		}
		bands[i] = Band{Name: bn, Data: data}
	}
	return &Raster{Name: name, CRS: crs, Grid: grid, Bands: bands}
}

// BandNames returns the band names in order.
func (r *Raster) BandNames() []string {
	names := make([]string, len(r.Bands))
	for i := range r.Bands {
		names[i] = r.Bands[i].Name
	}
	return names
}

// At returns the value of band b at (col,row).
func (r *Raster) At(b, col, row int) float64 {
	return r.Bands[b].Data[r.Grid.Index(col, row)]
}

// Set assigns the value of band b at (col,row).
func (r *Raster) Set(b, col, row int, v float64) {
	r.Bands[b].Data[r.Grid.Index(col, row)] = v
}

// Valid reports whether the cell holds data in the first band.
func (r *Raster) Valid(col, row int) bool {
	return !IsNoData(r.Bands[0].Data[r.Grid.Index(col, row)])
}

// ExtractBands returns a raster holding only the selected band indices.
// Band data is shared with the source.
func (r *Raster) ExtractBands(indices ...int) (*Raster, error) {
	bands := make([]Band, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(r.Bands) {
			return nil, errors.Newf("band index %d out of range, raster has %d bands", i, len(r.Bands)).
				Component("geo").
				Category(errors.CategoryImagePrep).
				Context("raster", r.Name).
				Build()
		}
		bands = append(bands, r.Bands[i])
	}
	return &Raster{Name: r.Name, CRS: r.CRS, Grid: r.Grid, Bands: bands}, nil
}

// cubicWeight is the cubic convolution kernel with a = -0.5.
func cubicWeight(x float64) float64 {
	const a = -0.5
	x = math.Abs(x)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	}
	return 0
}

// sampleCubic interpolates band data at fractional pixel coordinates using
// cubic convolution. Returns nodata when the nearest source cell is nodata.
func sampleCubic(g Grid, data []float64, fx, fy float64) float64 {
	nearCol := int(math.Floor(fx))
	nearRow := int(math.Floor(fy))
	if nearCol < 0 || nearCol >= g.Width || nearRow < 0 || nearRow >= g.Height {
		return NoData
	}
	center := data[g.Index(nearCol, nearRow)]
	if IsNoData(center) {
		return NoData
	}

	var sum, wsum float64
	for dy := -1; dy <= 2; dy++ {
		row := nearRow + dy
		if row < 0 {
			row = 0
		} else if row >= g.Height {
			row = g.Height - 1
		}
		wy := cubicWeight(float64(nearRow+dy) + 0.5 - fy)
		for dx := -1; dx <= 2; dx++ {
			col := nearCol + dx
			if col < 0 {
				col = 0
			} else if col >= g.Width {
				col = g.Width - 1
			}
			wx := cubicWeight(float64(nearCol+dx) + 0.5 - fx)
			v := data[g.Index(col, row)]
			if IsNoData(v) {
				// nodata neighbors fall back to the center value so edges
				// do not bleed nodata into valid cells
				v = center
			}
			w := wx * wy
			sum += v * w
			wsum += w
		}
	}
	if wsum == 0 {
		return center
	}
	return sum / wsum
}

// Resample returns the raster resampled to the target cell size using cubic
// convolution. The output grid covers the same extent.
func (r *Raster) Resample(cellSize float64) (*Raster, error) {
	if cellSize <= 0 {
		return nil, errors.Newf("cell size must be positive, got %g", cellSize).
			Component("geo").
			Category(errors.CategoryImagePrep).
			Build()
	}
	ext := r.Grid.Extent()
	out := NewRaster(r.Name, r.CRS, Grid{
		Origin:   r.Grid.Origin,
		CellSize: cellSize,
		Width:    int(math.Ceil(ext.Width() / cellSize)),
		Height:   int(math.Ceil(ext.Height() / cellSize)),
	}, r.BandNames())

	for row := 0; row < out.Grid.Height; row++ {
		for col := 0; col < out.Grid.Width; col++ {
			p := out.Grid.CellCenter(col, row)
			// fractional source pixel coordinates of the sample point
			fx := (p.X - r.Grid.Origin.X) / r.Grid.CellSize
			fy := (r.Grid.Origin.Y - p.Y) / r.Grid.CellSize
			for b := range r.Bands {
				out.Set(b, col, row, sampleCubic(r.Grid, r.Bands[b].Data, fx, fy))
			}
		}
	}
	return out, nil
}

// Reproject warps the raster into the target system using the transform.
// The output grid is axis-aligned in the target system at the given cell
// size, covering the transformed source extent.
func (r *Raster) Reproject(target CRS, t Transform, cellSize float64) (*Raster, error) {
	if t == nil {
		return r, nil
	}
	src := r.Grid.Extent()
	corners := []Point{
		{src.MinX, src.MinY}, {src.MinX, src.MaxY},
		{src.MaxX, src.MinY}, {src.MaxX, src.MaxY},
	}
	out := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range corners {
		p := t.Forward(c)
		out.MinX = math.Min(out.MinX, p.X)
		out.MinY = math.Min(out.MinY, p.Y)
		out.MaxX = math.Max(out.MaxX, p.X)
		out.MaxY = math.Max(out.MaxY, p.Y)
	}
	if out.Empty() {
		return nil, errors.Newf("reprojected extent of %s is empty", r.Name).
			Component("geo").
			Category(errors.CategoryProjection).
			Build()
	}

	dst := NewRaster(r.Name, target, Grid{
		Origin:   Point{out.MinX, out.MaxY},
		CellSize: cellSize,
		Width:    int(math.Ceil(out.Width() / cellSize)),
		Height:   int(math.Ceil(out.Height() / cellSize)),
	}, r.BandNames())

	for row := 0; row < dst.Grid.Height; row++ {
		for col := 0; col < dst.Grid.Width; col++ {
			srcPt := t.Inverse(dst.Grid.CellCenter(col, row))
			fx := (srcPt.X - r.Grid.Origin.X) / r.Grid.CellSize
			fy := (r.Grid.Origin.Y - srcPt.Y) / r.Grid.CellSize
			for b := range r.Bands {
				dst.Set(b, col, row, sampleCubic(r.Grid, r.Bands[b].Data, fx, fy))
			}
		}
	}
	return dst, nil
}

// Clip returns the raster restricted to the polygon. The output grid stays
// aligned with the source grid and covers the intersection of the raster
// extent and the polygon bounds; cells whose centers fall outside the
// polygon become nodata.
func (r *Raster) Clip(boundary Polygon) (*Raster, error) {
	overlap := r.Grid.Extent().Intersect(boundary.Bounds())
	if overlap.Empty() {
		return nil, errors.Newf("boundary polygon does not overlap raster %s", r.Name).
			Component("geo").
			Category(errors.CategoryImagePrep).
			Context("raster_extent", r.Grid.Extent()).
			Context("boundary_extent", boundary.Bounds()).
			Build()
	}

	cs := r.Grid.CellSize
	// snap the clip window outward to the source cell boundaries
	startCol := int(math.Floor((overlap.MinX - r.Grid.Origin.X) / cs))
	endCol := int(math.Ceil((overlap.MaxX - r.Grid.Origin.X) / cs))
	startRow := int(math.Floor((r.Grid.Origin.Y - overlap.MaxY) / cs))
	endRow := int(math.Ceil((r.Grid.Origin.Y - overlap.MinY) / cs))
	startCol = max(startCol, 0)
	startRow = max(startRow, 0)
	endCol = min(endCol, r.Grid.Width)
	endRow = min(endRow, r.Grid.Height)

	out := NewRaster(r.Name, r.CRS, Grid{
		Origin:   r.Grid.Corner(startCol, startRow),
		CellSize: cs,
		Width:    endCol - startCol,
		Height:   endRow - startRow,
	}, r.BandNames())

	for row := 0; row < out.Grid.Height; row++ {
		for col := 0; col < out.Grid.Width; col++ {
			if !boundary.ContainsPoint(out.Grid.CellCenter(col, row)) {
				continue
			}
			for b := range r.Bands {
				out.Set(b, col, row, r.At(b, startCol+col, startRow+row))
			}
		}
	}
	return out, nil
}

// To8Bit clamps and rounds all cell values to the 0..255 range, preserving
// nodata cells.
func (r *Raster) To8Bit() *Raster {
	out := NewRaster(r.Name, r.CRS, r.Grid, r.BandNames())
	for b := range r.Bands {
		for i, v := range r.Bands[b].Data {
			if IsNoData(v) {
				continue
			}
			out.Bands[b].Data[i] = math.Min(255, math.Max(0, math.Round(v)))
		}
	}
	return out
}
