package geo

// RasterizeMask burns the polygons into a boolean mask over the grid using
// the cell-center rule: a cell is set when its center lies inside any of the
// polygons.
func RasterizeMask(g Grid, polys []Polygon) []bool {
	mask := make([]bool, g.Cells())
	for _, poly := range polys {
		b := poly.Bounds()
		startCol, startRow := g.CellAt(Point{b.MinX, b.MaxY})
		endCol, endRow := g.CellAt(Point{b.MaxX, b.MinY})
		startCol = max(startCol, 0)
		startRow = max(startRow, 0)
		endCol = min(endCol, g.Width-1)
		endRow = min(endRow, g.Height-1)
		for row := startRow; row <= endRow; row++ {
			for col := startCol; col <= endCol; col++ {
				idx := g.Index(col, row)
				if mask[idx] {
					continue
				}
				if poly.ContainsPoint(g.CellCenter(col, row)) {
					mask[idx] = true
				}
			}
		}
	}
	return mask
}

// PixelCount returns the number of grid cells covered by the polygon under
// the cell-center rule.
func PixelCount(g Grid, poly Polygon) int {
	var n int
	for _, set := range RasterizeMask(g, []Polygon{poly}) {
		if set {
			n++
		}
	}
	return n
}
