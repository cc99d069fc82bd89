package geo

import "math"

// Component is one 4-connected region of a mask with its outer boundary
// traced into a polygon along cell edges.
type Component struct {
	Polygon Polygon
	Cells   []int // row-major grid indices of the member cells
}

// Area returns the component area in map units.
func (c Component) Area(g Grid) float64 {
	return float64(len(c.Cells)) * g.CellSize * g.CellSize
}

// Components splits a mask into 4-connected regions and vectorizes each
// region's outer boundary. Contiguous cells form single-part polygons; hole
// boundaries inside a region are not emitted.
func Components(g Grid, mask []bool) []Component {
	labels := make([]int, len(mask))
	var out []Component

	for start := range mask {
		if !mask[start] || labels[start] != 0 {
			continue
		}
		label := len(out) + 1
		cells := floodFill(g, mask, labels, start, label)
		poly := traceBoundary(g, labels, label, cells)
		out = append(out, Component{Polygon: poly, Cells: cells})
	}
	return out
}

func floodFill(g Grid, mask []bool, labels []int, start, label int) []int {
	queue := []int{start}
	labels[start] = label
	var cells []int
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		cells = append(cells, idx)
		col, row := idx%g.Width, idx/g.Width
		for _, d := range [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
			nc, nr := col+d[0], row+d[1]
			if nc < 0 || nc >= g.Width || nr < 0 || nr >= g.Height {
				continue
			}
			nidx := g.Index(nc, nr)
			if mask[nidx] && labels[nidx] == 0 {
				labels[nidx] = label
				queue = append(queue, nidx)
			}
		}
	}
	return cells
}

// traceBoundary chains the boundary edges of a labeled region into closed
// loops and returns the largest loop as the exterior ring.
func traceBoundary(g Grid, labels []int, label int, cells []int) Polygon {
	// vertex ids address cell corners on a (Width+1)x(Height+1) lattice
	vertex := func(col, row int) int { return row*(g.Width+1) + col }

	inside := func(col, row int) bool {
		if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
			return false
		}
		return labels[g.Index(col, row)] == label
	}

	// directed edges keep the region on the right of travel, so every loop
	// closes and every boundary vertex balances in- and out-degree
	edges := make(map[int][]int)
	addEdge := func(from, to int) { edges[from] = append(edges[from], to) }
	for _, idx := range cells {
		col, row := idx%g.Width, idx/g.Width
		if !inside(col, row-1) {
			addEdge(vertex(col, row), vertex(col+1, row))
		}
		if !inside(col+1, row) {
			addEdge(vertex(col+1, row), vertex(col+1, row+1))
		}
		if !inside(col, row+1) {
			addEdge(vertex(col+1, row+1), vertex(col, row+1))
		}
		if !inside(col-1, row) {
			addEdge(vertex(col, row+1), vertex(col, row))
		}
	}

	var loops []Ring
	for startVertex := range edges {
		if len(edges[startVertex]) == 0 {
			continue
		}
		loop := []int{startVertex}
		current := startVertex
		for {
			outs := edges[current]
			if len(outs) == 0 {
				break
			}
			next := outs[len(outs)-1]
			edges[current] = outs[:len(outs)-1]
			if next == startVertex {
				break
			}
			loop = append(loop, next)
			current = next
		}
		ring := make(Ring, len(loop))
		for i, v := range loop {
			ring[i] = g.Corner(v%(g.Width+1), v/(g.Width+1))
		}
		loops = append(loops, simplifyCollinear(ring))
	}

	if len(loops) == 0 {
		return Polygon{}
	}
	exterior := loops[0]
	largest := math.Abs(exterior.SignedArea())
	for _, loop := range loops[1:] {
		if a := math.Abs(loop.SignedArea()); a > largest {
			exterior, largest = loop, a
		}
	}
	return Polygon{Rings: []Ring{exterior}}
}

// simplifyCollinear removes vertices that lie on a straight segment.
func simplifyCollinear(ring Ring) Ring {
	if len(ring) < 4 {
		return ring
	}
	out := make(Ring, 0, len(ring))
	n := len(ring)
	for i := range ring {
		prev := ring[(i+n-1)%n]
		cur := ring[i]
		next := ring[(i+1)%n]
		cross := (cur.X-prev.X)*(next.Y-prev.Y) - (cur.Y-prev.Y)*(next.X-prev.X)
		if cross != 0 {
			out = append(out, cur)
		}
	}
	if len(out) < 3 {
		return ring
	}
	return out
}
