package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSignedArea(t *testing.T) {
	ccw := Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 100.0, ccw.SignedArea(), 1e-9)

	cw := Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	assert.InDelta(t, -100.0, cw.SignedArea(), 1e-9)
}

func TestPolygonAreaWithHole(t *testing.T) {
	p := Polygon{Rings: []Ring{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}},
	}}
	assert.InDelta(t, 96.0, p.Area(), 1e-9)
}

func TestPolygonContainsPoint(t *testing.T) {
	p := Polygon{Rings: []Ring{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}},
	}}
	assert.True(t, p.ContainsPoint(Point{5, 5}))
	assert.False(t, p.ContainsPoint(Point{3, 3}), "points inside a hole are outside")
	assert.False(t, p.ContainsPoint(Point{-1, 5}))
}

func TestRectIntersect(t *testing.T) {
	a := Rect{0, 0, 10, 10}
	b := Rect{5, 5, 15, 15}
	got := a.Intersect(b)
	assert.Equal(t, Rect{5, 5, 10, 10}, got)

	c := Rect{20, 20, 30, 30}
	assert.True(t, a.Intersect(c).Empty())
}

func TestRectContainsRect(t *testing.T) {
	outer := Rect{0, 0, 10, 10}
	assert.True(t, outer.ContainsRect(Rect{1, 1, 9, 9}, 0))
	assert.False(t, outer.ContainsRect(Rect{1, 1, 11, 9}, 0))
	assert.True(t, outer.ContainsRect(Rect{0, 0, 10.0001, 10}, 0.001))
}

func TestCoordinatesRoundTrip(t *testing.T) {
	p := Polygon{Rings: []Ring{
		{{0, 0}, {10, 0}, {10, 10}},
		{{2, 2}, {4, 2}, {4, 4}},
	}}
	got := FromCoordinates(p.Coordinates())
	require.Equal(t, p, got)
}
