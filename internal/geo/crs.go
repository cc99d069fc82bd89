package geo

import (
	"math"
	"sync"

	"github.com/roofsense/roofsense-go/internal/errors"
)

// CRSKind classifies a coordinate reference system.
type CRSKind int

const (
	KindUnknown CRSKind = iota
	KindGeographic
	KindProjected
)

func (k CRSKind) String() string {
	switch k {
	case KindGeographic:
		return "Geographic"
	case KindProjected:
		return "Projected"
	}
	return "Unknown"
}

// CRS identifies a coordinate reference system by authority code.
type CRS struct {
	Code string // e.g. "EPSG:4326"
	Kind CRSKind
}

// Transform converts coordinates between two reference systems.
type Transform interface {
	Forward(Point) Point
	Inverse(Point) Point
}

var (
	transformMu sync.RWMutex
	transforms  = map[[2]string]Transform{}
)

// RegisterTransform installs a custom transform between two CRS codes.
func RegisterTransform(from, to string, t Transform) {
	transformMu.Lock()
	defer transformMu.Unlock()
	transforms[[2]string{from, to}] = t
}

// LookupTransform resolves the transform from one CRS to another. A nil
// transform with nil error means the systems are identical and no
// reprojection is needed. The anchor point (in the source system) seats the
// built-in geographic-to-projected approximation.
func LookupTransform(from, to CRS, anchor Point) (Transform, error) {
	if from.Kind == KindUnknown || to.Kind == KindUnknown {
		return nil, errors.Newf("cannot transform between %s and %s coordinate systems", from.Kind, to.Kind).
			Component("geo").
			Category(errors.CategoryProjection).
			Context("from", from.Code).
			Context("to", to.Code).
			Build()
	}
	if from.Code == to.Code {
		return nil, nil
	}

	transformMu.RLock()
	t, ok := transforms[[2]string{from.Code, to.Code}]
	transformMu.RUnlock()
	if ok {
		return t, nil
	}

	if from.Kind == KindGeographic && to.Kind == KindProjected {
		return NewEquirectangular(anchor), nil
	}

	return nil, errors.Newf("no transform registered from %s to %s", from.Code, to.Code).
		Component("geo").
		Category(errors.CategoryProjection).
		Context("from_kind", from.Kind.String()).
		Context("to_kind", to.Kind.String()).
		Build()
}

const (
	metersPerDegreeLat = 111320.0
	degToRad           = math.Pi / 180
)

// Equirectangular approximates a local projected system by scaling degrees
// to meters about an anchor latitude. Adequate over single-image extents.
type Equirectangular struct {
	origin    Point
	metersLon float64
}

// NewEquirectangular builds a transform anchored at the given geographic point.
func NewEquirectangular(anchor Point) *Equirectangular {
	return &Equirectangular{
		origin:    anchor,
		metersLon: metersPerDegreeLat * math.Cos(anchor.Y*degToRad),
	}
}

// Forward converts geographic degrees to local meters.
func (e *Equirectangular) Forward(p Point) Point {
	return Point{
		X: (p.X - e.origin.X) * e.metersLon,
		Y: (p.Y - e.origin.Y) * metersPerDegreeLat,
	}
}

// Inverse converts local meters back to geographic degrees.
func (e *Equirectangular) Inverse(p Point) Point {
	return Point{
		X: e.origin.X + p.X/e.metersLon,
		Y: e.origin.Y + p.Y/metersPerDegreeLat,
	}
}
