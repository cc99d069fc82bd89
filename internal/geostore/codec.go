// codec.go: binary and JSON codecs for stored geometries and raster bands
package geostore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roofsense/roofsense-go/internal/geo"
)

func encodeGeometry(p geo.Polygon) ([]byte, error) {
	return json.Marshal(p.Coordinates())
}

func decodeGeometry(data []byte) (geo.Polygon, error) {
	var coords [][][2]float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return geo.Polygon{}, fmt.Errorf("decoding geometry: %w", err)
	}
	return geo.FromCoordinates(coords), nil
}

// encodeBands packs band data as float32 little-endian, band-major. NaN
// cells survive the conversion and remain the nodata marker.
func encodeBands(r *geo.Raster) []byte {
	cells := r.Grid.Cells()
	out := make([]byte, 4*cells*len(r.Bands))
	off := 0
	for b := range r.Bands {
		for _, v := range r.Bands[b].Data {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(v)))
			off += 4
		}
	}
	return out
}

func decodeBands(data []byte, bandCount, cells int) ([][]float64, error) {
	if len(data) != 4*cells*bandCount {
		return nil, fmt.Errorf("raster data has %d bytes, expected %d", len(data), 4*cells*bandCount)
	}
	bands := make([][]float64, bandCount)
	off := 0
	for b := range bands {
		bands[b] = make([]float64, cells)
		for i := range bands[b] {
			bands[b][i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			off += 4
		}
	}
	return bands, nil
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
