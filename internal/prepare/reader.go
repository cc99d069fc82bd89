// Package prepare turns raw aerial images into analysis-ready rasters:
// RGB extraction, reprojection, resampling to the working resolution,
// boundary clipping and 8-bit conversion.
package prepare

import (
	"bufio"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
)

// rawBandNames are assigned to decoded image channels in order.
var rawBandNames = []string{"Band_1", "Band_2", "Band_3", "Band_4"}

// worldExtensions maps image extensions to their world-file extension.
// The generic .wld sidecar is tried as a fallback for any image type.
var worldExtensions = map[string]string{
	".png":  ".pgw",
	".jpg":  ".jgw",
	".jpeg": ".jgw",
}

// LoadImage decodes a georeferenced raw image. The grid comes from the world
// file sidecar and the reference system from the .crs sidecar; both must be
// present for the image to be usable.
func LoadImage(path string) (*geo.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, readErr(err, path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(err).
			Component("prepare").
			Category(errors.CategoryImagePrep).
			Context("path", path).
			Build()
	}

	cellSize, origin, err := readWorldFile(path)
	if err != nil {
		return nil, err
	}
	crs, err := readCRSFile(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r := geo.NewRaster(name, crs, geo.Grid{
		Origin:   origin,
		CellSize: cellSize,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, rawBandNames)

	for row := 0; row < bounds.Dy(); row++ {
		for col := 0; col < bounds.Dx(); col++ {
			cr, cg, cb, ca := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			r.Set(0, col, row, float64(cr/257))
			r.Set(1, col, row, float64(cg/257))
			r.Set(2, col, row, float64(cb/257))
			r.Set(3, col, row, float64(ca/257))
		}
	}
	return r, nil
}

// readWorldFile parses the six-parameter world file next to the image. The
// parameters locate cell centers; the grid origin is the top-left corner of
// the first cell. Rotated georeferencing is not supported.
func readWorldFile(imagePath string) (float64, geo.Point, error) {
	ext := strings.ToLower(filepath.Ext(imagePath))
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))

	candidates := []string{base + ".wld"}
	if we, ok := worldExtensions[ext]; ok {
		candidates = append([]string{base + we}, candidates...)
	}

	var data []byte
	var err error
	for _, c := range candidates {
		data, err = os.ReadFile(c)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, geo.Point{}, errors.Newf("image %s has no world file (tried %v)", imagePath, candidates).
			Component("prepare").
			Category(errors.CategoryProjection).
			Context("path", imagePath).
			Build()
	}

	var params []float64
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, geo.Point{}, errors.Newf("world file of %s has a malformed line %q", imagePath, line).
				Component("prepare").
				Category(errors.CategoryProjection).
				Build()
		}
		params = append(params, v)
	}
	if len(params) != 6 {
		return 0, geo.Point{}, errors.Newf("world file of %s has %d parameters, want 6", imagePath, len(params)).
			Component("prepare").
			Category(errors.CategoryProjection).
			Build()
	}

	a, d, b, e, c, f := params[0], params[1], params[2], params[3], params[4], params[5]
	if d != 0 || b != 0 {
		return 0, geo.Point{}, errors.Newf("image %s uses rotated georeferencing, which is not supported", imagePath).
			Component("prepare").
			Category(errors.CategoryProjection).
			Build()
	}
	if a <= 0 || e >= 0 {
		return 0, geo.Point{}, errors.Newf("world file of %s has invalid cell sizes %g and %g", imagePath, a, e).
			Component("prepare").
			Category(errors.CategoryProjection).
			Build()
	}

	// c,f reference the center of the upper-left cell
	origin := geo.Point{X: c - a/2, Y: f - e/2}
	return a, origin, nil
}

// readCRSFile parses the .crs sidecar holding the authority code and kind,
// e.g. "EPSG:32620 projected". Images without a usable reference system are
// rejected here and skipped by the caller.
func readCRSFile(imagePath string) (geo.CRS, error) {
	path := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".crs"
	data, err := os.ReadFile(path)
	if err != nil {
		return geo.CRS{}, errors.Newf("image %s has no coordinate system sidecar", imagePath).
			Component("prepare").
			Category(errors.CategoryProjection).
			Context("path", path).
			Build()
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return geo.CRS{}, errors.Newf("coordinate system sidecar %s is empty", path).
			Component("prepare").
			Category(errors.CategoryProjection).
			Build()
	}

	crs := geo.CRS{Code: fields[0]}
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "geographic":
			crs.Kind = geo.KindGeographic
		case "projected":
			crs.Kind = geo.KindProjected
		}
	}
	if crs.Kind == geo.KindUnknown {
		return geo.CRS{}, errors.Newf("image %s has an unknown coordinate system kind", imagePath).
			Component("prepare").
			Category(errors.CategoryProjection).
			Context("crs", crs.Code).
			Build()
	}
	return crs, nil
}

func readErr(err error, path string) error {
	return errors.New(err).
		Component("prepare").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
