package prepare

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/damage"
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
)

// SkippedImage records why one input was left out of the prepared store.
type SkippedImage struct {
	Name   string
	Reason string
}

// Result summarizes one preparation run.
type Result struct {
	ImagesPrepared int
	Skipped        []SkippedImage
}

// Run prepares every raw image in the input directory and saves the results
// into the prepared store under the configured region. An image is skipped
// with a warning, never failing the run, when its boundary layer is missing
// or its coordinate system is unusable; genuine I/O and store failures abort.
func Run(prepared, boundaries *geostore.Store, cfg conf.PrepareSettings) (*Result, error) {
	logger := logging.ForService("prepare")
	if logger == nil {
		logger = slog.Default()
	}

	region, err := damage.ParseRegion(cfg.Region)
	if err != nil {
		return nil, err
	}
	if cfg.CellSize <= 0 {
		return nil, errors.Newf("cell size must be positive, got %g", cfg.CellSize).
			Component("prepare").
			Category(errors.CategoryValidation).
			Build()
	}

	paths, err := listImages(cfg.InputDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Newf("input directory %s holds no images", cfg.InputDir).
			Component("prepare").
			Category(errors.CategoryImagePrep).
			Build()
	}

	result := &Result{}
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		r, err := prepareImage(boundaries, path, cfg.CellSize)
		if err != nil {
			if skippable(err) {
				logger.Warn("skipping image", "image", name, "reason", err.Error())
				result.Skipped = append(result.Skipped, SkippedImage{Name: name, Reason: err.Error()})
				continue
			}
			return nil, err
		}
		if err := prepared.SaveRaster(r, string(region)); err != nil {
			return nil, err
		}
		logger.Info("image prepared",
			"image", name,
			"region", region,
			"width", r.Grid.Width,
			"height", r.Grid.Height,
			"cell_size", r.Grid.CellSize)
		result.ImagesPrepared++
	}

	logger.Info("preparation finished",
		"region", region,
		"prepared", result.ImagesPrepared,
		"skipped", len(result.Skipped))
	return result, nil
}

func prepareImage(boundaries *geostore.Store, path string, cellSize float64) (*geo.Raster, error) {
	raw, err := LoadImage(path)
	if err != nil {
		return nil, err
	}

	rgb, err := raw.ExtractBands(0, 1, 2)
	if err != nil {
		return nil, err
	}

	// the boundary layer shares the image name
	ok, err := boundaries.HasLayer(rgb.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf("image %s has no boundary layer", rgb.Name).
			Component("prepare").
			Category(errors.CategoryMissingBoundary).
			Context("image", rgb.Name).
			Build()
	}
	boundaryCRS, features, err := boundaries.GetFeatures(rgb.Name)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, errors.Newf("boundary layer %s holds no polygons", rgb.Name).
			Component("prepare").
			Category(errors.CategoryMissingBoundary).
			Build()
	}

	ext := rgb.Grid.Extent()
	anchor := geo.Point{X: (ext.MinX + ext.MaxX) / 2, Y: (ext.MinY + ext.MaxY) / 2}
	transform, err := geo.LookupTransform(rgb.CRS, boundaryCRS, anchor)
	if err != nil {
		return nil, err
	}

	if transform != nil {
		rgb, err = rgb.Reproject(boundaryCRS, transform, cellSize)
		if err != nil {
			return nil, err
		}
	} else if math.Abs(rgb.Grid.CellSize-cellSize) > 1e-12 {
		rgb, err = rgb.Resample(cellSize)
		if err != nil {
			return nil, err
		}
	}

	clipped, err := rgb.Clip(features[0].Polygon)
	if err != nil {
		return nil, err
	}
	return clipped.To8Bit(), nil
}

// skippable reports whether the failure concerns only this image rather than
// the run as a whole.
func skippable(err error) bool {
	return errors.HasCategory(err, errors.CategoryMissingBoundary) ||
		errors.HasCategory(err, errors.CategoryProjection) ||
		errors.HasCategory(err, errors.CategoryImagePrep)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("prepare").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
