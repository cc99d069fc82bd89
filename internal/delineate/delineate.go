package delineate

import (
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
	"github.com/roofsense/roofsense-go/internal/segmodel"
)

// Result summarizes one delineation run.
type Result struct {
	ImagesProcessed int
	ImagesSkipped   int
	FeaturesSaved   int
}

// Run delineates damage on every prepared image with each configured model
// and merges the predictions into one polygon layer per image. Images whose
// layer already exists or that are smaller than a model chip are skipped with
// a warning.
func Run(prepared, predicted *geostore.Store, workspace conf.WorkspaceSettings, cfg conf.DelineateSettings) (*Result, error) {
	logger := logging.ForService("delineate")
	if logger == nil {
		logger = slog.Default()
	}

	models, err := loadModels(workspace.ModelsDir, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, m := range models {
			_ = m.Close()
		}
	}()

	names, err := prepared.ListRasters("")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf("prepared store holds no images").
			Component("delineate").
			Category(errors.CategoryInference).
			Build()
	}

	result := &Result{}
	for _, name := range names {
		exists, err := predicted.HasLayer(name)
		if err != nil {
			return nil, err
		}
		if exists {
			logger.Warn("image already delineated, skipping", "image", name)
			result.ImagesSkipped++
			continue
		}

		r, err := prepared.GetRaster(name)
		if err != nil {
			return nil, err
		}

		var features []geostore.Feature
		skipped := false
		for _, model := range models {
			fs, err := delineateImage(r, model, cfg)
			if err != nil {
				if errors.HasCategory(err, errors.CategoryValidation) {
					logger.Warn("skipping image for model", "image", name,
						"model", model.Metadata().Name, "reason", err.Error())
					skipped = true
					break
				}
				return nil, err
			}
			features = append(features, fs...)
		}
		if skipped {
			result.ImagesSkipped++
			continue
		}

		if err := predicted.SaveFeatures(name, r.CRS, features); err != nil {
			return nil, err
		}
		logger.Info("image delineated", "image", name, "features", len(features))
		result.ImagesProcessed++
		result.FeaturesSaved += len(features)
	}

	logger.Info("delineation finished",
		"images", result.ImagesProcessed,
		"skipped", result.ImagesSkipped,
		"features", result.FeaturesSaved)
	return result, nil
}

func loadModels(modelsDir string, cfg conf.DelineateSettings) ([]segmodel.Model, error) {
	var models []segmodel.Model
	for _, name := range []string{cfg.DeckingModel, cfg.HoleModel, cfg.DualModel} {
		if name == "" {
			continue
		}
		m, err := segmodel.Load(filepath.Join(modelsDir, name), runtime.NumCPU())
		if err != nil {
			for _, loaded := range models {
				_ = loaded.Close()
			}
			return nil, err
		}
		models = append(models, m)
	}
	if len(models) == 0 {
		return nil, errors.Newf("no model configured for delineation").
			Component("delineate").
			Category(errors.CategoryValidation).
			Build()
	}
	return models, nil
}

// delineateImage tiles the image, scores every chip, stitches the
// probability planes and vectorizes the per-class masks into features.
func delineateImage(r *geo.Raster, model segmodel.Model, cfg conf.DelineateSettings) ([]geostore.Feature, error) {
	meta := model.Metadata()
	chipSize := meta.ChipSize
	if r.Grid.Width < chipSize || r.Grid.Height < chipSize {
		return nil, errors.Newf("image %s (%dx%d) is smaller than the %d pixel chips of model %s",
			r.Name, r.Grid.Width, r.Grid.Height, chipSize, meta.Name).
			Component("delineate").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(r.Bands) != len(meta.BandNames) {
		return nil, errors.Newf("image %s has %d bands, model %s expects %d",
			r.Name, len(r.Bands), meta.Name, len(meta.BandNames)).
			Component("delineate").
			Category(errors.CategoryValidation).
			Build()
	}

	stride := chipSize - 2*cfg.Padding
	if stride <= 0 {
		stride = chipSize
	}

	acc, err := NewAccumulator(r.Grid, meta.NumOutputs(), cfg.Stitch)
	if err != nil {
		return nil, err
	}

	for _, startRow := range tilePositions(r.Grid.Height, chipSize, stride) {
		for _, startCol := range tilePositions(r.Grid.Width, chipSize, stride) {
			probs, err := model.Predict(chipPixels(r, startCol, startRow, chipSize))
			if err != nil {
				return nil, err
			}
			acc.Add(startCol, startRow, chipSize, probs)
		}
	}
	planes := acc.Resolve()

	return vectorizePlanes(r, meta, planes, cfg.Threshold), nil
}

// tilePositions returns chip start offsets covering the full span. The last
// chip is pulled back so it ends exactly at the edge.
func tilePositions(span, chipSize, stride int) []int {
	var positions []int
	for start := 0; ; start += stride {
		if start+chipSize >= span {
			positions = append(positions, span-chipSize)
			return positions
		}
		positions = append(positions, start)
	}
}

// chipPixels cuts one band-major chip out of the image. Nodata cells read as
// zero, matching how exported training chips encode them.
func chipPixels(r *geo.Raster, startCol, startRow, chipSize int) []uint8 {
	perBand := chipSize * chipSize
	pixels := make([]uint8, len(r.Bands)*perBand)
	for b := range r.Bands {
		for row := 0; row < chipSize; row++ {
			for col := 0; col < chipSize; col++ {
				v := r.At(b, startCol+col, startRow+row)
				if geo.IsNoData(v) {
					continue
				}
				pixels[b*perBand+row*chipSize+col] = uint8(v)
			}
		}
	}
	return pixels
}

// vectorizePlanes assigns each valid pixel its highest-probability class,
// keeps assignments above the threshold, and traces each class mask into
// single-part polygons with the mean class probability as confidence.
func vectorizePlanes(r *geo.Raster, meta segmodel.Metadata, planes []float32, threshold float64) []geostore.Feature {
	cells := r.Grid.Cells()
	numOutputs := meta.NumOutputs()

	assigned := make([]uint8, cells)
	for idx := 0; idx < cells; idx++ {
		if !r.Valid(idx%r.Grid.Width, idx/r.Grid.Width) {
			continue
		}
		best, bestProb := 0, planes[idx] // background plane
		for c := 1; c < numOutputs; c++ {
			if p := planes[c*cells+idx]; p > bestProb {
				best, bestProb = c, p
			}
		}
		if best != 0 && float64(bestProb) >= threshold {
			assigned[idx] = uint8(best)
		}
	}

	var features []geostore.Feature
	mask := make([]bool, cells)
	for c := 1; c < numOutputs; c++ {
		for idx := range mask {
			mask[idx] = assigned[idx] == uint8(c)
		}
		for _, comp := range geo.Components(r.Grid, mask) {
			var sum float64
			for _, idx := range comp.Cells {
				sum += float64(planes[c*cells+idx])
			}
			features = append(features, geostore.Feature{
				Class:      meta.Classes[c-1],
				Model:      meta.Name,
				Confidence: sum / float64(len(comp.Cells)),
				Polygon:    comp.Polygon,
			})
		}
	}
	return features
}
