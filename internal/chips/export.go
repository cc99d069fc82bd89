// Package chips exports labeled training chips from prepared images and
// their training polygon layers into an appendable chip dataset.
package chips

import (
	"log/slog"
	"math"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/damage"
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
)

// Result summarizes one export run.
type Result struct {
	ImagesExported int
	ImagesSkipped  int
	ChipsExported  int
}

// Run tiles every prepared image that has a training layer of the same name
// and appends the labeled chips to the configured dataset. Images without a
// training layer are skipped with a warning. Tiles that contain no labeled
// feature are never exported.
func Run(prepared, training, datasets *geostore.Store, cfg conf.ExportSettings) (*Result, error) {
	logger := logging.ForService("export")
	if logger == nil {
		logger = slog.Default()
	}

	classConfig, err := damage.ParseClassConfig(cfg.ClassConfig)
	if err != nil {
		return nil, err
	}
	if cfg.ChipSize <= 0 || cfg.Stride <= 0 {
		return nil, errors.Newf("chip size and stride must be positive, got %d and %d", cfg.ChipSize, cfg.Stride).
			Component("chips").
			Category(errors.CategoryChipExport).
			Build()
	}

	names, err := prepared.ListRasters("")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf("prepared store holds no images").
			Component("chips").
			Category(errors.CategoryChipExport).
			Build()
	}

	result := &Result{}
	for _, name := range names {
		ok, err := training.HasLayer(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("image has no training layer, skipping", "image", name)
			result.ImagesSkipped++
			continue
		}

		r, err := prepared.GetRaster(name)
		if err != nil {
			return nil, err
		}
		_, features, err := training.GetFeatures(name)
		if err != nil {
			return nil, err
		}

		exported, err := exportImage(datasets, r, features, classConfig, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("image exported", "image", name, "chips", exported)
		result.ImagesExported++
		result.ChipsExported += exported
	}

	logger.Info("export finished",
		"dataset", cfg.Dataset,
		"images", result.ImagesExported,
		"skipped", result.ImagesSkipped,
		"chips", result.ChipsExported)
	return result, nil
}

// labeledFeature is one training polygon rasterized onto the image grid.
type labeledFeature struct {
	classIndex uint8 // 1-based index into the class configuration
	cells      []int // image grid indices covered under the cell-center rule
}

func exportImage(datasets *geostore.Store, r *geo.Raster, features []geostore.Feature,
	classConfig damage.ClassConfig, cfg conf.ExportSettings, logger *slog.Logger) (int, error) {

	classNames := classConfig.ClassNames()
	labeled := make([]labeledFeature, 0, len(features))
	for i := range features {
		classIndex := classIndexOf(classNames, features[i].Class)
		if classIndex == 0 {
			continue // class not covered by this configuration
		}
		cells := featureCells(r.Grid, features[i].Polygon)
		if len(cells) == 0 {
			continue
		}
		labeled = append(labeled, labeledFeature{classIndex: classIndex, cells: cells})
	}
	if len(labeled) == 0 {
		logger.Warn("no training polygons match the class configuration", "image", r.Name)
		return 0, nil
	}

	schema := geostore.ChipSchema{
		ChipSize:  cfg.ChipSize,
		CellSize:  r.Grid.CellSize,
		BandNames: r.BandNames(),
		Classes:   classNames,
	}

	var chips []geostore.Chip
	perBand := cfg.ChipSize * cfg.ChipSize
	for startRow := 0; startRow+cfg.ChipSize <= r.Grid.Height; startRow += cfg.Stride {
		for startCol := 0; startCol+cfg.ChipSize <= r.Grid.Width; startCol += cfg.Stride {
			mask := tileMask(r.Grid, labeled, startCol, startRow, cfg.ChipSize, cfg.MinPolygonOverlap)
			if mask == nil {
				continue
			}

			pixels := make([]uint8, len(r.Bands)*perBand)
			for b := range r.Bands {
				for row := 0; row < cfg.ChipSize; row++ {
					for col := 0; col < cfg.ChipSize; col++ {
						v := r.At(b, startCol+col, startRow+row)
						if geo.IsNoData(v) {
							continue
						}
						pixels[b*perBand+row*cfg.ChipSize+col] = uint8(math.Min(255, math.Max(0, v)))
					}
				}
			}
			chips = append(chips, geostore.Chip{
				Image:  r.Name,
				Col:    startCol / cfg.Stride,
				Row:    startRow / cfg.Stride,
				Origin: r.Grid.Corner(startCol, startRow),
				Pixels: pixels,
				Mask:   mask,
			})
		}
	}
	if len(chips) == 0 {
		return 0, nil
	}

	if err := datasets.AppendChips(cfg.Dataset, schema, chips); err != nil {
		return 0, err
	}
	return len(chips), nil
}

// tileMask labels the tile's cells from the features that clear the overlap
// threshold, or returns nil when no feature does. A feature counts only when
// at least the configured fraction of its covered cells falls inside the
// tile, so polygons barely clipped by a tile edge do not produce slivers.
func tileMask(g geo.Grid, labeled []labeledFeature, startCol, startRow, chipSize int, minOverlap float64) []uint8 {
	endCol := startCol + chipSize
	endRow := startRow + chipSize

	var mask []uint8
	for i := range labeled {
		inside := 0
		for _, idx := range labeled[i].cells {
			col := idx % g.Width
			row := idx / g.Width
			if col >= startCol && col < endCol && row >= startRow && row < endRow {
				inside++
			}
		}
		if inside == 0 || float64(inside)/float64(len(labeled[i].cells)) < minOverlap {
			continue
		}
		if mask == nil {
			mask = make([]uint8, chipSize*chipSize)
		}
		for _, idx := range labeled[i].cells {
			col := idx % g.Width
			row := idx / g.Width
			if col >= startCol && col < endCol && row >= startRow && row < endRow {
				mask[(row-startRow)*chipSize+(col-startCol)] = labeled[i].classIndex
			}
		}
	}
	return mask
}

// featureCells returns the grid indices whose centers lie inside the polygon.
func featureCells(g geo.Grid, poly geo.Polygon) []int {
	b := poly.Bounds()
	startCol, startRow := g.CellAt(geo.Point{X: b.MinX, Y: b.MaxY})
	endCol, endRow := g.CellAt(geo.Point{X: b.MaxX, Y: b.MinY})
	startCol = max(startCol, 0)
	startRow = max(startRow, 0)
	endCol = min(endCol, g.Width-1)
	endRow = min(endRow, g.Height-1)

	var cells []int
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			if poly.ContainsPoint(g.CellCenter(col, row)) {
				cells = append(cells, g.Index(col, row))
			}
		}
	}
	return cells
}

func classIndexOf(classNames []string, class string) uint8 {
	for i, name := range classNames {
		if name == class {
			return uint8(i + 1)
		}
	}
	return 0
}
