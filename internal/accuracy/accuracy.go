// Package accuracy scores predicted damage layers against reference layers
// on the pixel grid of the prepared images and writes one results table per
// damage class.
package accuracy

import (
	"log/slog"
	"math"

	"github.com/roofsense/roofsense-go/internal/damage"
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
)

// SummaryImage names the roll-up row aggregated over all evaluated images.
const SummaryImage = "All"

// Result summarizes one evaluation run.
type Result struct {
	Tables          []string
	ImagesEvaluated int
	ImagesSkipped   int
}

// Run evaluates every predicted layer that has a reference layer and a
// prepared image of the same name, counts agreement per class on the image
// grid, and saves one table per damage class with a row per image plus a
// summary row. Images missing their reference layer or prepared raster are
// skipped with a warning.
func Run(prepared, predicted, reference, tables *geostore.Store) (*Result, error) {
	logger := logging.ForService("accuracy")
	if logger == nil {
		logger = slog.Default()
	}

	names, err := predicted.ListLayers()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.Newf("predicted store holds no layers to evaluate").
			Component("accuracy").
			Category(errors.CategoryAccuracy).
			Build()
	}

	classes := damage.Classes()
	rowsByClass := make(map[damage.Class][]geostore.AccuracyRecord, len(classes))
	totals := make(map[damage.Class]*counts, len(classes))
	for _, c := range classes {
		totals[c] = &counts{}
	}

	result := &Result{}
	for _, name := range names {
		ok, err := reference.HasLayer(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("predicted layer has no reference layer, skipping", "image", name)
			result.ImagesSkipped++
			continue
		}

		r, err := prepared.GetRaster(name)
		if err != nil {
			if errors.HasCategory(err, errors.CategoryNotFound) {
				logger.Warn("predicted layer has no prepared image, skipping", "image", name)
				result.ImagesSkipped++
				continue
			}
			return nil, err
		}

		_, predFeatures, err := predicted.GetFeatures(name)
		if err != nil {
			return nil, err
		}
		_, refFeatures, err := reference.GetFeatures(name)
		if err != nil {
			return nil, err
		}

		for _, class := range classes {
			c := scoreClass(r, predFeatures, refFeatures, string(class))
			totals[class].add(c)
			rowsByClass[class] = append(rowsByClass[class], c.toRecord(name, string(class)))
			logger.Info("image scored",
				"image", name,
				"class", class,
				"tp", c.tp, "fp", c.fp, "fn", c.fn,
				"iou", c.iou())
		}
		result.ImagesEvaluated++
	}

	if result.ImagesEvaluated == 0 {
		return nil, errors.Newf("no predicted layer could be evaluated").
			Component("accuracy").
			Category(errors.CategoryAccuracy).
			Build()
	}

	for _, class := range classes {
		rows := append(rowsByClass[class], totals[class].toRecord(SummaryImage, string(class)))
		tableName := "Accuracy_" + string(class)
		if err := tables.SaveAccuracyTable(tableName, rows); err != nil {
			return nil, err
		}
		result.Tables = append(result.Tables, tableName)
		logger.Info("accuracy table saved", "table", tableName, "rows", len(rows))
	}
	return result, nil
}

// counts holds agreement pixel counts for one class on one or more images.
type counts struct {
	tp, fp, fn int64
}

func (c *counts) add(o *counts) {
	c.tp += o.tp
	c.fp += o.fp
	c.fn += o.fn
}

func (c *counts) union() int64 { return c.tp + c.fp + c.fn }

func (c *counts) precision() float64 { return safeRatio(float64(c.tp), float64(c.tp+c.fp)) }
func (c *counts) recall() float64    { return safeRatio(float64(c.tp), float64(c.tp+c.fn)) }
func (c *counts) f1() float64        { return safeRatio(float64(2*c.tp), float64(2*c.tp+c.fp+c.fn)) }
func (c *counts) iou() float64       { return safeRatio(float64(c.tp), float64(c.union())) }

func (c *counts) toRecord(image, class string) geostore.AccuracyRecord {
	return geostore.AccuracyRecord{
		Image:     image,
		Class:     class,
		TP:        c.tp,
		FP:        c.fp,
		FN:        c.fn,
		Union:     c.union(),
		Precision: round2(c.precision()),
		Recall:    round2(c.recall()),
		F1:        round2(c.f1()),
		IoU:       round2(c.iou()),
	}
}

// scoreClass rasterizes the predicted and reference polygons of one class on
// the image grid and counts agreement over the valid image cells. Snapping
// both sides to the same grid under the cell-center rule makes the
// comparison insensitive to sub-pixel vertex differences.
func scoreClass(r *geo.Raster, predFeatures, refFeatures []geostore.Feature, class string) *counts {
	pred := geo.RasterizeMask(r.Grid, classPolygons(predFeatures, class))
	ref := geo.RasterizeMask(r.Grid, classPolygons(refFeatures, class))

	c := &counts{}
	for row := 0; row < r.Grid.Height; row++ {
		for col := 0; col < r.Grid.Width; col++ {
			if !r.Valid(col, row) {
				continue
			}
			idx := r.Grid.Index(col, row)
			switch {
			case pred[idx] && ref[idx]:
				c.tp++
			case pred[idx]:
				c.fp++
			case ref[idx]:
				c.fn++
			}
		}
	}
	return c
}

// classPolygons dissolves a layer down to the polygons of one class.
func classPolygons(features []geostore.Feature, class string) []geo.Polygon {
	var polys []geo.Polygon
	for i := range features {
		if features[i].Class == class {
			polys = append(polys, features[i].Polygon)
		}
	}
	return polys
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// round2 rounds a metric to two decimals, the precision reported in tables.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
