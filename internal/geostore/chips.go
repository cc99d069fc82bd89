// chips.go: chip dataset storage with append semantics and running band statistics
package geostore

import (
	"math"
	"slices"

	"gorm.io/gorm"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
)

// ChipSchema fixes the shape of every chip in a dataset. Appends with a
// different schema are rejected, never coerced.
type ChipSchema struct {
	ChipSize  int
	CellSize  float64
	BandNames []string
	Classes   []string // damage classes in mask index order, background excluded
}

// Equal reports whether two schemas match exactly.
func (cs ChipSchema) Equal(other ChipSchema) bool {
	return cs.ChipSize == other.ChipSize &&
		math.Abs(cs.CellSize-other.CellSize) < 1e-12 &&
		slices.Equal(cs.BandNames, other.BandNames) &&
		slices.Equal(cs.Classes, other.Classes)
}

// validate rejects schemas that would poison later appends, in particular
// empty band names, which must be populated at first write.
func (cs ChipSchema) validate() error {
	if cs.ChipSize <= 0 {
		return errors.Newf("chip size must be positive, got %d", cs.ChipSize).
			Component("geostore").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(cs.BandNames) == 0 {
		return errors.Newf("chip schema declares zero bands").
			Component("geostore").
			Category(errors.CategoryValidation).
			Build()
	}
	for i, bn := range cs.BandNames {
		if bn == "" {
			return errors.Newf("band %d has an empty name; band names must be populated at first write", i+1).
				Component("geostore").
				Category(errors.CategoryValidation).
				Context("band_names", cs.BandNames).
				Build()
		}
	}
	if len(cs.Classes) == 0 {
		return errors.Newf("chip schema declares zero classes").
			Component("geostore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Chip is one image/mask pair, the atomic training unit.
type Chip struct {
	Image  string // source image name
	Col    int    // tile column in the source grid
	Row    int    // tile row in the source grid
	Origin geo.Point
	Pixels []uint8 // band-major, ChipSize*ChipSize per band
	Mask   []uint8 // class indices, 0 = background
}

// BandStat is the accumulated distribution of one band across a dataset.
type BandStat struct {
	BandName string
	Count    int64
	Mean     float64
	StdDev   float64
}

// AppendChips adds chips to the named dataset inside one transaction. The
// dataset is created with the given schema when absent; otherwise the schema
// must match exactly or the append fails with a schema-mismatch error and no
// chips are written. Band statistics are folded in with an order-independent
// merge. Callers must ensure a single appender owns the store at a time.
func (s *Store) AppendChips(dataset string, schema ChipSchema, chips []Chip) error {
	if err := schema.validate(); err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var rec DatasetRecord
		err := tx.Where("name = ?", dataset).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = DatasetRecord{
				Name:      dataset,
				ChipSize:  schema.ChipSize,
				CellSize:  schema.CellSize,
				BandNames: joinNames(schema.BandNames),
				Classes:   joinNames(schema.Classes),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return storeErr(err, "create-dataset", dataset)
			}
		case err != nil:
			return storeErr(err, "lookup-dataset", dataset)
		default:
			existing := ChipSchema{
				ChipSize:  rec.ChipSize,
				CellSize:  rec.CellSize,
				BandNames: splitNames(rec.BandNames),
				Classes:   splitNames(rec.Classes),
			}
			if !existing.Equal(schema) {
				return errors.Newf("chip schema does not match dataset %q", dataset).
					Component("geostore").
					Category(errors.CategorySchemaMismatch).
					Context("dataset", dataset).
					Context("existing_bands", existing.BandNames).
					Context("appended_bands", schema.BandNames).
					Context("existing_classes", existing.Classes).
					Context("appended_classes", schema.Classes).
					Context("existing_chip_size", existing.ChipSize).
					Context("appended_chip_size", schema.ChipSize).
					Build()
			}
		}

		pixelsPerBand := schema.ChipSize * schema.ChipSize
		for i := range chips {
			if len(chips[i].Pixels) != pixelsPerBand*len(schema.BandNames) {
				return errors.Newf("chip %d of image %s has %d pixels, schema requires %d",
					i, chips[i].Image, len(chips[i].Pixels), pixelsPerBand*len(schema.BandNames)).
					Component("geostore").
					Category(errors.CategoryValidation).
					Build()
			}
			cr := ChipRecord{
				DatasetID: rec.ID,
				Image:     chips[i].Image,
				Col:       chips[i].Col,
				Row:       chips[i].Row,
				OriginX:   chips[i].Origin.X,
				OriginY:   chips[i].Origin.Y,
				Pixels:    chips[i].Pixels,
				Mask:      chips[i].Mask,
			}
			if err := tx.Create(&cr).Error; err != nil {
				return storeErr(err, "save-chip", dataset)
			}
		}

		return mergeBandStats(tx, rec.ID, schema, chips)
	})
}

// mergeBandStats folds the chips' per-band sums into the stored accumulators
// using Chan's parallel update, which is commutative over input batches.
func mergeBandStats(tx *gorm.DB, datasetID uint, schema ChipSchema, chips []Chip) error {
	pixelsPerBand := schema.ChipSize * schema.ChipSize

	for b, bandName := range schema.BandNames {
		var count int64
		var mean, m2 float64
		for i := range chips {
			start := b * pixelsPerBand
			for _, px := range chips[i].Pixels[start : start+pixelsPerBand] {
				count++
				delta := float64(px) - mean
				mean += delta / float64(count)
				m2 += delta * (float64(px) - mean)
			}
		}
		if count == 0 {
			continue
		}

		var stat BandStatRecord
		err := tx.Where("dataset_id = ? AND band_name = ?", datasetID, bandName).First(&stat).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			stat = BandStatRecord{DatasetID: datasetID, BandName: bandName, Count: count, Mean: mean, M2: m2}
			if err := tx.Create(&stat).Error; err != nil {
				return storeErr(err, "create-band-stat", bandName)
			}
		case err != nil:
			return storeErr(err, "lookup-band-stat", bandName)
		default:
			total := stat.Count + count
			delta := mean - stat.Mean
			stat.M2 += m2 + delta*delta*float64(stat.Count)*float64(count)/float64(total)
			stat.Mean += delta * float64(count) / float64(total)
			stat.Count = total
			if err := tx.Save(&stat).Error; err != nil {
				return storeErr(err, "update-band-stat", bandName)
			}
		}
	}
	return nil
}

// GetSchema returns the schema of the named dataset.
func (s *Store) GetSchema(dataset string) (ChipSchema, error) {
	var rec DatasetRecord
	if err := s.DB.Where("name = ?", dataset).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ChipSchema{}, errors.Newf("chip dataset %q does not exist", dataset).
				Component("geostore").
				Category(errors.CategoryNotFound).
				Context("dataset", dataset).
				Build()
		}
		return ChipSchema{}, storeErr(err, "lookup-dataset", dataset)
	}
	return ChipSchema{
		ChipSize:  rec.ChipSize,
		CellSize:  rec.CellSize,
		BandNames: splitNames(rec.BandNames),
		Classes:   splitNames(rec.Classes),
	}, nil
}

// GetChips returns all chips of the named dataset in insertion order.
func (s *Store) GetChips(dataset string) ([]Chip, error) {
	var rec DatasetRecord
	if err := s.DB.Where("name = ?", dataset).First(&rec).Error; err != nil {
		return nil, storeErr(err, "lookup-dataset", dataset)
	}
	var records []ChipRecord
	if err := s.DB.Where("dataset_id = ?", rec.ID).Order("id").Find(&records).Error; err != nil {
		return nil, storeErr(err, "load-chips", dataset)
	}
	chips := make([]Chip, len(records))
	for i := range records {
		chips[i] = Chip{
			Image:  records[i].Image,
			Col:    records[i].Col,
			Row:    records[i].Row,
			Origin: geo.Point{X: records[i].OriginX, Y: records[i].OriginY},
			Pixels: records[i].Pixels,
			Mask:   records[i].Mask,
		}
	}
	return chips, nil
}

// CountChips returns the number of chips in the named dataset.
func (s *Store) CountChips(dataset string) (int64, error) {
	var rec DatasetRecord
	if err := s.DB.Where("name = ?", dataset).First(&rec).Error; err != nil {
		return 0, storeErr(err, "lookup-dataset", dataset)
	}
	var count int64
	if err := s.DB.Model(&ChipRecord{}).Where("dataset_id = ?", rec.ID).Count(&count).Error; err != nil {
		return 0, storeErr(err, "count-chips", dataset)
	}
	return count, nil
}

// GetBandStats returns the accumulated band statistics of the dataset in
// band order.
func (s *Store) GetBandStats(dataset string) ([]BandStat, error) {
	schema, err := s.GetSchema(dataset)
	if err != nil {
		return nil, err
	}
	var rec DatasetRecord
	if err := s.DB.Where("name = ?", dataset).First(&rec).Error; err != nil {
		return nil, storeErr(err, "lookup-dataset", dataset)
	}

	stats := make([]BandStat, 0, len(schema.BandNames))
	for _, bn := range schema.BandNames {
		var sr BandStatRecord
		if err := s.DB.Where("dataset_id = ? AND band_name = ?", rec.ID, bn).First(&sr).Error; err != nil {
			return nil, storeErr(err, "load-band-stat", bn)
		}
		stdDev := 0.0
		if sr.Count > 1 {
			stdDev = math.Sqrt(sr.M2 / float64(sr.Count))
		}
		stats = append(stats, BandStat{BandName: bn, Count: sr.Count, Mean: sr.Mean, StdDev: stdDev})
	}
	return stats, nil
}
