// Package geostore implements the spatial container used to pass artifacts
// between pipeline stages: named feature layers, raster datasets, chip
// datasets with band statistics, and accuracy tables, all backed by a single
// sqlite file managed through GORM.
package geostore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
)

// Store is one spatial container. A store may be read concurrently, but
// only one appender may own write access at a time.
type Store struct {
	DB   *gorm.DB
	path string
}

// Open opens or creates a container file and migrates its tables.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("geostore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("geostore").
			Category(errors.CategoryStore).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(
		&FeatureLayer{},
		&FeatureRecord{},
		&RasterRecord{},
		&DatasetRecord{},
		&ChipRecord{},
		&BandStatRecord{},
		&AccuracyRecord{},
	); err != nil {
		return nil, errors.New(err).
			Component("geostore").
			Category(errors.CategoryStore).
			Context("operation", "migrate").
			Build()
	}

	return &Store{DB: db, path: path}, nil
}

// Path returns the container file path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Feature is one polygon with its attributes, independent of storage.
type Feature struct {
	Class      string
	Model      string
	Confidence float64
	Polygon    geo.Polygon
}

// SaveFeatures appends features to the named layer, creating the layer
// atomically when it does not exist yet.
func (s *Store) SaveFeatures(name string, crs geo.CRS, features []Feature) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var layer FeatureLayer
		err := tx.Where("name = ?", name).First(&layer).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			layer = FeatureLayer{Name: name, CRSCode: crs.Code, CRSKind: int(crs.Kind)}
			if err := tx.Create(&layer).Error; err != nil {
				return storeErr(err, "create-layer", name)
			}
		case err != nil:
			return storeErr(err, "lookup-layer", name)
		}

		for i := range features {
			geom, err := encodeGeometry(features[i].Polygon)
			if err != nil {
				return storeErr(err, "encode-geometry", name)
			}
			rec := FeatureRecord{
				LayerID:    layer.ID,
				Class:      features[i].Class,
				Model:      features[i].Model,
				Confidence: features[i].Confidence,
				AreaSqm:    features[i].Polygon.Area(),
				Geometry:   geom,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return storeErr(err, "save-feature", name)
			}
		}
		return nil
	})
}

// GetFeatures returns the layer's reference system and all of its polygons.
func (s *Store) GetFeatures(name string) (geo.CRS, []Feature, error) {
	var layer FeatureLayer
	if err := s.DB.Where("name = ?", name).First(&layer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return geo.CRS{}, nil, errors.Newf("feature layer %q does not exist", name).
				Component("geostore").
				Category(errors.CategoryNotFound).
				Context("layer", name).
				Build()
		}
		return geo.CRS{}, nil, storeErr(err, "lookup-layer", name)
	}

	var records []FeatureRecord
	if err := s.DB.Where("layer_id = ?", layer.ID).Order("id").Find(&records).Error; err != nil {
		return geo.CRS{}, nil, storeErr(err, "load-features", name)
	}

	features := make([]Feature, 0, len(records))
	for i := range records {
		poly, err := decodeGeometry(records[i].Geometry)
		if err != nil {
			return geo.CRS{}, nil, storeErr(err, "decode-geometry", name)
		}
		features = append(features, Feature{
			Class:      records[i].Class,
			Model:      records[i].Model,
			Confidence: records[i].Confidence,
			Polygon:    poly,
		})
	}

	crs := geo.CRS{Code: layer.CRSCode, Kind: geo.CRSKind(layer.CRSKind)}
	return crs, features, nil
}

// HasLayer reports whether the named layer exists.
func (s *Store) HasLayer(name string) (bool, error) {
	var count int64
	if err := s.DB.Model(&FeatureLayer{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, storeErr(err, "lookup-layer", name)
	}
	return count > 0, nil
}

// ListLayers returns all feature layer names in creation order.
func (s *Store) ListLayers() ([]string, error) {
	var names []string
	if err := s.DB.Model(&FeatureLayer{}).Order("id").Pluck("name", &names).Error; err != nil {
		return nil, storeErr(err, "list-layers", "")
	}
	return names, nil
}

// SaveRaster stores a raster dataset under its name. Rasters are immutable;
// saving an existing name fails.
func (s *Store) SaveRaster(r *geo.Raster, region string) error {
	rec := RasterRecord{
		Name:      r.Name,
		Region:    region,
		CRSCode:   r.CRS.Code,
		CRSKind:   int(r.CRS.Kind),
		OriginX:   r.Grid.Origin.X,
		OriginY:   r.Grid.Origin.Y,
		CellSize:  r.Grid.CellSize,
		Width:     r.Grid.Width,
		Height:    r.Grid.Height,
		BandNames: joinNames(r.BandNames()),
		Data:      encodeBands(r),
	}
	if err := s.DB.Create(&rec).Error; err != nil {
		return errors.New(err).
			Component("geostore").
			Category(errors.CategoryStore).
			Context("operation", "save-raster").
			Context("raster", r.Name).
			Build()
	}
	return nil
}

// GetRaster loads a raster dataset by name.
func (s *Store) GetRaster(name string) (*geo.Raster, error) {
	var rec RasterRecord
	if err := s.DB.Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("raster dataset %q does not exist", name).
				Component("geostore").
				Category(errors.CategoryNotFound).
				Context("raster", name).
				Build()
		}
		return nil, storeErr(err, "load-raster", name)
	}
	return recordToRaster(&rec)
}

// ListRasters returns the names of all raster datasets, optionally filtered
// by region.
func (s *Store) ListRasters(region string) ([]string, error) {
	q := s.DB.Model(&RasterRecord{}).Order("id")
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var names []string
	if err := q.Pluck("name", &names).Error; err != nil {
		return nil, storeErr(err, "list-rasters", region)
	}
	return names, nil
}

func recordToRaster(rec *RasterRecord) (*geo.Raster, error) {
	names := splitNames(rec.BandNames)
	grid := geo.Grid{
		Origin:   geo.Point{X: rec.OriginX, Y: rec.OriginY},
		CellSize: rec.CellSize,
		Width:    rec.Width,
		Height:   rec.Height,
	}
	bands, err := decodeBands(rec.Data, len(names), grid.Cells())
	if err != nil {
		return nil, storeErr(err, "decode-raster", rec.Name)
	}
	r := &geo.Raster{
		Name: rec.Name,
		CRS:  geo.CRS{Code: rec.CRSCode, Kind: geo.CRSKind(rec.CRSKind)},
		Grid: grid,
	}
	for i, bn := range names {
		r.Bands = append(r.Bands, geo.Band{Name: bn, Data: bands[i]})
	}
	return r, nil
}

func storeErr(err error, operation, subject string) error {
	return errors.New(err).
		Component("geostore").
		Category(errors.CategoryStore).
		Context("operation", operation).
		Context("subject", subject).
		Build()
}
