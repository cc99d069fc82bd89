// entities.go: gorm entities stored in a spatial container
package geostore

import (
	"time"
)

// FeatureLayer is a named polygon layer. Layer names are unique per store.
type FeatureLayer struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex"`
	CRSCode   string
	CRSKind   int
	CreatedAt time.Time
}

// FeatureRecord is one polygon of a feature layer.
type FeatureRecord struct {
	ID         uint `gorm:"primaryKey;autoIncrement"`
	LayerID    uint `gorm:"index"`
	Class      string
	Model      string
	Confidence float64
	AreaSqm    float64
	Geometry   []byte // JSON-encoded ring coordinates
}

// RasterRecord is one georeferenced raster dataset. Raster names are unique
// per store and records are immutable after creation.
type RasterRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex"`
	Region    string `gorm:"index"`
	CRSCode   string
	CRSKind   int
	OriginX   float64
	OriginY   float64
	CellSize  float64
	Width     int
	Height    int
	BandNames string // comma-separated, order preserved
	Data      []byte // float32 little-endian, band-major
	CreatedAt time.Time
}

// DatasetRecord is the schema header of a chip dataset. Appends must match
// this schema exactly.
type DatasetRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex"`
	ChipSize  int
	CellSize  float64
	BandNames string // comma-separated
	Classes   string // comma-separated, background excluded
	CreatedAt time.Time
}

// ChipRecord is one exported image/mask chip pair.
type ChipRecord struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	DatasetID uint `gorm:"index"`
	Image     string
	Col       int
	Row       int
	OriginX   float64
	OriginY   float64
	Pixels    []byte // uint8, band-major
	Mask      []byte // uint8 class indices, 0 = background
}

// BandStatRecord accumulates per-band statistics across all appends to a
// dataset. Count/Mean/M2 follow Chan's parallel update, so merge order does
// not affect the result.
type BandStatRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	DatasetID uint   `gorm:"index:idx_band_stat,unique"`
	BandName  string `gorm:"index:idx_band_stat,unique"`
	Count     int64
	Mean      float64
	M2        float64
}

// AccuracyRecord is one row of an accuracy results table.
type AccuracyRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TableName string `gorm:"index"`
	Image     string
	Class     string
	TP        int64
	FP        int64
	FN        int64
	Union     int64
	Precision float64
	Recall    float64
	F1        float64
	IoU       float64
	CreatedAt time.Time
}
