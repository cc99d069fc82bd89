// Package segmodel defines the segmentation model abstraction shared by the
// training and delineation stages, with two backends: a trainable per-pixel
// softmax classifier and imported TensorFlow Lite networks.
package segmodel

import (
	"time"

	"github.com/roofsense/roofsense-go/internal/geostore"
)

// Architecture identifiers stored in model metadata.
const (
	ArchPixelSoftmax = "pixel-softmax"
	ArchTFLite       = "tflite"
)

// Metadata describes a saved model and the chip shape it expects. It is
// written next to the weights so delineation can validate inputs without
// loading the network.
type Metadata struct {
	Name         string              `json:"name"`
	Architecture string              `json:"architecture"`
	Classes      []string            `json:"classes"` // damage classes in output order, background excluded
	ChipSize     int                 `json:"chip_size"`
	BandNames    []string            `json:"band_names"`
	BandStats    []geostore.BandStat `json:"band_stats"`
	DatasetName  string              `json:"dataset_name,omitempty"`
	ClassConfig  string              `json:"class_config,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NumOutputs returns the number of output channels, background included.
func (m Metadata) NumOutputs() int { return len(m.Classes) + 1 }

// Model scores chips. Predict takes one chip's pixels in band-major order
// (ChipSize*ChipSize values per band) and returns per-pixel class
// probabilities in class-major order, background first, each plane
// ChipSize*ChipSize long. Implementations are not safe for concurrent use.
type Model interface {
	Metadata() Metadata
	Predict(pixels []uint8) ([]float32, error)
	Close() error
}
