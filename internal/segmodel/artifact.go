package segmodel

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/roofsense/roofsense-go/internal/errors"
)

// A saved model is a directory holding a metadata file next to either the
// classifier weights or an imported network file.
const (
	metadataFile = "model.json"
	weightsFile  = "weights.bin"
	networkFile  = "model.tflite"
)

// SaveBaseline writes the classifier to dir as metadata plus little-endian
// float64 weights. Artifacts are immutable; saving over an existing one
// fails.
func SaveBaseline(dir string, m *Baseline) error {
	if err := ensureAbsent(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifactErr(err, "create-dir", dir)
	}

	meta := m.meta
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := writeMetadata(dir, meta); err != nil {
		return err
	}

	buf := make([]byte, 0, len(m.weights)*len(m.weights[0])*8)
	for c := range m.weights {
		for _, w := range m.weights[c] {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(w))
		}
	}
	if err := os.WriteFile(filepath.Join(dir, weightsFile), buf, 0o644); err != nil {
		return artifactErr(err, "write-weights", dir)
	}
	return nil
}

// ImportNetwork registers a pretrained network under dir by copying the
// network file and writing metadata describing its chip contract.
func ImportNetwork(dir, networkPath string, meta Metadata) error {
	if err := ensureAbsent(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifactErr(err, "create-dir", dir)
	}
	meta.Architecture = ArchTFLite
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := writeMetadata(dir, meta); err != nil {
		return err
	}

	src, err := os.Open(networkPath)
	if err != nil {
		return artifactErr(err, "open-network", networkPath)
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, networkFile))
	if err != nil {
		return artifactErr(err, "copy-network", dir)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return artifactErr(err, "copy-network", dir)
	}
	return nil
}

// ReadMetadata loads only the model description from dir.
func ReadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return Metadata{}, errors.New(err).
			Component("segmodel").
			Category(errors.CategoryModelLoad).
			Context("path", dir).
			Build()
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, artifactErr(err, "decode-metadata", dir)
	}
	return meta, nil
}

// Load opens the model saved in dir, dispatching on its architecture.
func Load(dir string, threads int) (Model, error) {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	switch meta.Architecture {
	case ArchPixelSoftmax:
		return loadBaseline(dir, meta)
	case ArchTFLite:
		return LoadTFLite(filepath.Join(dir, networkFile), meta, threads)
	default:
		return nil, errors.Newf("model in %s has unknown architecture %q", dir, meta.Architecture).
			Component("segmodel").
			Category(errors.CategoryModelLoad).
			Build()
	}
}

func loadBaseline(dir string, meta Metadata) (*Baseline, error) {
	m, err := NewBaseline(meta.Name, meta.Classes, meta.ChipSize, meta.BandNames, meta.BandStats)
	if err != nil {
		return nil, err
	}
	m.meta = meta

	data, err := os.ReadFile(filepath.Join(dir, weightsFile))
	if err != nil {
		return nil, artifactErr(err, "read-weights", dir)
	}
	want := len(m.weights) * len(m.weights[0]) * 8
	if len(data) != want {
		return nil, errors.Newf("weights file in %s holds %d bytes, model shape requires %d", dir, len(data), want).
			Component("segmodel").
			Category(errors.CategoryModelLoad).
			Build()
	}
	off := 0
	for c := range m.weights {
		for j := range m.weights[c] {
			m.weights[c][j] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		}
	}
	return m, nil
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return artifactErr(err, "encode-metadata", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		return artifactErr(err, "write-metadata", dir)
	}
	return nil
}

// ensureAbsent rejects writes over an existing artifact.
func ensureAbsent(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil {
		return errors.Newf("model artifact already exists in %s", dir).
			Component("segmodel").
			Category(errors.CategoryValidation).
			Context("path", dir).
			Build()
	}
	return nil
}

func artifactErr(err error, operation, subject string) error {
	return errors.New(err).
		Component("segmodel").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Context("subject", subject).
		Build()
}
