package segmodel

import (
	"math"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geostore"
)

// Baseline is a per-pixel multinomial logistic classifier over the
// band-normalized pixel values. Each output channel has one weight per band
// plus a bias; pixels are classified independently. It exists so the full
// pipeline runs end to end without an external training framework, and it is
// the reference implementation of the chip prediction contract.
type Baseline struct {
	meta Metadata
	// weights[c][b] for band b, weights[c][numBands] is the bias
	weights [][]float64
	means   []float64
	stds    []float64
}

// NewBaseline creates an untrained classifier for the given schema. Band
// statistics drive input normalization and must cover every band.
func NewBaseline(name string, classes []string, chipSize int, bandNames []string, stats []geostore.BandStat) (*Baseline, error) {
	if len(stats) != len(bandNames) {
		return nil, errors.Newf("model %s requires %d band statistics, got %d", name, len(bandNames), len(stats)).
			Component("segmodel").
			Category(errors.CategoryModelInit).
			Build()
	}
	m := &Baseline{
		meta: Metadata{
			Name:         name,
			Architecture: ArchPixelSoftmax,
			Classes:      classes,
			ChipSize:     chipSize,
			BandNames:    bandNames,
			BandStats:    stats,
		},
		means: make([]float64, len(bandNames)),
		stds:  make([]float64, len(bandNames)),
	}
	for i, st := range stats {
		m.means[i] = st.Mean
		m.stds[i] = st.StdDev
		if m.stds[i] == 0 {
			m.stds[i] = 1
		}
	}
	numOutputs := len(classes) + 1
	m.weights = make([][]float64, numOutputs)
	for c := range m.weights {
		m.weights[c] = make([]float64, len(bandNames)+1)
	}
	return m, nil
}

// Metadata returns the model description.
func (m *Baseline) Metadata() Metadata { return m.meta }

// SetProvenance records which dataset and class configuration produced the
// model, for the saved metadata.
func (m *Baseline) SetProvenance(dataset, classConfig string) {
	m.meta.DatasetName = dataset
	m.meta.ClassConfig = classConfig
}

// Close is a no-op; the classifier holds no external resources.
func (m *Baseline) Close() error { return nil }

func (m *Baseline) normalize(pixels []uint8, pixel int) []float64 {
	perBand := m.meta.ChipSize * m.meta.ChipSize
	x := make([]float64, len(m.means)+1)
	for b := range m.means {
		x[b] = (float64(pixels[b*perBand+pixel]) - m.means[b]) / m.stds[b]
	}
	x[len(m.means)] = 1 // bias input
	return x
}

func (m *Baseline) logits(x []float64, out []float64) {
	for c := range m.weights {
		var z float64
		for i, w := range m.weights[c] {
			z += w * x[i]
		}
		out[c] = z
	}
}

// softmax converts logits to probabilities in place, shifted by the maximum
// for numeric stability.
func softmax(z []float64) {
	maxZ := z[0]
	for _, v := range z[1:] {
		maxZ = math.Max(maxZ, v)
	}
	var sum float64
	for i := range z {
		z[i] = math.Exp(z[i] - maxZ)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}

// Predict implements Model.
func (m *Baseline) Predict(pixels []uint8) ([]float32, error) {
	perBand := m.meta.ChipSize * m.meta.ChipSize
	if len(pixels) != perBand*len(m.meta.BandNames) {
		return nil, errors.Newf("chip has %d pixels, model %s expects %d",
			len(pixels), m.meta.Name, perBand*len(m.meta.BandNames)).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}

	numOutputs := m.meta.NumOutputs()
	probs := make([]float32, numOutputs*perBand)
	z := make([]float64, numOutputs)
	for p := 0; p < perBand; p++ {
		x := m.normalize(pixels, p)
		m.logits(x, z)
		softmax(z)
		for c := 0; c < numOutputs; c++ {
			probs[c*perBand+p] = float32(z[c])
		}
	}
	return probs, nil
}

// TrainBatch runs one stochastic gradient descent pass over the chips,
// minimizing per-pixel cross-entropy, and returns the mean training loss.
// Mask values index into Classes starting at 1; 0 is background.
func (m *Baseline) TrainBatch(chips []geostore.Chip, learningRate float64) (float64, error) {
	perBand := m.meta.ChipSize * m.meta.ChipSize
	numOutputs := m.meta.NumOutputs()
	z := make([]float64, numOutputs)

	var lossSum float64
	var pixels int64
	for i := range chips {
		if len(chips[i].Mask) != perBand {
			return 0, errors.Newf("chip %d mask has %d cells, model expects %d", i, len(chips[i].Mask), perBand).
				Component("segmodel").
				Category(errors.CategoryModelTrain).
				Build()
		}
		for p := 0; p < perBand; p++ {
			label := int(chips[i].Mask[p])
			if label >= numOutputs {
				return 0, errors.Newf("chip %d labels class %d, model has %d outputs", i, label, numOutputs).
					Component("segmodel").
					Category(errors.CategoryModelTrain).
					Build()
			}
			x := m.normalize(chips[i].Pixels, p)
			m.logits(x, z)
			softmax(z)

			lossSum += -math.Log(math.Max(z[label], 1e-12))
			pixels++

			for c := 0; c < numOutputs; c++ {
				grad := z[c]
				if c == label {
					grad -= 1
				}
				for j := range x {
					m.weights[c][j] -= learningRate * grad * x[j]
				}
			}
		}
	}
	if pixels == 0 {
		return 0, errors.Newf("training batch contains no pixels").
			Component("segmodel").
			Category(errors.CategoryModelTrain).
			Build()
	}
	return lossSum / float64(pixels), nil
}

// ValidationLoss returns the mean per-pixel cross-entropy over the chips
// without updating weights.
func (m *Baseline) ValidationLoss(chips []geostore.Chip) (float64, error) {
	perBand := m.meta.ChipSize * m.meta.ChipSize
	numOutputs := m.meta.NumOutputs()
	z := make([]float64, numOutputs)

	var lossSum float64
	var pixels int64
	for i := range chips {
		for p := 0; p < perBand; p++ {
			label := int(chips[i].Mask[p])
			if label >= numOutputs {
				return 0, errors.Newf("chip %d labels class %d, model has %d outputs", i, label, numOutputs).
					Component("segmodel").
					Category(errors.CategoryModelTrain).
					Build()
			}
			x := m.normalize(chips[i].Pixels, p)
			m.logits(x, z)
			softmax(z)
			lossSum += -math.Log(math.Max(z[label], 1e-12))
			pixels++
		}
	}
	if pixels == 0 {
		return 0, errors.Newf("validation set contains no pixels").
			Component("segmodel").
			Category(errors.CategoryModelTrain).
			Build()
	}
	return lossSum / float64(pixels), nil
}
