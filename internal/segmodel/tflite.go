package segmodel

import (
	"os"

	"github.com/tphakala/go-tflite"

	"github.com/roofsense/roofsense-go/internal/errors"
)

// TFLiteModel wraps an imported TensorFlow Lite segmentation network. The
// network takes one chip as channel-last normalized float32 input and emits
// per-pixel class scores, background channel first.
type TFLiteModel struct {
	meta        Metadata
	model       *tflite.Model
	interpreter *tflite.Interpreter
	means       []float64
	stds        []float64
}

// LoadTFLite reads the network file and builds an interpreter sized for the
// chip shape in meta.
func LoadTFLite(modelPath string, meta Metadata, threads int) (*TFLiteModel, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.New(err).
			Component("segmodel").
			Category(errors.CategoryModelLoad).
			Context("path", modelPath).
			Build()
	}

	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Newf("cannot load network from %s", modelPath).
			Component("segmodel").
			Category(errors.CategoryModelLoad).
			Context("path", modelPath).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	if threads > 0 {
		options.SetNumThread(threads)
	}
	defer options.Delete()

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create interpreter for %s", modelPath).
			Component("segmodel").
			Category(errors.CategoryModelInit).
			Context("path", modelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed for %s", modelPath).
			Component("segmodel").
			Category(errors.CategoryModelInit).
			Context("path", modelPath).
			Build()
	}

	m := &TFLiteModel{
		meta:        meta,
		model:       model,
		interpreter: interpreter,
		means:       make([]float64, len(meta.BandNames)),
		stds:        make([]float64, len(meta.BandNames)),
	}
	for i, st := range meta.BandStats {
		if i >= len(m.means) {
			break
		}
		m.means[i] = st.Mean
		m.stds[i] = st.StdDev
		if m.stds[i] == 0 {
			m.stds[i] = 1
		}
	}
	return m, nil
}

// Metadata returns the model description.
func (m *TFLiteModel) Metadata() Metadata { return m.meta }

// Close releases the interpreter and network.
func (m *TFLiteModel) Close() error {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}

// Predict implements Model. The network input is filled channel-last; its
// pixel-major output is transposed to the class-major contract.
func (m *TFLiteModel) Predict(pixels []uint8) ([]float32, error) {
	perBand := m.meta.ChipSize * m.meta.ChipSize
	numBands := len(m.meta.BandNames)
	if len(pixels) != perBand*numBands {
		return nil, errors.Newf("chip has %d pixels, model %s expects %d",
			len(pixels), m.meta.Name, perBand*numBands).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("model %s has no input tensor", m.meta.Name).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}
	in := input.Float32s()
	if len(in) != perBand*numBands {
		return nil, errors.Newf("model %s input tensor holds %d values, chip needs %d",
			m.meta.Name, len(in), perBand*numBands).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}
	for p := 0; p < perBand; p++ {
		for b := 0; b < numBands; b++ {
			in[p*numBands+b] = float32((float64(pixels[b*perBand+p]) - m.means[b]) / m.stds[b])
		}
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("inference failed for model %s", m.meta.Name).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return nil, errors.Newf("model %s has no output tensor", m.meta.Name).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}
	numOutputs := m.meta.NumOutputs()
	raw := output.Float32s()
	if len(raw) != perBand*numOutputs {
		return nil, errors.Newf("model %s output tensor holds %d values, expected %d",
			m.meta.Name, len(raw), perBand*numOutputs).
			Component("segmodel").
			Category(errors.CategoryInference).
			Build()
	}

	probs := make([]float32, numOutputs*perBand)
	for p := 0; p < perBand; p++ {
		for c := 0; c < numOutputs; c++ {
			probs[c*perBand+p] = raw[p*numOutputs+c]
		}
	}
	return probs, nil
}
