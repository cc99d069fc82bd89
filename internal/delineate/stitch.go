// Package delineate runs trained models over prepared images and vectorizes
// the predicted damage into polygon layers.
package delineate

import (
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geo"
)

// Stitch policies for pixels covered by more than one chip.
const (
	StitchAverage = "average"
	StitchMax     = "max"
)

// Accumulator merges overlapping per-chip probability planes into one plane
// set over the image grid. Pixels covered by a single chip come out identical
// under every policy.
type Accumulator struct {
	policy     string
	grid       geo.Grid
	numOutputs int
	values     []float32 // class-major accumulated probabilities
	coverage   []uint16  // chips contributing to each pixel
}

// NewAccumulator builds an accumulator over the image grid.
func NewAccumulator(g geo.Grid, numOutputs int, policy string) (*Accumulator, error) {
	switch policy {
	case StitchAverage, StitchMax:
	default:
		return nil, errors.Newf("unknown stitch policy %q", policy).
			Component("delineate").
			Category(errors.CategoryValidation).
			Context("valid_policies", []string{StitchAverage, StitchMax}).
			Build()
	}
	return &Accumulator{
		policy:     policy,
		grid:       g,
		numOutputs: numOutputs,
		values:     make([]float32, numOutputs*g.Cells()),
		coverage:   make([]uint16, g.Cells()),
	}, nil
}

// Add folds in one chip's class-major probability planes anchored at the
// given image cell.
func (a *Accumulator) Add(startCol, startRow, chipSize int, probs []float32) {
	perBand := chipSize * chipSize
	cells := a.grid.Cells()
	for row := 0; row < chipSize; row++ {
		imgRow := startRow + row
		if imgRow < 0 || imgRow >= a.grid.Height {
			continue
		}
		for col := 0; col < chipSize; col++ {
			imgCol := startCol + col
			if imgCol < 0 || imgCol >= a.grid.Width {
				continue
			}
			idx := a.grid.Index(imgCol, imgRow)
			p := row*chipSize + col
			for c := 0; c < a.numOutputs; c++ {
				v := probs[c*perBand+p]
				switch {
				case a.policy == StitchMax && a.coverage[idx] > 0:
					if v > a.values[c*cells+idx] {
						a.values[c*cells+idx] = v
					}
				default:
					a.values[c*cells+idx] += v
				}
			}
			a.coverage[idx]++
		}
	}
}

// Resolve returns the final class-major probability planes. Uncovered pixels
// stay zero across all classes.
func (a *Accumulator) Resolve() []float32 {
	out := make([]float32, len(a.values))
	copy(out, a.values)
	if a.policy == StitchAverage {
		cells := a.grid.Cells()
		for idx, n := range a.coverage {
			if n <= 1 {
				continue
			}
			for c := 0; c < a.numOutputs; c++ {
				out[c*cells+idx] /= float32(n)
			}
		}
	}
	return out
}
