// conf/validate.go settings validation
package conf

import (
	"github.com/roofsense/roofsense-go/internal/errors"
)

// ValidateSettings checks cross-field constraints that viper cannot express.
func ValidateSettings(s *Settings) error {
	var errs []error

	if s.Prepare.CellSize <= 0 {
		errs = append(errs, errors.Newf("prepare.cellsize must be positive, got %g", s.Prepare.CellSize).
			Component("conf").Category(errors.CategoryValidation).Build())
	}

	if s.Export.ChipSize <= 0 {
		errs = append(errs, errors.Newf("export.chipsize must be positive, got %d", s.Export.ChipSize).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Export.Stride <= 0 || s.Export.Stride > s.Export.ChipSize {
		errs = append(errs, errors.Newf("export.stride must be in (0, chipsize], got %d", s.Export.Stride).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Export.MinPolygonOverlap < 0 || s.Export.MinPolygonOverlap > 1 {
		errs = append(errs, errors.Newf("export.minpolygonoverlap must be in [0, 1], got %g", s.Export.MinPolygonOverlap).
			Component("conf").Category(errors.CategoryValidation).Build())
	}

	if s.Train.ValidationSplit < 0 || s.Train.ValidationSplit >= 1 {
		errs = append(errs, errors.Newf("train.validationsplit must be in [0, 1), got %g", s.Train.ValidationSplit).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Train.BatchSize <= 0 {
		errs = append(errs, errors.Newf("train.batchsize must be positive, got %d", s.Train.BatchSize).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Train.Epochs <= 0 {
		errs = append(errs, errors.Newf("train.epochs must be positive, got %d", s.Train.Epochs).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Train.LearningRate <= 0 {
		errs = append(errs, errors.Newf("train.learningrate must be positive, got %g", s.Train.LearningRate).
			Component("conf").Category(errors.CategoryValidation).Build())
	}

	if s.Delineate.Threshold < 0 || s.Delineate.Threshold > 1 {
		errs = append(errs, errors.Newf("delineate.threshold must be in [0, 1], got %g", s.Delineate.Threshold).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	switch s.Delineate.Stitch {
	case "average", "max":
	default:
		errs = append(errs, errors.Newf("delineate.stitch must be average or max, got %q", s.Delineate.Stitch).
			Component("conf").Category(errors.CategoryValidation).Build())
	}
	if s.Delineate.Padding < 0 {
		errs = append(errs, errors.Newf("delineate.padding must be non-negative, got %d", s.Delineate.Padding).
			Component("conf").Category(errors.CategoryValidation).Build())
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
