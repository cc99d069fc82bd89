package train

import (
	"log/slog"
	"math/rand"
	"path/filepath"
	"slices"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/damage"
	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
	"github.com/roofsense/roofsense-go/internal/segmodel"
)

// Result summarizes one training run.
type Result struct {
	ModelDir    string
	TrainLosses []float64 // mean training loss per epoch
	ValLosses   []float64 // validation loss per epoch
	Diverged    bool      // validation loss stopped improving before the last epoch
}

// Run trains a classifier on the configured chip dataset and writes the
// artifact under the workspace models directory. Validation divergence is
// reported in the result and logged, never fatal: a diverged model is still
// saved so the operator can inspect it.
func Run(store *geostore.Store, workspace conf.WorkspaceSettings, cfg conf.TrainSettings) (*Result, error) {
	logger := logging.ForService("train")
	if logger == nil {
		logger = slog.Default()
	}

	classConfig, err := damage.ParseClassConfig(cfg.ClassConfig)
	if err != nil {
		return nil, err
	}
	classNames := classConfig.ClassNames()

	schema, err := store.GetSchema(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	chips, err := store.GetChips(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	stats, err := store.GetBandStats(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	if len(chips) < 2 {
		return nil, errors.Newf("dataset %q holds %d chips, training needs at least 2", cfg.Dataset, len(chips)).
			Component("train").
			Category(errors.CategoryModelTrain).
			Build()
	}

	if err := remapMasks(chips, schema.Classes, classNames); err != nil {
		return nil, err
	}

	trainIdx, valIdx := Split(len(chips), cfg.ValidationSplit, cfg.Seed)
	logger.Info("training started",
		"dataset", cfg.Dataset,
		"model", cfg.ModelName,
		"class_config", cfg.ClassConfig,
		"chips", len(chips),
		"train_chips", len(trainIdx),
		"validation_chips", len(valIdx),
		"epochs", cfg.Epochs,
		"learning_rate", cfg.LearningRate,
		"seed", cfg.Seed)

	model, err := segmodel.NewBaseline(cfg.ModelName, classNames, schema.ChipSize, schema.BandNames, stats)
	if err != nil {
		return nil, err
	}

	valChips := make([]geostore.Chip, len(valIdx))
	for i, idx := range valIdx {
		valChips[i] = chips[idx]
	}

	result := &Result{ModelDir: filepath.Join(workspace.ModelsDir, cfg.ModelName)}
	rng := rand.New(rand.NewSource(cfg.Seed))
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	bestVal := 0.0
	sinceImprovement := 0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		var lossSum float64
		var batches int
		for start := 0; start < len(trainIdx); start += batchSize {
			end := min(start+batchSize, len(trainIdx))
			batch := make([]geostore.Chip, 0, end-start)
			for _, idx := range trainIdx[start:end] {
				batch = append(batch, chips[idx])
			}
			loss, err := model.TrainBatch(batch, cfg.LearningRate)
			if err != nil {
				return nil, err
			}
			lossSum += loss
			batches++
		}
		trainLoss := lossSum / float64(batches)
		result.TrainLosses = append(result.TrainLosses, trainLoss)

		valLoss := trainLoss
		if len(valChips) > 0 {
			valLoss, err = model.ValidationLoss(valChips)
			if err != nil {
				return nil, err
			}
		}
		result.ValLosses = append(result.ValLosses, valLoss)

		if epoch == 1 || valLoss < bestVal {
			bestVal = valLoss
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}
		logger.Info("epoch finished",
			"epoch", epoch,
			"train_loss", trainLoss,
			"validation_loss", valLoss)

		if cfg.DivergenceWindow > 0 && sinceImprovement >= cfg.DivergenceWindow && !result.Diverged {
			result.Diverged = true
			logger.Warn("validation loss diverging",
				"model", cfg.ModelName,
				"epoch", epoch,
				"epochs_without_improvement", sinceImprovement,
				"best_validation_loss", bestVal,
				"validation_loss", valLoss)
		}
	}

	model.SetProvenance(cfg.Dataset, string(classConfig))
	if err := segmodel.SaveBaseline(result.ModelDir, model); err != nil {
		return nil, err
	}
	logger.Info("model saved",
		"model", cfg.ModelName,
		"dir", result.ModelDir,
		"diverged", result.Diverged,
		"final_validation_loss", result.ValLosses[len(result.ValLosses)-1])
	return result, nil
}

// remapMasks rewrites chip mask values from dataset class order to model
// class order, zeroing classes the configuration leaves out.
func remapMasks(chips []geostore.Chip, datasetClasses, modelClasses []string) error {
	lut := make([]uint8, len(datasetClasses)+1)
	for modelIdx, name := range modelClasses {
		datasetIdx := slices.Index(datasetClasses, name)
		if datasetIdx < 0 {
			return errors.Newf("class %q is not present in the dataset (has %v)", name, datasetClasses).
				Component("train").
				Category(errors.CategoryModelTrain).
				Build()
		}
		lut[datasetIdx+1] = uint8(modelIdx + 1)
	}

	for i := range chips {
		remapped := make([]uint8, len(chips[i].Mask))
		for j, v := range chips[i].Mask {
			if int(v) < len(lut) {
				remapped[j] = lut[v]
			}
		}
		chips[i].Mask = remapped
	}
	return nil
}
