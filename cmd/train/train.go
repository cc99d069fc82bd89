// Package train implements the model training subcommand.
package train

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/observability"
	"github.com/roofsense/roofsense-go/internal/train"
)

// Command creates the train subcommand.
func Command(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	var importNetwork string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a damage segmentation model on an exported dataset",
		Long: `Split the chip dataset into training and validation partitions, fit the
classifier and save the model artifact. Validation divergence is logged but
the model is still saved. With --import-network a pretrained network file is
registered as the model artifact instead, taking its chip contract from the
dataset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if importNetwork != "" {
				return runImport(settings, metrics, importNetwork)
			}
			return run(settings, metrics)
		},
	}
	setupFlags(cmd, settings)
	cmd.Flags().StringVar(&importNetwork, "import-network", "", "Pretrained network file to register instead of training")
	return cmd
}

func run(settings *conf.Settings, metrics *observability.Metrics) error {
	datasets, err := geostore.Open(settings.Workspace.Datasets)
	if err != nil {
		return err
	}
	defer datasets.Close()

	start := time.Now()
	result, err := train.Run(datasets, settings.Workspace, settings.Train)
	metrics.ObserveStage("train", start, err)
	if err != nil {
		return err
	}
	last := len(result.ValLosses) - 1
	metrics.SetLoss(settings.Train.ModelName, result.TrainLosses[last], result.ValLosses[last])
	return nil
}

func runImport(settings *conf.Settings, metrics *observability.Metrics, networkPath string) error {
	datasets, err := geostore.Open(settings.Workspace.Datasets)
	if err != nil {
		return err
	}
	defer datasets.Close()

	start := time.Now()
	err = train.Import(datasets, settings.Workspace, settings.Train, networkPath)
	metrics.ObserveStage("train", start, err)
	return err
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Train.Dataset, "dataset", settings.Train.Dataset, "Chip dataset to train on")
	cmd.Flags().StringVar(&settings.Train.ClassConfig, "class-config", settings.Train.ClassConfig, "Damage classes to train: dual, decking or hole")
	cmd.Flags().StringVarP(&settings.Train.ModelName, "model", "m", settings.Train.ModelName, "Name of the model artifact to write")
	cmd.Flags().IntVar(&settings.Train.Epochs, "epochs", settings.Train.Epochs, "Full passes over the training partition")
	cmd.Flags().IntVar(&settings.Train.BatchSize, "batch-size", settings.Train.BatchSize, "Chips per gradient step")
	cmd.Flags().Float64Var(&settings.Train.LearningRate, "learning-rate", settings.Train.LearningRate, "SGD step size")
	cmd.Flags().Float64Var(&settings.Train.ValidationSplit, "validation-split", settings.Train.ValidationSplit, "Fraction of chips held out for validation")
	cmd.Flags().Int64Var(&settings.Train.Seed, "seed", settings.Train.Seed, "Split and shuffle seed")
}
