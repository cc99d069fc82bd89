// Package delineate implements the damage delineation subcommand.
package delineate

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/delineate"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/observability"
)

// Command creates the delineate subcommand.
func Command(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delineate",
		Short: "Delineate roof damage on prepared images",
		Long: `Run every configured model over the prepared images, stitch the chip
predictions, vectorize the damage masks and merge the polygons of all models
into one layer per image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, metrics)
		},
	}
	setupFlags(cmd, settings)
	return cmd
}

func run(settings *conf.Settings, metrics *observability.Metrics) error {
	prepared, err := geostore.Open(settings.Workspace.Prepared)
	if err != nil {
		return err
	}
	defer prepared.Close()
	predicted, err := geostore.Open(settings.Workspace.Predicted)
	if err != nil {
		return err
	}
	defer predicted.Close()

	start := time.Now()
	result, err := delineate.Run(prepared, predicted, settings.Workspace, settings.Delineate)
	metrics.ObserveStage("delineate", start, err)
	if err != nil {
		return err
	}
	metrics.CountImages("delineate", result.ImagesProcessed, result.ImagesSkipped)
	metrics.CountFeatures(result.FeaturesSaved)
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Delineate.DeckingModel, "decking-model", settings.Delineate.DeckingModel, "Roof decking model artifact")
	cmd.Flags().StringVar(&settings.Delineate.HoleModel, "hole-model", settings.Delineate.HoleModel, "Roof hole model artifact")
	cmd.Flags().StringVar(&settings.Delineate.DualModel, "dual-model", settings.Delineate.DualModel, "Dual class model artifact")
	cmd.Flags().IntVar(&settings.Delineate.Padding, "padding", settings.Delineate.Padding, "Chip overlap in pixels")
	cmd.Flags().Float64VarP(&settings.Delineate.Threshold, "threshold", "t", settings.Delineate.Threshold, "Probability threshold for damage masks")
	cmd.Flags().StringVar(&settings.Delineate.Stitch, "stitch", settings.Delineate.Stitch, "Overlap resolution policy: average or max")
}
