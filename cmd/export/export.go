// Package export implements the training data export subcommand.
package export

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roofsense/roofsense-go/internal/chips"
	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/observability"
)

// Command creates the export subcommand.
func Command(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export labeled training chips from prepared images",
		Long: `Tile every prepared image that has a training polygon layer and append
the labeled chips to a dataset. Repeated runs with more regions append to the
same dataset as long as the chip schema matches.`,
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
	training, err := geostore.Open(settings.Workspace.Training)
	if err != nil {
		return err
	}
	defer training.Close()
	datasets, err := geostore.Open(settings.Workspace.Datasets)
	if err != nil {
		return err
	}
	defer datasets.Close()

	start := time.Now()
	result, err := chips.Run(prepared, training, datasets, settings.Export)
	metrics.ObserveStage("export", start, err)
	if err != nil {
		return err
	}
	metrics.CountImages("export", result.ImagesExported, result.ImagesSkipped)
	metrics.CountChips(result.ChipsExported)
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Export.Dataset, "dataset", settings.Export.Dataset, "Chip dataset to create or append to")
	cmd.Flags().StringVar(&settings.Export.ClassConfig, "class-config", settings.Export.ClassConfig, "Damage classes to label: dual, decking or hole")
	cmd.Flags().IntVar(&settings.Export.ChipSize, "chip-size", settings.Export.ChipSize, "Chip side length in pixels")
	cmd.Flags().IntVar(&settings.Export.Stride, "stride", settings.Export.Stride, "Tiling stride in pixels")
	cmd.Flags().Float64Var(&settings.Export.MinPolygonOverlap, "min-overlap", settings.Export.MinPolygonOverlap, "Minimum fraction of a polygon inside a tile")
}
