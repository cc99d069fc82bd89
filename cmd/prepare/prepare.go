// Package prepare implements the image preparation subcommand.
package prepare

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/observability"
	"github.com/roofsense/roofsense-go/internal/prepare"
)

// Command creates the prepare subcommand.
func Command(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare raw aerial images for analysis",
		Long: `Extract RGB bands, reproject, resample to the working resolution, clip
to each image's boundary polygon and store the results as 8-bit rasters.`,
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
	boundaries, err := geostore.Open(settings.Workspace.Boundaries)
	if err != nil {
		return err
	}
	defer boundaries.Close()

	start := time.Now()
	result, err := prepare.Run(prepared, boundaries, settings.Prepare)
	metrics.ObserveStage("prepare", start, err)
	if err != nil {
		return err
	}
	metrics.CountImages("prepare", result.ImagesPrepared, len(result.Skipped))
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Prepare.InputDir, "input", "i", settings.Prepare.InputDir, "Directory of raw images with world file sidecars")
	cmd.Flags().StringVarP(&settings.Prepare.Region, "region", "r", settings.Prepare.Region, "Region the prepared images belong to")
	cmd.Flags().Float64Var(&settings.Prepare.CellSize, "cell-size", settings.Prepare.CellSize, "Target resolution in map units per pixel")
}
