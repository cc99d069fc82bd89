// Package accuracy implements the accuracy evaluation subcommand.
package accuracy

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roofsense/roofsense-go/internal/accuracy"
	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/observability"
)

// Command creates the accuracy subcommand.
func Command(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	return &cobra.Command{
		Use:   "accuracy",
		Short: "Score predicted damage layers against reference layers",
		Long: `Compare every predicted layer to its reference layer on the image pixel
grid and write per-class accuracy tables with precision, recall, F1 and IoU
per image plus a summary row.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, metrics)
		},
	}
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
	reference, err := geostore.Open(settings.Workspace.Reference)
	if err != nil {
		return err
	}
	defer reference.Close()
	tables, err := geostore.Open(settings.Workspace.Tables)
	if err != nil {
		return err
	}
	defer tables.Close()

	start := time.Now()
	result, err := accuracy.Run(prepared, predicted, reference, tables)
	metrics.ObserveStage("accuracy", start, err)
	if err != nil {
		return err
	}
	metrics.CountImages("accuracy", result.ImagesEvaluated, result.ImagesSkipped)
	return nil
}
