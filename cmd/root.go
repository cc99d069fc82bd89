// Package cmd assembles the roofsense command line interface.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roofsense/roofsense-go/cmd/accuracy"
	"github.com/roofsense/roofsense-go/cmd/delineate"
	"github.com/roofsense/roofsense-go/cmd/export"
	"github.com/roofsense/roofsense-go/cmd/prepare"
	"github.com/roofsense/roofsense-go/cmd/train"
	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/logging"
	"github.com/roofsense/roofsense-go/internal/observability"
)

// RootCommand creates and returns the root command with all pipeline stages
// attached.
func RootCommand(settings *conf.Settings, metrics *observability.Metrics) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roofsense",
		Short: "Roof damage delineation pipeline",
		Long: `roofsense prepares aerial imagery, exports training chips, trains
segmentation models and delineates storm damage to roofs as polygon layers.`,
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		prepare.Command(settings, metrics),
		export.Command(settings, metrics),
		train.Command(settings, metrics),
		delineate.Command(settings, metrics),
		accuracy.Command(settings, metrics),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
