package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/roofsense/roofsense-go/cmd"
	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/logging"
	"github.com/roofsense/roofsense-go/internal/observability"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if settings.Main.Log.Enabled {
		fileLogger, closeLogger, err := logging.NewFileLogger(
			settings.Main.Log.Path,
			settings.Main.Name,
			slog.LevelInfo,
			logging.FileLoggerOptions{
				MaxSizeMB:  settings.Main.Log.MaxSizeMB,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAgeDays,
			},
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeLogger() }()
		slog.SetDefault(fileLogger)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logging.Fatal("error initializing metrics", "error", err)
	}
	if settings.Telemetry.Enabled {
		go func() {
			if err := metrics.Serve(settings.Telemetry.Listen); err != nil {
				logging.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	if err := cmd.RootCommand(settings, metrics).Execute(); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
