package train

import (
	"log/slog"
	"path/filepath"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/damage"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/logging"
	"github.com/roofsense/roofsense-go/internal/segmodel"
)

// Import registers a pretrained network file as a model artifact. The chip
// contract (size, bands, normalization statistics) comes from the configured
// dataset, so delineation feeds the network the same inputs a locally
// trained model would see.
func Import(store *geostore.Store, workspace conf.WorkspaceSettings, cfg conf.TrainSettings, networkPath string) error {
	logger := logging.ForService("train")
	if logger == nil {
		logger = slog.Default()
	}

	classConfig, err := damage.ParseClassConfig(cfg.ClassConfig)
	if err != nil {
		return err
	}
	schema, err := store.GetSchema(cfg.Dataset)
	if err != nil {
		return err
	}
	stats, err := store.GetBandStats(cfg.Dataset)
	if err != nil {
		return err
	}

	meta := segmodel.Metadata{
		Name:        cfg.ModelName,
		Classes:     classConfig.ClassNames(),
		ChipSize:    schema.ChipSize,
		BandNames:   schema.BandNames,
		BandStats:   stats,
		DatasetName: cfg.Dataset,
		ClassConfig: string(classConfig),
	}
	dir := filepath.Join(workspace.ModelsDir, cfg.ModelName)
	if err := segmodel.ImportNetwork(dir, networkPath, meta); err != nil {
		return err
	}

	logger.Info("network imported",
		"model", cfg.ModelName,
		"network", networkPath,
		"dir", dir,
		"class_config", cfg.ClassConfig,
		"chip_size", schema.ChipSize)
	return nil
}
