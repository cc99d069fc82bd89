// config.go: settings struct for the roofsense pipeline and functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roofsense/roofsense-go/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotating file log.
type LogConfig struct {
	Enabled    bool   // true to write a log file
	Path       string // path of the log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to keep rotated files
}

// WorkspaceSettings names the stores the pipeline stages read and write.
// Every store is a spatial container file created on first use.
type WorkspaceSettings struct {
	Boundaries string // image boundary polygon layers
	Training   string // training polygon layers, one per image
	Reference  string // ground-truth polygon layers for test images, never read by training
	Prepared   string // prepared image rasters
	Datasets   string // exported chip datasets and band statistics
	Predicted  string // predicted polygon layers, one per test image
	Tables     string // accuracy result tables
	ModelsDir  string // directory holding trained model artifacts
}

// PrepareSettings configures the image preparation stage.
type PrepareSettings struct {
	InputDir string  // folder of raw images with world-file sidecars
	Region   string  // region owning the prepared output
	CellSize float64 // target resolution in map units per pixel
}

// ExportSettings configures the training data export stage.
type ExportSettings struct {
	Dataset           string  // name of the chip dataset to create or append to
	ClassConfig       string  // dual, decking or hole
	ChipSize          int     // chip side length in pixels
	Stride            int     // tiling stride in pixels
	MinPolygonOverlap float64 // minimum fraction of a polygon inside a tile
}

// TrainSettings configures model training.
type TrainSettings struct {
	Dataset          string  // chip dataset to train on
	ClassConfig      string  // dual, decking or hole
	ModelName        string  // name of the artifact to write
	BatchSize        int     // chips per gradient step
	Epochs           int     // full passes over the training partition
	LearningRate     float64 // SGD step size
	ValidationSplit  float64 // fraction of chips held out for validation
	Seed             int64   // split and shuffle seed
	DivergenceWindow int     // epochs without validation improvement before warning
}

// DelineateSettings configures inference and vectorization.
type DelineateSettings struct {
	DeckingModel string  // single-class roof decking model artifact, optional
	HoleModel    string  // single-class roof hole model artifact, optional
	DualModel    string  // dual-class model artifact, optional
	Padding      int     // chip overlap in pixels
	Threshold    float64 // probability threshold for class masks
	Stitch       string  // overlap resolution policy, average or max
}

// TelemetrySettings contains settings for the metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to expose a Prometheus compatible endpoint
	Listen  string // IP address and port to listen on
}

// Settings is the root configuration for a pipeline invocation. Every run is
// fully specified by its Settings value; no state carries over between runs.
type Settings struct {
	Debug bool

	Main struct {
		Name string    // instance name used in logs
		Log  LogConfig // file log settings
	}

	Workspace WorkspaceSettings
	Prepare   PrepareSettings
	Export    ExportSettings
	Train     TrainSettings
	Delineate DelineateSettings
	Telemetry TelemetrySettings
}

// Load reads the configuration into a validated Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		return createDefaultConfig(configPaths)
	}
	return nil
}

// createDefaultConfig writes the embedded default config to the first default path.
func createDefaultConfig(configPaths []string) error {
	if len(configPaths) == 0 {
		return errors.Newf("no default config paths available").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the default configuration paths for the
// current operating system.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(homeDir, "AppData", "Roaming", "roofsense-go"),
		}, nil
	default:
		return []string{
			filepath.Join(homeDir, ".config", "roofsense-go"),
			"/etc/roofsense-go",
		}, nil
	}
}

// Save writes the settings to path as YAML.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
