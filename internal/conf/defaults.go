// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "roofsense-go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "roofsense.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("workspace.boundaries", "workspace/boundaries.db")
	viper.SetDefault("workspace.training", "workspace/training_polygons.db")
	viper.SetDefault("workspace.reference", "workspace/reference_polygons.db")
	viper.SetDefault("workspace.prepared", "workspace/prepared_images.db")
	viper.SetDefault("workspace.datasets", "workspace/chip_datasets.db")
	viper.SetDefault("workspace.predicted", "workspace/predicted_polygons.db")
	viper.SetDefault("workspace.tables", "workspace/accuracy_tables.db")
	viper.SetDefault("workspace.modelsdir", "workspace/models")

	viper.SetDefault("prepare.inputdir", "")
	viper.SetDefault("prepare.region", "")
	viper.SetDefault("prepare.cellsize", 0.05)

	viper.SetDefault("export.dataset", "")
	viper.SetDefault("export.classconfig", "dual")
	viper.SetDefault("export.chipsize", 512)
	viper.SetDefault("export.stride", 128)
	viper.SetDefault("export.minpolygonoverlap", 0.5)

	viper.SetDefault("train.dataset", "")
	viper.SetDefault("train.classconfig", "dual")
	viper.SetDefault("train.modelname", "")
	viper.SetDefault("train.batchsize", 4)
	viper.SetDefault("train.epochs", 20)
	viper.SetDefault("train.learningrate", 0.01)
	viper.SetDefault("train.validationsplit", 0.1)
	viper.SetDefault("train.seed", 42)
	viper.SetDefault("train.divergencewindow", 3)

	viper.SetDefault("delineate.deckingmodel", "")
	viper.SetDefault("delineate.holemodel", "")
	viper.SetDefault("delineate.dualmodel", "")
	viper.SetDefault("delineate.padding", 128)
	viper.SetDefault("delineate.threshold", 0.5)
	viper.SetDefault("delineate.stitch", "average")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}
