package train

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roofsense/roofsense-go/internal/conf"
	"github.com/roofsense/roofsense-go/internal/geostore"
	"github.com/roofsense/roofsense-go/internal/segmodel"
)

func TestSplitIsDeterministic(t *testing.T) {
	trainA, valA := Split(100, 0.1, 42)
	trainB, valB := Split(100, 0.1, 42)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, valA, valB)

	trainC, _ := Split(100, 0.1, 43)
	assert.NotEqual(t, trainA, trainC, "different seeds must shuffle differently")
}

func TestSplitPartitionsAllIndices(t *testing.T) {
	train, val := Split(100, 0.1, 7)
	assert.Len(t, val, 10)
	assert.Len(t, train, 90)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), val...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 100)
}

func TestSplitSmallSets(t *testing.T) {
	train, val := Split(2, 0.1, 1)
	assert.Len(t, train, 1)
	assert.Len(t, val, 1, "a positive ratio holds out at least one chip")

	train, val = Split(1, 0.5, 1)
	assert.Len(t, train, 1)
	assert.Empty(t, val, "training always keeps at least one chip")

	train, val = Split(0, 0.1, 1)
	assert.Empty(t, train)
	assert.Empty(t, val)
}

func trainTestStore(t *testing.T, chipSize, chipCount int) *geostore.Store {
	t.Helper()
	store, err := geostore.Open(filepath.Join(t.TempDir(), "datasets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	schema := geostore.ChipSchema{
		ChipSize:  chipSize,
		CellSize:  0.05,
		BandNames: []string{"Band_1", "Band_2", "Band_3"},
		Classes:   []string{"Decking", "Hole"},
	}
	perBand := chipSize * chipSize
	chips := make([]geostore.Chip, chipCount)
	for i := range chips {
		pixels := make([]uint8, 3*perBand)
		mask := make([]uint8, perBand)
		for p := 0; p < perBand; p++ {
			v := uint8(40)
			if p%2 == 0 {
				v = 220
				mask[p] = 1 // Decking on bright pixels
			}
			for b := 0; b < 3; b++ {
				pixels[b*perBand+p] = v
			}
		}
		chips[i] = geostore.Chip{Image: "img", Col: i, Pixels: pixels, Mask: mask}
	}
	require.NoError(t, store.AppendChips("chips", schema, chips))
	return store
}

func TestRunTrainsAndSavesModel(t *testing.T) {
	store := trainTestStore(t, 4, 10)
	workspace := conf.WorkspaceSettings{ModelsDir: t.TempDir()}
	cfg := conf.TrainSettings{
		Dataset:          "chips",
		ClassConfig:      "decking",
		ModelName:        "decking_model",
		BatchSize:        4,
		Epochs:           5,
		LearningRate:     0.1,
		ValidationSplit:  0.1,
		Seed:             42,
		DivergenceWindow: 3,
	}

	result, err := Run(store, workspace, cfg)
	require.NoError(t, err)
	assert.Len(t, result.TrainLosses, 5)
	assert.Len(t, result.ValLosses, 5)
	assert.Less(t, result.TrainLosses[4], result.TrainLosses[0])

	model, err := segmodel.Load(result.ModelDir, 1)
	require.NoError(t, err)
	defer model.Close()

	meta := model.Metadata()
	assert.Equal(t, "decking_model", meta.Name)
	assert.Equal(t, []string{"Decking"}, meta.Classes)
	assert.Equal(t, "chips", meta.DatasetName)
	assert.Equal(t, "decking", meta.ClassConfig)
	assert.Equal(t, 4, meta.ChipSize)
}

func TestRunRejectsUnknownClassConfig(t *testing.T) {
	store := trainTestStore(t, 4, 4)
	_, err := Run(store, conf.WorkspaceSettings{ModelsDir: t.TempDir()}, conf.TrainSettings{
		Dataset:     "chips",
		ClassConfig: "roof",
		ModelName:   "m",
		Epochs:      1,
	})
	assert.Error(t, err)
}

func TestRunRejectsMissingDataset(t *testing.T) {
	store := trainTestStore(t, 4, 4)
	_, err := Run(store, conf.WorkspaceSettings{ModelsDir: t.TempDir()}, conf.TrainSettings{
		Dataset:     "nope",
		ClassConfig: "dual",
		ModelName:   "m",
		Epochs:      1,
	})
	assert.Error(t, err)
}

func TestImportRegistersNetworkArtifact(t *testing.T) {
	store := trainTestStore(t, 4, 4)
	workspace := conf.WorkspaceSettings{ModelsDir: t.TempDir()}

	networkPath := filepath.Join(t.TempDir(), "hole.tflite")
	require.NoError(t, os.WriteFile(networkPath, []byte("stub network bytes"), 0o644))

	cfg := conf.TrainSettings{Dataset: "chips", ClassConfig: "hole", ModelName: "hole_model"}
	require.NoError(t, Import(store, workspace, cfg, networkPath))

	meta, err := segmodel.ReadMetadata(filepath.Join(workspace.ModelsDir, "hole_model"))
	require.NoError(t, err)
	assert.Equal(t, segmodel.ArchTFLite, meta.Architecture)
	assert.Equal(t, []string{"Hole"}, meta.Classes)
	assert.Equal(t, 4, meta.ChipSize)
	assert.Equal(t, "chips", meta.DatasetName)
	require.Len(t, meta.BandStats, 3)

	// importing over an existing artifact fails, artifacts are immutable
	assert.Error(t, Import(store, workspace, cfg, networkPath))
}

func TestRemapMasksDropsExcludedClass(t *testing.T) {
	chips := []geostore.Chip{{Mask: []uint8{0, 1, 2, 1}}}
	require.NoError(t, remapMasks(chips, []string{"Decking", "Hole"}, []string{"Hole"}))
	assert.Equal(t, []uint8{0, 0, 1, 0}, chips[0].Mask)
}
