package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/autcar/pkg/train"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, text string) string {
	filename := filepath.Join(t.TempDir(), "autcar.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(text), 0644))
	return filename
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 224, cfg.ImageWidth)
	require.Equal(t, 168, cfg.ImageHeight)
	require.Equal(t, 0.8, cfg.SplitRatio)
	require.Nil(t, cfg.Seed)
	require.Equal(t, RuntimeGo, cfg.Runtime)
	require.Equal(t, "cnn-16-32-mlp-64", cfg.Architecture)
	require.Equal(t, train.DefaultSchedule(), cfg.Schedule)
}

func TestLoadConfig(t *testing.T) {
	filename := writeConfig(t, `
imageWidth: 64
imageHeight: 48
seed: 42
architecture: mlp-32
schedule:
  - sweeps: 2
    rate: 0.05
  - sweeps: 1
    rate: 0.01
runtime: opencv
`)
	cfg, err := LoadConfig(filename)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.ImageWidth)
	require.Equal(t, 48, cfg.ImageHeight)
	require.NotNil(t, cfg.Seed)
	require.EqualValues(t, 42, *cfg.Seed)
	require.Equal(t, "mlp-32", cfg.Architecture)
	require.Equal(t, RuntimeOpenCV, cfg.Runtime)
	// Not in the file
	require.Equal(t, 0.8, cfg.SplitRatio)
	require.Equal(t, 64, cfg.TrainMinibatch)

	b := cfg.BalanceOptions()
	require.Equal(t, 64, b.ImageWidth)
	require.Equal(t, cfg.Seed, b.Seed)

	o := cfg.TrainOptions()
	require.Equal(t, 48, o.ImageHeight)
	require.Equal(t, train.Schedule{{Sweeps: 2, Rate: 0.05}, {Sweeps: 1, Rate: 0.01}}, o.Schedule)
	require.Equal(t, 0.05, o.Schedule.Rate(1))
	require.Equal(t, 0.01, o.Schedule.Rate(7))
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "imageWidth: [1, 2"))
	require.ErrorContains(t, err, "YAML")

	_, err = LoadConfig(writeConfig(t, "splitRatio: 1.5"))
	require.ErrorContains(t, err, "splitRatio")

	_, err = LoadConfig(writeConfig(t, "architecture: resnet"))
	require.ErrorContains(t, err, "Unknown architecture")

	_, err = LoadConfig(writeConfig(t, "runtime: tensorrt"))
	require.ErrorContains(t, err, "Unknown runtime")
}
