package config

import (
	"fmt"
	"os"

	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/nn"
	"github.com/cyclopcam/autcar/pkg/train"
	"gopkg.in/yaml.v3"
)

// Inference runtimes
const (
	RuntimeGo     = "go"     // Pure Go graph evaluator
	RuntimeOpenCV = "opencv" // OpenCV DNN module, through gocv
)

const DefaultFilename = "autcar.yaml"

type Config struct {
	ImageWidth     int            `yaml:"imageWidth"`     // Width of the network input
	ImageHeight    int            `yaml:"imageHeight"`    // Height of the network input
	SplitRatio     float64        `yaml:"splitRatio"`     // Fraction of examples that go into the train set
	Seed           *uint64        `yaml:"seed"`           // If set, balancing and training are reproducible
	Architecture   string         `yaml:"architecture"`   // eg "mlp-256-64" or "cnn-16-32-mlp-64"
	Epochs         int            `yaml:"epochs"`         // Number of sweeps over the train set
	TrainMinibatch int            `yaml:"trainMinibatch"` // Training minibatch size
	TestMinibatch  int            `yaml:"testMinibatch"`  // Test minibatch size
	Momentum       float64        `yaml:"momentum"`       // SGD momentum
	L2Weight       float64        `yaml:"l2Weight"`       // L2 regularization of the weights
	Schedule       train.Schedule `yaml:"schedule"`       // Learning rate per epoch
	Runtime        string         `yaml:"runtime"`        // "go" or "opencv"
	PlotPath       string         `yaml:"plotPath"`       // If not empty, plot the training loss here
}

// Default returns the configuration that is used when there is no config file
func Default() *Config {
	t := train.NewOptions()
	return &Config{
		ImageWidth:     dataset.DefaultImageWidth,
		ImageHeight:    dataset.DefaultImageHeight,
		SplitRatio:     dataset.DefaultSplitRatio,
		Architecture:   nn.CNNName([]int{16, 32}, []int{64}),
		Epochs:         30,
		TrainMinibatch: t.TrainMinibatch,
		TestMinibatch:  t.TestMinibatch,
		Momentum:       t.Momentum,
		L2Weight:       t.L2Weight,
		Schedule:       t.Schedule,
		Runtime:        RuntimeGo,
	}
}

// LoadConfig reads a YAML config file. Fields that are missing from the file keep their default values.
// If filename is empty, we look for autcar.yaml in the current directory, and fall back to defaults if it doesn't exist.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		filename = DefaultFilename
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			return cfg, nil
		}
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as YAML %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("Invalid image size %v x %v", c.ImageWidth, c.ImageHeight)
	}
	if c.SplitRatio < 0 || c.SplitRatio > 1 {
		return fmt.Errorf("splitRatio must be between 0 and 1, but is %v", c.SplitRatio)
	}
	if _, err := nn.ParseArchitecture(c.Architecture); err != nil {
		return err
	}
	if c.TrainMinibatch <= 0 || c.TestMinibatch <= 0 {
		return fmt.Errorf("Minibatch sizes must be positive")
	}
	if len(c.Schedule) == 0 {
		return fmt.Errorf("Learning rate schedule is empty")
	}
	if c.Runtime != RuntimeGo && c.Runtime != RuntimeOpenCV {
		return fmt.Errorf("Unknown runtime '%v'. Valid values are '%v' and '%v'", c.Runtime, RuntimeGo, RuntimeOpenCV)
	}
	return nil
}

// BalanceOptions returns the options for dataset.CreateBalanced
func (c *Config) BalanceOptions() *dataset.Options {
	opt := dataset.NewOptions()
	opt.SplitRatio = c.SplitRatio
	opt.Seed = c.Seed
	opt.ImageWidth = c.ImageWidth
	opt.ImageHeight = c.ImageHeight
	return opt
}

// TrainOptions returns the options for train.Trainer
func (c *Config) TrainOptions() *train.Options {
	opt := train.NewOptions()
	opt.ImageWidth = c.ImageWidth
	opt.ImageHeight = c.ImageHeight
	opt.TrainMinibatch = c.TrainMinibatch
	opt.TestMinibatch = c.TestMinibatch
	opt.Momentum = c.Momentum
	opt.L2Weight = c.L2Weight
	opt.Schedule = c.Schedule
	opt.Seed = c.Seed
	opt.PlotPath = c.PlotPath
	return opt
}
