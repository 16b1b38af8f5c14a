package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/imageprep"
	"github.com/cyclopcam/autcar/pkg/nn"
	"github.com/cyclopcam/autcar/pkg/onnx"
	"github.com/cyclopcam/autcar/pkg/perfstats"
	"github.com/cyclopcam/autcar/pkg/storage"
	"github.com/cyclopcam/logs"
)

const (
	DefaultTrainMinibatch = 64
	DefaultTestMinibatch  = 16
	DefaultMomentum       = 0.9
	DefaultL2Weight       = 0.001
)

var ErrEmptyTrainSet = errors.New("Train manifest is empty")

// Options of a training run
type Options struct {
	ImageWidth     int
	ImageHeight    int
	TrainMinibatch int
	TestMinibatch  int
	Momentum       float64
	L2Weight       float64
	Schedule       Schedule
	Seed           *uint64 // If not nil, weight initialization and shuffling are reproducible
	PlotPath       string  // If not empty, write a plot of the minibatch loss and error here
}

// Create a default Options object
func NewOptions() *Options {
	return &Options{
		ImageWidth:     dataset.DefaultImageWidth,
		ImageHeight:    dataset.DefaultImageHeight,
		TrainMinibatch: DefaultTrainMinibatch,
		TestMinibatch:  DefaultTestMinibatch,
		Momentum:       DefaultMomentum,
		L2Weight:       DefaultL2Weight,
		Schedule:       DefaultSchedule(),
	}
}

// BatchStats are the loss and classification error of one training minibatch
type BatchStats struct {
	Index   int
	Samples int
	Loss    float64
	Error   float64
}

// EpochStats are averaged over all samples of an epoch
type EpochStats struct {
	Epoch        int
	LearningRate float64
	Samples      int
	Loss         float64
	Error        float64
}

// Result of a training run
type Result struct {
	Model     *nn.Model
	Epochs    []EpochStats
	History   []BatchStats
	NumTest   int
	TestError float64 // Fraction of misclassified test samples
}

// Trainer trains a classifier on a balanced dataset
type Trainer struct {
	Log     logs.Log
	Options *Options
}

func NewTrainer(log logs.Log, options *Options) *Trainer {
	if options == nil {
		options = NewOptions()
	}
	return &Trainer{
		Log:     log,
		Options: options,
	}
}

// Train a model on the balanced dataset in folder, and save it as ONNX to outputPath
// (a local path or gs://bucket/object).
func (t *Trainer) Train(folder string, builder nn.ModelBuilder, epochs int, outputPath string) (*Result, error) {
	opt := t.Options
	folder = strings.TrimRight(folder, "/")
	if epochs < 1 {
		return nil, fmt.Errorf("Invalid number of epochs %v", epochs)
	}
	if opt.TrainMinibatch < 1 || opt.TestMinibatch < 1 {
		return nil, fmt.Errorf("Invalid minibatch sizes %v, %v", opt.TrainMinibatch, opt.TestMinibatch)
	}

	trainSet, err := dataset.ReadManifest(filepath.Join(folder, dataset.TrainManifest))
	if err != nil {
		return nil, fmt.Errorf("%w in path %v. Did you create a dataset with 'autcar balance'? (%v)", dataset.ErrNotBalanced, folder, err)
	}
	if len(trainSet) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmptyTrainSet, folder)
	}
	testSet, err := dataset.ReadManifest(filepath.Join(folder, dataset.TestManifest))
	if err != nil {
		return nil, err
	}
	// The output layer covers every class that either manifest names
	numClasses, err := outputClasses(slices.Concat(trainSet, testSet))
	if err != nil {
		return nil, err
	}

	mean, err := dataset.ReadMeanImage(filepath.Join(folder, dataset.MeanFile))
	if err != nil {
		return nil, err
	}
	if mean.Width != opt.ImageWidth || mean.Height != opt.ImageHeight || mean.Channels != 3 {
		return nil, fmt.Errorf("Mean file is %vx%vx%v, but training at %vx%vx3", mean.Width, mean.Height, mean.Channels, opt.ImageWidth, opt.ImageHeight)
	}
	prep := &imageprep.Preprocessor{
		Width:  opt.ImageWidth,
		Height: opt.ImageHeight,
		Mean:   mean.Data,
		Scale:  imageprep.FeatureScale,
	}

	rng := newRand(opt.Seed)
	model, err := builder(nn.Shape{Channels: 3, Height: opt.ImageHeight, Width: opt.ImageWidth}, numClasses, rng)
	if err != nil {
		return nil, err
	}
	model.Config.Width = opt.ImageWidth
	model.Config.Height = opt.ImageHeight
	model.Config.Classes = command.Classes[:numClasses]
	t.Log.Infof("Training %v on %v samples, %v classes, %v epochs", model.Config.Architecture, len(trainSet), numClasses, epochs)

	result := &Result{Model: model}
	source := NewMinibatchSource(trainSet, prep, rng, true)
	epochSize := source.Len()
	for epoch := 0; epoch < epochs; epoch++ {
		stats := EpochStats{
			Epoch:        epoch,
			LearningRate: opt.Schedule.Rate(epoch),
		}
		loss := perfstats.Accumulator{}
		errs := perfstats.Accumulator{}
		batchTime := perfstats.TimeAccumulator{}
		for int(loss.Samples) < epochSize {
			start := time.Now()
			x, labels, err := source.Next(min(opt.TrainMinibatch, epochSize-int(loss.Samples)))
			if err != nil {
				return nil, err
			}
			model.ZeroGrad()
			logits, err := model.Forward(x)
			if err != nil {
				return nil, err
			}
			batchLoss, batchErr, grad := nn.CrossEntropy(logits, labels)
			model.Backward(grad)
			t.update(model, stats.LearningRate)
			batchTime.Since(start)

			n := len(labels)
			result.History = append(result.History, BatchStats{
				Index:   len(result.History),
				Samples: n,
				Loss:    batchLoss,
				Error:   batchErr,
			})
			loss.AddSamples(batchLoss, n)
			errs.AddSamples(batchErr, n)
		}
		stats.Samples = int(loss.Samples)
		stats.Loss = loss.Average()
		stats.Error = errs.Average()
		result.Epochs = append(result.Epochs, stats)
		t.Log.Infof("Epoch[%v of %v]: lr = %v, loss = %.6f, errs = %.2f%% * %v, %v per minibatch", epoch+1, epochs, stats.LearningRate, stats.Loss, stats.Error*100, stats.Samples, batchTime.Average().Round(time.Microsecond))
	}

	if len(testSet) == 0 {
		t.Log.Warnf("Test manifest of %v is empty, skipping evaluation", folder)
	} else {
		result.NumTest = len(testSet)
		if result.TestError, err = testError(model, testSet, prep, rng, opt.TestMinibatch); err != nil {
			return nil, err
		}
		t.Log.Infof("Final Results: errs = %.1f%% * %v", result.TestError*100, result.NumTest)
	}

	if opt.PlotPath != "" {
		if err := PlotHistory(result.History, opt.PlotPath); err != nil {
			return nil, err
		}
	}

	b, err := onnx.Encode(model)
	if err != nil {
		return nil, err
	}
	if err := storage.WriteFile(context.Background(), t.Log, outputPath, b); err != nil {
		return nil, err
	}
	t.Log.Infof("Saved model to %v", outputPath)
	return result, nil
}

// update applies one momentum SGD step with L2 regularization on the weights
func (t *Trainer) update(model *nn.Model, lr float64) {
	momentum := t.Options.Momentum
	l2 := t.Options.L2Weight
	for _, p := range model.Params() {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		velocity := p.Velocity.RawMatrix().Data
		for i := range value {
			g := grad[i]
			if p.Decay {
				g += l2 * value[i]
			}
			velocity[i] = momentum*velocity[i] - lr*g
			value[i] += velocity[i]
		}
	}
}

// testError returns the fraction of misclassified samples
func testError(model *nn.Model, entries []dataset.Entry, prep *imageprep.Preprocessor, rng *rand.Rand, minibatch int) (float64, error) {
	numClasses := model.NumClasses()
	for _, e := range entries {
		if e.Class < 0 || e.Class >= numClasses {
			return 0, fmt.Errorf("%w: class index %v in %v is outside the model's %v classes", command.ErrUnknownLabel, e.Class, e.Path, numClasses)
		}
	}
	source := NewMinibatchSource(entries, prep, rng, false)
	errs := perfstats.Accumulator{}
	for int(errs.Samples) < source.Len() {
		x, labels, err := source.Next(min(minibatch, source.Len()-int(errs.Samples)))
		if err != nil {
			return 0, err
		}
		logits, err := model.Forward(x)
		if err != nil {
			return 0, err
		}
		_, errRate, _ := nn.CrossEntropy(logits, labels)
		errs.AddSamples(errRate, len(labels))
	}
	return errs.Average(), nil
}

// outputClasses returns the size of the output layer.
// This is the number of distinct classes, but never less than the highest class index + 1,
// otherwise a dataset that lacks a class in the middle would produce out of range labels.
func outputClasses(entries []dataset.Entry) (int, error) {
	distinct := map[int]bool{}
	highest := -1
	for _, e := range entries {
		if e.Class < 0 || e.Class >= len(command.Classes) {
			return 0, fmt.Errorf("%w: class index %v in %v", command.ErrUnknownLabel, e.Class, e.Path)
		}
		distinct[e.Class] = true
		highest = max(highest, e.Class)
	}
	return max(len(distinct), highest+1), nil
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
