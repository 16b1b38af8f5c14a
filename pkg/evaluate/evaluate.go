package evaluate

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/imageprep"
	"github.com/cyclopcam/autcar/pkg/nn"
	"github.com/cyclopcam/autcar/pkg/onnx"
	"github.com/cyclopcam/logs"
)

var ErrBadTestMap = errors.New("Could not parse test map")

// Loader opens a model file in some inference runtime
type Loader func(filename string) (nn.Classifier, error)

// LoadGo loads an ONNX model into the pure Go runtime
func LoadGo(filename string) (nn.Classifier, error) {
	model, err := onnx.Load(filename)
	if err != nil {
		return nil, err
	}
	return nn.NewRuntime(model)
}

// Prediction of a single test image
type Prediction struct {
	Path      string
	Truth     int
	Predicted int
}

// Report of an evaluation run
type Report struct {
	Predictions []Prediction
	Skipped     []string // Images that could not be read
	Confusion   *ConfusionMatrix
}

// Evaluator runs a trained model over a test manifest
type Evaluator struct {
	Log      logs.Log
	Load     Loader
	Progress func(done, total int) // Optional
}

func NewEvaluator(log logs.Log) *Evaluator {
	return &Evaluator{
		Log:  log,
		Load: LoadGo,
	}
}

// Run predicts every image of the test manifest, and aggregates the predictions into a confusion matrix.
// Images that can't be read are logged and skipped.
func (e *Evaluator) Run(modelPath, testMapPath string) (*Report, error) {
	entries, err := dataset.ReadManifest(testMapPath)
	if err != nil {
		return nil, fmt.Errorf("%w %v. Did you provide a path to a valid %v file? (%v)", ErrBadTestMap, testMapPath, dataset.TestManifest, err)
	}

	classifier, err := e.Load(modelPath)
	if err != nil {
		return nil, err
	}
	defer classifier.Close()

	config := classifier.Config()
	classes := config.Classes
	if len(classes) == 0 {
		classes = command.Classes
	}
	prep := imageprep.NewPreprocessor(config.Width, config.Height, dataset.MeanPixelValue)

	report := &Report{
		Confusion: NewConfusionMatrix(classes),
	}
	for i, entry := range entries {
		if entry.Class < 0 || entry.Class >= len(classes) {
			return nil, fmt.Errorf("%w: class index %v of %v", command.ErrUnknownLabel, entry.Class, entry.Path)
		}
		if e.Progress != nil {
			e.Progress(i, len(entries))
		}
		tensor, err := prep.Load(entry.Path)
		if err != nil {
			e.Log.Warnf("Can't read %v: %v", entry.Path, err)
			report.Skipped = append(report.Skipped, entry.Path)
			continue
		}
		probs, err := classifier.Classify(tensor)
		if err != nil {
			return nil, err
		}
		predicted := nn.Argmax(probs)
		if predicted < 0 || predicted >= len(classes) {
			return nil, fmt.Errorf("Model produced %v outputs, but there are %v classes", len(probs), len(classes))
		}
		report.Predictions = append(report.Predictions, Prediction{
			Path:      entry.Path,
			Truth:     entry.Class,
			Predicted: predicted,
		})
		report.Confusion.Add(entry.Class, predicted)
	}
	if e.Progress != nil {
		e.Progress(len(entries), len(entries))
	}
	e.Log.Infof("Evaluated %v images (%v skipped), accuracy %.1f%%", len(report.Predictions), len(report.Skipped), report.Confusion.Accuracy()*100)
	return report, nil
}
