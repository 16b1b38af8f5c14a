package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Runtime runs a Model in pure Go
type Runtime struct {
	model *Model
}

// NewRuntime wraps a model in a Classifier
func NewRuntime(model *Model) (*Runtime, error) {
	if len(model.Layers) == 0 {
		return nil, ErrEmptyModel
	}
	return &Runtime{model: model}, nil
}

func (r *Runtime) Close() {
}

func (r *Runtime) Config() *ModelConfig {
	return &r.model.Config
}

func (r *Runtime) Classify(tensor []float32) ([]float32, error) {
	if len(tensor) != r.model.Input.Size() {
		return nil, fmt.Errorf("Tensor has %v elements, but model expects %v (%v)", len(tensor), r.model.Input.Size(), r.model.Input)
	}
	x := mat.NewDense(1, len(tensor), nil)
	row := x.RawRowView(0)
	for i, v := range tensor {
		row[i] = float64(v)
	}
	logits, err := r.model.Forward(x)
	if err != nil {
		return nil, err
	}
	raw := logits.RawRowView(0)
	probs := make([]float32, len(raw))
	for i, v := range raw {
		probs[i] = float32(v)
	}
	Softmax(probs)
	return probs, nil
}
