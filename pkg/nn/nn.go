package nn

// Package nn is our neural network layer: a small feed-forward graph that we can train with
// gonum, save as ONNX (see the onnx package), and run either in pure Go or through an
// external inference runtime.

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
)

// Shape of an input image tensor, in CHW order
type Shape struct {
	Channels int `json:"channels"`
	Height   int `json:"height"`
	Width    int `json:"width"`
}

// Size is the number of elements in a tensor of this shape
func (s Shape) Size() int {
	return s.Channels * s.Height * s.Width
}

func (s Shape) String() string {
	return fmt.Sprintf("%vx%vx%v", s.Channels, s.Height, s.Width)
}

// ModelConfig is saved inside the model file, along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "mlp-256-64" or "cnn-16-32-mlp-64"
	Width        int      `json:"width"`        // eg 224
	Height       int      `json:"height"`       // eg 168
	Classes      []string `json:"classes"`      // eg ["move_forward", "left_medium", ...]
}

func (c *ModelConfig) Marshal() string {
	b, _ := json.Marshal(c)
	return string(b)
}

func UnmarshalModelConfig(s string) (*ModelConfig, error) {
	c := &ModelConfig{}
	if err := json.Unmarshal([]byte(s), c); err != nil {
		return nil, fmt.Errorf("Invalid model config: %w", err)
	}
	return c, nil
}

// Classifier is given an image tensor, and returns the probability of each class
type Classifier interface {
	// Close releases the runtime (some runtimes are C++ objects underneath)
	Close()

	// Classify returns one probability per class.
	// tensor must have Config().Width * Config().Height * 3 elements, in CHW order.
	Classify(tensor []float32) ([]float32, error)

	// Model Config. Callers assume that this does not change.
	Config() *ModelConfig
}

// Softmax converts logits to probabilities, in place
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	max := x[0]
	for _, v := range x[1:] {
		max = math32.Max(max, v)
	}
	sum := float32(0)
	for i, v := range x {
		x[i] = math32.Exp(v - max)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

// Argmax returns the index of the largest element, or -1 if x is empty
func Argmax(x []float32) int {
	best := -1
	for i, v := range x {
		if best == -1 || v > x[best] {
			best = i
		}
	}
	return best
}
