package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var ErrEmptyModel = errors.New("Model has no layers")

// Model is a feed-forward stack of layers over a flattened image tensor.
// The output of the last layer is the logits, one per class.
type Model struct {
	Input  Shape
	Layers []Layer
	Config ModelConfig
}

// ModelBuilder creates an untrained model for the given input shape and number of classes
type ModelBuilder func(input Shape, numClasses int, rng *rand.Rand) (*Model, error)

// MLP returns a builder for a multi-layer perceptron with ReLU activations between the
// hidden layers. With no hidden layers, this is multinomial logistic regression.
func MLP(hidden ...int) ModelBuilder {
	return func(input Shape, numClasses int, rng *rand.Rand) (*Model, error) {
		if input.Size() <= 0 {
			return nil, fmt.Errorf("Invalid input shape %v", input)
		}
		if numClasses < 1 {
			return nil, fmt.Errorf("Invalid number of classes %v", numClasses)
		}
		m := &Model{
			Input: input,
			Config: ModelConfig{
				Architecture: MLPName(hidden...),
				Width:        input.Width,
				Height:       input.Height,
			},
		}
		in := input.Size()
		for _, h := range hidden {
			if h <= 0 {
				return nil, fmt.Errorf("Invalid hidden layer size %v", h)
			}
			m.Layers = append(m.Layers, NewDense(in, h, rng), &ReLU{})
			in = h
		}
		m.Layers = append(m.Layers, NewDense(in, numClasses, rng))
		return m, nil
	}
}

// MLPName returns the architecture name of an MLP, eg "mlp-256-64"
func MLPName(hidden ...int) string {
	parts := []string{"mlp"}
	for _, h := range hidden {
		parts = append(parts, strconv.Itoa(h))
	}
	return strings.Join(parts, "-")
}

// CNN returns a builder for a small convolutional network. Every entry of conv adds a 3x3
// convolution with that many output channels, a ReLU, and a 2x2 max pool. The result is
// flattened into an MLP with the given hidden layers.
func CNN(conv []int, hidden []int) ModelBuilder {
	return func(input Shape, numClasses int, rng *rand.Rand) (*Model, error) {
		if len(conv) == 0 {
			return nil, fmt.Errorf("CNN needs at least one convolution")
		}
		if input.Size() <= 0 {
			return nil, fmt.Errorf("Invalid input shape %v", input)
		}
		if numClasses < 1 {
			return nil, fmt.Errorf("Invalid number of classes %v", numClasses)
		}
		m := &Model{
			Input: input,
			Config: ModelConfig{
				Architecture: CNNName(conv, hidden),
				Width:        input.Width,
				Height:       input.Height,
			},
		}
		shape := input
		for _, channels := range conv {
			if channels <= 0 {
				return nil, fmt.Errorf("Invalid number of channels %v", channels)
			}
			c := NewConv2D(shape, channels, ConvKernel, rng)
			pool := NewMaxPool(c.OutputShape(), PoolSize)
			shape = pool.OutputShape()
			if shape.Width < 1 || shape.Height < 1 {
				return nil, fmt.Errorf("Input %v is too small for %v convolution layers", input, len(conv))
			}
			m.Layers = append(m.Layers, c, &ReLU{}, pool)
		}
		in := shape.Size()
		for _, h := range hidden {
			if h <= 0 {
				return nil, fmt.Errorf("Invalid hidden layer size %v", h)
			}
			m.Layers = append(m.Layers, NewDense(in, h, rng), &ReLU{})
			in = h
		}
		m.Layers = append(m.Layers, NewDense(in, numClasses, rng))
		return m, nil
	}
}

// Geometry of the CNN blocks
const (
	ConvKernel = 3
	PoolSize   = 2
)

// CNNName returns the architecture name of a CNN, eg "cnn-16-32-mlp-64"
func CNNName(conv []int, hidden []int) string {
	parts := []string{"cnn"}
	for _, c := range conv {
		parts = append(parts, strconv.Itoa(c))
	}
	if len(hidden) != 0 {
		parts = append(parts, MLPName(hidden...))
	}
	return strings.Join(parts, "-")
}

// ParseArchitecture turns an architecture name like "mlp-256-64" or "cnn-16-32-mlp-64" back into a builder
func ParseArchitecture(name string) (ModelBuilder, error) {
	parts := strings.Split(name, "-")
	sizes := func(parts []string) ([]int, error) {
		r := []int{}
		for _, p := range parts {
			v, err := strconv.Atoi(p)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("Invalid layer size '%v' in architecture '%v'", p, name)
			}
			r = append(r, v)
		}
		return r, nil
	}
	switch parts[0] {
	case "mlp":
		hidden, err := sizes(parts[1:])
		if err != nil {
			return nil, err
		}
		return MLP(hidden...), nil
	case "cnn":
		rest := parts[1:]
		mlp := slices.Index(rest, "mlp")
		convParts := rest
		var hiddenParts []string
		if mlp >= 0 {
			convParts = rest[:mlp]
			hiddenParts = rest[mlp+1:]
			if len(hiddenParts) == 0 {
				return nil, fmt.Errorf("Architecture '%v' has no hidden layers after 'mlp'", name)
			}
		}
		if len(convParts) == 0 {
			return nil, fmt.Errorf("Architecture '%v' has no convolution layers", name)
		}
		conv, err := sizes(convParts)
		if err != nil {
			return nil, err
		}
		hidden, err := sizes(hiddenParts)
		if err != nil {
			return nil, err
		}
		return CNN(conv, hidden), nil
	}
	return nil, fmt.Errorf("Unknown architecture '%v'", name)
}

// NumClasses is the size of the output layer
func (m *Model) NumClasses() int {
	n := m.Input.Size()
	for _, l := range m.Layers {
		n = l.OutputSize(n)
	}
	return n
}

// Params returns all trainable parameters
func (m *Model) Params() []*Param {
	params := []*Param{}
	for _, l := range m.Layers {
		params = append(params, l.Params()...)
	}
	return params
}

// Forward computes the logits of a batch (batch x Input.Size())
func (m *Model) Forward(x *mat.Dense) (*mat.Dense, error) {
	if len(m.Layers) == 0 {
		return nil, ErrEmptyModel
	}
	if _, c := x.Dims(); c != m.Input.Size() {
		return nil, fmt.Errorf("Input has %v features, but model expects %v", c, m.Input.Size())
	}
	for _, l := range m.Layers {
		x = l.Forward(x)
	}
	return x, nil
}

// Backward propagates dLoss/dLogits through the model, accumulating parameter gradients
func (m *Model) Backward(grad *mat.Dense) {
	for i := len(m.Layers) - 1; i >= 0; i-- {
		grad = m.Layers[i].Backward(grad)
	}
}

// ZeroGrad clears the accumulated gradients
func (m *Model) ZeroGrad() {
	for _, p := range m.Params() {
		p.Grad.Zero()
	}
}

// CrossEntropy computes the mean softmax cross-entropy loss and the classification
// error of a batch of logits, and returns dLoss/dLogits.
func CrossEntropy(logits *mat.Dense, labels []int) (loss, errRate float64, grad *mat.Dense) {
	batch, classes := logits.Dims()
	grad = mat.NewDense(batch, classes, nil)
	if batch == 0 {
		return 0, 0, grad
	}
	nWrong := 0
	for i := 0; i < batch; i++ {
		row := logits.RawRowView(i)
		g := grad.RawRowView(i)
		max := row[0]
		best := 0
		for j, v := range row {
			if v > max {
				max = v
				best = j
			}
		}
		sum := 0.0
		for j, v := range row {
			g[j] = math.Exp(v - max)
			sum += g[j]
		}
		for j := range g {
			g[j] /= sum
		}
		loss -= math.Log(math.Max(g[labels[i]], 1e-30))
		g[labels[i]] -= 1
		for j := range g {
			g[j] /= float64(batch)
		}
		if best != labels[i] {
			nWrong++
		}
	}
	return loss / float64(batch), float64(nWrong) / float64(batch), grad
}
