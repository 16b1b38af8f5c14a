package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Layer is one stage of a feed-forward model.
// All activations are (batch x features) matrices.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	// Backward receives dLoss/dOutput of the most recent Forward, accumulates parameter
	// gradients, and returns dLoss/dInput.
	Backward(grad *mat.Dense) *mat.Dense
	Params() []*Param
	OutputSize(inputSize int) int
}

// Param is a trainable matrix with its gradient and momentum state
type Param struct {
	Name     string
	Value    *mat.Dense
	Grad     *mat.Dense
	Velocity *mat.Dense
	Decay    bool // Apply L2 regularization (weights yes, biases no)
}

func newParam(name string, rows, cols int, decay bool) *Param {
	return &Param{
		Name:     name,
		Value:    mat.NewDense(rows, cols, nil),
		Grad:     mat.NewDense(rows, cols, nil),
		Velocity: mat.NewDense(rows, cols, nil),
		Decay:    decay,
	}
}

// Dense is a fully connected layer, y = x·Wᵀ + b
type Dense struct {
	W     *Param // (out x in)
	B     *Param // (1 x out)
	input *mat.Dense
}

// NewDense creates a fully connected layer, with He initialization of the weights
func NewDense(in, out int, rng *rand.Rand) *Dense {
	d := &Dense{
		W: newParam("weight", out, in, true),
		B: newParam("bias", 1, out, false),
	}
	std := math.Sqrt(2 / float64(in))
	raw := d.W.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = rng.NormFloat64() * std
	}
	return d
}

// NewDenseFromWeights wraps existing weights (out x in) and biases (out)
func NewDenseFromWeights(w *mat.Dense, b []float64) *Dense {
	out, in := w.Dims()
	d := &Dense{
		W: newParam("weight", out, in, true),
		B: newParam("bias", 1, out, false),
	}
	d.W.Value.Copy(w)
	d.B.Value.SetRow(0, b)
	return d
}

func (d *Dense) InputSize() int {
	_, in := d.W.Value.Dims()
	return in
}

func (d *Dense) OutputSize(inputSize int) int {
	out, _ := d.W.Value.Dims()
	return out
}

func (d *Dense) Params() []*Param {
	return []*Param{d.W, d.B}
}

func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	d.input = x
	batch, _ := x.Dims()
	out, _ := d.W.Value.Dims()
	y := mat.NewDense(batch, out, nil)
	y.Mul(x, d.W.Value.T())
	bias := d.B.Value.RawRowView(0)
	for i := 0; i < batch; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return y
}

func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(grad.T(), d.input)
	d.W.Grad.Add(d.W.Grad, &dw)

	batch, out := grad.Dims()
	db := d.B.Grad.RawRowView(0)
	for i := 0; i < batch; i++ {
		row := grad.RawRowView(i)
		for j := 0; j < out; j++ {
			db[j] += row[j]
		}
	}

	_, in := d.W.Value.Dims()
	dx := mat.NewDense(batch, in, nil)
	dx.Mul(grad, d.W.Value)
	return dx
}

// ReLU is max(0, x)
type ReLU struct {
	input *mat.Dense
}

func (r *ReLU) OutputSize(inputSize int) int {
	return inputSize
}

func (r *ReLU) Params() []*Param {
	return nil
}

func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	r.input = x
	y := mat.DenseCopyOf(x)
	y.Apply(func(i, j int, v float64) float64 {
		return math.Max(0, v)
	}, y)
	return y
}

func (r *ReLU) Backward(grad *mat.Dense) *mat.Dense {
	dx := mat.DenseCopyOf(grad)
	dx.Apply(func(i, j int, v float64) float64 {
		if r.input.At(i, j) > 0 {
			return v
		}
		return 0
	}, dx)
	return dx
}
