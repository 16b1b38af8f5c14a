package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSoftmax(t *testing.T) {
	x := []float32{1, 2, 3}
	Softmax(x)
	sum := float32(0)
	for _, v := range x {
		sum += v
	}
	require.InDelta(t, 1, sum, 1e-6)
	require.InDelta(t, 0.09003057, x[0], 1e-6)
	require.InDelta(t, 0.66524096, x[2], 1e-6)

	// Large logits must not overflow
	y := []float32{1000, 1000}
	Softmax(y)
	require.InDelta(t, 0.5, y[0], 1e-6)

	Softmax(nil)
}

func TestArgmax(t *testing.T) {
	require.Equal(t, -1, Argmax(nil))
	require.Equal(t, 2, Argmax([]float32{0.1, 0.2, 0.7}))
	require.Equal(t, 0, Argmax([]float32{0.5, 0.5}))
}

func TestCrossEntropy(t *testing.T) {
	logits := mat.NewDense(2, 2, []float64{0, 0, 10, 0})
	loss, errRate, grad := CrossEntropy(logits, []int{0, 1})
	expected := (math.Log(2) + (10 + math.Log(1+math.Exp(-10)))) / 2
	require.InDelta(t, expected, loss, 1e-9)
	// row 0 is a tie (argmax picks class 0, which is correct), row 1 is wrong
	require.InDelta(t, 0.5, errRate, 1e-9)
	require.InDelta(t, -0.25, grad.At(0, 0), 1e-9)
	require.InDelta(t, 0.25, grad.At(0, 1), 1e-9)
}

func TestArchitectureNames(t *testing.T) {
	require.Equal(t, "mlp", MLPName())
	require.Equal(t, "mlp-256-64", MLPName(256, 64))

	b, err := ParseArchitecture("mlp-8-4")
	require.NoError(t, err)
	m, err := b(Shape{3, 2, 2}, 5, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, m.Layers, 5)
	require.Equal(t, 5, m.NumClasses())
	require.Equal(t, "mlp-8-4", m.Config.Architecture)
	require.Len(t, m.Params(), 6)

	b, err = ParseArchitecture("cnn-16-32-mlp-64")
	require.NoError(t, err)
	m, err = b(Shape{3, 24, 32}, 4, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Equal(t, "cnn-16-32-mlp-64", m.Config.Architecture)
	require.Equal(t, CNNName([]int{16, 32}, []int{64}), m.Config.Architecture)
	// 2 x (conv, relu, pool) + dense, relu, dense
	require.Len(t, m.Layers, 9)
	require.Equal(t, Shape{32, 6, 8}, m.Layers[5].(SpatialLayer).OutputShape())
	require.Equal(t, 4, m.NumClasses())

	b, err = ParseArchitecture("cnn-8")
	require.NoError(t, err)
	m, err = b(Shape{1, 4, 4}, 2, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, m.Layers, 4)
	require.Equal(t, "cnn-8", m.Config.Architecture)

	for _, bad := range []string{"cnn", "cnn-mlp-4", "cnn-4-mlp", "cnn-x", "cnn-0-mlp-4", "rnn-4", "mlp-x", "mlp-0", "mlp-"} {
		_, err := ParseArchitecture(bad)
		require.Error(t, err, bad)
	}
}

func TestMLPErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := MLP()(Shape{}, 5, rng)
	require.Error(t, err)
	_, err = MLP()(Shape{3, 1, 1}, 0, rng)
	require.Error(t, err)
	_, err = MLP(-1)(Shape{3, 1, 1}, 2, rng)
	require.Error(t, err)
}

func TestCNNErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := CNN(nil, nil)(Shape{1, 4, 4}, 2, rng)
	require.Error(t, err)
	// A 4x4 image only survives two 2x2 pools
	_, err = CNN([]int{2, 2, 2}, nil)(Shape{1, 4, 4}, 2, rng)
	require.Error(t, err)
	_, err = CNN([]int{2}, nil)(Shape{1, 4, 4}, 0, rng)
	require.Error(t, err)
	_, err = CNN([]int{2}, []int{0})(Shape{1, 4, 4}, 2, rng)
	require.Error(t, err)
}

func TestConv2D(t *testing.T) {
	// An all-ones 3x3 kernel with 'same' padding sums each pixel's neighbourhood
	w := mat.NewDense(1, 9, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	c, err := NewConv2DFromWeights(Shape{1, 3, 3}, 3, 1, w, []float64{0.5})
	require.NoError(t, err)
	require.Equal(t, Shape{1, 3, 3}, c.OutputShape())

	x := mat.NewDense(1, 9, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	y := c.Forward(x)
	require.InDelta(t, 45.5, y.At(0, 4), 1e-9)
	require.InDelta(t, 1+2+4+5+0.5, y.At(0, 0), 1e-9)
	require.InDelta(t, 5+6+8+9+0.5, y.At(0, 8), 1e-9)
	require.InDelta(t, 1+2+3+4+5+6+0.5, y.At(0, 1), 1e-9)

	// Without padding there is only one output pixel
	c, err = NewConv2DFromWeights(Shape{1, 3, 3}, 3, 0, w, []float64{0})
	require.NoError(t, err)
	require.Equal(t, Shape{1, 1, 1}, c.OutputShape())
	require.InDelta(t, 45, c.Forward(x).At(0, 0), 1e-9)

	// The input gradient of a sum is the number of windows that each pixel is part of
	dx := c.Backward(mat.NewDense(1, 1, []float64{1}))
	require.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}, dx.RawRowView(0))
	require.Equal(t, x.RawRowView(0), c.W.Grad.RawRowView(0))
	require.Equal(t, 1.0, c.B.Grad.At(0, 0))

	_, err = NewConv2DFromWeights(Shape{2, 3, 3}, 3, 1, w, []float64{0})
	require.Error(t, err)
	_, err = NewConv2DFromWeights(Shape{1, 3, 3}, 3, 1, w, nil)
	require.Error(t, err)
	_, err = NewConv2DFromWeights(Shape{1, 2, 2}, 3, 0, w, []float64{0})
	require.Error(t, err)
}

func TestMaxPool(t *testing.T) {
	p := NewMaxPool(Shape{1, 3, 4}, 2)
	// The last row doesn't fill a window
	require.Equal(t, Shape{1, 1, 2}, p.OutputShape())
	require.Equal(t, 2, p.OutputSize(12))
	require.Nil(t, p.Params())

	x := mat.NewDense(2, 12, []float64{
		1, 9, 2, 3,
		4, 5, 7, 6,
		99, 99, 99, 99,

		-1, -2, -3, -4,
		-5, -6, -7, -8,
		0, 0, 0, 0,
	})
	y := p.Forward(x)
	require.Equal(t, []float64{9, 7}, y.RawRowView(0))
	require.Equal(t, []float64{-1, -3}, y.RawRowView(1))

	dx := p.Backward(mat.NewDense(2, 2, []float64{10, 20, 30, 40}))
	require.Equal(t, []float64{0, 10, 0, 0, 0, 0, 20, 0, 0, 0, 0, 0}, dx.RawRowView(0))
	require.Equal(t, []float64{30, 0, 40, 0, 0, 0, 0, 0, 0, 0, 0, 0}, dx.RawRowView(1))
}

// Compare analytic gradients with finite differences
func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	m, err := MLP(5)(Shape{3, 1, 2}, 3, rng)
	require.NoError(t, err)
	checkGradients(t, m, rng, []int{0, 2, 1, 2})
}

func TestCNNGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	m, err := CNN([]int{2}, []int{3})(Shape{2, 4, 4}, 3, rng)
	require.NoError(t, err)
	require.Len(t, m.Params(), 6)
	checkGradients(t, m, rng, []int{1, 0, 2})
}

func checkGradients(t *testing.T, m *Model, rng *rand.Rand, labels []int) {
	x := mat.NewDense(len(labels), m.Input.Size(), nil)
	for i := 0; i < len(labels); i++ {
		for j := 0; j < m.Input.Size(); j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}

	lossOf := func() float64 {
		logits, err := m.Forward(x)
		require.NoError(t, err)
		loss, _, _ := CrossEntropy(logits, labels)
		return loss
	}

	m.ZeroGrad()
	logits, err := m.Forward(x)
	require.NoError(t, err)
	_, _, grad := CrossEntropy(logits, labels)
	m.Backward(grad)

	const eps = 1e-6
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.Value.At(i, j)
				p.Value.Set(i, j, orig+eps)
				plus := lossOf()
				p.Value.Set(i, j, orig-eps)
				minus := lossOf()
				p.Value.Set(i, j, orig)
				numeric := (plus - minus) / (2 * eps)
				require.InDelta(t, numeric, p.Grad.At(i, j), 1e-5, "%v[%v,%v]", p.Name, i, j)
			}
		}
	}
}

func TestForwardErrors(t *testing.T) {
	m := &Model{Input: Shape{1, 1, 2}}
	_, err := m.Forward(mat.NewDense(1, 2, nil))
	require.ErrorIs(t, err, ErrEmptyModel)

	m, err = MLP()(Shape{1, 1, 2}, 2, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	_, err = m.Forward(mat.NewDense(1, 3, nil))
	require.Error(t, err)
}

func TestRuntime(t *testing.T) {
	w := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 0, 1,
	})
	m := &Model{
		Input:  Shape{3, 1, 1},
		Layers: []Layer{NewDenseFromWeights(w, []float64{0, 0.5})},
		Config: ModelConfig{Classes: []string{"a", "b"}},
	}
	rt, err := NewRuntime(m)
	require.NoError(t, err)
	defer rt.Close()
	require.Equal(t, []string{"a", "b"}, rt.Config().Classes)

	probs, err := rt.Classify([]float32{2, 7, 0})
	require.NoError(t, err)
	require.Equal(t, 0, Argmax(probs))
	probs, err = rt.Classify([]float32{0, 7, 1})
	require.NoError(t, err)
	require.Equal(t, 1, Argmax(probs))

	_, err = rt.Classify([]float32{1})
	require.Error(t, err)

	_, err = NewRuntime(&Model{})
	require.ErrorIs(t, err, ErrEmptyModel)
}
