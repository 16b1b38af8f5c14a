package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// SpatialLayer is a layer that operates on CHW images, and knows the shape of its output
type SpatialLayer interface {
	Layer
	InputShape() Shape
	OutputShape() Shape
}

// Conv2D is a 2D convolution with stride 1 and zero padding.
// Each row of the input and output is one image in CHW order.
type Conv2D struct {
	In     Shape
	Kernel int    // Kernel is Kernel x Kernel
	Pad    int    // Zero padding on every edge
	W      *Param // (out x In.Channels*Kernel*Kernel), in (channel, ky, kx) order
	B      *Param // (1 x out)
	input  *mat.Dense
}

// NewConv2D creates a convolution with 'same' padding, and He initialization of the weights
func NewConv2D(in Shape, out, kernel int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		In:     in,
		Kernel: kernel,
		Pad:    kernel / 2,
		W:      newParam("weight", out, in.Channels*kernel*kernel, true),
		B:      newParam("bias", 1, out, false),
	}
	std := math.Sqrt(2 / float64(in.Channels*kernel*kernel))
	raw := c.W.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = rng.NormFloat64() * std
	}
	return c
}

// NewConv2DFromWeights wraps existing weights (out x in.Channels*kernel*kernel) and biases (out)
func NewConv2DFromWeights(in Shape, kernel, pad int, w *mat.Dense, b []float64) (*Conv2D, error) {
	out, cols := w.Dims()
	if cols != in.Channels*kernel*kernel {
		return nil, fmt.Errorf("Conv2D weights have %v columns, but %v input channels with a %vx%v kernel need %v", cols, in.Channels, kernel, kernel, in.Channels*kernel*kernel)
	}
	if len(b) != out {
		return nil, fmt.Errorf("Conv2D bias has %v elements, expected %v", len(b), out)
	}
	if kernel < 1 || pad < 0 || in.Height+2*pad < kernel || in.Width+2*pad < kernel {
		return nil, fmt.Errorf("Invalid Conv2D kernel %v with padding %v on %v input", kernel, pad, in)
	}
	c := &Conv2D{
		In:     in,
		Kernel: kernel,
		Pad:    pad,
		W:      newParam("weight", out, cols, true),
		B:      newParam("bias", 1, out, false),
	}
	c.W.Value.Copy(w)
	c.B.Value.SetRow(0, b)
	return c, nil
}

func (c *Conv2D) InputShape() Shape {
	return c.In
}

func (c *Conv2D) OutputShape() Shape {
	out, _ := c.W.Value.Dims()
	return Shape{
		Channels: out,
		Height:   c.In.Height + 2*c.Pad - c.Kernel + 1,
		Width:    c.In.Width + 2*c.Pad - c.Kernel + 1,
	}
}

func (c *Conv2D) OutputSize(inputSize int) int {
	return c.OutputShape().Size()
}

func (c *Conv2D) Params() []*Param {
	return []*Param{c.W, c.B}
}

// im2col lays out every receptive field of one image as a column
func (c *Conv2D) im2col(img []float64, cols *mat.Dense) {
	out := c.OutputShape()
	k := c.Kernel
	in := c.In
	for ch := 0; ch < in.Channels; ch++ {
		plane := img[ch*in.Height*in.Width : (ch+1)*in.Height*in.Width]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := cols.RawRowView((ch*k+ky)*k + kx)
				for oy := 0; oy < out.Height; oy++ {
					iy := oy + ky - c.Pad
					for ox := 0; ox < out.Width; ox++ {
						ix := ox + kx - c.Pad
						v := 0.0
						if iy >= 0 && iy < in.Height && ix >= 0 && ix < in.Width {
							v = plane[iy*in.Width+ix]
						}
						row[oy*out.Width+ox] = v
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it sums every column back into the image it came from
func (c *Conv2D) col2im(cols *mat.Dense, img []float64) {
	out := c.OutputShape()
	k := c.Kernel
	in := c.In
	for ch := 0; ch < in.Channels; ch++ {
		plane := img[ch*in.Height*in.Width : (ch+1)*in.Height*in.Width]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := cols.RawRowView((ch*k+ky)*k + kx)
				for oy := 0; oy < out.Height; oy++ {
					iy := oy + ky - c.Pad
					if iy < 0 || iy >= in.Height {
						continue
					}
					for ox := 0; ox < out.Width; ox++ {
						ix := ox + kx - c.Pad
						if ix >= 0 && ix < in.Width {
							plane[iy*in.Width+ix] += row[oy*out.Width+ox]
						}
					}
				}
			}
		}
	}
}

func (c *Conv2D) Forward(x *mat.Dense) *mat.Dense {
	c.input = x
	batch, _ := x.Dims()
	outShape := c.OutputShape()
	nOut := outShape.Channels
	pixels := outShape.Height * outShape.Width
	_, fieldSize := c.W.Value.Dims()
	cols := mat.NewDense(fieldSize, pixels, nil)
	y := mat.NewDense(batch, outShape.Size(), nil)
	bias := c.B.Value.RawRowView(0)
	for i := 0; i < batch; i++ {
		c.im2col(x.RawRowView(i), cols)
		yi := mat.NewDense(nOut, pixels, y.RawRowView(i))
		yi.Mul(c.W.Value, cols)
		for o := 0; o < nOut; o++ {
			row := yi.RawRowView(o)
			for j := range row {
				row[j] += bias[o]
			}
		}
	}
	return y
}

func (c *Conv2D) Backward(grad *mat.Dense) *mat.Dense {
	batch, _ := grad.Dims()
	outShape := c.OutputShape()
	nOut := outShape.Channels
	pixels := outShape.Height * outShape.Width
	_, fieldSize := c.W.Value.Dims()
	cols := mat.NewDense(fieldSize, pixels, nil)
	dcols := mat.NewDense(fieldSize, pixels, nil)
	var dw mat.Dense
	db := c.B.Grad.RawRowView(0)
	dx := mat.NewDense(batch, c.In.Size(), nil)
	for i := 0; i < batch; i++ {
		gi := mat.NewDense(nOut, pixels, grad.RawRowView(i))
		c.im2col(c.input.RawRowView(i), cols)
		dw.Mul(gi, cols.T())
		c.W.Grad.Add(c.W.Grad, &dw)
		for o := 0; o < nOut; o++ {
			for _, v := range gi.RawRowView(o) {
				db[o] += v
			}
		}
		dcols.Mul(c.W.Value.T(), gi)
		c.col2im(dcols, dx.RawRowView(i))
	}
	return dx
}

// MaxPool takes the maximum of non-overlapping Size x Size windows.
// Rows and columns that don't fill a whole window are dropped.
type MaxPool struct {
	In     Shape
	Size   int
	argmax []int // Index into the input row of every output element, for the most recent Forward
}

func NewMaxPool(in Shape, size int) *MaxPool {
	return &MaxPool{In: in, Size: size}
}

func (p *MaxPool) InputShape() Shape {
	return p.In
}

func (p *MaxPool) OutputShape() Shape {
	return Shape{
		Channels: p.In.Channels,
		Height:   p.In.Height / p.Size,
		Width:    p.In.Width / p.Size,
	}
}

func (p *MaxPool) OutputSize(inputSize int) int {
	return p.OutputShape().Size()
}

func (p *MaxPool) Params() []*Param {
	return nil
}

func (p *MaxPool) Forward(x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	in := p.In
	out := p.OutputShape()
	nOut := out.Size()
	y := mat.NewDense(batch, nOut, nil)
	p.argmax = make([]int, batch*nOut)
	for i := 0; i < batch; i++ {
		src := x.RawRowView(i)
		dst := y.RawRowView(i)
		arg := p.argmax[i*nOut : (i+1)*nOut]
		for ch := 0; ch < out.Channels; ch++ {
			for oy := 0; oy < out.Height; oy++ {
				for ox := 0; ox < out.Width; ox++ {
					best := -1
					for dy := 0; dy < p.Size; dy++ {
						for dx := 0; dx < p.Size; dx++ {
							j := (ch*in.Height+oy*p.Size+dy)*in.Width + ox*p.Size + dx
							if best < 0 || src[j] > src[best] {
								best = j
							}
						}
					}
					o := (ch*out.Height+oy)*out.Width + ox
					dst[o] = src[best]
					arg[o] = best
				}
			}
		}
	}
	return y
}

func (p *MaxPool) Backward(grad *mat.Dense) *mat.Dense {
	batch, nOut := grad.Dims()
	dx := mat.NewDense(batch, p.In.Size(), nil)
	for i := 0; i < batch; i++ {
		g := grad.RawRowView(i)
		d := dx.RawRowView(i)
		for o, j := range p.argmax[i*nOut : (i+1)*nOut] {
			d[j] += g[o]
		}
	}
	return dx
}
