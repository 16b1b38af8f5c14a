package imageprep

// Package imageprep converts images on disk into the float tensors that our networks consume.

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// FeatureScale maps mean-subtracted pixel values into roughly [-0.5, 0.5]
const FeatureScale = 1.0 / 256.0

// Preprocessor scales an image to the network size, subtracts the mean image, and
// writes the result in CHW order (all of R, then all of G, then all of B).
type Preprocessor struct {
	Width  int
	Height int
	Mean   []float32 // Either nil, or 3*Width*Height values in CHW order
	Scale  float32
}

// NewPreprocessor creates a Preprocessor with a constant mean
func NewPreprocessor(width, height int, mean float32) *Preprocessor {
	m := make([]float32, 3*width*height)
	for i := range m {
		m[i] = mean
	}
	return &Preprocessor{
		Width:  width,
		Height: height,
		Mean:   m,
		Scale:  FeatureScale,
	}
}

// Number of values in a tensor produced by this Preprocessor
func (p *Preprocessor) Size() int {
	return 3 * p.Width * p.Height
}

// Load decodes an image file (PNG or JPEG), and returns its tensor
func (p *Preprocessor) Load(filename string) ([]float32, error) {
	img, err := Decode(filename)
	if err != nil {
		return nil, err
	}
	return p.Tensor(img), nil
}

// Decode an image file
func Decode(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
	}
	return img, nil
}

// Scale an image to width x height with bilinear interpolation.
// The aspect ratio is not preserved.
func Scale(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Tensor scales img and converts it to a CHW float tensor
func (p *Preprocessor) Tensor(img image.Image) []float32 {
	rgb := Scale(img, p.Width, p.Height)
	plane := p.Width * p.Height
	t := make([]float32, 3*plane)
	for y := 0; y < p.Height; y++ {
		row := rgb.Pix[y*rgb.Stride : y*rgb.Stride+p.Width*4]
		for x := 0; x < p.Width; x++ {
			i := y*p.Width + x
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c])
				if p.Mean != nil {
					v -= p.Mean[c*plane+i]
				}
				t[c*plane+i] = v * p.Scale
			}
		}
	}
	return t
}
