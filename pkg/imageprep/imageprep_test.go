package imageprep

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestTensorLayout(t *testing.T) {
	p := NewPreprocessor(4, 2, 128)
	require.Equal(t, 24, p.Size())
	tensor := p.Tensor(solid(16, 8, color.RGBA{128, 192, 0, 255}))
	require.Len(t, tensor, 24)
	for i := 0; i < 8; i++ {
		require.InDelta(t, 0, tensor[i], 1e-6)
		require.InDelta(t, 64.0/256, tensor[8+i], 1e-6)
		require.InDelta(t, -128.0/256, tensor[16+i], 1e-6)
	}
}

func TestScaleKeepsTargetSize(t *testing.T) {
	dst := Scale(solid(7, 3, color.RGBA{10, 20, 30, 255}), 5, 9)
	require.Equal(t, image.Rect(0, 0, 5, 9), dst.Bounds())
	require.Equal(t, color.RGBA{10, 20, 30, 255}, dst.RGBAAt(2, 4))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "x.png")
	f, err := os.Create(filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(3, 3, color.RGBA{255, 255, 255, 255})))
	require.NoError(t, f.Close())

	p := NewPreprocessor(2, 2, 128)
	tensor, err := p.Load(filename)
	require.NoError(t, err)
	for _, v := range tensor {
		require.InDelta(t, 127.0/256, v, 1e-6)
	}

	_, err = p.Load(filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	notImage := filepath.Join(dir, "text.png")
	require.NoError(t, os.WriteFile(notImage, []byte("hello"), 0644))
	_, err = p.Load(notImage)
	require.Error(t, err)
}
