package evaluate

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fogleman/gg"
)

// WriteText writes the confusion matrix and per-class statistics as a plain text table
func (c *ConfusionMatrix) WriteText(w io.Writer) error {
	width := len("truth\\predicted")
	for _, name := range c.Classes {
		width = max(width, len(name)+2)
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "%-*s", width, "truth\\predicted")
	for i := range c.Classes {
		fmt.Fprintf(&b, " %6d", i)
	}
	b.WriteString("\n")
	for i, name := range c.Classes {
		fmt.Fprintf(&b, "%-*s", width, fmt.Sprintf("%d %s", i, name))
		for j := range c.Classes {
			fmt.Fprintf(&b, " %6.0f", c.Counts.At(i, j))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-*s %8s %9s %9s %9s %9s\n", width, "class", "support", "recall", "precision", "accuracy", "f1")
	for _, s := range c.Stats() {
		fmt.Fprintf(&b, "%-*s %8d %9s %9s %9s %9s\n", width, s.Class, s.Support, percent(s.Recall), percent(s.Precision), percent(s.Accuracy), percent(s.F1))
	}
	fmt.Fprintf(&b, "\noverall accuracy %v over %v images\n", percent(c.Accuracy()), c.Total())
	_, err := io.WriteString(w, b.String())
	return err
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

// Geometry of the rendered confusion matrix
const (
	cellSize    = 64
	labelWidth  = 140
	headerSize  = 40
	footerSize  = 30
	imageMargin = 10
)

// SavePNG renders the confusion matrix as a heat map.
// Each row is shaded relative to its own support, so the diagonal reads as recall.
func (c *ConfusionMatrix) SavePNG(filename string) error {
	n := len(c.Classes)
	w := labelWidth + n*cellSize + imageMargin
	h := headerSize + n*cellSize + footerSize
	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for j := 0; j < n; j++ {
		dc.SetRGB(0, 0, 0)
		x := float64(labelWidth + j*cellSize + cellSize/2)
		dc.DrawStringAnchored(shortName(c.Classes[j]), x, headerSize/2, 0.5, 0.5)
	}

	for i := 0; i < n; i++ {
		y := float64(headerSize + i*cellSize)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(c.Classes[i], imageMargin, y+cellSize/2, 0, 0.5)
		support := 0.0
		for j := 0; j < n; j++ {
			support += c.Counts.At(i, j)
		}
		for j := 0; j < n; j++ {
			x := float64(labelWidth + j*cellSize)
			count := c.Counts.At(i, j)
			intensity := 0.0
			if support > 0 {
				intensity = count / support
			}
			if i == j {
				dc.SetRGB(1-intensity, 1-0.4*intensity, 1-intensity)
			} else {
				dc.SetRGB(1, 1-intensity, 1-intensity)
			}
			dc.DrawRectangle(x, y, cellSize, cellSize)
			dc.Fill()
			dc.SetRGB(0.6, 0.6, 0.6)
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, cellSize, cellSize)
			dc.Stroke()
			if intensity > 0.6 {
				dc.SetRGB(1, 1, 1)
			} else {
				dc.SetRGB(0, 0, 0)
			}
			dc.DrawStringAnchored(fmt.Sprintf("%.0f", count), x+cellSize/2, y+cellSize/2, 0.5, 0.5)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("accuracy %v, %v images", percent(c.Accuracy()), c.Total()), imageMargin, float64(h-footerSize/2), 0, 0.5)
	return dc.SavePNG(filename)
}

// shortName truncates long class names to fit a column header
func shortName(name string) string {
	if len(name) <= 9 {
		return name
	}
	return name[:9]
}
