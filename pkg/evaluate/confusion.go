package evaluate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ConfusionMatrix counts predictions: rows are the ground truth, columns the prediction
type ConfusionMatrix struct {
	Classes []string
	Counts  *mat.Dense
}

func NewConfusionMatrix(classes []string) *ConfusionMatrix {
	return &ConfusionMatrix{
		Classes: classes,
		Counts:  mat.NewDense(len(classes), len(classes), nil),
	}
}

func (c *ConfusionMatrix) Add(truth, predicted int) {
	c.Counts.Set(truth, predicted, c.Counts.At(truth, predicted)+1)
}

// Total number of predictions
func (c *ConfusionMatrix) Total() int {
	return int(mat.Sum(c.Counts))
}

// Accuracy is the fraction of correct predictions over all classes
func (c *ConfusionMatrix) Accuracy() float64 {
	total := mat.Sum(c.Counts)
	if total == 0 {
		return math.NaN()
	}
	return mat.Trace(c.Counts) / total
}

// ClassStats are the one-vs-rest statistics of a single class.
// Undefined ratios (eg precision of a class that is never predicted) are NaN.
type ClassStats struct {
	Class     string
	Support   int // Number of ground truth examples
	Recall    float64
	Precision float64
	Accuracy  float64
	F1        float64
}

// Stats returns ClassStats for every class
func (c *ConfusionMatrix) Stats() []ClassStats {
	n := len(c.Classes)
	total := mat.Sum(c.Counts)
	stats := make([]ClassStats, n)
	for i := 0; i < n; i++ {
		tp := c.Counts.At(i, i)
		actual := mat.Sum(c.Counts.RowView(i))
		predicted := mat.Sum(c.Counts.ColView(i))
		fn := actual - tp
		fp := predicted - tp
		tn := total - tp - fn - fp
		s := ClassStats{
			Class:     c.Classes[i],
			Support:   int(actual),
			Recall:    ratio(tp, tp+fn),
			Precision: ratio(tp, tp+fp),
			Accuracy:  ratio(tp+tn, total),
		}
		s.F1 = ratio(2*s.Precision*s.Recall, s.Precision+s.Recall)
		stats[i] = s
	}
	return stats
}

func ratio(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return math.NaN()
	}
	return a / b
}
