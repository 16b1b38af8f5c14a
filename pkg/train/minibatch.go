package train

import (
	"fmt"
	"math/rand/v2"

	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/imageprep"
	"gonum.org/v1/gonum/mat"
)

// MinibatchSource yields minibatches from a manifest, loading images from disk on demand.
// When randomize is true, the order is reshuffled at the start of every sweep.
type MinibatchSource struct {
	entries   []dataset.Entry
	prep      *imageprep.Preprocessor
	rng       *rand.Rand
	randomize bool
	order     []int
	pos       int
}

func NewMinibatchSource(entries []dataset.Entry, prep *imageprep.Preprocessor, rng *rand.Rand, randomize bool) *MinibatchSource {
	s := &MinibatchSource{
		entries:   entries,
		prep:      prep,
		rng:       rng,
		randomize: randomize,
		order:     make([]int, len(entries)),
	}
	for i := range s.order {
		s.order[i] = i
	}
	s.startSweep()
	return s
}

func (s *MinibatchSource) startSweep() {
	if s.randomize {
		s.rng.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}
	s.pos = 0
}

// Number of entries in one sweep
func (s *MinibatchSource) Len() int {
	return len(s.entries)
}

// Next returns up to n examples as a (batch x features) matrix and their labels.
// A minibatch never straddles two sweeps.
func (s *MinibatchSource) Next(n int) (*mat.Dense, []int, error) {
	if len(s.entries) == 0 {
		return nil, nil, fmt.Errorf("Minibatch source is empty")
	}
	if s.pos == len(s.order) {
		s.startSweep()
	}
	n = min(n, len(s.order)-s.pos)
	x := mat.NewDense(n, s.prep.Size(), nil)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		e := s.entries[s.order[s.pos]]
		s.pos++
		tensor, err := s.prep.Load(e.Path)
		if err != nil {
			return nil, nil, err
		}
		row := x.RawRowView(i)
		for j, v := range tensor {
			row[j] = float64(v)
		}
		labels[i] = e.Class
	}
	return x, labels, nil
}
