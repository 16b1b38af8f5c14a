package train

import (
	"math/rand/v2"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/imageprep"
	"github.com/stretchr/testify/require"
)

func TestMinibatchSweeps(t *testing.T) {
	folder := makeBalancedFolder(t, 5, 5)
	train, err := dataset.ReadManifest(filepath.Join(folder, dataset.TrainManifest))
	require.NoError(t, err)
	test, err := dataset.ReadManifest(filepath.Join(folder, dataset.TestManifest))
	require.NoError(t, err)
	entries := append(train, test...)
	require.Len(t, entries, 10)

	prep := imageprep.NewPreprocessor(testWidth, testHeight, dataset.MeanPixelValue)
	src := NewMinibatchSource(entries, prep, rand.New(rand.NewPCG(1, 1)), true)
	require.Equal(t, 10, src.Len())

	// A sweep is 4 + 4 + 2, and the next call starts a new sweep
	sizes := []int{}
	labels := []int{}
	for i := 0; i < 3; i++ {
		x, l, err := src.Next(4)
		require.NoError(t, err)
		rows, cols := x.Dims()
		require.Equal(t, prep.Size(), cols)
		sizes = append(sizes, rows)
		labels = append(labels, l...)
	}
	require.Equal(t, []int{4, 4, 2}, sizes)
	sort.Ints(labels)
	require.Equal(t, []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}, labels)

	_, l, err := src.Next(4)
	require.NoError(t, err)
	require.Len(t, l, 4)

	empty := NewMinibatchSource(nil, prep, rand.New(rand.NewPCG(1, 1)), false)
	_, _, err = empty.Next(1)
	require.Error(t, err)
}
