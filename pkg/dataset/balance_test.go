package dataset

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const (
	rowForward   = `{'type': 'move', 'direction': 'forward'}`
	rowBackwards = `{'type': 'move', 'direction': 'backwards'}`
	rowStop      = `{'type': 'stop'}`
	rowLeftMed   = `{'type': 'left', 'style': 'medium'}`
	rowRightMed  = `{'type': 'right', 'style': 'medium'}`
	rowLeftLight = `{'type': 'left', 'style': 'light'}`
	rowRightLite = `{'type': 'right', 'style': 'light'}`
	rowMalformed = `{'type': 'move', 'direction'`
)

func writePNG(t *testing.T, filename string, shade uint8) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{shade, uint8(x * 20), uint8(y * 30), 255})
		}
	}
	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// makeRecording creates a recording folder with one image per descriptor
func makeRecording(t *testing.T, descriptors []string) string {
	dir := t.TempDir()
	csv := strings.Builder{}
	for i, d := range descriptors {
		name := fmt.Sprintf("frame_%v.png", i)
		writePNG(t, filepath.Join(dir, name), uint8(i))
		csv.WriteString(name + ";" + d + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, SourceManifest), []byte(csv.String()), 0644))
	return dir
}

func repeat(d string, n int) []string {
	r := make([]string, n)
	for i := range r {
		r[i] = d
	}
	return r
}

func concat(parts ...[]string) []string {
	r := []string{}
	for _, p := range parts {
		r = append(r, p...)
	}
	return r
}

func seeded(seed uint64) *Options {
	opt := NewOptions()
	opt.ImageWidth = 8
	opt.ImageHeight = 6
	opt.Seed = &seed
	return opt
}

func readBoth(t *testing.T, folder string) (train, test []Entry) {
	train, err := ReadManifest(filepath.Join(folder, TrainManifest))
	require.NoError(t, err)
	test, err = ReadManifest(filepath.Join(folder, TestManifest))
	require.NoError(t, err)
	return
}

func classTotals(entries ...[]Entry) map[int]int {
	totals := map[int]int{}
	for _, list := range entries {
		for _, e := range list {
			totals[e.Class]++
		}
	}
	return totals
}

var imageNumber = regexp.MustCompile(`image_(\d+)\.png$`)

func imageIndex(t *testing.T, path string) int {
	m := imageNumber.FindStringSubmatch(path)
	require.NotNil(t, m, path)
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return n
}

func TestSkewedFolders(t *testing.T) {
	a := makeRecording(t, concat(repeat(rowForward, 100), repeat(rowLeftMed, 10)))
	b := makeRecording(t, repeat(rowLeftMed, 5))
	out := filepath.Join(t.TempDir(), "balanced")

	summary, err := CreateBalanced(logs.NewTestingLog(t), []string{a, b + "/"}, out, seeded(1))
	require.NoError(t, err)
	require.Equal(t, "move_forward", summary.MajorityLabel)
	require.Equal(t, 100, summary.MajorityCount)
	require.Equal(t, map[string]int{"move_forward": 100, "left_medium": 15}, summary.SourceCounts)
	require.Equal(t, map[string]int{"left_medium": 85}, summary.Duplicates)
	require.Equal(t, 200, summary.NumImages())

	train, test := readBoth(t, out)
	require.Equal(t, summary.NumTrain, len(train))
	require.Equal(t, summary.NumTest, len(test))
	require.Equal(t, map[int]int{command.MoveForward: 100, command.LeftMedium: 100}, classTotals(train, test))

	for _, e := range append(train, test...) {
		_, err := os.Stat(e.Path)
		require.NoError(t, err)
	}
	_, err = os.Stat(filepath.Join(out, MeanFile))
	require.NoError(t, err)
}

func TestExcludedAndMalformedRows(t *testing.T) {
	rows := concat(
		repeat(rowForward, 4),
		repeat(rowStop, 7),
		repeat(rowBackwards, 9),
		repeat(rowMalformed, 3),
		[]string{"not a dict", `{'direction': 'forward'}`},
		repeat(rowRightMed, 2),
	)
	src := makeRecording(t, rows)
	// A row with a single column is also skipped
	f, err := os.OpenFile(filepath.Join(src, SourceManifest), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("lonely.png\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out := filepath.Join(t.TempDir(), "balanced")
	summary, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, seeded(2))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"move_forward": 4, "right_medium": 2}, summary.SourceCounts)

	train, test := readBoth(t, out)
	require.Equal(t, map[int]int{command.MoveForward: 4, command.RightMedium: 4}, classTotals(train, test))
}

func TestGeneratedNames(t *testing.T) {
	a := makeRecording(t, concat(repeat(rowForward, 30), repeat(rowLeftLight, 3), repeat(rowRightLite, 7)))
	b := makeRecording(t, concat(repeat(rowLeftMed, 11), repeat(rowForward, 2)))
	out := filepath.Join(t.TempDir(), "balanced")
	summary, err := CreateBalanced(logs.NewTestingLog(t), []string{a, b}, out, seeded(3))
	require.NoError(t, err)

	train, test := readBoth(t, out)
	seen := map[int]bool{}
	for _, list := range [][]Entry{train, test} {
		last := -1
		for _, e := range list {
			n := imageIndex(t, e.Path)
			require.Greater(t, n, last, "names must increase in creation order")
			require.False(t, seen[n], "name %v used twice", n)
			seen[n] = true
			last = n
		}
	}
	require.Equal(t, summary.NumImages(), len(seen))
	for i := 0; i < len(seen); i++ {
		require.True(t, seen[i], "image_%v missing", i)
	}

	// The first images are the originals, in input order
	all := append(append([]Entry{}, train...), test...)
	byIndex := map[int]Entry{}
	for _, e := range all {
		byIndex[imageIndex(t, e.Path)] = e
	}
	require.Equal(t, command.MoveForward, byIndex[0].Class)
	require.Equal(t, command.LeftLight, byIndex[30].Class)
	require.Equal(t, command.LeftMedium, byIndex[40].Class)
	require.Equal(t, command.MoveForward, byIndex[51].Class)

	for class, total := range classTotals(train, test) {
		require.Equal(t, 32, total, command.Name(class))
	}
}

func TestDuplicatesAreCopies(t *testing.T) {
	src := makeRecording(t, concat(repeat(rowForward, 6), repeat(rowLeftMed, 2)))
	out := filepath.Join(t.TempDir(), "balanced")
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, seeded(4))
	require.NoError(t, err)

	// image_6 and image_7 are the two originals, image_8.. cycle through them
	orig6, err := os.ReadFile(filepath.Join(src, "frame_6.png"))
	require.NoError(t, err)
	orig7, err := os.ReadFile(filepath.Join(src, "frame_7.png"))
	require.NoError(t, err)
	for i := 6; i < 12; i++ {
		copied, err := os.ReadFile(filepath.Join(out, fmt.Sprintf("image_%v.png", i)))
		require.NoError(t, err)
		if i%2 == 0 {
			require.Equal(t, orig6, copied)
		} else {
			require.Equal(t, orig7, copied)
		}
	}
}

func TestSeedIsReproducible(t *testing.T) {
	src := makeRecording(t, concat(repeat(rowForward, 20), repeat(rowRightMed, 5)))
	run := func() []string {
		out := filepath.Join(t.TempDir(), "balanced")
		_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, seeded(99))
		require.NoError(t, err)
		train, _ := readBoth(t, out)
		names := []string{}
		for _, e := range train {
			names = append(names, filepath.Base(e.Path))
		}
		return names
	}
	require.Equal(t, run(), run())
}

func TestSplitExtremes(t *testing.T) {
	src := makeRecording(t, concat(repeat(rowForward, 5), repeat(rowLeftMed, 3)))
	for _, ratio := range []float64{0, 1} {
		out := filepath.Join(t.TempDir(), "balanced")
		opt := seeded(5)
		opt.SplitRatio = ratio
		summary, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, opt)
		require.NoError(t, err)
		if ratio == 0 {
			require.Equal(t, 0, summary.NumTrain)
			require.Equal(t, 10, summary.NumTest)
		} else {
			require.Equal(t, 10, summary.NumTrain)
			require.Equal(t, 0, summary.NumTest)
		}
	}

	opt := seeded(5)
	opt.SplitRatio = 1.5
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, t.TempDir(), opt)
	require.Error(t, err)
}

func TestOutputFolderIsReplaced(t *testing.T) {
	src := makeRecording(t, repeat(rowForward, 3))
	out := filepath.Join(t.TempDir(), "balanced")
	require.NoError(t, os.MkdirAll(out, 0755))
	stale := filepath.Join(out, "image_999.png")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, seeded(6))
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
}

func TestMissingTrainingFile(t *testing.T) {
	good := makeRecording(t, repeat(rowForward, 3))
	empty := t.TempDir()
	out := filepath.Join(t.TempDir(), "balanced")
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{good, empty}, out, seeded(7))
	require.ErrorIs(t, err, ErrNoTrainingFile)
	require.Contains(t, err.Error(), empty)
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err), "nothing must be written when a source is missing")
}

func TestUnknownLabel(t *testing.T) {
	src := makeRecording(t, []string{rowForward, `{'type': 'left', 'style': 'hard'}`})
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, filepath.Join(t.TempDir(), "out"), seeded(8))
	require.ErrorIs(t, err, command.ErrUnknownLabel)
}

func TestNoExamples(t *testing.T) {
	src := makeRecording(t, []string{rowStop, rowMalformed})
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, filepath.Join(t.TempDir(), "out"), seeded(9))
	require.ErrorIs(t, err, ErrNoExamples)
}

func TestClassCount(t *testing.T) {
	src := makeRecording(t, concat(
		repeat(rowForward, 40),
		repeat(rowLeftMed, 30),
		repeat(rowRightMed, 25),
		repeat(rowLeftLight, 20),
		repeat(rowRightLite, 35),
	))
	out := filepath.Join(t.TempDir(), "balanced")
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, seeded(10))
	require.NoError(t, err)

	n, err := ClassCount(out + "/")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = ClassCount(t.TempDir())
	require.ErrorIs(t, err, ErrNotBalanced)
}

// A row that names a missing image aborts the run, but the manifests still hold every row written before it
func TestBalanceMissingImage(t *testing.T) {
	src := makeRecording(t, repeat(rowForward, 4))
	require.NoError(t, os.Remove(filepath.Join(src, "frame_2.png")))

	out := filepath.Join(t.TempDir(), "balanced")
	opt := seeded(5)
	opt.SplitRatio = 1
	_, err := CreateBalanced(logs.NewTestingLog(t), []string{src}, out, opt)
	require.ErrorIs(t, err, os.ErrNotExist)

	train, err := ReadManifest(filepath.Join(out, TrainManifest))
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Path: filepath.Join(out, "image_0.png"), Class: 0},
		{Path: filepath.Join(out, "image_1.png"), Class: 0},
	}, train)
	test, err := ReadManifest(filepath.Join(out, TestManifest))
	require.NoError(t, err)
	require.Empty(t, test)
	_, err = os.Stat(filepath.Join(out, "image_2.png"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
