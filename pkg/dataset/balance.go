package dataset

// The balancer equalizes the number of examples per class, by copying every source
// example once, and then duplicating examples of the minority classes until each
// class has as many examples as the majority class.

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/autcar/pkg/iox"
	"github.com/cyclopcam/logs"
	"github.com/dustin/go-humanize"
)

const DefaultSplitRatio = 0.8
const DefaultImageWidth = 224
const DefaultImageHeight = 168

// Options for CreateBalanced
type Options struct {
	SplitRatio  float64 // Probability that an example goes into the train manifest
	Seed        *uint64 // If not nil, then the train/test split is reproducible
	ImageWidth  int     // Width of the mean image
	ImageHeight int     // Height of the mean image
}

// Create a default Options object
func NewOptions() *Options {
	return &Options{
		SplitRatio:  DefaultSplitRatio,
		ImageWidth:  DefaultImageWidth,
		ImageHeight: DefaultImageHeight,
	}
}

// Summary of a balancing run
type Summary struct {
	SourceCounts  map[string]int // Number of retained source examples per label
	MajorityLabel string
	MajorityCount int
	Duplicates    map[string]int // Number of extra copies per label
	NumTrain      int
	NumTest       int
	Bytes         int64 // Bytes of image data copied
}

// Total number of examples written
func (s *Summary) NumImages() int {
	return s.NumTrain + s.NumTest
}

// balancer holds the state of a single CreateBalanced call
type balancer struct {
	log        logs.Log
	output     string
	splitRatio float64
	rng        *rand.Rand
	train      *ManifestWriter
	test       *ManifestWriter
	counter    int
	bytes      int64
}

// CreateBalanced builds a balanced dataset in output from one or more recording folders.
// The output folder is deleted if it already exists.
func CreateBalanced(log logs.Log, sources []string, output string, options *Options) (*Summary, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.SplitRatio < 0 || options.SplitRatio > 1 {
		return nil, fmt.Errorf("Split ratio %v is outside of [0,1]", options.SplitRatio)
	}

	// Pass 0: discover class counts
	byClass := make([][]SourceExample, len(command.Classes))
	all := []SourceExample{}
	for _, src := range sources {
		examples, err := ReadSource(log, src)
		if err != nil {
			return nil, err
		}
		log.Infof("Read %v examples from %v", len(examples), src)
		for _, ex := range examples {
			byClass[ex.Class] = append(byClass[ex.Class], ex)
		}
		all = append(all, examples...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoExamples, strings.Join(sources, ", "))
	}

	summary := &Summary{
		SourceCounts: map[string]int{},
		Duplicates:   map[string]int{},
	}
	for class, examples := range byClass {
		if len(examples) == 0 {
			continue
		}
		label := command.Classes[class]
		summary.SourceCounts[label] = len(examples)
		if len(examples) > summary.MajorityCount {
			summary.MajorityCount = len(examples)
			summary.MajorityLabel = label
		}
	}
	log.Infof("Majority class is %v, with %v examples", summary.MajorityLabel, summary.MajorityCount)

	output = strings.TrimRight(output, "/")
	if err := os.RemoveAll(output); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return nil, err
	}
	mean := NewConstantMean(options.ImageWidth, options.ImageHeight, MeanPixelValue)
	if err := mean.Write(filepath.Join(output, MeanFile)); err != nil {
		return nil, err
	}

	b := &balancer{
		log:        log,
		output:     output,
		splitRatio: options.SplitRatio,
		rng:        newRand(options.Seed),
	}
	if err := b.run(all, byClass, summary); err != nil {
		return nil, err
	}
	summary.NumTrain = b.train.Len()
	summary.NumTest = b.test.Len()
	summary.Bytes = b.bytes
	log.Infof("Wrote %v train and %v test examples (%v) to %v", summary.NumTrain, summary.NumTest, humanize.Bytes(uint64(summary.Bytes)), output)
	return summary, nil
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// run performs the copy pass and the oversampling pass.
// Both manifests are closed before run returns, whatever happens.
func (b *balancer) run(all []SourceExample, byClass [][]SourceExample, summary *Summary) (err error) {
	if b.train, err = CreateManifest(filepath.Join(b.output, TrainManifest)); err != nil {
		return err
	}
	defer closeManifest(b.train, &err)
	if b.test, err = CreateManifest(filepath.Join(b.output, TestManifest)); err != nil {
		return err
	}
	defer closeManifest(b.test, &err)

	// Pass 1: every example once, in input order
	counts := make([]int, len(command.Classes))
	for i := range all {
		if err := b.emit(&all[i]); err != nil {
			return err
		}
		counts[all[i].Class]++
	}

	// Pass 2: cycle through the examples of each minority class until it reaches the majority count
	for class, examples := range byClass {
		if len(examples) == 0 {
			continue
		}
		needed := summary.MajorityCount - counts[class]
		for i := 0; i < needed; i++ {
			if err := b.emit(&examples[i%len(examples)]); err != nil {
				return err
			}
			counts[class]++
		}
		if needed > 0 {
			summary.Duplicates[command.Classes[class]] = needed
			b.log.Infof("Added %v copies of %v", needed, command.Classes[class])
		}
	}
	return nil
}

func closeManifest(w *ManifestWriter, err *error) {
	if e := w.Close(); e != nil && *err == nil {
		*err = e
	}
}

// emit copies the image of ex under the next generated name, and appends it to the train or test manifest
func (b *balancer) emit(ex *SourceExample) error {
	dst := filepath.Join(b.output, fmt.Sprintf("image_%v.png", b.counter))
	n, err := iox.CopyFile(dst, ex.Path())
	if err != nil {
		return err
	}
	b.counter++
	b.bytes += n
	entry := Entry{Path: dst, Class: ex.Class}
	if b.rng.Float64() < b.splitRatio {
		return b.train.Append(entry)
	}
	return b.test.Append(entry)
}
