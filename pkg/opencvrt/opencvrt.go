package opencvrt

// Package opencvrt runs ONNX classifiers through the OpenCV DNN module.
// This is the 'external runtime' path: it can execute any ONNX classifier with an NCHW
// float input, not only the graphs that nn can evaluate.

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cyclopcam/autcar/pkg/nn"
	"github.com/cyclopcam/autcar/pkg/onnx"
	"gocv.io/x/gocv"
)

// Classifier wraps an OpenCV DNN network
type Classifier struct {
	net    gocv.Net
	config *nn.ModelConfig
	input  nn.Shape
}

// Load an ONNX model file
func Load(filename string) (*Classifier, error) {
	config, shape, err := onnx.LoadInfo(filename)
	if err != nil {
		return nil, err
	}
	net := gocv.ReadNetFromONNX(filename)
	if net.Empty() {
		return nil, fmt.Errorf("OpenCV failed to load %v", filename)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &Classifier{
		net:    net,
		config: config,
		input:  shape,
	}, nil
}

func (c *Classifier) Close() {
	c.net.Close()
}

func (c *Classifier) Config() *nn.ModelConfig {
	return c.config
}

func (c *Classifier) Classify(tensor []float32) ([]float32, error) {
	if len(tensor) != c.input.Size() {
		return nil, fmt.Errorf("Tensor has %v elements, but model expects %v (%v)", len(tensor), c.input.Size(), c.input)
	}
	raw := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	blob, err := gocv.NewMatWithSizesFromBytes([]int{1, c.input.Channels, c.input.Height, c.input.Width}, gocv.MatTypeCV32F, raw)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	c.net.SetInput(blob, onnx.InputName)
	out := c.net.Forward("")
	defer out.Close()
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	probs := make([]float32, len(data))
	copy(probs, data)
	// Our graphs end in logits
	nn.Softmax(probs)
	return probs, nil
}
