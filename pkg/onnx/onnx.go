// Package onnx writes and reads our feed-forward models in the ONNX format, so that a model
// trained here can be executed by any ONNX runtime (eg OpenCV DNN), and read back by us.
//
// The graphs that we produce are:
//
//	input [N,C,H,W] -> Flatten(axis=1) -> Gemm(transB=1) -> Relu -> Gemm ... -> output [N,classes]
//	input [N,C,H,W] -> Conv -> Relu -> MaxPool ... -> Flatten(axis=1) -> Gemm ... -> output [N,classes]
package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cyclopcam/autcar/pkg/nn"
	"google.golang.org/protobuf/encoding/protowire"
	"gonum.org/v1/gonum/mat"
)

const (
	InputName       = "input"
	OutputName      = "output"
	ConfigKey       = "autcar.config"
	ProducerName    = "autcar"
	ProducerVersion = "1.0"
)

var ErrUnsupported = errors.New("Unsupported ONNX graph")

// Save writes the model to an ONNX file
func Save(model *nn.Model, filename string) error {
	b, err := Encode(model)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}

// Load reads a model that was written by Save
func Load(filename string) (*nn.Model, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	m, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("Failed to load %v: %w", filename, err)
	}
	return m, nil
}

// Encode serializes the model as an ONNX ModelProto
func Encode(model *nn.Model) ([]byte, error) {
	if len(model.Layers) == 0 {
		return nil, nn.ErrEmptyModel
	}
	var graph []byte
	graph = appendStringField(graph, graphName, model.Config.Architecture)
	in := model.Input
	graph = appendBytesField(graph, graphInput, encodeValueInfo(InputName, []int64{-1, int64(in.Channels), int64(in.Height), int64(in.Width)}))

	prev := InputName
	shape := in
	features := -1 // Set once the image has been flattened
	for i, layer := range model.Layers {
		out := fmt.Sprintf("layer%v", i)
		if i == len(model.Layers)-1 {
			out = OutputName
		}
		wName := fmt.Sprintf("layer%v.weight", i)
		bName := fmt.Sprintf("layer%v.bias", i)
		if sl, ok := layer.(nn.SpatialLayer); ok && (features >= 0 || sl.InputShape() != shape) {
			return nil, fmt.Errorf("%w: layer %v expects an image of shape %v", ErrUnsupported, i, sl.InputShape())
		}
		switch l := layer.(type) {
		case *nn.Dense:
			if features < 0 {
				graph = appendBytesField(graph, graphNode, encodeNode("flatten", "Flatten", []string{prev}, []string{"flat"}, encodeIntAttr("axis", 1)))
				prev = "flat"
				features = shape.Size()
			}
			if l.InputSize() != features {
				return nil, fmt.Errorf("%w: layer %v expects %v inputs, but receives %v", ErrUnsupported, i, l.InputSize(), features)
			}
			rows, cols := l.W.Value.Dims()
			graph = appendBytesField(graph, graphInitializer, encodeTensor(wName, []int64{int64(rows), int64(cols)}, l.W.Value.RawMatrix().Data))
			graph = appendBytesField(graph, graphInitializer, encodeTensor(bName, []int64{int64(rows)}, l.B.Value.RawRowView(0)))
			graph = appendBytesField(graph, graphNode, encodeNode(fmt.Sprintf("gemm%v", i), "Gemm", []string{prev, wName, bName}, []string{out},
				encodeFloatAttr("alpha", 1), encodeFloatAttr("beta", 1), encodeIntAttr("transB", 1)))
			features = rows
		case *nn.Conv2D:
			k := int64(l.Kernel)
			p := int64(l.Pad)
			rows, _ := l.W.Value.Dims()
			graph = appendBytesField(graph, graphInitializer, encodeTensor(wName, []int64{int64(rows), int64(shape.Channels), k, k}, l.W.Value.RawMatrix().Data))
			graph = appendBytesField(graph, graphInitializer, encodeTensor(bName, []int64{int64(rows)}, l.B.Value.RawRowView(0)))
			graph = appendBytesField(graph, graphNode, encodeNode(fmt.Sprintf("conv%v", i), "Conv", []string{prev, wName, bName}, []string{out},
				encodeIntsAttr("kernel_shape", k, k), encodeIntsAttr("pads", p, p, p, p), encodeIntsAttr("strides", 1, 1)))
			shape = l.OutputShape()
		case *nn.MaxPool:
			size := int64(l.Size)
			graph = appendBytesField(graph, graphNode, encodeNode(fmt.Sprintf("pool%v", i), "MaxPool", []string{prev}, []string{out},
				encodeIntsAttr("kernel_shape", size, size), encodeIntsAttr("strides", size, size)))
			shape = l.OutputShape()
		case *nn.ReLU:
			graph = appendBytesField(graph, graphNode, encodeNode(fmt.Sprintf("relu%v", i), "Relu", []string{prev}, []string{out}))
		default:
			return nil, fmt.Errorf("%w: layer %v has type %T", ErrUnsupported, i, layer)
		}
		prev = out
	}
	if features < 0 {
		return nil, fmt.Errorf("%w: model has no Dense layer", ErrUnsupported)
	}
	graph = appendBytesField(graph, graphOutput, encodeValueInfo(OutputName, []int64{-1, int64(model.NumClasses())}))

	var opset []byte
	opset = appendStringField(opset, opsetDomain, "")
	opset = appendVarintField(opset, opsetVersion, OpsetVersion)

	var meta []byte
	meta = appendStringField(meta, entryKey, ConfigKey)
	meta = appendStringField(meta, entryValue, model.Config.Marshal())

	var b []byte
	b = appendVarintField(b, modelIRVersion, IRVersion)
	b = appendStringField(b, modelProducerName, ProducerName)
	b = appendStringField(b, modelProducerVer, ProducerVersion)
	b = appendBytesField(b, modelOpsetImport, opset)
	b = appendBytesField(b, modelGraph, graph)
	b = appendBytesField(b, modelMetadataProps, meta)
	return b, nil
}

func encodeValueInfo(name string, dims []int64) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		if d < 0 {
			dim = appendStringField(dim, dimParam, "N")
		} else {
			dim = appendVarintField(dim, dimValue, uint64(d))
		}
		shape = appendBytesField(shape, shapeDim, dim)
	}
	var tensor []byte
	tensor = appendVarintField(tensor, tensorElemType, dataTypeFloat)
	tensor = appendBytesField(tensor, tensorTypeShape, shape)
	var typ []byte
	typ = appendBytesField(typ, typeTensor, tensor)
	var b []byte
	b = appendStringField(b, valueName, name)
	b = appendBytesField(b, valueType, typ)
	return b
}

func encodeNode(name, opType string, inputs, outputs []string, attrs ...[]byte) []byte {
	var b []byte
	for _, in := range inputs {
		b = appendStringField(b, nodeInput, in)
	}
	for _, out := range outputs {
		b = appendStringField(b, nodeOutput, out)
	}
	b = appendStringField(b, nodeName, name)
	b = appendStringField(b, nodeOpType, opType)
	for _, a := range attrs {
		b = appendBytesField(b, nodeAttribute, a)
	}
	return b
}

func encodeIntAttr(name string, v int64) []byte {
	var b []byte
	b = appendStringField(b, attrName, name)
	b = appendVarintField(b, attrI, uint64(v))
	b = appendVarintField(b, attrType, attrTypeInt)
	return b
}

func encodeIntsAttr(name string, v ...int64) []byte {
	var b []byte
	b = appendStringField(b, attrName, name)
	for _, x := range v {
		b = appendVarintField(b, attrInts, uint64(x))
	}
	b = appendVarintField(b, attrType, attrTypeInts)
	return b
}

func encodeFloatAttr(name string, v float32) []byte {
	var b []byte
	b = appendStringField(b, attrName, name)
	b = protowire.AppendTag(b, attrF, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(v))
	b = appendVarintField(b, attrType, attrTypeFloat)
	return b
}

func encodeTensor(name string, dims []int64, data []float64) []byte {
	var b []byte
	for _, d := range dims {
		b = appendVarintField(b, tensorDims, uint64(d))
	}
	b = appendVarintField(b, tensorDataType, dataTypeFloat)
	b = appendStringField(b, tensorName, name)
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	b = appendBytesField(b, tensorRawData, raw)
	return b
}

type tensor struct {
	dims []int64
	data []float64
}

type node struct {
	opType   string
	inputs   []string
	outputs  []string
	ints     map[string]int64
	floats   map[string]float32
	intLists map[string][]int64
}

// Decode parses a ModelProto that contains a chain of Conv, MaxPool, Relu, Flatten and Gemm nodes
func Decode(b []byte) (*nn.Model, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	var graph []byte
	var config *nn.ModelConfig
	for _, f := range fields {
		switch f.num {
		case modelGraph:
			graph = f.bytes
		case modelMetadataProps:
			key, value, err := decodeEntry(f.bytes)
			if err != nil {
				return nil, err
			}
			if key == ConfigKey {
				if config, err = nn.UnmarshalModelConfig(value); err != nil {
					return nil, err
				}
			}
		}
	}
	if graph == nil {
		return nil, fmt.Errorf("%w: no graph", ErrUnsupported)
	}
	model, err := decodeGraph(graph)
	if err != nil {
		return nil, err
	}
	if config != nil {
		model.Config = *config
	}
	model.Config.Width = model.Input.Width
	model.Config.Height = model.Input.Height
	return model, nil
}

func decodeEntry(b []byte) (key, value string, err error) {
	fields, err := parseFields(b)
	if err != nil {
		return "", "", err
	}
	for _, f := range fields {
		switch f.num {
		case entryKey:
			key = string(f.bytes)
		case entryValue:
			value = string(f.bytes)
		}
	}
	return
}

func decodeGraph(b []byte) (*nn.Model, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	initializers := map[string]*tensor{}
	nodes := []*node{}
	inputs := map[string][]int64{}
	inputOrder := []string{}
	for _, f := range fields {
		switch f.num {
		case graphInitializer:
			name, t, err := decodeTensor(f.bytes)
			if err != nil {
				return nil, err
			}
			initializers[name] = t
		case graphNode:
			n, err := decodeNode(f.bytes)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case graphInput:
			name, dims, err := decodeValueInfo(f.bytes)
			if err != nil {
				return nil, err
			}
			inputs[name] = dims
			inputOrder = append(inputOrder, name)
		}
	}

	// The image input is the one graph input that is not an initializer
	model := &nn.Model{}
	prev := ""
	for _, name := range inputOrder {
		if initializers[name] != nil {
			continue
		}
		dims := inputs[name]
		if len(dims) != 4 {
			return nil, fmt.Errorf("%w: input '%v' has %v dimensions, expected 4 (NCHW)", ErrUnsupported, name, len(dims))
		}
		model.Input = nn.Shape{Channels: int(dims[1]), Height: int(dims[2]), Width: int(dims[3])}
		prev = name
		break
	}
	if prev == "" {
		return nil, fmt.Errorf("%w: no image input", ErrUnsupported)
	}

	shape := model.Input
	features := -1 // Set once the image has been flattened
	for _, n := range nodes {
		if len(n.inputs) == 0 || n.inputs[0] != prev || len(n.outputs) != 1 {
			return nil, fmt.Errorf("%w: %v node is not part of a simple chain", ErrUnsupported, n.opType)
		}
		switch n.opType {
		case "Flatten":
			if axis, ok := n.ints["axis"]; ok && axis != 1 {
				return nil, fmt.Errorf("%w: Flatten axis %v", ErrUnsupported, axis)
			}
			if features < 0 {
				features = shape.Size()
			}
		case "Relu":
			model.Layers = append(model.Layers, &nn.ReLU{})
		case "Conv":
			if features >= 0 {
				return nil, fmt.Errorf("%w: Conv after Flatten", ErrUnsupported)
			}
			conv, err := decodeConv(n, initializers, shape)
			if err != nil {
				return nil, err
			}
			model.Layers = append(model.Layers, conv)
			shape = conv.OutputShape()
		case "MaxPool":
			if features >= 0 {
				return nil, fmt.Errorf("%w: MaxPool after Flatten", ErrUnsupported)
			}
			pool, err := decodeMaxPool(n, shape)
			if err != nil {
				return nil, err
			}
			model.Layers = append(model.Layers, pool)
			shape = pool.OutputShape()
		case "Gemm":
			if features < 0 {
				return nil, fmt.Errorf("%w: Gemm on an unflattened image", ErrUnsupported)
			}
			dense, err := decodeGemm(n, initializers, features)
			if err != nil {
				return nil, err
			}
			model.Layers = append(model.Layers, dense)
			features = dense.OutputSize(features)
		default:
			return nil, fmt.Errorf("%w: op %v", ErrUnsupported, n.opType)
		}
		prev = n.outputs[0]
	}
	if len(model.Layers) == 0 {
		return nil, nn.ErrEmptyModel
	}
	return model, nil
}

func decodeGemm(n *node, initializers map[string]*tensor, features int) (*nn.Dense, error) {
	if len(n.inputs) != 3 {
		return nil, fmt.Errorf("%w: Gemm with %v inputs", ErrUnsupported, len(n.inputs))
	}
	for _, a := range []string{"alpha", "beta"} {
		if v, ok := n.floats[a]; ok && v != 1 {
			return nil, fmt.Errorf("%w: Gemm %v = %v", ErrUnsupported, a, v)
		}
	}
	if n.ints["transA"] != 0 {
		return nil, fmt.Errorf("%w: Gemm transA", ErrUnsupported)
	}
	w := initializers[n.inputs[1]]
	b := initializers[n.inputs[2]]
	if w == nil || b == nil || len(w.dims) != 2 || w.dims[0] <= 0 || w.dims[1] <= 0 {
		return nil, fmt.Errorf("%w: Gemm weights must be 2D initializers", ErrUnsupported)
	}
	weights := mat.NewDense(int(w.dims[0]), int(w.dims[1]), w.data)
	if n.ints["transB"] == 0 {
		// Stored as (in x out)
		weights = mat.DenseCopyOf(weights.T())
	}
	out, in := weights.Dims()
	if in != features {
		return nil, fmt.Errorf("%w: Gemm expects %v inputs, but previous layer produces %v", ErrUnsupported, in, features)
	}
	if len(b.data) != out {
		return nil, fmt.Errorf("%w: Gemm bias has %v elements, expected %v", ErrUnsupported, len(b.data), out)
	}
	return nn.NewDenseFromWeights(weights, b.data), nil
}

// intsAttr returns the values of a list attribute, or def if the node does not have it
func (n *node) intsAttr(name string, def ...int64) []int64 {
	if v, ok := n.intLists[name]; ok {
		return v
	}
	return def
}

func allEqual(v []int64, x int64) bool {
	for _, e := range v {
		if e != x {
			return false
		}
	}
	return true
}

// decodeConv accepts square kernels, stride 1, no dilation, a single group and symmetric padding
func decodeConv(n *node, initializers map[string]*tensor, in nn.Shape) (*nn.Conv2D, error) {
	if len(n.inputs) < 2 || len(n.inputs) > 3 {
		return nil, fmt.Errorf("%w: Conv with %v inputs", ErrUnsupported, len(n.inputs))
	}
	w := initializers[n.inputs[1]]
	if w == nil || len(w.dims) != 4 || w.dims[0] <= 0 || w.dims[2] != w.dims[3] || w.dims[2] <= 0 {
		return nil, fmt.Errorf("%w: Conv weights must be a 4D initializer with a square kernel", ErrUnsupported)
	}
	if w.dims[1] != int64(in.Channels) {
		return nil, fmt.Errorf("%w: Conv expects %v channels, but previous layer produces %v", ErrUnsupported, w.dims[1], in.Channels)
	}
	out := int(w.dims[0])
	k := w.dims[2]
	bias := make([]float64, out)
	if len(n.inputs) == 3 {
		b := initializers[n.inputs[2]]
		if b == nil || len(b.data) != out {
			return nil, fmt.Errorf("%w: Conv bias must be an initializer with %v elements", ErrUnsupported, out)
		}
		bias = b.data
	}
	if ks := n.intsAttr("kernel_shape", k, k); len(ks) != 2 || !allEqual(ks, k) {
		return nil, fmt.Errorf("%w: Conv kernel_shape %v", ErrUnsupported, ks)
	}
	if s := n.intsAttr("strides", 1, 1); !allEqual(s, 1) {
		return nil, fmt.Errorf("%w: Conv strides %v", ErrUnsupported, s)
	}
	if d := n.intsAttr("dilations", 1, 1); !allEqual(d, 1) {
		return nil, fmt.Errorf("%w: Conv dilations %v", ErrUnsupported, d)
	}
	if g, ok := n.ints["group"]; ok && g != 1 {
		return nil, fmt.Errorf("%w: Conv group %v", ErrUnsupported, g)
	}
	pads := n.intsAttr("pads", 0, 0, 0, 0)
	if len(pads) != 4 || !allEqual(pads, pads[0]) {
		return nil, fmt.Errorf("%w: Conv pads %v", ErrUnsupported, pads)
	}
	weights := mat.NewDense(out, int(w.dims[1]*k*k), w.data)
	conv, err := nn.NewConv2DFromWeights(in, int(k), int(pads[0]), weights, bias)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return conv, nil
}

// decodeMaxPool accepts square, non-overlapping windows without padding
func decodeMaxPool(n *node, in nn.Shape) (*nn.MaxPool, error) {
	ks := n.intsAttr("kernel_shape")
	if len(ks) != 2 || ks[0] != ks[1] || ks[0] <= 0 {
		return nil, fmt.Errorf("%w: MaxPool kernel_shape %v", ErrUnsupported, ks)
	}
	if s := n.intsAttr("strides", 1, 1); !allEqual(s, ks[0]) {
		return nil, fmt.Errorf("%w: MaxPool strides %v must equal the kernel size", ErrUnsupported, s)
	}
	if p := n.intsAttr("pads", 0, 0, 0, 0); !allEqual(p, 0) {
		return nil, fmt.Errorf("%w: MaxPool pads %v", ErrUnsupported, p)
	}
	if c, ok := n.ints["ceil_mode"]; ok && c != 0 {
		return nil, fmt.Errorf("%w: MaxPool ceil_mode", ErrUnsupported)
	}
	pool := nn.NewMaxPool(in, int(ks[0]))
	if out := pool.OutputShape(); out.Width < 1 || out.Height < 1 {
		return nil, fmt.Errorf("%w: MaxPool %v on %v input", ErrUnsupported, ks, in)
	}
	return pool, nil
}

func decodeTensor(b []byte) (string, *tensor, error) {
	fields, err := parseFields(b)
	if err != nil {
		return "", nil, err
	}
	name := ""
	t := &tensor{}
	for _, f := range fields {
		switch f.num {
		case tensorDims:
			dims, err := varints(f)
			if err != nil {
				return "", nil, err
			}
			for _, d := range dims {
				t.dims = append(t.dims, int64(d))
			}
		case tensorDataType:
			if f.u64 != dataTypeFloat {
				return "", nil, fmt.Errorf("%w: tensor data type %v", ErrUnsupported, f.u64)
			}
		case tensorName:
			name = string(f.bytes)
		case tensorRawData:
			if len(f.bytes)%4 != 0 {
				return "", nil, fmt.Errorf("%w: raw data length %v", ErrUnsupported, len(f.bytes))
			}
			for i := 0; i < len(f.bytes); i += 4 {
				t.data = append(t.data, float64(math.Float32frombits(binary.LittleEndian.Uint32(f.bytes[i:]))))
			}
		case tensorFloatData:
			if f.typ == protowire.Fixed32Type {
				t.data = append(t.data, float64(math.Float32frombits(uint32(f.u64))))
				continue
			}
			for p := f.bytes; len(p) > 0; {
				v, n := protowire.ConsumeFixed32(p)
				if n < 0 {
					return "", nil, protowire.ParseError(n)
				}
				t.data = append(t.data, float64(math.Float32frombits(v)))
				p = p[n:]
			}
		}
	}
	expected := int64(1)
	for _, d := range t.dims {
		expected *= d
	}
	if int64(len(t.data)) != expected {
		return "", nil, fmt.Errorf("%w: tensor '%v' has %v values, but dims %v", ErrUnsupported, name, len(t.data), t.dims)
	}
	return name, t, nil
}

// varints decodes a repeated varint field, which may or may not be packed
func varints(f field) ([]uint64, error) {
	if f.typ == protowire.VarintType {
		return []uint64{f.u64}, nil
	}
	r := []uint64{}
	for p := f.bytes; len(p) > 0; {
		v, n := protowire.ConsumeVarint(p)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		r = append(r, v)
		p = p[n:]
	}
	return r, nil
}

func decodeNode(b []byte) (*node, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	n := &node{
		ints:     map[string]int64{},
		floats:   map[string]float32{},
		intLists: map[string][]int64{},
	}
	for _, f := range fields {
		switch f.num {
		case nodeInput:
			n.inputs = append(n.inputs, string(f.bytes))
		case nodeOutput:
			n.outputs = append(n.outputs, string(f.bytes))
		case nodeOpType:
			n.opType = string(f.bytes)
		case nodeAttribute:
			if err := n.decodeAttribute(f.bytes); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func (n *node) decodeAttribute(b []byte) error {
	fields, err := parseFields(b)
	if err != nil {
		return err
	}
	name := ""
	var i *int64
	var f *float32
	var list []int64
	for _, fl := range fields {
		switch fl.num {
		case attrName:
			name = string(fl.bytes)
		case attrInts:
			vals, err := varints(fl)
			if err != nil {
				return err
			}
			for _, v := range vals {
				list = append(list, int64(v))
			}
		case attrI:
			v := int64(fl.u64)
			i = &v
		case attrF:
			v := math.Float32frombits(uint32(fl.u64))
			f = &v
		}
	}
	if i != nil {
		n.ints[name] = *i
	}
	if f != nil {
		n.floats[name] = *f
	}
	if list != nil {
		n.intLists[name] = list
	}
	return nil
}

func decodeValueInfo(b []byte) (string, []int64, error) {
	fields, err := parseFields(b)
	if err != nil {
		return "", nil, err
	}
	name := ""
	var dims []int64
	for _, f := range fields {
		switch f.num {
		case valueName:
			name = string(f.bytes)
		case valueType:
			if dims, err = decodeTensorType(f.bytes); err != nil {
				return "", nil, err
			}
		}
	}
	return name, dims, nil
}

// decodeTensorType walks TypeProto -> TypeProto.Tensor -> TensorShapeProto, and returns the
// dimensions. Symbolic dimensions are returned as -1.
func decodeTensorType(b []byte) ([]int64, error) {
	typ, err := subMessage(b, typeTensor)
	if err != nil || typ == nil {
		return nil, err
	}
	shape, err := subMessage(typ, tensorTypeShape)
	if err != nil || shape == nil {
		return nil, err
	}
	fields, err := parseFields(shape)
	if err != nil {
		return nil, err
	}
	dims := []int64{}
	for _, f := range fields {
		if f.num != shapeDim {
			continue
		}
		dimFields, err := parseFields(f.bytes)
		if err != nil {
			return nil, err
		}
		d := int64(-1)
		for _, df := range dimFields {
			if df.num == dimValue {
				d = int64(df.u64)
			}
		}
		dims = append(dims, d)
	}
	return dims, nil
}

// subMessage returns the first field num of b
func subMessage(b []byte, num protowire.Number) ([]byte, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.num == num && f.typ == protowire.BytesType {
			return f.bytes, nil
		}
	}
	return nil, nil
}

// LoadInfo reads the model config and input shape of an ONNX file, without interpreting the graph.
// This works for any model whose image input is NCHW, even if Decode does not support its ops.
func LoadInfo(filename string) (*nn.ModelConfig, nn.Shape, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, nn.Shape{}, err
	}
	fields, err := parseFields(b)
	if err != nil {
		return nil, nn.Shape{}, err
	}
	config := &nn.ModelConfig{}
	var shape *nn.Shape
	for _, f := range fields {
		switch f.num {
		case modelMetadataProps:
			key, value, err := decodeEntry(f.bytes)
			if err != nil {
				return nil, nn.Shape{}, err
			}
			if key == ConfigKey {
				if config, err = nn.UnmarshalModelConfig(value); err != nil {
					return nil, nn.Shape{}, err
				}
			}
		case modelGraph:
			gfields, err := parseFields(f.bytes)
			if err != nil {
				return nil, nn.Shape{}, err
			}
			for _, g := range gfields {
				if g.num != graphInput || shape != nil {
					continue
				}
				_, dims, err := decodeValueInfo(g.bytes)
				if err != nil {
					return nil, nn.Shape{}, err
				}
				if len(dims) == 4 {
					shape = &nn.Shape{Channels: int(dims[1]), Height: int(dims[2]), Width: int(dims[3])}
				}
			}
		}
	}
	if shape == nil {
		return nil, nn.Shape{}, fmt.Errorf("%w: %v has no NCHW input", ErrUnsupported, filename)
	}
	config.Width = shape.Width
	config.Height = shape.Height
	return config, *shape, nil
}
