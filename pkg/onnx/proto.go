package onnx

// Field numbers and enums from onnx.proto.
// We only encode the subset of ModelProto that our models use, which keeps us free of
// generated protobuf code.

import "google.golang.org/protobuf/encoding/protowire"

const (
	// ModelProto
	modelIRVersion     protowire.Number = 1
	modelProducerName  protowire.Number = 2
	modelProducerVer   protowire.Number = 3
	modelGraph         protowire.Number = 7
	modelOpsetImport   protowire.Number = 8
	modelMetadataProps protowire.Number = 14

	// OperatorSetIdProto
	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	// StringStringEntryProto
	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2

	// GraphProto
	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	// NodeProto
	nodeInput     protowire.Number = 1
	nodeOutput    protowire.Number = 2
	nodeName      protowire.Number = 3
	nodeOpType    protowire.Number = 4
	nodeAttribute protowire.Number = 5

	// AttributeProto
	attrName protowire.Number = 1
	attrF    protowire.Number = 2
	attrI    protowire.Number = 3
	attrInts protowire.Number = 8
	attrType protowire.Number = 20

	// TensorProto
	tensorDims      protowire.Number = 1
	tensorDataType  protowire.Number = 2
	tensorFloatData protowire.Number = 4
	tensorName      protowire.Number = 8
	tensorRawData   protowire.Number = 9

	// ValueInfoProto
	valueName protowire.Number = 1
	valueType protowire.Number = 2

	// TypeProto and TypeProto.Tensor
	typeTensor      protowire.Number = 1
	tensorElemType  protowire.Number = 1
	tensorTypeShape protowire.Number = 2

	// TensorShapeProto and its Dimension
	shapeDim protowire.Number = 1
	dimValue protowire.Number = 1
	dimParam protowire.Number = 2
)

const (
	dataTypeFloat = 1 // TensorProto.FLOAT
	attrTypeFloat = 1 // AttributeProto.FLOAT
	attrTypeInt   = 2 // AttributeProto.INT
	attrTypeInts  = 7 // AttributeProto.INTS
)

const (
	IRVersion    = 7
	OpsetVersion = 13
)

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// field is one decoded field of a message
type field struct {
	num   protowire.Number
	typ   protowire.Type
	bytes []byte // BytesType
	u64   uint64 // VarintType, Fixed32Type, Fixed64Type
}

// parseFields splits a message into its fields
func parseFields(b []byte) ([]field, error) {
	fields := []field{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u64 = uint64(v)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}
