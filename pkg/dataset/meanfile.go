package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// MeanFile is the name of the mean image inside a balanced folder
const MeanFile = "meanfile.xml"

// MeanPixelValue is the value of every element of the mean image.
// We don't compute the mean from the data, we just center the 0..255 range.
const MeanPixelValue = 128

// MeanImage is the per-pixel mean that is subtracted from every image before it enters the network.
// Data is laid out channel-major (CHW).
type MeanImage struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewConstantMean creates a 3 channel mean image filled with value
func NewConstantMean(width, height int, value float32) *MeanImage {
	m := &MeanImage{
		Channels: 3,
		Height:   height,
		Width:    width,
		Data:     make([]float32, 3*width*height),
	}
	for i := range m.Data {
		m.Data[i] = value
	}
	return m
}

// Write the mean image in the OpenCV storage XML layout
func (m *MeanImage) Write(filename string) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	root := doc.CreateElement("opencv_storage")
	root.CreateElement("Channel").SetText(strconv.Itoa(m.Channels))
	root.CreateElement("Row").SetText(strconv.Itoa(m.Height))
	root.CreateElement("Col").SetText(strconv.Itoa(m.Width))
	img := root.CreateElement("MeanImg")
	img.CreateAttr("type_id", "opencv-matrix")
	img.CreateElement("rows").SetText("1")
	img.CreateElement("cols").SetText(strconv.Itoa(len(m.Data)))
	img.CreateElement("dt").SetText("f")
	img.CreateElement("data").SetText(formatMeanData(m.Data))
	doc.Indent(2)
	return doc.WriteToFile(filename)
}

// Values are written in %e notation, with a newline after every 4th value
func formatMeanData(data []float32) string {
	s := strings.Builder{}
	for i, v := range data {
		if i != 0 {
			s.WriteByte(' ')
		}
		s.WriteString(fmt.Sprintf("%e", v))
		if (i+1)%4 == 0 {
			s.WriteByte('\n')
		}
	}
	return s.String()
}

// ReadMeanImage loads a mean image written by MeanImage.Write
func ReadMeanImage(filename string) (*MeanImage, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(filename); err != nil {
		return nil, fmt.Errorf("Failed to read mean file %v: %w", filename, err)
	}
	m := &MeanImage{}
	for _, f := range []struct {
		path string
		dst  *int
	}{
		{"opencv_storage/Channel", &m.Channels},
		{"opencv_storage/Row", &m.Height},
		{"opencv_storage/Col", &m.Width},
	} {
		el := doc.FindElement(f.path)
		if el == nil {
			return nil, fmt.Errorf("Mean file %v has no %v", filename, f.path)
		}
		v, err := strconv.Atoi(strings.TrimSpace(el.Text()))
		if err != nil {
			return nil, fmt.Errorf("Mean file %v: invalid %v: %w", filename, f.path, err)
		}
		*f.dst = v
	}
	data := doc.FindElement("opencv_storage/MeanImg/data")
	if data == nil {
		return nil, fmt.Errorf("Mean file %v has no MeanImg data", filename)
	}
	for _, field := range strings.Fields(data.Text()) {
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return nil, fmt.Errorf("Mean file %v: invalid value '%v': %w", filename, field, err)
		}
		m.Data = append(m.Data, float32(v))
	}
	if len(m.Data) != m.Channels*m.Width*m.Height {
		return nil, fmt.Errorf("Mean file %v has %v values, but expected %v x %v x %v", filename, len(m.Data), m.Channels, m.Height, m.Width)
	}
	return m, nil
}
