package raster

import (
	"github.com/airbusgeo/ntiff/internal/errs"
)

// Memory is an image held in memory, row major and pixel interleaved.
type Memory struct {
	info Info
	data []float32
	mask Image
}

// NewMemory wraps data, which must hold Width*Height*Channels samples. A nil
// data allocates a zeroed image.
func NewMemory(info Info, data []float32) (*Memory, error) {
	n := info.Width * info.Height * info.Channels
	if data == nil {
		data = make([]float32, n)
	}
	if len(data) != n {
		return nil, errs.Shapef("memory image %dx%dx%d needs %d samples, got %d",
			info.Width, info.Height, info.Channels, n, len(data))
	}
	return &Memory{info: info, data: data}, nil
}

// Fill returns an image of the given geometry where every pixel is value.
func Fill(info Info, value ...float32) *Memory {
	m, _ := NewMemory(info, nil)
	for i := range m.data {
		m.data[i] = value[i%len(value)]
	}
	return m
}

func (m *Memory) Info() Info  { return m.info }
func (m *Memory) Mask() Image { return m.mask }
func (m *Memory) Close() error {
	if m.mask != nil {
		return m.mask.Close()
	}
	return nil
}

// Data returns the samples of the image.
func (m *Memory) Data() []float32 { return m.data }

func (m *Memory) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	ls := m.info.LineSize()
	copy(buf, m.data[y*ls:(y+1)*ls])
	return nil
}

// Set writes the samples of pixel (x,y).
func (m *Memory) Set(x, y int, v ...float32) {
	off := (y*m.info.Width + x) * m.info.Channels
	copy(m.data[off:off+m.info.Channels], v)
}

// At returns the samples of pixel (x,y).
func (m *Memory) At(x, y int) []float32 {
	off := (y*m.info.Width + x) * m.info.Channels
	return m.data[off : off+m.info.Channels]
}

// SetMask attaches mask, which must be a single channel image of the same
// dimensions.
func (m *Memory) SetMask(mask Image) error {
	if err := CheckMask(m.info, mask); err != nil {
		return err
	}
	m.mask = mask
	return nil
}

// CheckMask verifies that mask can be attached to an image described by info.
func CheckMask(info Info, mask Image) error {
	mi := mask.Info()
	if mi.Width != info.Width || mi.Height != info.Height {
		return errs.Shapef("mask is %dx%d, image is %dx%d", mi.Width, mi.Height, info.Width, info.Height)
	}
	if mi.Channels != 1 {
		return errs.Shapef("mask must have one channel, got %d", mi.Channels)
	}
	return nil
}

// ReadAll reads every line of img.
func ReadAll(img Image) (*Memory, error) {
	info := img.Info()
	m, err := NewMemory(info, nil)
	if err != nil {
		return nil, err
	}
	ls := info.LineSize()
	for y := 0; y < info.Height; y++ {
		if err := img.ReadLine(y, m.data[y*ls:(y+1)*ls]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// constant is an image whose pixels all hold the same samples.
type constant struct {
	info Info
	px   []float32
}

// Constant returns an image of the given geometry where every pixel is
// value, without allocating its pixels.
func Constant(info Info, value ...float32) Image {
	return &constant{info: info, px: value}
}

func (c *constant) Info() Info   { return c.info }
func (c *constant) Mask() Image  { return nil }
func (c *constant) Close() error { return nil }

func (c *constant) ReadLine(y int, buf []float32) error {
	if err := checkLine(c, y, buf); err != nil {
		return err
	}
	for i := range buf[:c.info.LineSize()] {
		buf[i] = c.px[i%len(c.px)]
	}
	return nil
}
