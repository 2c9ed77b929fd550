package raster

import "math"

// mirror is a band around an image whose pixels reflect those of the image
// across its nearest border.
type mirror struct {
	src  Image
	info Info
	// position of the band in the pixel grid of src
	col, row int

	line  []float32
	mline []float32
	mask  *mirrorMask
}

func newMirror(src Image, info Info) *mirror {
	si := src.Info()
	return &mirror{
		src:  src,
		info: info,
		col:  int(math.Round((info.BBox.XMin - si.BBox.XMin) / si.ResX)),
		row:  int(math.Round((si.BBox.YMax - info.BBox.YMax) / si.ResY)),
		line: make([]float32, si.LineSize()),
	}
}

// reflect maps a coordinate outside [0,n) into it.
func reflect(s, n int) int {
	switch {
	case s < 0:
		s = -s - 1
	case s >= n:
		s = 2*n - s - 1
	}
	if s < 0 {
		return 0
	}
	if s >= n {
		return n - 1
	}
	return s
}

func (m *mirror) Info() Info   { return m.info }
func (m *mirror) Close() error { return nil }

func (m *mirror) Mask() Image {
	if m.src.Mask() == nil {
		return nil
	}
	if m.mask == nil {
		m.mask = &mirrorMask{m: m, info: m.info.MaskInfo()}
	}
	return m.mask
}

func (m *mirror) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	si := m.src.Info()
	if err := m.src.ReadLine(reflect(y+m.row, si.Height), m.line); err != nil {
		return err
	}
	nc := m.info.Channels
	for x := 0; x < m.info.Width; x++ {
		sx := reflect(x+m.col, si.Width)
		copy(buf[x*nc:(x+1)*nc], m.line[sx*nc:(sx+1)*nc])
	}
	return nil
}

type mirrorMask struct {
	m    *mirror
	info Info
}

func (mm *mirrorMask) Info() Info   { return mm.info }
func (mm *mirrorMask) Mask() Image  { return nil }
func (mm *mirrorMask) Close() error { return nil }

func (mm *mirrorMask) ReadLine(y int, buf []float32) error {
	if err := checkLine(mm, y, buf); err != nil {
		return err
	}
	m := mm.m
	si := m.src.Info()
	if m.mline == nil {
		m.mline = make([]float32, si.Width)
	}
	if err := m.src.Mask().ReadLine(reflect(y+m.row, si.Height), m.mline); err != nil {
		return err
	}
	for x := 0; x < mm.info.Width; x++ {
		buf[x] = m.mline[reflect(x+m.col, si.Width)]
	}
	return nil
}
