package raster

import (
	"math"

	"github.com/airbusgeo/ntiff/internal/errs"
)

// Decimated takes one source pixel out of every stride pixels, on a coarser
// grid whose resolutions are integer multiples of the source ones.
type Decimated struct {
	src    Image
	info   Info
	nodata []float32

	strideX, strideY int
	// source pixel of the top left output pixel
	offX, offY int

	line     []float32
	srcValid []float32
	mask     *decimatedMask
}

// Decimate builds the image of src on the grid of out. The resolutions of out
// must be integer multiples of those of src and the grids must share their
// phase. The result covers the part of src inside out.
func Decimate(src Image, out Info, nodata []float32) (*Decimated, error) {
	si := src.Info()
	if !si.CRS.Equal(out.CRS) {
		return nil, errs.Shapef("cannot decimate from %s to %s", si.CRS, out.CRS)
	}
	if len(nodata) != si.Channels {
		return nil, errs.Configf("nodata has %d values, image has %d channels", len(nodata), si.Channels)
	}
	fx, fy := out.ResX/si.ResX, out.ResY/si.ResY
	kx, ky := int(math.Round(fx)), int(math.Round(fy))
	if kx < 1 || ky < 1 || math.Abs(fx-float64(kx)) > Epsilon || math.Abs(fy-float64(ky)) > Epsilon {
		return nil, errs.Shapef("output resolution (%g,%g) is not a multiple of source resolution (%g,%g)",
			out.ResX, out.ResY, si.ResX, si.ResY)
	}
	if !isMultiple(out.BBox.XMin-si.BBox.XMin, si.ResX) || !isMultiple(out.BBox.YMax-si.BBox.YMax, si.ResY) {
		return nil, errs.Shapef("output grid %s is not in phase with source grid %s", out.BBox, si.BBox)
	}
	dst, w, h, err := alignedIntersection(si.BBox, out)
	if err != nil {
		return nil, err
	}
	info := si
	info.BBox = dst
	info.Width, info.Height = w, h
	info.ResX, info.ResY = out.ResX, out.ResY
	return &Decimated{
		src: src, info: info, nodata: nodata,
		strideX: kx, strideY: ky,
		offX: int(math.Round((dst.XMin - si.BBox.XMin) / si.ResX)),
		offY: int(math.Round((si.BBox.YMax - dst.YMax) / si.ResY)),
		line: make([]float32, si.LineSize()),
	}, nil
}

func (d *Decimated) Info() Info        { return d.info }
func (d *Decimated) Nodata() []float32 { return d.nodata }
func (d *Decimated) Close() error      { return d.src.Close() }

// source returns the source pixel of output pixel i along an axis, or -1
// when it falls outside the source.
func source(i, stride, off, n int) int {
	s := i*stride + off
	if s < 0 || s >= n {
		return -1
	}
	return s
}

func (d *Decimated) ReadLine(y int, buf []float32) error {
	if err := checkLine(d, y, buf); err != nil {
		return err
	}
	si := d.src.Info()
	nc := d.info.Channels
	sy := source(y, d.strideY, d.offY, si.Height)
	// masked out source pixels read as nodata
	var valid []float32
	if sy >= 0 {
		if err := d.src.ReadLine(sy, d.line); err != nil {
			return err
		}
		if srcMask := d.src.Mask(); srcMask != nil {
			if d.srcValid == nil {
				d.srcValid = make([]float32, si.Width)
			}
			if err := srcMask.ReadLine(sy, d.srcValid); err != nil {
				return err
			}
			valid = d.srcValid
		}
	}
	for x := 0; x < d.info.Width; x++ {
		px := buf[x*nc : (x+1)*nc]
		sx := source(x, d.strideX, d.offX, si.Width)
		if sy < 0 || sx < 0 || (valid != nil && valid[sx] == 0) {
			copy(px, d.nodata)
			continue
		}
		copy(px, d.line[sx*nc:(sx+1)*nc])
	}
	return nil
}

func (d *Decimated) Mask() Image {
	if d.mask == nil {
		d.mask = &decimatedMask{d: d, info: d.info.MaskInfo()}
	}
	return d.mask
}

type decimatedMask struct {
	d    *Decimated
	info Info
	line []float32
}

func (m *decimatedMask) Info() Info   { return m.info }
func (m *decimatedMask) Mask() Image  { return nil }
func (m *decimatedMask) Close() error { return nil }

func (m *decimatedMask) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	d := m.d
	si := d.src.Info()
	srcMask := d.src.Mask()
	sy := source(y, d.strideY, d.offY, si.Height)
	if sy >= 0 && srcMask != nil {
		if m.line == nil {
			m.line = make([]float32, si.Width)
		}
		if err := srcMask.ReadLine(sy, m.line); err != nil {
			return err
		}
	}
	for x := 0; x < m.info.Width; x++ {
		sx := source(x, d.strideX, d.offX, si.Width)
		switch {
		case sy < 0 || sx < 0:
			buf[x] = 0
		case srcMask == nil:
			buf[x] = 255
		default:
			buf[x] = m.line[sx]
		}
	}
	return nil
}
