package raster

import (
	"math"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
)

// GammaTable maps the sum of four uint8 samples, 0 to 1020, to an output
// sample. A gamma of 1 gives the plain mean, a larger one brightens.
func GammaTable(gamma float64) []uint8 {
	t := make([]uint8, 1021)
	for i := range t {
		t[i] = uint8(255 - math.Round(math.Pow(float64(1020-i)/1020, gamma)*255))
	}
	return t
}

// Merge4Options configures Merge4.
type Merge4Options struct {
	Gamma float64
	// Nodata is the value of pixels left without data.
	Nodata []float32
	// Background, when not nil, provides the pixels left without data. It
	// has the size of the output.
	Background Image
}

// Merged4 is the half resolution image of four quadrant images laid out as
// 0 1 / 2 3.
type Merged4 struct {
	quads [4]Image
	opts  Merge4Options
	info  Info
	table []uint8

	lines, mlines [4][2][]float32
	bgLine        []float32
	bgMask        []float32
	row           int
	data          []float32
	valid         []bool
	mask          *merged4Mask
}

// Merge4 combines up to four images into one of the same size by averaging
// 2x2 blocks. Missing quadrants are nil. All present images share their
// size, which must be even, their format and their channel count.
func Merge4(quads [4]Image, opts Merge4Options) (*Merged4, error) {
	var ref Image
	refQuad := -1
	for i, q := range quads {
		if q == nil {
			continue
		}
		if ref == nil {
			ref, refQuad = q, i
			continue
		}
		ri, qi := ref.Info(), q.Info()
		if ri.Width != qi.Width || ri.Height != qi.Height || ri.Channels != qi.Channels || ri.Format != qi.Format {
			return nil, errs.Shapef("image %d is %s, image %d is %s", refQuad, ri, i, qi)
		}
	}
	if ref == nil {
		return nil, errs.Shapef("merge4 needs at least one image")
	}
	ri := ref.Info()
	if ri.Width%2 != 0 || ri.Height%2 != 0 {
		return nil, errs.Shapef("merge4 needs even dimensions, got %dx%d", ri.Width, ri.Height)
	}
	if len(opts.Nodata) != ri.Channels {
		return nil, errs.Configf("nodata has %d values, images have %d channels", len(opts.Nodata), ri.Channels)
	}
	if opts.Gamma <= 0 {
		opts.Gamma = 1
	}
	if bg := opts.Background; bg != nil {
		bi := bg.Info()
		if bi.Width != ri.Width || bi.Height != ri.Height || bi.Channels != ri.Channels || bi.Format != ri.Format {
			return nil, errs.Shapef("background is %s, images are %s", bi, ri)
		}
	}

	info := ri
	if ri.ResX > 0 && ri.ResY > 0 {
		col, row := float64(refQuad%2), float64(refQuad/2)
		w, h := float64(ri.Width)*ri.ResX, float64(ri.Height)*ri.ResY
		xmin := ri.BBox.XMin - col*w
		ymax := ri.BBox.YMax + row*h
		info.BBox = crs.BBox{XMin: xmin, YMin: ymax - 2*h, XMax: xmin + 2*w, YMax: ymax}
		info.ResX, info.ResY = 2*ri.ResX, 2*ri.ResY
	}

	m := &Merged4{
		quads: quads, opts: opts, info: info,
		row:   -1,
		data:  make([]float32, info.LineSize()),
		valid: make([]bool, info.Width),
	}
	if info.Format == Uint8 {
		m.table = GammaTable(opts.Gamma)
	}
	for i, q := range quads {
		if q == nil {
			continue
		}
		for k := 0; k < 2; k++ {
			m.lines[i][k] = make([]float32, ri.LineSize())
			if q.Mask() != nil {
				m.mlines[i][k] = make([]float32, ri.Width)
			}
		}
	}
	if opts.Background != nil {
		m.bgLine = make([]float32, info.LineSize())
		if opts.Background.Mask() != nil {
			m.bgMask = make([]float32, info.Width)
		}
	}
	return m, nil
}

func (m *Merged4) Info() Info        { return m.info }
func (m *Merged4) Nodata() []float32 { return m.opts.Nodata }

// BackgroundUsed tells whether the background takes part in the result.
// It does not when the four images are present and have no mask.
func (m *Merged4) BackgroundUsed() bool {
	if m.opts.Background == nil {
		return false
	}
	for _, q := range m.quads {
		if q == nil || q.Mask() != nil {
			return true
		}
	}
	return false
}

func (m *Merged4) Close() error {
	var first error
	for _, q := range m.quads {
		if q == nil {
			continue
		}
		if err := q.Close(); err != nil && first == nil {
			first = err
		}
	}
	if bg := m.opts.Background; bg != nil {
		if err := bg.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Merged4) compose(y int) error {
	if m.row == y {
		return nil
	}
	m.row = -1
	half := m.info.Height / 2
	top := 0
	if y >= half {
		top = 2
	}
	sy := 2 * (y % half)
	for i := top; i < top+2; i++ {
		q := m.quads[i]
		if q == nil {
			continue
		}
		for k := 0; k < 2; k++ {
			if err := q.ReadLine(sy+k, m.lines[i][k]); err != nil {
				return err
			}
			if mk := q.Mask(); mk != nil {
				if err := mk.ReadLine(sy+k, m.mlines[i][k]); err != nil {
					return err
				}
			}
		}
	}
	if m.BackgroundUsed() {
		if err := m.opts.Background.ReadLine(y, m.bgLine); err != nil {
			return err
		}
		if m.bgMask != nil {
			if err := m.opts.Background.Mask().ReadLine(y, m.bgMask); err != nil {
				return err
			}
		}
	}

	nc := m.info.Channels
	halfW := m.info.Width / 2
	sum := make([]float64, nc)
	for x := 0; x < m.info.Width; x++ {
		px := m.data[x*nc : (x+1)*nc]
		qi := top
		if x >= halfW {
			qi++
		}
		sx := 2 * (x % halfW)
		count := 0
		for c := range sum {
			sum[c] = 0
		}
		if m.quads[qi] != nil {
			for k := 0; k < 2; k++ {
				line, mline := m.lines[qi][k], m.mlines[qi][k]
				for dx := 0; dx < 2; dx++ {
					s := sx + dx
					if mline != nil && mline[s] == 0 {
						continue
					}
					count++
					for c := range sum {
						sum[c] += float64(line[s*nc+c])
					}
				}
			}
		}
		switch {
		case count > 0:
			m.valid[x] = true
			for c := range px {
				if m.table != nil {
					px[c] = float32(m.table[int(sum[c])*4/count])
				} else {
					px[c] = float32(sum[c] / float64(count))
				}
			}
		case m.BackgroundUsed() && (m.bgMask == nil || m.bgMask[x] != 0):
			m.valid[x] = true
			copy(px, m.bgLine[x*nc:(x+1)*nc])
		default:
			m.valid[x] = false
			copy(px, m.opts.Nodata)
		}
	}
	m.row = y
	return nil
}

func (m *Merged4) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	if err := m.compose(y); err != nil {
		return err
	}
	copy(buf, m.data)
	return nil
}

// Mask is 255 where at least one source pixel of the block, or the
// background, holds data.
func (m *Merged4) Mask() Image {
	if m.mask == nil {
		m.mask = &merged4Mask{m: m, info: m.info.MaskInfo()}
	}
	return m.mask
}

type merged4Mask struct {
	m    *Merged4
	info Info
}

func (mm *merged4Mask) Info() Info   { return mm.info }
func (mm *merged4Mask) Mask() Image  { return nil }
func (mm *merged4Mask) Close() error { return nil }

func (mm *merged4Mask) ReadLine(y int, buf []float32) error {
	if err := checkLine(mm, y, buf); err != nil {
		return err
	}
	if err := mm.m.compose(y); err != nil {
		return err
	}
	for x, v := range mm.m.valid {
		buf[x] = 0
		if v {
			buf[x] = 255
		}
	}
	return nil
}
