package raster

import (
	"strings"

	"github.com/airbusgeo/ntiff/internal/errs"
)

type MergeMethod int

const (
	// Top keeps the top most input holding data.
	Top MergeMethod = iota + 1
	// AlphaTop composes inputs with the over operator, bottom to top.
	AlphaTop
	// Multiply multiplies the inputs channel by channel.
	Multiply
)

func ParseMergeMethod(s string) (MergeMethod, error) {
	switch strings.ToUpper(s) {
	case "TOP":
		return Top, nil
	case "ALPHATOP":
		return AlphaTop, nil
	case "MULTIPLY":
		return Multiply, nil
	}
	return 0, errs.Configf("unknown merge method %q (TOP|ALPHATOP|MULTIPLY)", s)
}

func (m MergeMethod) String() string {
	switch m {
	case Top:
		return "TOP"
	case AlphaTop:
		return "ALPHATOP"
	case Multiply:
		return "MULTIPLY"
	}
	return "UNKNOWN"
}

// MergeOptions configures Merge.
type MergeOptions struct {
	Method MergeMethod
	// Channels of the output, 1 to 4. Output samples are uint8.
	Channels    int
	Photometric Photometric
	// Background holds one value per output channel.
	Background []float32
	// Transparent, when set, is an RGB color. Input pixels of that color,
	// gray ones read as r=g=b, are fully transparent.
	Transparent []float32
}

// Merged blends equally sized images. Inputs are ordered top first.
type Merged struct {
	inputs []Image
	opts   MergeOptions
	info   Info
	bg     rgba

	lines  [][]float32
	mlines [][]float32
	pixels [][]rgba
	row    int
	data   []float32
	valid  []bool
	mask   *mergedMask
}

type rgba [4]float64

// Merge blends inputs, ordered top first, under opts.
func Merge(inputs []Image, opts MergeOptions) (*Merged, error) {
	if len(inputs) == 0 {
		return nil, errs.Shapef("nothing to merge")
	}
	if opts.Channels < 1 || opts.Channels > 4 {
		return nil, errs.Configf("merge output must have 1 to 4 channels, got %d", opts.Channels)
	}
	if len(opts.Background) != opts.Channels {
		return nil, errs.Configf("background has %d values, output has %d channels", len(opts.Background), opts.Channels)
	}
	if opts.Transparent != nil && len(opts.Transparent) != 3 {
		return nil, errs.Configf("transparent color needs 3 values, got %d", len(opts.Transparent))
	}
	first := inputs[0].Info()
	for i, in := range inputs {
		ii := in.Info()
		if ii.Width != first.Width || ii.Height != first.Height {
			return nil, errs.Shapef("input %d is %dx%d, expected %dx%d", i, ii.Width, ii.Height, first.Width, first.Height)
		}
		if ii.Channels < 1 || ii.Channels > 4 {
			return nil, errs.Shapef("input %d has %d channels", i, ii.Channels)
		}
	}
	if opts.Photometric == UnknownPhotometric {
		opts.Photometric = PhotometricFor(opts.Channels)
	}
	info := Info{
		Width: first.Width, Height: first.Height,
		Channels: opts.Channels, Format: Uint8, Photometric: opts.Photometric,
	}
	m := &Merged{
		inputs: inputs, opts: opts, info: info,
		bg:     toRGBA(opts.Background),
		lines:  make([][]float32, len(inputs)),
		mlines: make([][]float32, len(inputs)),
		pixels: make([][]rgba, len(inputs)),
		row:    -1,
		data:   make([]float32, info.LineSize()),
		valid:  make([]bool, info.Width),
	}
	for i, in := range inputs {
		m.lines[i] = make([]float32, in.Info().LineSize())
		m.pixels[i] = make([]rgba, info.Width)
		if in.Mask() != nil {
			m.mlines[i] = make([]float32, info.Width)
		}
	}
	return m, nil
}

func toRGBA(px []float32) rgba {
	switch len(px) {
	case 1:
		g := float64(px[0])
		return rgba{g, g, g, 255}
	case 2:
		g := float64(px[0])
		return rgba{g, g, g, float64(px[1])}
	case 3:
		return rgba{float64(px[0]), float64(px[1]), float64(px[2]), 255}
	default:
		return rgba{float64(px[0]), float64(px[1]), float64(px[2]), float64(px[3])}
	}
}

func fromRGBA(c rgba, out []float32) {
	switch len(out) {
	case 1:
		out[0] = luminance(float32(c[0]), float32(c[1]), float32(c[2]))
	case 2:
		out[0], out[1] = luminance(float32(c[0]), float32(c[1]), float32(c[2])), float32(c[3])
	case 3:
		out[0], out[1], out[2] = float32(c[0]), float32(c[1]), float32(c[2])
	default:
		out[0], out[1], out[2], out[3] = float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])
	}
}

func (m *Merged) Info() Info { return m.info }

func (m *Merged) Close() error {
	var first error
	for _, in := range m.inputs {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// load reads row y of every input as RGBA, alpha 0 marking pixels without
// data.
func (m *Merged) load(y int) error {
	for i, in := range m.inputs {
		if err := in.ReadLine(y, m.lines[i]); err != nil {
			return err
		}
		if mk := in.Mask(); mk != nil {
			if err := mk.ReadLine(y, m.mlines[i]); err != nil {
				return err
			}
		}
		nc := in.Info().Channels
		for x := range m.pixels[i] {
			px := m.lines[i][x*nc : (x+1)*nc]
			c := toRGBA(px)
			if m.mlines[i] != nil && m.mlines[i][x] == 0 {
				c[3] = 0
			}
			if t := m.opts.Transparent; t != nil && float64(t[0]) == c[0] && float64(t[1]) == c[1] && float64(t[2]) == c[2] {
				c[3] = 0
			}
			m.pixels[i][x] = c
		}
	}
	return nil
}

func (m *Merged) compose(y int) error {
	if m.row == y {
		return nil
	}
	m.row = -1
	if err := m.load(y); err != nil {
		return err
	}
	nc := m.info.Channels
	for x := 0; x < m.info.Width; x++ {
		var out rgba
		valid := false
		switch m.opts.Method {
		case Top:
			out = m.bg
			for i := range m.inputs {
				if p := m.pixels[i][x]; p[3] > 0 {
					out, valid = p, true
					break
				}
			}
		case AlphaTop:
			out = m.bg
			for i := len(m.inputs) - 1; i >= 0; i-- {
				p := m.pixels[i][x]
				if p[3] == 0 {
					continue
				}
				valid = true
				as, ad := p[3]/255, out[3]/255
				ao := as + ad*(1-as)
				if ao <= 0 {
					out = rgba{}
					continue
				}
				for c := 0; c < 3; c++ {
					out[c] = (p[c]*as + out[c]*ad*(1-as)) / ao
				}
				out[3] = ao * 255
			}
		case Multiply:
			out = rgba{255, 255, 255, 255}
			valid = true
			for i := range m.inputs {
				p := m.pixels[i][x]
				if p[3] == 0 {
					valid = false
					break
				}
				for c := range out {
					out[c] = out[c] * p[c] / 255
				}
			}
			if !valid {
				out = m.bg
			}
		}
		fromRGBA(out, m.data[x*nc:(x+1)*nc])
		m.valid[x] = valid
	}
	ToUint8(m.data)
	m.row = y
	return nil
}

func (m *Merged) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	if err := m.compose(y); err != nil {
		return err
	}
	copy(buf, m.data)
	return nil
}

// Mask is the union of the masks of the inputs, their intersection for
// Multiply.
func (m *Merged) Mask() Image {
	if m.mask == nil {
		m.mask = &mergedMask{m: m, info: m.info.MaskInfo()}
	}
	return m.mask
}

type mergedMask struct {
	m    *Merged
	info Info
}

func (mm *mergedMask) Info() Info   { return mm.info }
func (mm *mergedMask) Mask() Image  { return nil }
func (mm *mergedMask) Close() error { return nil }

func (mm *mergedMask) ReadLine(y int, buf []float32) error {
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
