package raster

import (
	"errors"
	"math"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
)

// ErrEmpty is returned when the requested image would have no pixel. It is
// not fatal: callers drop the image.
var ErrEmpty = errors.New("empty image")

// alignedIntersection returns the part of src that lies within out,
// snapped to the nearest lines of the grid of out, and its dimensions.
func alignedIntersection(src crs.BBox, out Info) (crs.BBox, int, int, error) {
	dst := src.Intersect(out.BBox)
	if dst.Empty() {
		return dst, 0, 0, ErrEmpty
	}
	dst = dst.Phase(out.BBox, out.ResX, out.ResY)
	w, h := Dimensions(dst, out.ResX, out.ResY)
	if w <= 0 || h <= 0 {
		return dst, w, h, ErrEmpty
	}
	return dst, w, h, nil
}

// Filter derives an image on the same pixel grid, a styled image for
// instance.
type Filter func(Image) (Image, error)

// filter applies filters to the padded compound c. Samples are then taken
// from the result, the mask still coming from c.
func filter(c *Compound, filters []Filter) (Image, error) {
	var img Image = c
	for _, f := range filters {
		var err error
		if img, err = f(img); err != nil {
			return nil, err
		}
	}
	ci, fi := c.Info(), img.Info()
	if fi.Width != ci.Width || fi.Height != ci.Height {
		return nil, errs.Shapef("filtered image is %dx%d, source is %dx%d", fi.Width, fi.Height, ci.Width, ci.Height)
	}
	return img, nil
}

func nodataOf(img Image, fallback []float32) []float32 {
	if n, ok := img.(interface{ Nodata() []float32 }); ok {
		return n.Nodata()
	}
	return fallback
}

// Resample builds the image of c on the grid of out, which must share the CRS
// of c. Only the box, resolutions and CRS of out are used. c is padded with
// mirrors so that kernel windows stay within it, and the result covers the
// part of c inside out. ErrEmpty is returned when that part has no pixel.
// Filters are applied to the padded c before sampling.
func Resample(c *Compound, out Info, kernel Kernel, filters ...Filter) (*Resampled, error) {
	ci := c.Info()
	if !ci.CRS.Equal(out.CRS) {
		return nil, errs.Shapef("cannot resample from %s to %s", ci.CRS, out.CRS)
	}
	dst, w, h, err := alignedIntersection(ci.BBox, out)
	if err != nil {
		return nil, err
	}
	ratioX, ratioY := out.ResX/ci.ResX, out.ResY/ci.ResY
	if err := c.AddMirrors(kernel.MirrorSize(math.Max(ratioX, ratioY))); err != nil {
		return nil, err
	}
	data, err := filter(c, filters)
	if err != nil {
		return nil, err
	}
	info := data.Info()
	info.BBox = dst
	info.Width, info.Height = w, h
	info.ResX, info.ResY = out.ResX, out.ResY
	return newResampled(c, data, info, kernel, c.UseMasks()), nil
}

// Resampled is a compound seen through an interpolation kernel on another
// grid of the same CRS.
type Resampled struct {
	src     *Compound
	data    Image
	nodata  []float32
	info    Info
	kernel  Kernel
	useMask bool

	xfirst, yfirst []int
	xw, yw         [][]float64
	xnn, ynn       []int

	line, mline []float32
	hc          *hcache
	mask        *nnMask
}

func newResampled(src *Compound, data Image, info Info, kernel Kernel, useMask bool) *Resampled {
	si := data.Info()
	r := &Resampled{
		src: src, data: data, nodata: nodataOf(data, src.Nodata()),
		info: info, kernel: kernel, useMask: useMask,
	}
	ratioX, ratioY := info.ResX/si.ResX, info.ResY/si.ResY
	r.xfirst, r.xw, r.xnn = axisWeights(kernel, info.Width, ratioX, si.Width, func(i int) float64 {
		xo := info.BBox.XMin + (float64(i)+0.5)*info.ResX
		return (xo-si.BBox.XMin)/si.ResX - 0.5
	})
	r.yfirst, r.yw, r.ynn = axisWeights(kernel, info.Height, ratioY, si.Height, func(j int) float64 {
		yo := info.BBox.YMax - (float64(j)+0.5)*info.ResY
		return (si.BBox.YMax-yo)/si.ResY - 0.5
	})
	r.line = make([]float32, si.LineSize())
	if useMask {
		r.mline = make([]float32, si.Width)
	}
	window := 1
	for _, w := range r.yw {
		window = max(window, len(w))
	}
	r.hc = newHCache(window+1, info.Width, info.Channels)
	return r
}

func axisWeights(k Kernel, n int, ratio float64, srcLen int, coord func(int) float64) ([]int, [][]float64, []int) {
	first := make([]int, n)
	weights := make([][]float64, n)
	nn := make([]int, n)
	for i := 0; i < n; i++ {
		u := coord(i)
		first[i], weights[i] = k.Weights(u, ratio)
		nn[i] = clampIndex(int(math.Floor(u+0.5)), srcLen)
	}
	return first, weights, nn
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (r *Resampled) Info() Info { return r.info }

// Nodata returns the samples of pixels without data.
func (r *Resampled) Nodata() []float32 { return r.nodata }

// Close closes the filtered image, which owns the compound, or the compound.
func (r *Resampled) Close() error {
	if r.data != Image(r.src) {
		return r.data.Close()
	}
	return r.src.Close()
}

func (r *Resampled) Mask() Image {
	if r.mask == nil {
		r.mask = &nnMask{src: r.src.Mask(), info: r.info.MaskInfo(), xs: r.xnn, ys: r.ynn}
	}
	return r.mask
}

// horizontal computes the horizontal pass of source row y.
func (r *Resampled) horizontal(y int) (*hrow, error) {
	if h := r.hc.get(y); h != nil {
		return h, nil
	}
	si := r.data.Info()
	if err := r.data.ReadLine(y, r.line); err != nil {
		return nil, err
	}
	if r.useMask {
		if err := r.src.Mask().ReadLine(y, r.mline); err != nil {
			return nil, err
		}
	}
	h := r.hc.slot(y)
	nc := r.info.Channels
	for x := 0; x < r.info.Width; x++ {
		a := h.a[x*nc : (x+1)*nc]
		for ch := range a {
			a[ch] = 0
		}
		b := 0.0
		first := r.xfirst[x]
		for i, w := range r.xw[x] {
			if w == 0 {
				continue
			}
			sx := clampIndex(first+i, si.Width)
			if r.useMask {
				w *= float64(r.mline[sx]) / 255
				if w == 0 {
					continue
				}
			}
			for ch := range a {
				a[ch] += w * float64(r.line[sx*nc+ch])
			}
			b += w
		}
		h.b[x] = b
	}
	return h, nil
}

func (r *Resampled) ReadLine(y int, buf []float32) error {
	if err := checkLine(r, y, buf); err != nil {
		return err
	}
	nc := r.info.Channels
	nodata := r.nodata
	if r.kernel == Nearest {
		if err := r.data.ReadLine(r.ynn[y], r.line); err != nil {
			return err
		}
		for x, sx := range r.xnn {
			copy(buf[x*nc:(x+1)*nc], r.line[sx*nc:(sx+1)*nc])
		}
		return nil
	}

	si := r.data.Info()
	acc := make([]float64, r.info.LineSize())
	den := make([]float64, r.info.Width)
	first := r.yfirst[y]
	for j, wy := range r.yw[y] {
		if wy == 0 {
			continue
		}
		h, err := r.horizontal(clampIndex(first+j, si.Height))
		if err != nil {
			return err
		}
		for i := range acc {
			acc[i] += wy * h.a[i]
		}
		for x := range den {
			den[x] += wy * h.b[x]
		}
	}
	for x, d := range den {
		px := buf[x*nc : (x+1)*nc]
		if math.Abs(d) < 1e-9 {
			copy(px, nodata)
			continue
		}
		for ch := range px {
			px[ch] = float32(acc[x*nc+ch] / d)
		}
	}
	if r.info.Format == Uint8 {
		ToUint8(buf[:r.info.LineSize()])
	}
	return nil
}

// nnMask samples a mask at precomputed source positions.
type nnMask struct {
	src    Image
	info   Info
	xs, ys []int
	line   []float32
}

func (m *nnMask) Info() Info   { return m.info }
func (m *nnMask) Mask() Image  { return nil }
func (m *nnMask) Close() error { return nil }

func (m *nnMask) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	if m.line == nil {
		m.line = make([]float32, m.src.Info().Width)
	}
	if err := m.src.ReadLine(m.ys[y], m.line); err != nil {
		return err
	}
	for x, sx := range m.xs {
		buf[x] = m.line[sx]
	}
	return nil
}

type hrow struct {
	row int
	a   []float64
	b   []float64
}

// hcache keeps the horizontal passes of the last source rows.
type hcache struct {
	rows []*hrow
}

func newHCache(n, width, channels int) *hcache {
	c := &hcache{rows: make([]*hrow, n)}
	for i := range c.rows {
		c.rows[i] = &hrow{row: -1, a: make([]float64, width*channels), b: make([]float64, width)}
	}
	return c
}

func (c *hcache) get(y int) *hrow {
	for _, r := range c.rows {
		if r.row == y {
			return r
		}
	}
	return nil
}

// slot recycles the entry of the lowest row for row y.
func (c *hcache) slot(y int) *hrow {
	lowest := c.rows[0]
	for _, r := range c.rows[1:] {
		if r.row < lowest.row {
			lowest = r
		}
	}
	lowest.row = y
	return lowest
}
