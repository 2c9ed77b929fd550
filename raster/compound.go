package raster

import (
	"math"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
)

// Compound overlays children onto a grid. A pixel takes the samples of the
// first child, in order, holding data at that place, and nodata when no child
// does. Its mask is the union of the masks of the children.
type Compound struct {
	info     Info
	nodata   []float32
	children []Image
	// number of children owned by the compound, mirrors excluded
	owned int

	offsets []offset
	bufs    [][]float32
	mbufs   [][]float32

	row    int
	data   []float32
	filled []bool
	mask   *compoundMask
}

type offset struct {
	col, row int
}

// NewCompound creates a compound over the grid of info: its box,
// resolutions, CRS, sample format and channels. Width and height are derived
// from the box. Every child must be compatible with that grid and share its
// layout.
func NewCompound(info Info, nodata []float32, children ...Image) (*Compound, error) {
	if info.ResX <= 0 || info.ResY <= 0 {
		return nil, errs.Configf("compound needs positive resolutions, got (%g,%g)", info.ResX, info.ResY)
	}
	if len(nodata) != info.Channels {
		return nil, errs.Configf("nodata has %d values, image has %d channels", len(nodata), info.Channels)
	}
	info.Width, info.Height = Dimensions(info.BBox, info.ResX, info.ResY)
	if info.Photometric == UnknownPhotometric {
		info.Photometric = PhotometricFor(info.Channels)
	}
	c := &Compound{info: info, nodata: append([]float32(nil), nodata...), row: -1}
	for _, child := range children {
		if err := c.add(child); err != nil {
			return nil, err
		}
	}
	c.owned = len(c.children)
	c.layout()
	return c, nil
}

// NewPackCompound creates a compound covering the union of the boxes of
// pack, whose images must be compatible, on the grid of the first one.
func NewPackCompound(pack []Image, nodata []float32) (*Compound, error) {
	if len(pack) == 0 {
		return nil, errs.Shapef("empty pack")
	}
	info := pack[0].Info()
	bbox := info.BBox
	for _, img := range pack[1:] {
		bbox = bbox.Union(img.Info().BBox)
	}
	info.BBox = bbox
	return NewCompound(info, nodata, pack...)
}

func (c *Compound) add(child Image) error {
	ci := child.Info()
	if ci.Channels != c.info.Channels || ci.Format != c.info.Format {
		return errs.Shapef("cannot compound %dx%s image into %dx%s image",
			ci.Channels, ci.Format, c.info.Channels, c.info.Format)
	}
	if !c.info.Compatible(ci) {
		return errs.Shapef("image %s is not compatible with the grid of %s", ci, c.info)
	}
	c.children = append(c.children, child)
	return nil
}

// layout recomputes the position of every child in the grid.
func (c *Compound) layout() {
	c.offsets = make([]offset, len(c.children))
	for i, child := range c.children {
		ci := child.Info()
		c.offsets[i] = offset{
			col: int(math.Round((ci.BBox.XMin - c.info.BBox.XMin) / c.info.ResX)),
			row: int(math.Round((c.info.BBox.YMax - ci.BBox.YMax) / c.info.ResY)),
		}
	}
	c.bufs = make([][]float32, len(c.children))
	c.mbufs = make([][]float32, len(c.children))
	c.data = make([]float32, c.info.LineSize())
	c.filled = make([]bool, c.info.Width)
	c.row = -1
}

func (c *Compound) Info() Info { return c.info }

// Nodata returns the samples written where no child holds data.
func (c *Compound) Nodata() []float32 { return c.nodata }

// Children returns the children of the compound, mirrors included.
func (c *Compound) Children() []Image { return c.children }

// UseMasks reports whether at least one child carries a mask, in which case
// interpolation should weight samples by validity.
func (c *Compound) UseMasks() bool {
	for _, child := range c.children[:c.owned] {
		if child.Mask() != nil {
			return true
		}
	}
	return false
}

func (c *Compound) Mask() Image {
	if c.mask == nil {
		c.mask = &compoundMask{c: c}
	}
	return c.mask
}

func (c *Compound) Close() error {
	var first error
	for _, child := range c.children[:c.owned] {
		if err := child.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Compound) ReadLine(y int, buf []float32) error {
	if err := checkLine(c, y, buf); err != nil {
		return err
	}
	if err := c.compose(y); err != nil {
		return err
	}
	copy(buf, c.data)
	return nil
}

// compose computes row y into c.data and c.filled.
func (c *Compound) compose(y int) error {
	if c.row == y {
		return nil
	}
	c.row = -1
	nc := c.info.Channels
	for x := 0; x < c.info.Width; x++ {
		copy(c.data[x*nc:(x+1)*nc], c.nodata)
		c.filled[x] = false
	}
	remaining := c.info.Width
	for i, child := range c.children {
		if remaining == 0 {
			break
		}
		ci := child.Info()
		cy := y - c.offsets[i].row
		if cy < 0 || cy >= ci.Height {
			continue
		}
		x0 := c.offsets[i].col
		xs, xe := max(0, x0), min(c.info.Width, x0+ci.Width)
		if xs >= xe {
			continue
		}
		covered := false
		for x := xs; x < xe; x++ {
			if !c.filled[x] {
				covered = true
				break
			}
		}
		if !covered {
			continue
		}
		if c.bufs[i] == nil {
			c.bufs[i] = make([]float32, ci.LineSize())
		}
		if err := child.ReadLine(cy, c.bufs[i]); err != nil {
			return err
		}
		var mline []float32
		if m := child.Mask(); m != nil {
			if c.mbufs[i] == nil {
				c.mbufs[i] = make([]float32, ci.Width)
			}
			if err := m.ReadLine(cy, c.mbufs[i]); err != nil {
				return err
			}
			mline = c.mbufs[i]
		}
		src := c.bufs[i]
		for x := xs; x < xe; x++ {
			if c.filled[x] {
				continue
			}
			sx := x - x0
			if mline != nil && mline[sx] == 0 {
				continue
			}
			copy(c.data[x*nc:(x+1)*nc], src[sx*nc:(sx+1)*nc])
			c.filled[x] = true
			remaining--
		}
	}
	c.row = y
	return nil
}

type compoundMask struct {
	c *Compound
}

func (m *compoundMask) Info() Info   { return m.c.info.MaskInfo() }
func (m *compoundMask) Mask() Image  { return nil }
func (m *compoundMask) Close() error { return nil }

func (m *compoundMask) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	if err := m.c.compose(y); err != nil {
		return err
	}
	for x, f := range m.c.filled {
		buf[x] = 0
		if f {
			buf[x] = 255
		}
	}
	return nil
}

// resize moves the grid of the compound onto bbox, which must be aligned with
// the current grid.
func (c *Compound) resize(bbox crs.BBox) {
	c.info.BBox = bbox
	c.info.Width, c.info.Height = Dimensions(bbox, c.info.ResX, c.info.ResY)
	c.layout()
}

// ExtendBBox enlarges the grid so that it covers target plus margin pixels
// on every side. The grid is never shrunk; new pixels hold nodata.
func (c *Compound) ExtendBBox(target crs.BBox, margin int) {
	rx, ry := c.info.ResX, c.info.ResY
	b := c.info.BBox
	want := target.Expand(float64(margin)*rx, float64(margin)*ry)
	if want.XMin < b.XMin {
		b.XMin -= math.Ceil((b.XMin-want.XMin)/rx-Epsilon) * rx
	}
	if want.XMax > b.XMax {
		b.XMax += math.Ceil((want.XMax-b.XMax)/rx-Epsilon) * rx
	}
	if want.YMin < b.YMin {
		b.YMin -= math.Ceil((b.YMin-want.YMin)/ry-Epsilon) * ry
	}
	if want.YMax > b.YMax {
		b.YMax += math.Ceil((want.YMax-b.YMax)/ry-Epsilon) * ry
	}
	if b != c.info.BBox {
		c.resize(b)
	}
}

// AddMirrors extends the grid by k pixels on every side, filled by
// reflecting the content of the compound across its border.
func (c *Compound) AddMirrors(k int) error {
	if k <= 0 {
		return nil
	}
	w, h := c.info.Width, c.info.Height
	if w <= 0 || h <= 0 {
		return errs.Shapef("cannot mirror an empty image")
	}
	core := &Compound{
		info:     c.info,
		nodata:   c.nodata,
		children: append([]Image(nil), c.children...),
		row:      -1,
	}
	core.layout()

	rx, ry := c.info.ResX, c.info.ResY
	b := c.info.BBox
	fk := float64(k)
	sides := []crs.BBox{
		{XMin: b.XMin - fk*rx, YMin: b.YMax, XMax: b.XMax + fk*rx, YMax: b.YMax + fk*ry}, // top
		{XMin: b.XMin - fk*rx, YMin: b.YMin - fk*ry, XMax: b.XMax + fk*rx, YMax: b.YMin}, // bottom
		{XMin: b.XMin - fk*rx, YMin: b.YMin, XMax: b.XMin, YMax: b.YMax},                 // left
		{XMin: b.XMax, YMin: b.YMin, XMax: b.XMax + fk*rx, YMax: b.YMax},                 // right
	}
	for _, sb := range sides {
		info := c.info
		info.BBox = sb
		info.Width, info.Height = Dimensions(sb, rx, ry)
		c.children = append(c.children, newMirror(core, info))
	}
	c.resize(b.Expand(fk*rx, fk*ry))
	return nil
}
