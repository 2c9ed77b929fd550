package raster

import (
	"context"
	"math"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"go.uber.org/zap"
)

// Reproject builds the image of c on the grid of out, in another CRS. The
// result covers the part of c that lies within out and within the validity
// areas of both systems. ErrEmpty is returned when that part has no pixel.
// Filters are applied to the padded c before sampling.
func Reproject(ctx context.Context, c *Compound, out Info, kernel Kernel, filters ...Filter) (*Reprojected, error) {
	ci := c.Info()
	src, dst := ci.CRS, out.CRS
	if src == nil || dst == nil {
		return nil, errs.Configf("reprojection needs both crs, got %q and %q", src.Code(), dst.Code())
	}
	logger := log.Logger(ctx).With(zap.String("from", src.Code()), zap.String("to", dst.Code()))

	srcBBox := ci.BBox.CropToArea(src)
	if dstArea, err := dst.NativeArea().Reproject(dst, src); err == nil {
		srcBBox = srcBBox.Intersect(dstArea)
	}
	if srcBBox.Empty() {
		logger.Warn("source outside of the validity areas", zap.Stringer("bbox", ci.BBox))
		return nil, ErrEmpty
	}
	cropW := math.Ceil(srcBBox.Width()/ci.ResX - Epsilon)
	cropH := math.Ceil(srcBBox.Height()/ci.ResY - Epsilon)

	srcInDst, err := srcBBox.Reproject(src, dst)
	if err != nil {
		logger.Warn("source box cannot be projected", zap.Error(err))
		return nil, ErrEmpty
	}
	resX, resY := srcInDst.Width()/cropW, srcInDst.Height()/cropH

	target := out
	target.BBox = out.BBox.CropToArea(dst)
	dstBBox, w, h, err := alignedIntersection(srcInDst, target)
	if err != nil {
		return nil, err
	}

	back, err := dstBBox.Reproject(dst, src)
	if err != nil {
		return nil, errs.Computationf("reproject %s to %s: %w", dstBBox, src, err)
	}
	ratioX, ratioY := out.ResX/resX, out.ResY/resY
	mirror := 2 * max(kernel.MirrorSize(ratioX), kernel.MirrorSize(ratioY))
	if err := c.AddMirrors(mirror); err != nil {
		return nil, err
	}
	c.ExtendBBox(back, mirror+1)

	grid, err := NewGrid(w, h, dstBBox, dst, src, c.Info(), GridStep)
	if err != nil {
		return nil, err
	}
	data, err := filter(c, filters)
	if err != nil {
		return nil, err
	}
	info := data.Info()
	info.BBox = dstBBox
	info.Width, info.Height = w, h
	info.ResX, info.ResY = out.ResX, out.ResY
	info.CRS = dst
	logger.Debug("reprojected image", zap.Stringer("info", info))
	return newReprojected(c, data, info, grid, kernel, c.UseMasks()), nil
}

// Reprojected samples a compound at the positions given by a grid.
type Reprojected struct {
	src     *Compound
	data    Image
	nodata  []float32
	info    Info
	grid    *Grid
	kernel  Kernel
	useMask bool
	ratioX  float64
	ratioY  float64

	lines, masks *lineCache
	us, vs       []float64
	mask         *gridMask
}

func newReprojected(src *Compound, data Image, info Info, grid *Grid, kernel Kernel, useMask bool) *Reprojected {
	rx, ry := grid.Ratios()
	r := &Reprojected{
		src: src, data: data, nodata: nodataOf(data, src.Nodata()),
		info: info, grid: grid, kernel: kernel, useMask: useMask,
		ratioX: rx, ratioY: ry,
		lines: newLineCache(data),
		us:    make([]float64, info.Width),
		vs:    make([]float64, info.Width),
	}
	if useMask {
		r.masks = newLineCache(src.Mask())
	}
	return r
}

func (r *Reprojected) Info() Info        { return r.info }
func (r *Reprojected) Nodata() []float32 { return r.nodata }
func (r *Reprojected) Grid() *Grid       { return r.grid }
func (r *Reprojected) Source() *Compound { return r.src }

// Close closes the filtered image, which owns the compound, or the compound.
func (r *Reprojected) Close() error {
	if r.data != Image(r.src) {
		return r.data.Close()
	}
	return r.src.Close()
}

func (r *Reprojected) Mask() Image {
	if r.mask == nil {
		r.mask = &gridMask{r: r, info: r.info.MaskInfo(), lines: newLineCache(r.src.Mask())}
	}
	return r.mask
}

func (r *Reprojected) ReadLine(y int, buf []float32) error {
	if err := checkLine(r, y, buf); err != nil {
		return err
	}
	r.grid.Row(y, r.us, r.vs)
	si := r.data.Info()
	nc := r.info.Channels
	nodata := r.nodata

	vmin := math.Inf(1)
	for _, v := range r.vs {
		vmin = math.Min(vmin, v)
	}
	low := int(math.Floor(vmin-r.kernel.Size(r.ratioY))) - 1
	r.lines.evictBelow(low)
	if r.masks != nil {
		r.masks.evictBelow(low)
	}

	acc := make([]float64, nc)
	for x := 0; x < r.info.Width; x++ {
		px := buf[x*nc : (x+1)*nc]
		u, v := r.us[x], r.vs[x]
		if r.kernel == Nearest {
			sx, sy := int(math.Floor(u+0.5)), int(math.Floor(v+0.5))
			if sx < 0 || sy < 0 || sx >= si.Width || sy >= si.Height {
				copy(px, nodata)
				continue
			}
			line, err := r.lines.get(sy)
			if err != nil {
				return err
			}
			copy(px, line[sx*nc:(sx+1)*nc])
			continue
		}
		x0, wx := r.kernel.Weights(u, r.ratioX)
		y0, wy := r.kernel.Weights(v, r.ratioY)
		for ch := range acc {
			acc[ch] = 0
		}
		den := 0.0
		for j, wj := range wy {
			sy := y0 + j
			if wj == 0 || sy < 0 || sy >= si.Height {
				continue
			}
			line, err := r.lines.get(sy)
			if err != nil {
				return err
			}
			var mline []float32
			if r.masks != nil {
				if mline, err = r.masks.get(sy); err != nil {
					return err
				}
			}
			for i, wi := range wx {
				sx := x0 + i
				if wi == 0 || sx < 0 || sx >= si.Width {
					continue
				}
				w := wi * wj
				if mline != nil {
					w *= float64(mline[sx]) / 255
					if w == 0 {
						continue
					}
				}
				for ch := range acc {
					acc[ch] += w * float64(line[sx*nc+ch])
				}
				den += w
			}
		}
		if math.Abs(den) < 1e-9 {
			copy(px, nodata)
			continue
		}
		for ch := range px {
			px[ch] = float32(acc[ch] / den)
		}
	}
	if r.info.Format == Uint8 {
		ToUint8(buf[:r.info.LineSize()])
	}
	return nil
}

// gridMask samples the mask of the source at the nearest pixel of each grid
// position.
type gridMask struct {
	r      *Reprojected
	info   Info
	lines  *lineCache
	us, vs []float64
}

func (m *gridMask) Info() Info   { return m.info }
func (m *gridMask) Mask() Image  { return nil }
func (m *gridMask) Close() error { return nil }

func (m *gridMask) ReadLine(y int, buf []float32) error {
	if err := checkLine(m, y, buf); err != nil {
		return err
	}
	if m.us == nil {
		m.us, m.vs = make([]float64, m.info.Width), make([]float64, m.info.Width)
	}
	m.r.grid.Row(y, m.us, m.vs)
	si := m.r.src.Info()
	vmin := math.Inf(1)
	for _, v := range m.vs {
		vmin = math.Min(vmin, v)
	}
	m.lines.evictBelow(int(math.Floor(vmin+0.5)) - 1)
	for x := range buf[:m.info.Width] {
		sx, sy := int(math.Floor(m.us[x]+0.5)), int(math.Floor(m.vs[x]+0.5))
		buf[x] = 0
		if sx < 0 || sy < 0 || sx >= si.Width || sy >= si.Height {
			continue
		}
		line, err := m.lines.get(sy)
		if err != nil {
			return err
		}
		buf[x] = line[sx]
	}
	return nil
}
