package crs

import (
	"fmt"
	"math"
)

// BBox is an axis aligned rectangle in map coordinates, y growing upwards.
type BBox struct {
	XMin, YMin, XMax, YMax float64
}

func NewBBox(xmin, ymin, xmax, ymax float64) BBox {
	return BBox{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

func (b BBox) Width() float64  { return b.XMax - b.XMin }
func (b BBox) Height() float64 { return b.YMax - b.YMin }

// Empty reports whether the box has no area.
func (b BBox) Empty() bool {
	return !(b.XMax > b.XMin) || !(b.YMax > b.YMin)
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Intersect returns the common part of b and o. The result may be Empty.
func (b BBox) Intersect(o BBox) BBox {
	return BBox{
		XMin: math.Max(b.XMin, o.XMin),
		YMin: math.Max(b.YMin, o.YMin),
		XMax: math.Min(b.XMax, o.XMax),
		YMax: math.Min(b.YMax, o.YMax),
	}
}

// Intersects reports whether b and o share some area.
func (b BBox) Intersects(o BBox) bool {
	return !b.Intersect(o).Empty()
}

func (b BBox) Union(o BBox) BBox {
	return BBox{
		XMin: math.Min(b.XMin, o.XMin),
		YMin: math.Min(b.YMin, o.YMin),
		XMax: math.Max(b.XMax, o.XMax),
		YMax: math.Max(b.YMax, o.YMax),
	}
}

// Contains reports whether o lies inside b, with a tolerance of eps.
func (b BBox) Contains(o BBox, eps float64) bool {
	return o.XMin >= b.XMin-eps && o.YMin >= b.YMin-eps &&
		o.XMax <= b.XMax+eps && o.YMax <= b.YMax+eps
}

// Phase moves every edge of b onto the nearest line of the grid defined by
// ref's corner and the resolutions.
func (b BBox) Phase(ref BBox, resx, resy float64) BBox {
	snap := func(v, origin, res float64) float64 {
		return origin + math.Round((v-origin)/res)*res
	}
	return BBox{
		XMin: snap(b.XMin, ref.XMin, resx),
		XMax: snap(b.XMax, ref.XMin, resx),
		YMin: snap(b.YMin, ref.YMax, resy),
		YMax: snap(b.YMax, ref.YMax, resy),
	}
}

// Expand grows b by dx on the left and right and dy on the top and bottom.
func (b BBox) Expand(dx, dy float64) BBox {
	return BBox{XMin: b.XMin - dx, YMin: b.YMin - dy, XMax: b.XMax + dx, YMax: b.YMax + dy}
}

// densify returns count points along each edge of b, corners included.
func (b BBox) densify(count int) (xs, ys []float64) {
	if count < 2 {
		count = 2
	}
	xs = make([]float64, 0, 4*count)
	ys = make([]float64, 0, 4*count)
	for i := 0; i < count; i++ {
		f := float64(i) / float64(count-1)
		x := b.XMin + f*b.Width()
		y := b.YMin + f*b.Height()
		xs = append(xs, x, x, b.XMin, b.XMax)
		ys = append(ys, b.YMin, b.YMax, y, y)
	}
	return xs, ys
}

// DensifyCount is the number of points sampled on each edge when a box is
// reprojected.
const DensifyCount = 256

// Reproject returns the envelope of b, expressed in from, once projected
// into to. Points that cannot be projected are ignored; an error is
// returned when none can.
func (b BBox) Reproject(from, to *CRS) (BBox, error) {
	if from.Equal(to) {
		return b, nil
	}
	tr, err := DefaultPool.Transform(from, to)
	if err != nil {
		return BBox{}, err
	}
	xs, ys := b.densify(DensifyCount)
	tr.Apply(xs, ys)
	return envelope(xs, ys, fmt.Sprintf("reproject %s from %s to %s", b, from, to))
}

func envelope(xs, ys []float64, what string) (BBox, error) {
	out := BBox{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	valid := 0
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		valid++
		out.XMin = math.Min(out.XMin, xs[i])
		out.XMax = math.Max(out.XMax, xs[i])
		out.YMin = math.Min(out.YMin, ys[i])
		out.YMax = math.Max(out.YMax, ys[i])
	}
	if valid == 0 {
		return BBox{}, fmt.Errorf("%s: no point could be projected", what)
	}
	return out, nil
}

// CropToArea intersects b, expressed in c, with the validity area of c.
func (b BBox) CropToArea(c *CRS) BBox {
	return b.Intersect(c.NativeArea())
}
