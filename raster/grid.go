package raster

import (
	"math"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
)

// GridStep is the spacing, in destination pixels, of the nodes that are
// actually projected. Pixels between nodes are interpolated bilinearly.
const GridStep = 16

// Grid maps the pixels of a destination grid to pixel coordinates of a
// source image. Only the nodes are projected; rows are interpolated on
// demand.
type Grid struct {
	width, height int
	// node indices along each axis, in destination pixels
	nx, ny []int
	// source coordinates of the nodes, row major
	us, vs []float64
}

func nodes(n, step int) []int {
	var out []int
	for i := 0; i < n; i += step {
		out = append(out, i)
	}
	if out[len(out)-1] != n-1 {
		out = append(out, n-1)
	}
	return out
}

// NewGrid projects the centres of the nodes of a width x height grid over
// bbox, in CRS dst, into CRS src, then into the pixel grid of srcInfo.
func NewGrid(width, height int, bbox crs.BBox, dst, src *crs.CRS, srcInfo Info, step int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.Shapef("cannot build a %dx%d grid", width, height)
	}
	if step <= 0 {
		step = GridStep
	}
	g := &Grid{width: width, height: height, nx: nodes(width, step), ny: nodes(height, step)}
	resx, resy := bbox.Width()/float64(width), bbox.Height()/float64(height)
	n := len(g.nx) * len(g.ny)
	g.us, g.vs = make([]float64, 0, n), make([]float64, 0, n)
	for _, j := range g.ny {
		for _, i := range g.nx {
			g.us = append(g.us, bbox.XMin+(float64(i)+0.5)*resx)
			g.vs = append(g.vs, bbox.YMax-(float64(j)+0.5)*resy)
		}
	}
	if !dst.Equal(src) {
		tr, err := crs.DefaultPool.Transform(dst, src)
		if err != nil {
			return nil, errs.Computationf("grid transform: %w", err)
		}
		if bad := tr.Apply(g.us, g.vs); bad > 0 {
			return nil, errs.Computationf("grid: %d of %d points cannot be projected from %s to %s", bad, n, dst, src)
		}
	}
	g.Affine(1/srcInfo.ResX, -srcInfo.BBox.XMin/srcInfo.ResX-0.5, -1/srcInfo.ResY, srcInfo.BBox.YMax/srcInfo.ResY-0.5)
	return g, nil
}

// Affine applies u' = ax*u + bx and v' = ay*v + by to every node.
func (g *Grid) Affine(ax, bx, ay, by float64) {
	for i := range g.us {
		g.us[i] = ax*g.us[i] + bx
		g.vs[i] = ay*g.vs[i] + by
	}
}

// Extent returns the envelope of the nodes.
func (g *Grid) Extent() crs.BBox {
	b := crs.BBox{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	for i := range g.us {
		b.XMin = math.Min(b.XMin, g.us[i])
		b.XMax = math.Max(b.XMax, g.us[i])
		b.YMin = math.Min(b.YMin, g.vs[i])
		b.YMax = math.Max(b.YMax, g.vs[i])
	}
	return b
}

// Ratios estimates how many source pixels a destination pixel spans.
func (g *Grid) Ratios() (float64, float64) {
	e := g.Extent()
	return e.Width() / float64(max(1, g.width-1)), e.Height() / float64(max(1, g.height-1))
}

func bracket(idx []int, p int) (int, float64) {
	k := 0
	for k+1 < len(idx)-1 && idx[k+1] <= p {
		k++
	}
	if len(idx) == 1 {
		return 0, 0
	}
	return k, float64(p-idx[k]) / float64(idx[k+1]-idx[k])
}

// Row fills us and vs with the source coordinates of row j.
func (g *Grid) Row(j int, us, vs []float64) {
	nx := len(g.nx)
	kj, fj := bracket(g.ny, j)
	kj1 := min(kj+1, len(g.ny)-1)
	ki := 0
	for i := 0; i < g.width; i++ {
		for ki+1 < nx-1 && g.nx[ki+1] <= i {
			ki++
		}
		ki1 := min(ki+1, nx-1)
		fi := 0.0
		if ki1 != ki {
			fi = float64(i-g.nx[ki]) / float64(g.nx[ki1]-g.nx[ki])
		}
		lerp := func(a []float64) float64 {
			top := a[kj*nx+ki]*(1-fi) + a[kj*nx+ki1]*fi
			bottom := a[kj1*nx+ki]*(1-fi) + a[kj1*nx+ki1]*fi
			return top*(1-fj) + bottom*fj
		}
		us[i], vs[i] = lerp(g.us), lerp(g.vs)
	}
}
