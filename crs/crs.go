// Package crs resolves coordinate reference systems and projects coordinates
// between them. Systems and transforms live in a process wide pool, filled on
// first use and released by Cleanup.
package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/peterstace/simplefeatures/geom"
)

// Projection converts between geographic longitude/latitude in degrees and
// the coordinates of a system, in place. Points that cannot be converted are
// set to NaN.
type Projection interface {
	Forward(xs, ys []float64)
	Inverse(xs, ys []float64)
}

// A Resolver builds systems for codes the builtin registry does not know.
type Resolver func(code string) (*CRS, error)

type CRS struct {
	code       string
	geographic bool
	// validity area, longitude/latitude
	area geom.Envelope
	proj Projection

	nativeOnce sync.Once
	native     BBox
}

// New assembles a system. area is given in longitude/latitude degrees. A nil
// projection denotes a geographic system.
func New(code string, proj Projection, area BBox) *CRS {
	return &CRS{
		code:       Normalize(code),
		geographic: proj == nil,
		proj:       proj,
		area: geom.NewEnvelope(
			geom.XY{X: area.XMin, Y: area.YMin},
			geom.XY{X: area.XMax, Y: area.YMax},
		),
	}
}

// NewGeographic assembles a geographic system whose longitude/latitude differ
// from WGS84 through proj (datum shift), which may be nil.
func NewGeographic(code string, proj Projection, area BBox) *CRS {
	c := New(code, proj, area)
	c.geographic = true
	return c
}

// Normalize upper cases a code and trims it.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *CRS) Code() string {
	if c == nil {
		return ""
	}
	return c.code
}

func (c *CRS) String() string {
	return c.Code()
}

func (c *CRS) Geographic() bool {
	return c != nil && c.geographic
}

// Equal compares codes, two nil systems being equal.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	return c.code == o.code || (aliases[c.code] != "" && aliases[c.code] == aliases[o.code])
}

// Area returns the validity area in longitude/latitude.
func (c *CRS) Area() BBox {
	min, max, ok := c.area.MinMaxXYs()
	if !ok {
		return BBox{XMin: -180, YMin: -90, XMax: 180, YMax: 90}
	}
	return BBox{XMin: min.X, YMin: min.Y, XMax: max.X, YMax: max.Y}
}

// AreaIntersects reports whether the longitude/latitude box touches the
// validity area.
func (c *CRS) AreaIntersects(lonlat BBox) bool {
	if lonlat.Empty() {
		return false
	}
	env := geom.NewEnvelope(
		geom.XY{X: lonlat.XMin, Y: lonlat.YMin},
		geom.XY{X: lonlat.XMax, Y: lonlat.YMax},
	)
	return c.area.Intersects(env)
}

// NativeArea returns the validity area expressed in c.
func (c *CRS) NativeArea() BBox {
	c.nativeOnce.Do(func() {
		area := c.Area()
		if c.proj == nil {
			c.native = area
			return
		}
		xs, ys := area.densify(DensifyCount)
		c.proj.Forward(xs, ys)
		b, err := envelope(xs, ys, "native area of "+c.code)
		if err != nil {
			b = BBox{XMin: math.Inf(-1), YMin: math.Inf(-1), XMax: math.Inf(1), YMax: math.Inf(1)}
		}
		c.native = b
	})
	return c.native
}

// ToGeographic converts coordinates of c to longitude/latitude in place.
func (c *CRS) ToGeographic(xs, ys []float64) {
	if c.proj != nil {
		c.proj.Inverse(xs, ys)
	}
}

// FromGeographic converts longitude/latitude to coordinates of c in place.
func (c *CRS) FromGeographic(xs, ys []float64) {
	if c.proj != nil {
		c.proj.Forward(xs, ys)
	}
}

// EPSG returns the numeric EPSG code, or 0.
func (c *CRS) EPSG() int {
	if c == nil {
		return 0
	}
	code := c.code
	if a := aliases[code]; a != "" {
		code = a
	}
	if !strings.HasPrefix(code, "EPSG:") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(code, "EPSG:"))
	if err != nil {
		return 0
	}
	return n
}

type closer interface {
	Close()
}

func (c *CRS) close() {
	if cl, ok := c.proj.(closer); ok {
		cl.Close()
	}
}

// Transform converts coordinates from one system to another through
// longitude/latitude.
type Transform struct {
	from, to *CRS
}

// Apply converts the points in place and returns the number of points that
// could not be converted (set to NaN).
func (t *Transform) Apply(xs, ys []float64) int {
	if !t.from.Equal(t.to) {
		t.from.ToGeographic(xs, ys)
		t.to.FromGeographic(xs, ys)
	}
	invalid := 0
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			xs[i], ys[i] = math.NaN(), math.NaN()
			invalid++
		}
	}
	return invalid
}

func (t *Transform) String() string {
	return fmt.Sprintf("%s->%s", t.from, t.to)
}
