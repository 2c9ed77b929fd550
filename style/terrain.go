package style

import (
	"fmt"
	"math"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
)

// MetresPerDegree is the length of a degree of latitude, and of longitude at
// the equator.
const MetresPerDegree = 111319.49

// window is the 3x3 neighbourhood of a pixel, row major from the top left,
// with the pixel size in metres.
type window struct {
	z          [9]float64
	resx, resy float64
}

// gradient returns the derivatives of the elevation towards the east and
// towards the south.
func (w *window) gradient(algo string) (float64, float64) {
	a, b, c, d, f, g, h, i := w.z[0], w.z[1], w.z[2], w.z[3], w.z[5], w.z[6], w.z[7], w.z[8]
	if algo == "Z" {
		return (f - d) / (2 * w.resx), (h - b) / (2 * w.resy)
	}
	return ((c + 2*f + i) - (a + 2*d + g)) / (8 * w.resx), ((g + 2*h + i) - (a + 2*b + c)) / (8 * w.resy)
}

func (hs *Hillshade) shade(w *window) float32 {
	dx, dy := w.gradient("H")
	dx, dy = dx*hs.ZFactor, dy*hs.ZFactor
	alt := (90 - hs.Zenith) * math.Pi / 180
	az := hs.Azimuth * math.Pi / 180
	// normal (-dx, dy, 1) against the sun (sin az, cos az, tan alt) in east/north/up
	cang := (math.Sin(alt) - math.Cos(alt)*(dx*math.Sin(az)-dy*math.Cos(az))) / math.Sqrt(1+dx*dx+dy*dy)
	if cang <= 0 {
		return 1
	}
	return float32(math.Round(1 + 254*cang))
}

func (s *Slope) slope(w *window) float32 {
	dx, dy := w.gradient(s.Algo)
	g := math.Sqrt(dx*dx + dy*dy)
	v := float32(math.Atan(g) * 180 / math.Pi)
	if s.Unit == "percent" {
		v = float32(100 * g)
	}
	if s.MaxSlope > 0 && v > s.MaxSlope {
		v = s.MaxSlope
	}
	return v
}

func (a *Aspect) aspect(w *window) float32 {
	dx, dy := w.gradient(a.Algo)
	if math.Atan(math.Sqrt(dx*dx+dy*dy))*180/math.Pi < a.MinSlope {
		return a.AspectNodata
	}
	deg := math.Atan2(dy, -dx) * 180 / math.Pi
	if deg > 90 {
		deg = 450 - deg
	} else {
		deg = 90 - deg
	}
	if deg >= 360 {
		deg -= 360
	}
	return float32(deg)
}

// terrain computes each pixel from the 3x3 neighbourhood of an elevation
// image. Pixels next to nodata are nodata. Edge pixels use the nearest
// source pixels.
type terrain struct {
	src      raster.Image
	info     raster.Info
	nodataIn float32
	nodata   []float32
	fn       func(*window) float32

	lines map[int][]float32
	free  [][]float32
	win   window
	mask  *terrainMask
}

func newTerrain(src raster.Image, in, out float32, format raster.Format, fn func(*window) float32) (*terrain, error) {
	info := src.Info()
	if info.Channels != 1 {
		return nil, errs.Shapef("terrain styles need one channel, got %d", info.Channels)
	}
	if !(info.ResX > 0) || !(info.ResY > 0) {
		return nil, errs.Configf("terrain styles need resolutions, got (%g,%g)", info.ResX, info.ResY)
	}
	info.Format = format
	info.Photometric = raster.Gray
	return &terrain{
		src: src, info: info, nodataIn: in, nodata: []float32{out}, fn: fn,
		lines: make(map[int][]float32),
	}, nil
}

func (t *terrain) Info() raster.Info { return t.info }
func (t *terrain) Close() error      { return t.src.Close() }
func (t *terrain) Nodata() []float32 { return t.nodata }

// Mask marks the pixels computed from a neighbourhood free of nodata and
// kept by the source mask.
func (t *terrain) Mask() raster.Image {
	if t.mask == nil {
		t.mask = &terrainMask{t: t, info: t.info.MaskInfo()}
	}
	return t.mask
}

func (t *terrain) line(y int) ([]float32, error) {
	y = max(0, min(y, t.info.Height-1))
	if l, ok := t.lines[y]; ok {
		return l, nil
	}
	var l []float32
	if n := len(t.free); n > 0 {
		l, t.free = t.free[n-1], t.free[:n-1]
	} else {
		l = make([]float32, t.info.Width)
	}
	if err := t.src.ReadLine(y, l); err != nil {
		t.free = append(t.free, l)
		return nil, err
	}
	t.lines[y] = l
	return l, nil
}

// resolutions returns the pixel size in metres at row y.
func (t *terrain) resolutions(y int) (float64, float64) {
	if !t.info.CRS.Geographic() {
		return t.info.ResX, t.info.ResY
	}
	lat := t.info.BBox.YMax - (float64(y)+0.5)*t.info.ResY
	return t.info.ResX * MetresPerDegree * math.Cos(lat*math.Pi/180), t.info.ResY * MetresPerDegree
}

func (t *terrain) checkLine(y int, buf []float32) error {
	if y < 0 || y >= t.info.Height {
		return fmt.Errorf("line %d out of range [0,%d)", y, t.info.Height)
	}
	if len(buf) < t.info.Width {
		return fmt.Errorf("line buffer too small: %d < %d", len(buf), t.info.Width)
	}
	return nil
}

// rows returns the source rows around y, releasing the rows above them.
func (t *terrain) rows(y int) ([3][]float32, error) {
	var rows [3][]float32
	for row, l := range t.lines {
		if row < y-1 {
			t.free = append(t.free, l)
			delete(t.lines, row)
		}
	}
	for k := range rows {
		l, err := t.line(y - 1 + k)
		if err != nil {
			return rows, err
		}
		rows[k] = l
	}
	return rows, nil
}

// fill loads the window of pixel x and reports whether it holds no nodata.
func (t *terrain) fill(rows [3][]float32, x int) bool {
	w := t.info.Width
	valid := true
	for k, l := range rows {
		for dx := -1; dx <= 1; dx++ {
			v := l[max(0, min(x+dx, w-1))]
			if v == t.nodataIn {
				valid = false
			}
			t.win.z[3*k+dx+1] = float64(v)
		}
	}
	return valid
}

func (t *terrain) ReadLine(y int, buf []float32) error {
	if err := t.checkLine(y, buf); err != nil {
		return err
	}
	rows, err := t.rows(y)
	if err != nil {
		return err
	}
	t.win.resx, t.win.resy = t.resolutions(y)
	for x := 0; x < t.info.Width; x++ {
		if !t.fill(rows, x) {
			buf[x] = t.nodata[0]
			continue
		}
		buf[x] = t.fn(&t.win)
	}
	return nil
}

type terrainMask struct {
	t    *terrain
	info raster.Info
	line []float32
}

func (m *terrainMask) Info() raster.Info  { return m.info }
func (m *terrainMask) Mask() raster.Image { return nil }
func (m *terrainMask) Close() error       { return nil }

func (m *terrainMask) ReadLine(y int, buf []float32) error {
	t := m.t
	if err := t.checkLine(y, buf); err != nil {
		return err
	}
	rows, err := t.rows(y)
	if err != nil {
		return err
	}
	var kept []float32
	if sm := t.src.Mask(); sm != nil {
		if m.line == nil {
			m.line = make([]float32, t.info.Width)
		}
		if err := sm.ReadLine(y, m.line); err != nil {
			return err
		}
		kept = m.line
	}
	for x := 0; x < t.info.Width; x++ {
		buf[x] = 255
		if !t.fill(rows, x) || (kept != nil && kept[x] == 0) {
			buf[x] = 0
		}
	}
	return nil
}
