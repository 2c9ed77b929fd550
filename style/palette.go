package style

import (
	"fmt"
	"math"
	"sort"

	"github.com/airbusgeo/ntiff/raster"
)

// colour returns the RGBA colour of value v. Values outside of the palette
// take the colour of the nearest end.
func (p *Palette) colour(v float64) []float32 {
	cs := p.Colours
	i := sort.Search(len(cs), func(i int) bool { return cs[i].Value > v })
	// cs[i-1].Value <= v < cs[i].Value
	if i == 0 {
		return rgba(cs[0])
	}
	lo := cs[i-1]
	if i == len(cs) || v == lo.Value {
		return rgba(lo)
	}
	hi := cs[i]
	t := (v - lo.Value) / (hi.Value - lo.Value)
	lerp := func(a, b uint8) float32 {
		return float32(math.Round(float64(a) + t*(float64(b)-float64(a))))
	}
	c := rgba(lo)
	if p.RGBContinuous {
		c[0], c[1], c[2] = lerp(lo.Red, hi.Red), lerp(lo.Green, hi.Green), lerp(lo.Blue, hi.Blue)
	}
	if p.AlphaContinuous {
		c[3] = lerp(lo.Alpha, hi.Alpha)
	}
	return c
}

func rgba(c Colour) []float32 {
	return []float32{float32(c.Red), float32(c.Green), float32(c.Blue), float32(c.Alpha)}
}

// paletted maps a single channel image through a palette.
type paletted struct {
	src     raster.Image
	palette *Palette
	info    raster.Info
	nodata  []float32
	line    []float32
}

func newPaletted(src raster.Image, p *Palette) *paletted {
	info := src.Info()
	info.Channels = 4
	if p.NoAlpha {
		info.Channels = 3
	}
	info.Format = raster.Uint8
	info.Photometric = raster.RGB
	nd := 0.0
	if n, ok := src.(interface{ Nodata() []float32 }); ok && len(n.Nodata()) > 0 {
		nd = float64(n.Nodata()[0])
	}
	return &paletted{
		src: src, palette: p, info: info,
		nodata: p.colour(nd)[:info.Channels],
		line:   make([]float32, src.Info().Width),
	}
}

func (p *paletted) Info() raster.Info  { return p.info }
func (p *paletted) Mask() raster.Image { return p.src.Mask() }
func (p *paletted) Close() error       { return p.src.Close() }
func (p *paletted) Nodata() []float32  { return p.nodata }

func (p *paletted) ReadLine(y int, buf []float32) error {
	if len(buf) < p.info.LineSize() {
		return fmt.Errorf("line buffer too small: %d < %d", len(buf), p.info.LineSize())
	}
	if err := p.src.ReadLine(y, p.line); err != nil {
		return err
	}
	nc := p.info.Channels
	for x, v := range p.line {
		copy(buf[x*nc:(x+1)*nc], p.palette.colour(float64(v)))
	}
	return nil
}
