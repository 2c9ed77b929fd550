// Package gdalcrs resolves coordinate reference systems through GDAL/PROJ.
// It is installed as the fallback of the crs pool by the command line tools.
package gdalcrs

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/ntiff/crs"
)

var world = crs.NewBBox(-180, -90, 180, 90)

type projection struct {
	mu       sync.Mutex
	sr, ll   *godal.SpatialRef
	fwd, inv *godal.Transform
}

func (p *projection) apply(tr *godal.Transform, xs, ys []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zs := make([]float64, len(xs))
	ok := make([]bool, len(xs))
	if err := tr.TransformEx(xs, ys, zs, ok); err != nil {
		for i := range ok {
			ok[i] = false
		}
	}
	for i := range ok {
		if !ok[i] {
			xs[i], ys[i] = math.NaN(), math.NaN()
		}
	}
}

func (p *projection) Forward(xs, ys []float64) { p.apply(p.fwd, xs, ys) }
func (p *projection) Inverse(xs, ys []float64) { p.apply(p.inv, xs, ys) }

func (p *projection) Close() {
	p.fwd.Close()
	p.inv.Close()
	p.sr.Close()
	p.ll.Close()
}

func spatialRef(code string) (*godal.SpatialRef, error) {
	if strings.HasPrefix(code, "EPSG:") {
		var n int
		if _, err := fmt.Sscanf(code, "EPSG:%d", &n); err == nil {
			return godal.NewSpatialRefFromEPSG(n)
		}
	}
	return godal.NewSpatialRef(code)
}

// Resolve builds the system known to GDAL under code.
func Resolve(code string) (*crs.CRS, error) {
	sr, err := spatialRef(code)
	if err != nil {
		return nil, fmt.Errorf("godal.spatialref %s: %w", code, err)
	}
	ll, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		sr.Close()
		return nil, fmt.Errorf("godal.spatialref 4326: %w", err)
	}
	fwd, err := godal.NewTransform(ll, sr)
	if err != nil {
		sr.Close()
		ll.Close()
		return nil, fmt.Errorf("godal.transform 4326->%s: %w", code, err)
	}
	inv, err := godal.NewTransform(sr, ll)
	if err != nil {
		fwd.Close()
		sr.Close()
		ll.Close()
		return nil, fmt.Errorf("godal.transform %s->4326: %w", code, err)
	}
	p := &projection{sr: sr, ll: ll, fwd: fwd, inv: inv}
	if sr.Geographic() {
		return crs.NewGeographic(code, p, world), nil
	}
	return crs.New(code, p, world), nil
}

// Install makes Resolve the fallback of the default pool.
func Install() {
	crs.SetFallback(Resolve)
}
