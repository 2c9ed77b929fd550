package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const deg = math.Pi / 180

type ellipsoid struct {
	a, f float64
}

func (e ellipsoid) e2() float64 { return 2*e.f - e.f*e.f }

var (
	wgs84 = ellipsoid{a: 6378137, f: 1 / 298.257223563}
	grs80 = ellipsoid{a: 6378137, f: 1 / 298.257222101}
)

func invalid(xs, ys []float64, i int) {
	xs[i], ys[i] = math.NaN(), math.NaN()
}

// webMercator is the spherical mercator of EPSG:3857.
type webMercator struct {
	r float64
}

func (p webMercator) Forward(xs, ys []float64) {
	for i := range xs {
		lon, lat := xs[i], ys[i]
		if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) >= 90 {
			invalid(xs, ys, i)
			continue
		}
		xs[i] = p.r * lon * deg
		ys[i] = p.r * math.Log(math.Tan(math.Pi/4+lat*deg/2))
	}
}

func (p webMercator) Inverse(xs, ys []float64) {
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			invalid(xs, ys, i)
			continue
		}
		xs[i] = x / p.r / deg
		ys[i] = (2*math.Atan(math.Exp(y/p.r)) - math.Pi/2) / deg
	}
}

// lcc is the Lambert conformal conic projection with two standard parallels.
type lcc struct {
	a, e       float64
	n, f, rho0 float64
	lon0       float64
	x0, y0     float64
}

func newLCC(el ellipsoid, lat1, lat2, lat0, lon0, x0, y0 float64) *lcc {
	e := math.Sqrt(el.e2())
	m := func(phi float64) float64 {
		s := math.Sin(phi)
		return math.Cos(phi) / math.Sqrt(1-e*e*s*s)
	}
	t := func(phi float64) float64 {
		s := math.Sin(phi)
		return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*s)/(1+e*s), e/2)
	}
	p1, p2, p0 := lat1*deg, lat2*deg, lat0*deg
	n := (math.Log(m(p1)) - math.Log(m(p2))) / (math.Log(t(p1)) - math.Log(t(p2)))
	f := m(p1) / (n * math.Pow(t(p1), n))
	return &lcc{
		a: el.a, e: e, n: n, f: f,
		rho0: el.a * f * math.Pow(t(p0), n),
		lon0: lon0 * deg, x0: x0, y0: y0,
	}
}

func (p *lcc) t(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-p.e*s)/(1+p.e*s), p.e/2)
}

func (p *lcc) Forward(xs, ys []float64) {
	for i := range xs {
		lon, lat := xs[i], ys[i]
		if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) >= 90 {
			invalid(xs, ys, i)
			continue
		}
		rho := p.a * p.f * math.Pow(p.t(lat*deg), p.n)
		theta := p.n * (lon*deg - p.lon0)
		xs[i] = p.x0 + rho*math.Sin(theta)
		ys[i] = p.y0 + p.rho0 - rho*math.Cos(theta)
	}
}

func (p *lcc) Inverse(xs, ys []float64) {
	sign := 1.0
	if p.n < 0 {
		sign = -1
	}
	for i := range xs {
		dx := xs[i] - p.x0
		dy := p.rho0 - (ys[i] - p.y0)
		if math.IsNaN(dx) || math.IsNaN(dy) {
			invalid(xs, ys, i)
			continue
		}
		rho := sign * math.Hypot(dx, dy)
		theta := math.Atan2(sign*dx, sign*dy)
		t := math.Pow(rho/(p.a*p.f), 1/p.n)
		phi := math.Pi/2 - 2*math.Atan(t)
		for k := 0; k < 15; k++ {
			s := math.Sin(phi)
			next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-p.e*s)/(1+p.e*s), p.e/2))
			if math.Abs(next-phi) < 1e-12 {
				phi = next
				break
			}
			phi = next
		}
		xs[i] = (theta/p.n + p.lon0) / deg
		ys[i] = phi / deg
	}
}

// tmerc is the ellipsoidal transverse mercator, series of Snyder.
type tmerc struct {
	a, e2, ep2, k0 float64
	lon0           float64
	fe, fn         float64
}

func newTMerc(el ellipsoid, lon0, k0, fe, fn float64) *tmerc {
	e2 := el.e2()
	return &tmerc{a: el.a, e2: e2, ep2: e2 / (1 - e2), k0: k0, lon0: lon0 * deg, fe: fe, fn: fn}
}

func (p *tmerc) meridian(phi float64) float64 {
	e2 := p.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return p.a * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func (p *tmerc) Forward(xs, ys []float64) {
	for i := range xs {
		lon, lat := xs[i], ys[i]
		dl := lon*deg - p.lon0
		if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lat) > 90 || math.Abs(dl) >= math.Pi/2 {
			invalid(xs, ys, i)
			continue
		}
		phi := lat * deg
		s, c := math.Sin(phi), math.Cos(phi)
		n := p.a / math.Sqrt(1-p.e2*s*s)
		t := math.Tan(phi) * math.Tan(phi)
		cc := p.ep2 * c * c
		a := dl * c
		a2 := a * a
		xs[i] = p.fe + p.k0*n*(a+(1-t+cc)*a2*a/6+(5-18*t+t*t+72*cc-58*p.ep2)*a2*a2*a/120)
		ys[i] = p.fn + p.k0*(p.meridian(phi)+n*math.Tan(phi)*(a2/2+(5-t+9*cc+4*cc*cc)*a2*a2/24+
			(61-58*t+t*t+600*cc-330*p.ep2)*a2*a2*a2/720))
	}
}

func (p *tmerc) Inverse(xs, ys []float64) {
	e2 := p.e2
	e4 := e2 * e2
	e6 := e4 * e2
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			invalid(xs, ys, i)
			continue
		}
		m := (y - p.fn) / p.k0
		mu := m / (p.a * (1 - e2/4 - 3*e4/64 - 5*e6/256))
		phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
			(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
			(151*e1*e1*e1/96)*math.Sin(6*mu) +
			(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)
		s, c := math.Sin(phi1), math.Cos(phi1)
		c1 := p.ep2 * c * c
		t1 := math.Tan(phi1) * math.Tan(phi1)
		n1 := p.a / math.Sqrt(1-e2*s*s)
		r1 := p.a * (1 - e2) / math.Pow(1-e2*s*s, 1.5)
		d := (x - p.fe) / (n1 * p.k0)
		d2 := d * d
		phi := phi1 - (n1*math.Tan(phi1)/r1)*(d2/2-
			(5+3*t1+10*c1-4*c1*c1-9*p.ep2)*d2*d2/24+
			(61+90*t1+298*c1+45*t1*t1-252*p.ep2-3*c1*c1)*d2*d2*d2/720)
		lon := p.lon0 + (d-(1+2*t1+c1)*d2*d/6+
			(5-2*c1+28*t1-3*c1*c1+8*p.ep2+24*t1*t1)*d2*d2*d/120)/c
		xs[i] = lon / deg
		ys[i] = phi / deg
	}
}

var world = BBox{XMin: -180, YMin: -90, XMax: 180, YMax: 90}

var france = BBox{XMin: -9.86, YMin: 41.15, XMax: 10.38, YMax: 51.56}

// aliases maps equivalent codes onto a canonical one.
var aliases = map[string]string{
	"EPSG:4326":   "EPSG:4326",
	"CRS:84":      "EPSG:4326",
	"IGNF:WGS84G": "EPSG:4326",
	"EPSG:3857":   "EPSG:3857",
	"EPSG:900913": "EPSG:3857",
	"EPSG:2154":   "EPSG:2154",
	"IGNF:LAMB93": "EPSG:2154",
	"EPSG:4171":   "EPSG:4171",
	"IGNF:RGF93G": "EPSG:4171",
}

// builtin returns the system known under code without outside help, or nil.
func builtin(code string) *CRS {
	canon := code
	if a, ok := aliases[code]; ok {
		canon = a
	}
	switch canon {
	case "EPSG:4326":
		return New(code, nil, world)
	case "EPSG:4171":
		return New(code, nil, france)
	case "EPSG:3857":
		return New(code, webMercator{r: 6378137}, BBox{XMin: -180, YMin: -85.06, XMax: 180, YMax: 85.06})
	case "EPSG:2154":
		return New(code, newLCC(grs80, 49, 44, 46.5, 3, 700000, 6600000), france)
	}
	if zone, north, ok := utmZone(canon); ok {
		lon0 := -183 + 6*float64(zone)
		fn, area := 0.0, BBox{XMin: lon0 - 3, YMin: 0, XMax: lon0 + 3, YMax: 84}
		if !north {
			fn, area = 10000000, BBox{XMin: lon0 - 3, YMin: -80, XMax: lon0 + 3, YMax: 0}
		}
		return New(code, newTMerc(wgs84, lon0, 0.9996, 500000, fn), area)
	}
	return nil
}

func utmZone(code string) (int, bool, bool) {
	if !strings.HasPrefix(code, "EPSG:") {
		return 0, false, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(code, "EPSG:"))
	if err != nil {
		return 0, false, false
	}
	switch {
	case n >= 32601 && n <= 32660:
		return n - 32600, true, true
	case n >= 32701 && n <= 32760:
		return n - 32700, false, true
	}
	return 0, false, false
}

// FromEPSG returns the system EPSG:code.
func FromEPSG(code int) (*CRS, error) {
	return Get(fmt.Sprintf("EPSG:%d", code))
}
