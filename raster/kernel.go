package raster

import (
	"math"
	"strings"

	"github.com/airbusgeo/ntiff/internal/errs"
)

type Kernel int

const (
	Nearest Kernel = iota
	Linear
	Cubic
	Lanczos3
)

func ParseKernel(s string) (Kernel, error) {
	switch strings.ToLower(s) {
	case "nn", "nearest":
		return Nearest, nil
	case "linear", "bilinear":
		return Linear, nil
	case "bicubic", "cubic":
		return Cubic, nil
	case "lanczos", "lanczos3":
		return Lanczos3, nil
	}
	return Nearest, errs.Configf("unknown interpolation %q (nn|linear|bicubic|lanczos)", s)
}

func (k Kernel) String() string {
	switch k {
	case Linear:
		return "linear"
	case Cubic:
		return "bicubic"
	case Lanczos3:
		return "lanczos"
	}
	return "nn"
}

// radius is the half width of the kernel at scale 1.
func (k Kernel) radius() float64 {
	switch k {
	case Linear:
		return 1
	case Cubic:
		return 2
	case Lanczos3:
		return 3
	}
	return 0.5
}

// Size is the half width of the kernel window for a downscale ratio (output
// resolution over source resolution). Downscaling widens the window so that
// the kernel low-passes.
func (k Kernel) Size(ratio float64) float64 {
	return k.radius() * math.Max(1, ratio)
}

// MirrorSize is the padding needed around a source for the kernel never to
// sample outside of it.
func (k Kernel) MirrorSize(ratio float64) int {
	return int(math.Ceil(k.Size(ratio))) + 1
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

func (k Kernel) weight(t float64) float64 {
	t = math.Abs(t)
	switch k {
	case Linear:
		if t < 1 {
			return 1 - t
		}
	case Cubic:
		const a = -0.5
		switch {
		case t < 1:
			return ((a+2)*t-(a+3))*t*t + 1
		case t < 2:
			return ((a*t-5*a)*t+8*a)*t - 4*a
		}
	case Lanczos3:
		if t < 3 {
			return sinc(t) * sinc(t/3)
		}
	default:
		if t <= 0.5 {
			return 1
		}
	}
	return 0
}

// Weights returns the first source index and the weights of the window
// centred on u, in source pixel coordinates.
func (k Kernel) Weights(u, ratio float64) (int, []float64) {
	if k == Nearest {
		return int(math.Floor(u + 0.5)), []float64{1}
	}
	scale := math.Max(1, ratio)
	h := k.Size(ratio)
	first := int(math.Ceil(u - h))
	last := int(math.Floor(u + h))
	w := make([]float64, 0, last-first+1)
	for i := first; i <= last; i++ {
		w = append(w, k.weight((float64(i)-u)/scale))
	}
	return first, w
}
