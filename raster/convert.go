package raster

import (
	"math"

	"github.com/airbusgeo/ntiff/internal/errs"
)

// converter adapts the channel count and the sample format of its source on
// each line read.
type converter struct {
	src    Image
	info   Info
	srcBuf []float32
}

// Convert returns img seen with the given sample format and channel count.
// Gray is duplicated into RGB, color is reduced to luminance, a missing alpha
// is opaque and float samples are rounded and clamped to [0,255] when
// converted to uint8. img is returned as is when it already has the
// requested layout.
func Convert(img Image, format Format, channels int) (Image, error) {
	info := img.Info()
	if channels < 1 || channels > 4 {
		return nil, errs.Configf("cannot convert to %d channels: 1 to 4 supported", channels)
	}
	if info.Channels < 1 || info.Channels > 4 {
		return nil, errs.Shapef("cannot convert from %d channels: 1 to 4 supported", info.Channels)
	}
	if format != Uint8 && format != Float32 {
		return nil, errs.Configf("cannot convert to sample format %s", format)
	}
	if info.Format != Uint8 && info.Format != Float32 {
		return nil, errs.Shapef("cannot convert from sample format %s", info.Format)
	}
	if info.Format == format && info.Channels == channels {
		return img, nil
	}
	out := info
	out.Format = format
	out.Channels = channels
	out.Photometric = PhotometricFor(channels)
	return &converter{src: img, info: out, srcBuf: make([]float32, info.LineSize())}, nil
}

func (c *converter) Info() Info   { return c.info }
func (c *converter) Mask() Image  { return c.src.Mask() }
func (c *converter) Close() error { return c.src.Close() }

func luminance(r, g, b float32) float32 {
	return 0.299*r + 0.587*g + 0.114*b
}

func (c *converter) ReadLine(y int, buf []float32) error {
	if err := checkLine(c, y, buf); err != nil {
		return err
	}
	if err := c.src.ReadLine(y, c.srcBuf); err != nil {
		return err
	}
	cin, cout := c.src.Info().Channels, c.info.Channels
	for x := 0; x < c.info.Width; x++ {
		convertPixel(c.srcBuf[x*cin:(x+1)*cin], buf[x*cout:(x+1)*cout])
	}
	if c.info.Format == Uint8 {
		ToUint8(buf[:c.info.LineSize()])
	}
	return nil
}

func convertPixel(in, out []float32) {
	const opaque = 255
	var gray, alpha float32 = 0, opaque
	switch len(in) {
	case 1:
		gray = in[0]
	case 2:
		gray, alpha = in[0], in[1]
	case 3:
		gray = luminance(in[0], in[1], in[2])
	case 4:
		gray, alpha = luminance(in[0], in[1], in[2]), in[3]
	}
	color := len(in) >= 3
	switch len(out) {
	case 1:
		out[0] = gray
	case 2:
		out[0], out[1] = gray, alpha
	case 3, 4:
		if color {
			copy(out[:3], in[:3])
		} else {
			out[0], out[1], out[2] = gray, gray, gray
		}
		if len(out) == 4 {
			out[3] = alpha
		}
	}
}

// ToUint8 rounds and clamps samples to [0,255] in place.
func ToUint8(line []float32) {
	for i, v := range line {
		line[i] = ClampUint8(v)
	}
}

// ClampUint8 rounds v to the nearest integer in [0,255]. NaN maps to 0.
func ClampUint8(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return float32(math.Floor(float64(v) + 0.5))
}
