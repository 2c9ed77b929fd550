// Package raster is a lazy, pull based image graph. Every node fills lines of
// float32 samples on demand, so that a sink reading lines from top to bottom
// drives the whole computation while touching a bounded window of each source.
package raster

import (
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
)

// Epsilon is the tolerance on resolutions and phases, as a fraction of the
// coarser resolution.
const Epsilon = 1e-2

type Format int

const (
	UnknownFormat Format = iota
	Uint8
	Float32
)

func (f Format) String() string {
	switch f {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	}
	return "unknown"
}

// Bits is the number of bits of a sample.
func (f Format) Bits() int {
	if f == Float32 {
		return 32
	}
	return 8
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "uint8":
		return Uint8, nil
	case "float32":
		return Float32, nil
	}
	return UnknownFormat, errs.Configf("unknown sample format %q (uint8|float32)", s)
}

type Photometric int

const (
	UnknownPhotometric Photometric = iota
	Gray
	RGB
	MaskPhotometric
)

func (p Photometric) String() string {
	switch p {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case MaskPhotometric:
		return "mask"
	}
	return "unknown"
}

func ParsePhotometric(s string) (Photometric, error) {
	switch strings.ToLower(s) {
	case "gray":
		return Gray, nil
	case "rgb":
		return RGB, nil
	case "mask":
		return MaskPhotometric, nil
	}
	return UnknownPhotometric, errs.Configf("unknown photometric %q (gray|rgb|mask)", s)
}

// PhotometricFor returns the photometric of an image carrying channels
// samples per pixel.
func PhotometricFor(channels int) Photometric {
	if channels >= 3 {
		return RGB
	}
	return Gray
}

// Info is the metadata of an image. BBox and resolutions describe the pixel
// grid; CRS may be nil when the image is not georeferenced.
type Info struct {
	Width, Height int
	Channels      int
	Format        Format
	Photometric   Photometric
	BBox          crs.BBox
	ResX, ResY    float64
	CRS           *crs.CRS
}

// Image is a node of the graph. ReadLine fills buf, of length at least
// Width*Channels, with the samples of row y, row 0 being the top row. uint8
// images carry integral values in [0,255].
//
// Mask returns the single channel uint8 validity mask of the image (0 no
// data, 255 data), or nil when every pixel holds data.
//
// Close releases the image and the children it owns.
type Image interface {
	Info() Info
	Mask() Image
	ReadLine(y int, buf []float32) error
	Close() error
}

// NewInfo derives the resolutions from a box and pixel dimensions.
func NewInfo(width, height, channels int, format Format, bbox crs.BBox, c *crs.CRS) Info {
	info := Info{
		Width: width, Height: height, Channels: channels,
		Format: format, Photometric: PhotometricFor(channels),
		BBox: bbox, CRS: c,
	}
	if width > 0 && height > 0 {
		info.ResX = bbox.Width() / float64(width)
		info.ResY = bbox.Height() / float64(height)
	}
	return info
}

// Dimensions returns the pixel dimensions of bbox at the given resolutions,
// rounded to the nearest integer.
func Dimensions(bbox crs.BBox, resx, resy float64) (int, int) {
	return int(math.Floor(bbox.Width()/resx + 0.5)), int(math.Floor(bbox.Height()/resy + 0.5))
}

// MaskInfo returns the metadata of the mask of an image described by info.
func (info Info) MaskInfo() Info {
	m := info
	m.Channels = 1
	m.Format = Uint8
	m.Photometric = MaskPhotometric
	return m
}

// LineSize is the number of samples of a line.
func (info Info) LineSize() int {
	return info.Width * info.Channels
}

func (info Info) String() string {
	return fmt.Sprintf("%dx%dx%d %s %s bbox=%s res=(%g,%g) crs=%s", info.Width, info.Height,
		info.Channels, info.Format, info.Photometric, info.BBox, info.ResX, info.ResY, info.CRS)
}

func closeTo(a, b, res float64) bool {
	return math.Abs(a-b) <= Epsilon*res
}

// isMultiple reports whether d is an integer multiple of res, within Epsilon.
func isMultiple(d, res float64) bool {
	f := d / res
	return math.Abs(f-math.Round(f)) <= Epsilon
}

// SameResolution reports whether both resolutions agree within Epsilon of the
// coarser one.
func (info Info) SameResolution(o Info) bool {
	rx := math.Max(info.ResX, o.ResX)
	ry := math.Max(info.ResY, o.ResY)
	return closeTo(info.ResX, o.ResX, rx) && closeTo(info.ResY, o.ResY, ry)
}

// SamePhase reports whether the pixel grids of info and o are aligned, given
// they share their resolution.
func (info Info) SamePhase(o Info) bool {
	return isMultiple(info.BBox.XMin-o.BBox.XMin, math.Max(info.ResX, o.ResX)) &&
		isMultiple(info.BBox.YMax-o.BBox.YMax, math.Max(info.ResY, o.ResY))
}

// Compatible reports whether two images share CRS, resolution and phase, so
// that one can be pasted onto the other without resampling.
func (info Info) Compatible(o Info) bool {
	if !info.CRS.Equal(o.CRS) {
		return false
	}
	return info.SameResolution(o) && info.SamePhase(o)
}

// CheckGeometry verifies that bbox and resolutions describe the pixel grid.
func (info Info) CheckGeometry() error {
	if info.Width <= 0 || info.Height <= 0 || info.Channels <= 0 {
		return errs.Shapef("invalid dimensions %dx%dx%d", info.Width, info.Height, info.Channels)
	}
	if !(info.ResX > 0) || !(info.ResY > 0) {
		return errs.Configf("resolutions must be positive, got (%g,%g)", info.ResX, info.ResY)
	}
	if !closeTo(float64(info.Width)*info.ResX, info.BBox.Width(), info.ResX) ||
		!closeTo(float64(info.Height)*info.ResY, info.BBox.Height(), info.ResY) {
		return errs.Shapef("bbox %s does not match %dx%d pixels at (%g,%g)",
			info.BBox, info.Width, info.Height, info.ResX, info.ResY)
	}
	return nil
}

// Column returns the pixel column holding map coordinate x.
func (info Info) Column(x float64) float64 {
	return (x - info.BBox.XMin) / info.ResX
}

// Row returns the pixel row holding map coordinate y.
func (info Info) Row(y float64) float64 {
	return (info.BBox.YMax - y) / info.ResY
}

func checkLine(img Image, y int, buf []float32) error {
	info := img.Info()
	if y < 0 || y >= info.Height {
		return fmt.Errorf("line %d out of range [0,%d)", y, info.Height)
	}
	if len(buf) < info.LineSize() {
		return fmt.Errorf("line buffer too small: %d < %d", len(buf), info.LineSize())
	}
	return nil
}
