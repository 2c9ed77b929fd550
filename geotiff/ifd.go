// Package geotiff reads and writes the tiled or stripped TIFF files handled
// by the tools: work images, masks and cache slabs.
package geotiff

import (
	"fmt"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
)

const (
	SubfileTypeNone         = 0
	SubfileTypeReducedImage = 1
	SubfileTypeMask         = 4
)

const (
	PlanarConfigurationContig   = 1
	PlanarConfigurationSeparate = 2
)

const (
	PredictorNone       = 1
	PredictorHorizontal = 2
)

const (
	SampleFormatUInt   = 1
	SampleFormatIEEEFP = 3
)

const (
	ExtraSamplesUnassAlpha = 2
)

const (
	PhotometricInterpretationMinIsWhite = 0
	PhotometricInterpretationMinIsBlack = 1
	PhotometricInterpretationRGB        = 2
	PhotometricInterpretationMask       = 4
	PhotometricInterpretationYCbCr      = 6
)

// IFD holds the tags of an image file directory that the package reads or
// writes.
type IFD struct {
	SubfileType               uint32   `tiff:"field,tag=254"`
	ImageWidth                uint64   `tiff:"field,tag=256"`
	ImageLength               uint64   `tiff:"field,tag=257"`
	BitsPerSample             []uint16 `tiff:"field,tag=258"`
	Compression               uint16   `tiff:"field,tag=259"`
	PhotometricInterpretation uint16   `tiff:"field,tag=262"`
	StripOffsets              []uint64 `tiff:"field,tag=273"`
	SamplesPerPixel           uint16   `tiff:"field,tag=277"`
	RowsPerStrip              uint64   `tiff:"field,tag=278"`
	StripByteCounts           []uint64 `tiff:"field,tag=279"`
	PlanarConfiguration       uint16   `tiff:"field,tag=284"`
	Predictor                 uint16   `tiff:"field,tag=317"`
	TileWidth                 uint64   `tiff:"field,tag=322"`
	TileLength                uint64   `tiff:"field,tag=323"`
	TileOffsets               []uint64 `tiff:"field,tag=324"`
	TileByteCounts            []uint64 `tiff:"field,tag=325"`
	ExtraSamples              []uint16 `tiff:"field,tag=338"`
	SampleFormat              []uint16 `tiff:"field,tag=339"`
	JPEGTables                []byte   `tiff:"field,tag=347"`

	ModelPixelScaleTag []float64 `tiff:"field,tag=33550"`
	ModelTiePointTag   []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag []float64 `tiff:"field,tag=34736"`
	GeoAsciiParamsTag  string    `tiff:"field,tag=34737"`
	NoData             string    `tiff:"field,tag=42113"`
}

// Tiled tells whether the image is split in tiles rather than strips.
func (ifd *IFD) Tiled() bool {
	return ifd.TileWidth > 0 && ifd.TileLength > 0
}

// blockSize returns the dimensions of a tile, or of a strip.
func (ifd *IFD) blockSize() (int, int) {
	if ifd.Tiled() {
		return int(ifd.TileWidth), int(ifd.TileLength)
	}
	rps := int(ifd.RowsPerStrip)
	if rps <= 0 || rps > int(ifd.ImageLength) {
		rps = int(ifd.ImageLength)
	}
	return int(ifd.ImageWidth), rps
}

// blocks returns the offsets and byte counts of the tiles or strips.
func (ifd *IFD) blocks() ([]uint64, []uint64) {
	if ifd.Tiled() {
		return ifd.TileOffsets, ifd.TileByteCounts
	}
	return ifd.StripOffsets, ifd.StripByteCounts
}

// info validates the layout of the image and returns its metadata, the
// georeferencing excepted.
func (ifd *IFD) info() (raster.Info, error) {
	var info raster.Info
	if ifd.ImageWidth == 0 || ifd.ImageLength == 0 {
		return info, errs.Inputf("tiff has no dimensions")
	}
	spp := int(ifd.SamplesPerPixel)
	if spp == 0 {
		spp = 1
	}
	if spp > 4 {
		return info, errs.Inputf("unsupported samples per pixel %d", spp)
	}
	if spp > 1 && ifd.PlanarConfiguration == PlanarConfigurationSeparate {
		return info, errs.Inputf("separate planar configuration is not supported")
	}
	bits := uint16(1)
	if len(ifd.BitsPerSample) > 0 {
		bits = ifd.BitsPerSample[0]
	}
	for _, b := range ifd.BitsPerSample {
		if b != bits {
			return info, errs.Inputf("mixed bits per sample %v", ifd.BitsPerSample)
		}
	}
	sf := uint16(SampleFormatUInt)
	if len(ifd.SampleFormat) > 0 {
		sf = ifd.SampleFormat[0]
	}
	switch {
	case bits == 8 && sf == SampleFormatUInt:
		info.Format = raster.Uint8
	case bits == 32 && sf == SampleFormatIEEEFP:
		info.Format = raster.Float32
	default:
		return info, errs.Inputf("unsupported sample layout: %d bits, sample format %d", bits, sf)
	}
	switch ifd.PhotometricInterpretation {
	case PhotometricInterpretationMinIsBlack, PhotometricInterpretationMinIsWhite:
		info.Photometric = raster.Gray
	case PhotometricInterpretationRGB, PhotometricInterpretationYCbCr:
		info.Photometric = raster.RGB
	case PhotometricInterpretationMask:
		info.Photometric = raster.MaskPhotometric
	default:
		return info, errs.Inputf("unsupported photometric interpretation %d", ifd.PhotometricInterpretation)
	}
	switch ifd.Predictor {
	case 0, PredictorNone:
	case PredictorHorizontal:
		if info.Format != raster.Uint8 {
			return info, errs.Inputf("horizontal predictor only supported on 8 bit samples")
		}
	default:
		return info, errs.Inputf("unsupported predictor %d", ifd.Predictor)
	}
	info.Width, info.Height, info.Channels = int(ifd.ImageWidth), int(ifd.ImageLength), spp

	bw, bh := ifd.blockSize()
	if bw <= 0 || bh <= 0 {
		return info, errs.Inputf("invalid block size %dx%d", bw, bh)
	}
	nbx, nby := (info.Width+bw-1)/bw, (info.Height+bh-1)/bh
	offsets, counts := ifd.blocks()
	if len(offsets) != nbx*nby || len(counts) != nbx*nby {
		return info, errs.Inputf("expected %d blocks, got %d offsets and %d byte counts", nbx*nby, len(offsets), len(counts))
	}
	return info, nil
}

// georeference returns the box and resolutions given by the model tags.
func (ifd *IFD) georeference() (crs.BBox, float64, float64, bool) {
	s, tp := ifd.ModelPixelScaleTag, ifd.ModelTiePointTag
	if len(s) < 2 || len(tp) < 6 || s[0] <= 0 || s[1] <= 0 {
		return crs.BBox{}, 0, 0, false
	}
	xmin := tp[3] - tp[0]*s[0]
	ymax := tp[4] + tp[1]*s[1]
	bbox := crs.NewBBox(xmin, ymax-float64(ifd.ImageLength)*s[1], xmin+float64(ifd.ImageWidth)*s[0], ymax)
	return bbox, s[0], s[1], true
}

const (
	gtModelTypeGeoKey      = 1024
	gtRasterTypeGeoKey     = 1025
	geographicTypeGeoKey   = 2048
	projectedCSTypeGeoKey  = 3072
	modelTypeProjected     = 1
	modelTypeGeographic    = 2
	rasterPixelIsArea      = 1
	userDefinedGeoKeyValue = 32767
)

// EPSG returns the EPSG code found in the GeoKey directory, or 0.
func (ifd *IFD) EPSG() int {
	d := ifd.GeoKeyDirectoryTag
	if len(d) < 4 {
		return 0
	}
	n := int(d[3])
	for i := 0; i < n && 4+4*i+3 < len(d); i++ {
		key, loc, value := d[4+4*i], d[4+4*i+1], d[4+4*i+3]
		if loc != 0 || value == 0 || value == userDefinedGeoKeyValue {
			continue
		}
		if key == projectedCSTypeGeoKey || key == geographicTypeGeoKey {
			return int(value)
		}
	}
	return 0
}

// setGeoreference fills the model and GeoKey tags.
func (ifd *IFD) setGeoreference(info raster.Info) {
	if info.ResX <= 0 || info.ResY <= 0 {
		return
	}
	ifd.ModelPixelScaleTag = []float64{info.ResX, info.ResY, 0}
	ifd.ModelTiePointTag = []float64{0, 0, 0, info.BBox.XMin, info.BBox.YMax, 0}
	code := info.CRS.EPSG()
	if code <= 0 || code > 0xffff {
		return
	}
	model, key := uint16(modelTypeProjected), uint16(projectedCSTypeGeoKey)
	if info.CRS.Geographic() {
		model, key = modelTypeGeographic, geographicTypeGeoKey
	}
	ifd.GeoKeyDirectoryTag = []uint16{
		1, 1, 0, 3,
		gtModelTypeGeoKey, 0, 1, model,
		gtRasterTypeGeoKey, 0, 1, rasterPixelIsArea,
		key, 0, 1, uint16(code),
	}
}

func formatNoData(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	return fmt.Sprintf("%g", v[0])
}
