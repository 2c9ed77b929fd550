package geotiff

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	"go.uber.org/zap"
)

// Image is a TIFF file read block row by block row. Only the block row
// holding the last requested line is kept in memory.
type Image struct {
	src   storage.Reader
	ifd   *IFD
	order binary.ByteOrder
	info  raster.Info
	blk   block
	nbx   int
	mask  raster.Image

	offsets, counts []uint64

	row   int
	cache []float32
}

// Open opens the TIFF object at uri.
func Open(ctx context.Context, pool *storage.Pool, uri string) (*Image, error) {
	r, err := pool.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	img, err := NewImage(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	log.Logger(ctx).Debug("opened tiff", zap.String("uri", uri), zap.Stringer("info", img.info))
	return img, nil
}

// NewImage decodes the first directory of the TIFF held by src. The image
// owns src.
func NewImage(src storage.Reader) (*Image, error) {
	tif, err := tiff.Parse(io.NewSectionReader(src, 0, src.Size()), nil, nil)
	if err != nil {
		return nil, errs.Inputf("parse tiff: %w", err)
	}
	tifds := tif.IFDs()
	if len(tifds) == 0 {
		return nil, errs.Inputf("tiff has no image")
	}
	ifd := &IFD{}
	if err := tiff.UnmarshalIFD(tifds[0], ifd); err != nil {
		return nil, errs.Inputf("read directory: %w", err)
	}
	info, err := ifd.info()
	if err != nil {
		return nil, err
	}
	if bbox, resx, resy, ok := ifd.georeference(); ok {
		info.BBox, info.ResX, info.ResY = bbox, resx, resy
		if code := ifd.EPSG(); code > 0 {
			if c, err := crs.Get(fmt.Sprintf("EPSG:%d", code)); err == nil {
				info.CRS = c
			}
		}
	}
	var order binary.ByteOrder = binary.LittleEndian
	if tif.Order() == "MM" {
		order = binary.BigEndian
	}
	bw, bh := ifd.blockSize()
	offsets, counts := ifd.blocks()
	img := &Image{
		src: src, ifd: ifd, order: order, info: info,
		blk:     block{width: bw, height: bh, channels: info.Channels, format: info.Format},
		nbx:     (info.Width + bw - 1) / bw,
		offsets: offsets, counts: counts,
		row:   -1,
		cache: make([]float32, bh*info.LineSize()),
	}
	return img, nil
}

func (img *Image) Info() raster.Info { return img.info }
func (img *Image) IFD() *IFD          { return img.ifd }

// Compression returns the codec of the file, PNG tiles being reported as
// Deflate.
func (img *Image) Compression() Compression {
	switch img.ifd.Compression {
	case compressionDeflate, compressionAdobeDeflate:
		return Deflate
	case compressionLZW:
		return LZW
	case compressionPackBits:
		return PackBits
	case compressionJPEG:
		return JPEG
	}
	return None
}
func (img *Image) Mask() raster.Image { return img.mask }

// SetMask attaches the validity mask of the image.
func (img *Image) SetMask(mask raster.Image) error {
	if err := raster.CheckMask(img.info, mask); err != nil {
		return err
	}
	img.mask = mask
	return nil
}

// SetGeometry overrides the georeferencing of the file. The box and
// resolutions must describe the pixel dimensions.
func (img *Image) SetGeometry(bbox crs.BBox, resx, resy float64, c *crs.CRS) error {
	info := img.info
	info.BBox, info.ResX, info.ResY, info.CRS = bbox, resx, resy, c
	if err := info.CheckGeometry(); err != nil {
		return err
	}
	img.info = info
	if img.mask != nil {
		if m, ok := img.mask.(*Image); ok {
			return m.SetGeometry(bbox, resx, resy, c)
		}
	}
	return nil
}

func (img *Image) Close() error {
	err := img.src.Close()
	if img.mask != nil {
		if merr := img.mask.Close(); err == nil {
			err = merr
		}
	}
	return err
}

// readBlock returns the decoded samples of block idx, or nil when the block
// is empty.
func (img *Image) readBlock(idx int, b block) ([]byte, error) {
	if img.counts[idx] == 0 {
		return nil, nil
	}
	data := make([]byte, img.counts[idx])
	n, err := img.src.ReadAt(data, int64(img.offsets[idx]))
	if n < len(data) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, errs.Inputf("read block %d: %w", idx, err)
	}
	if t := img.ifd.JPEGTables; img.ifd.Compression == compressionJPEG && len(t) > 4 && len(data) > 2 {
		// tables end with EOI, blocks start with SOI
		data = append(append([]byte{}, t[:len(t)-2]...), data[2:]...)
	}
	raw, err := decompress(img.ifd.Compression, data, b)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", idx, err)
	}
	if len(raw) < b.size() {
		raw = append(raw, make([]byte, b.size()-len(raw))...)
	}
	if img.ifd.Predictor == PredictorHorizontal {
		rs, nc := b.rowSize(), b.channels
		for off := 0; off < b.size(); off += rs {
			row := raw[off : off+rs]
			for i := nc; i < rs; i++ {
				row[i] += row[i-nc]
			}
		}
	}
	return raw, nil
}

func (img *Image) load(by int) error {
	if img.row == by {
		return nil
	}
	img.row = -1
	info := img.info
	nc := info.Channels
	rows := min(img.blk.height, info.Height-by*img.blk.height)
	b := img.blk
	if !img.ifd.Tiled() {
		b.height = rows
	}
	ls := info.LineSize()
	for bx := 0; bx < img.nbx; bx++ {
		raw, err := img.readBlock(by*img.nbx+bx, b)
		if err != nil {
			return err
		}
		x0 := bx * b.width
		x1 := min(x0+b.width, info.Width)
		for r := 0; r < rows; r++ {
			dst := img.cache[r*ls+x0*nc : r*ls+x1*nc]
			if raw == nil {
				for i := range dst {
					dst[i] = 0
				}
				continue
			}
			src := raw[r*b.rowSize():]
			if info.Format == raster.Float32 {
				for i := range dst {
					dst[i] = math.Float32frombits(img.order.Uint32(src[4*i:]))
				}
				continue
			}
			for i := range dst {
				dst[i] = float32(src[i])
			}
		}
	}
	img.row = by
	return nil
}

func (img *Image) ReadLine(y int, buf []float32) error {
	if y < 0 || y >= img.info.Height {
		return fmt.Errorf("line %d out of range [0,%d)", y, img.info.Height)
	}
	ls := img.info.LineSize()
	if len(buf) < ls {
		return fmt.Errorf("line buffer too small: %d < %d", len(buf), ls)
	}
	by := y / img.blk.height
	if err := img.load(by); err != nil {
		return err
	}
	r := y - by*img.blk.height
	copy(buf, img.cache[r*ls:(r+1)*ls])
	return nil
}
