package geotiff

import (
	"fmt"
	"strings"
)

type ErrInvalidOption struct {
	msg string
}

func (err ErrInvalidOption) Error() string {
	return err.msg
}

// Compression is the codec applied to the tiles or strips of a written file.
type Compression int

const (
	None Compression = iota
	Deflate
	LZW
	PackBits
	JPEG
	JPEG90
	PNG
)

// ParseCompression accepts raw|none, zip, lzw, pkb, jpg, jpg90 and png.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "raw", "none", "":
		return None, nil
	case "zip", "deflate":
		return Deflate, nil
	case "lzw":
		return LZW, nil
	case "pkb", "packbits":
		return PackBits, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "jpg90":
		return JPEG90, nil
	case "png":
		return PNG, nil
	}
	return None, ErrInvalidOption{fmt.Sprintf("unknown compression %q (raw|zip|lzw|pkb|jpg|jpg90|png)", s)}
}

func (c Compression) String() string {
	switch c {
	case None:
		return "raw"
	case Deflate:
		return "zip"
	case LZW:
		return "lzw"
	case PackBits:
		return "pkb"
	case JPEG:
		return "jpg"
	case JPEG90:
		return "jpg90"
	case PNG:
		return "png"
	}
	return "unknown"
}

// tag is the value of the Compression tag.
func (c Compression) tag() uint16 {
	switch c {
	case Deflate, PNG:
		return compressionDeflate
	case LZW:
		return compressionLZW
	case PackBits:
		return compressionPackBits
	case JPEG, JPEG90:
		return compressionJPEG
	}
	return compressionNone
}

type WriterOption func(w *writer) error

// TileSize makes the writer produce width x height tiles.
func TileSize(width, height int) WriterOption {
	return func(w *writer) error {
		if width <= 0 || height <= 0 {
			return ErrInvalidOption{fmt.Sprintf("invalid tile size %dx%d", width, height)}
		}
		if width%16 != 0 || height%16 != 0 {
			return ErrInvalidOption{fmt.Sprintf("tile size %dx%d must be a multiple of 16", width, height)}
		}
		w.tileWidth, w.tileHeight = width, height
		w.rowsPerStrip = 0
		return nil
	}
}

// RowsPerStrip makes the writer produce strips of n rows.
func RowsPerStrip(n int) WriterOption {
	return func(w *writer) error {
		if n <= 0 {
			return ErrInvalidOption{fmt.Sprintf("invalid rows per strip %d", n)}
		}
		w.rowsPerStrip = n
		w.tileWidth, w.tileHeight = 0, 0
		return nil
	}
}

func WithCompression(c Compression) WriterOption {
	return func(w *writer) error {
		w.compression = c
		return nil
	}
}

// HeaderSize reserves size bytes at the start of the file for the header
// and the directory, the block tables and data following at fixed offsets.
// Writing fails when the directory does not fit.
func HeaderSize(size int) WriterOption {
	return func(w *writer) error {
		if size < 0 {
			return ErrInvalidOption{fmt.Sprintf("invalid header size %d", size)}
		}
		w.headerSize = uint64(size)
		return nil
	}
}

// Concurrency sets the number of blocks compressed in parallel.
func Concurrency(n int) WriterOption {
	return func(w *writer) error {
		if n <= 0 {
			return ErrInvalidOption{fmt.Sprintf("invalid concurrency %d", n)}
		}
		w.concurrency = n
		return nil
	}
}

// NoData records the nodata value of the image in the GDAL_NODATA tag.
func NoData(v []float32) WriterOption {
	return func(w *writer) error {
		w.nodata = v
		return nil
	}
}
