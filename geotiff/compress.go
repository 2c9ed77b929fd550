package geotiff

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionJPEG         = 7
	compressionDeflate      = 8
	compressionPackBits     = 32773
	compressionAdobeDeflate = 32946
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// block is the geometry of a tile or strip.
type block struct {
	width, height, channels int
	format                  raster.Format
}

func (b block) rowSize() int {
	return b.width * b.channels * b.format.Bits() / 8
}

func (b block) size() int {
	return b.rowSize() * b.height
}

func compress(c Compression, raw []byte, b block) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case None:
		return raw, nil
	case Deflate:
		zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case LZW:
		return lzwEncode(raw), nil
	case PackBits:
		rs := b.rowSize()
		for off := 0; off < len(raw); off += rs {
			buf.Write(packBitsEncode(raw[off : off+rs]))
		}
	case JPEG, JPEG90:
		q := 75
		if c == JPEG90 {
			q = 90
		}
		if err := jpeg.Encode(&buf, toImage(raw, b), &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	case PNG:
		if err := png.Encode(&buf, toImage(raw, b)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	return buf.Bytes(), nil
}

// decompress returns the samples of a block in file order.
func decompress(compression uint16, data []byte, b block) ([]byte, error) {
	switch compression {
	case 0, compressionNone:
		return data, nil
	case compressionDeflate, compressionAdobeDeflate:
		if bytes.HasPrefix(data, pngSignature) {
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, errs.Inputf("png block: %w", err)
			}
			return fromImage(img, b), nil
		}
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Inputf("deflate block: %w", err)
		}
		defer zr.Close()
		return readBlock(zr, b)
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer lr.Close()
		return readBlock(lr, b)
	case compressionPackBits:
		return packBitsDecode(data, b.size())
	case compressionJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Inputf("jpeg block: %w", err)
		}
		return fromImage(img, b), nil
	}
	return nil, errs.Inputf("unsupported compression %d", compression)
}

func readBlock(r io.Reader, b block) ([]byte, error) {
	out := make([]byte, b.size())
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errs.Inputf("decode block: %w", err)
	}
	return out[:n], nil
}

// toImage wraps uint8 samples into an image the standard encoders accept.
func toImage(raw []byte, b block) image.Image {
	rect := image.Rect(0, 0, b.width, b.height)
	switch b.channels {
	case 1:
		return &image.Gray{Pix: raw, Stride: b.width, Rect: rect}
	case 2:
		img := image.NewNRGBA(rect)
		for i := 0; i < b.width*b.height; i++ {
			g, a := raw[2*i], raw[2*i+1]
			copy(img.Pix[4*i:], []byte{g, g, g, a})
		}
		return img
	case 3:
		img := image.NewRGBA(rect)
		for i := 0; i < b.width*b.height; i++ {
			copy(img.Pix[4*i:], []byte{raw[3*i], raw[3*i+1], raw[3*i+2], 255})
		}
		return img
	default:
		return &image.NRGBA{Pix: raw, Stride: 4 * b.width, Rect: rect}
	}
}

func fromImage(img image.Image, b block) []byte {
	out := make([]byte, b.size())
	r := img.Bounds()
	w, h := min(b.width, r.Dx()), min(b.height, r.Dy())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := out[(y*b.width+x)*b.channels:]
			c := img.At(r.Min.X+x, r.Min.Y+y)
			if b.channels == 1 {
				px[0] = color.GrayModel.Convert(c).(color.Gray).Y
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			switch b.channels {
			case 2:
				px[0], px[1] = n.R, n.A
			case 3:
				px[0], px[1], px[2] = n.R, n.G, n.B
			default:
				px[0], px[1], px[2], px[3] = n.R, n.G, n.B, n.A
			}
		}
	}
	return out
}

// packBitsEncode compresses one row.
func packBitsEncode(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/128+1)
	for i := 0; i < len(src); {
		j := i + 1
		for j < len(src) && j-i < 128 && src[j] == src[i] {
			j++
		}
		if j-i >= 2 {
			out = append(out, byte(1-(j-i)), src[i])
			i = j
			continue
		}
		j = i
		for j < len(src) && j-i < 128 {
			if j+1 < len(src) && src[j] == src[j+1] {
				break
			}
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, src[i:j]...)
		i = j
	}
	return out
}

func packBitsDecode(src []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for i := 0; i < len(src) && len(out) < size; {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, errs.Inputf("packbits: truncated literal run")
			}
			out = append(out, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, errs.Inputf("packbits: truncated repeat run")
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out, nil
}

const (
	lzwClear    = 256
	lzwEOI      = 257
	lzwFirst    = 258
	lzwMaxWidth = 12
	// the table is reset before the decoder would need 13 bit codes
	lzwReset = 1<<lzwMaxWidth - 2
)

// lzwWriter packs codes MSB first.
type lzwWriter struct {
	out   []byte
	acc   uint32
	nbits uint
	width uint
}

func (w *lzwWriter) put(code int) {
	w.acc = w.acc<<w.width | uint32(code)
	w.nbits += w.width
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.acc>>(w.nbits-8)))
		w.nbits -= 8
	}
}

func (w *lzwWriter) flush() {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.nbits)))
		w.nbits = 0
	}
}

// lzwEncode compresses src the TIFF way: MSB first codes whose width grows
// one code early.
func lzwEncode(src []byte) []byte {
	w := &lzwWriter{width: 9}
	table := make(map[uint32]int)
	next := lzwFirst
	w.put(lzwClear)
	if len(src) == 0 {
		w.put(lzwEOI)
		w.flush()
		return w.out
	}
	// grow registers a new code and adapts the code width.
	grow := func() {
		next++
		if next == lzwReset {
			w.put(lzwClear)
			for k := range table {
				delete(table, k)
			}
			next = lzwFirst
			w.width = 9
			return
		}
		if next > 1<<w.width-1 {
			w.width++
		}
	}
	prefix := int(src[0])
	for _, b := range src[1:] {
		key := uint32(prefix)<<8 | uint32(b)
		if code, ok := table[key]; ok {
			prefix = code
			continue
		}
		w.put(prefix)
		table[key] = next
		grow()
		prefix = int(b)
	}
	w.put(prefix)
	grow()
	w.put(lzwEOI)
	w.flush()
	return w.out
}
