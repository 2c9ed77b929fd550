package geotiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff/lzw"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func encode(t *testing.T, img raster.Image, opts ...WriterOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(context.Background(), &buf, img, opts...))
	return buf.Bytes()
}

func decode(t *testing.T, b []byte) *Image {
	t.Helper()
	img, err := NewImage(memFile{bytes.NewReader(b)})
	require.NoError(t, err)
	return img
}

func samples(t *testing.T, img raster.Image) []float32 {
	t.Helper()
	m, err := raster.ReadAll(img)
	require.NoError(t, err)
	return m.Data()
}

func ramp(w, h, c int, format raster.Format) *raster.Memory {
	m, _ := raster.NewMemory(raster.NewInfo(w, h, c, format, crs.NewBBox(0, 0, float64(w), float64(h)), nil), nil)
	for i := range m.Data() {
		m.Data()[i] = float32((i * 7) % 256)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	testfunc := func(src *raster.Memory, opts ...WriterOption) {
		t.Helper()
		img := decode(t, encode(t, src, opts...))
		defer img.Close()
		si, ri := src.Info(), img.Info()
		assert.Equal(t, si.Width, ri.Width)
		assert.Equal(t, si.Height, ri.Height)
		assert.Equal(t, si.Channels, ri.Channels)
		assert.Equal(t, si.Format, ri.Format)
		assert.Equal(t, src.Data(), samples(t, img))
	}
	for _, c := range []Compression{None, Deflate, LZW, PackBits} {
		testfunc(ramp(5, 3, 1, raster.Uint8), WithCompression(c), TileSize(16, 16))
		testfunc(ramp(20, 18, 3, raster.Uint8), WithCompression(c), TileSize(16, 16))
		testfunc(ramp(7, 5, 1, raster.Uint8), WithCompression(c), RowsPerStrip(2))
		testfunc(ramp(7, 5, 4, raster.Uint8), WithCompression(c), RowsPerStrip(3))
	}
	for _, c := range []int{1, 2, 3, 4} {
		testfunc(ramp(17, 3, c, raster.Uint8), WithCompression(PNG), TileSize(16, 16))
	}

	f := ramp(6, 4, 2, raster.Float32)
	for i := range f.Data() {
		f.Data()[i] = float32(i)*1.5 - 10
	}
	testfunc(f, WithCompression(Deflate))
	testfunc(f, WithCompression(LZW), RowsPerStrip(1))
	testfunc(f, Concurrency(1))
}

func TestJPEG(t *testing.T) {
	info := raster.NewInfo(16, 16, 1, raster.Uint8, crs.NewBBox(0, 0, 16, 16), nil)
	for _, c := range []Compression{JPEG, JPEG90} {
		img := decode(t, encode(t, raster.Fill(info, 100), WithCompression(c), TileSize(16, 16)))
		for _, v := range samples(t, img) {
			assert.InDelta(t, 100, v, 2)
		}
	}

	var buf bytes.Buffer
	err := Encode(context.Background(), &buf, ramp(16, 16, 2, raster.Uint8), WithCompression(JPEG))
	assert.True(t, errs.Is(err, errs.Config))
	err = Encode(context.Background(), &buf, ramp(16, 16, 1, raster.Float32), WithCompression(JPEG))
	assert.True(t, errs.Is(err, errs.Config))
}

func TestGeoreference(t *testing.T) {
	l93, err := crs.Get("EPSG:2154")
	require.NoError(t, err)
	bbox := crs.NewBBox(650000, 6860000, 650080, 6860040)
	src := raster.Fill(raster.NewInfo(8, 4, 1, raster.Uint8, bbox, l93), 3)

	b := encode(t, src, NoData([]float32{-99999}))
	img := decode(t, b)
	info := img.Info()
	assert.Equal(t, 2154, img.IFD().EPSG())
	assert.True(t, info.CRS.Equal(l93))
	assert.InDelta(t, 10, info.ResX, 1e-9)
	assert.InDelta(t, 10, info.ResY, 1e-9)
	assert.Equal(t, bbox, info.BBox)
	assert.Equal(t, "-99999", strings.TrimRight(img.IFD().NoData, "\x00"))

	wgs, err := crs.Get("EPSG:4326")
	require.NoError(t, err)
	geo := raster.Fill(raster.NewInfo(4, 2, 1, raster.Uint8, crs.NewBBox(0, 40, 2, 41), wgs), 1)
	img = decode(t, encode(t, geo))
	assert.Equal(t, 4326, img.IFD().EPSG())
	assert.Equal(t, uint16(geographicTypeGeoKey), img.IFD().GeoKeyDirectoryTag[12])

	plain := decode(t, encode(t, ramp(4, 4, 1, raster.Uint8)))
	require.NoError(t, plain.SetGeometry(bbox, 20, 10, l93))
	assert.Equal(t, bbox, plain.Info().BBox)
	err = plain.SetGeometry(bbox, 10, 10, l93)
	assert.True(t, errs.Is(err, errs.Shape))
}

func TestMask(t *testing.T) {
	src := ramp(4, 2, 1, raster.Uint8)
	mask := raster.Fill(src.Info().MaskInfo(), 255)
	img := decode(t, encode(t, src))
	m := decode(t, encode(t, mask))
	assert.Nil(t, img.Mask())
	require.NoError(t, img.SetMask(m))
	assert.Equal(t, []float32{255, 255, 255, 255, 255, 255, 255, 255}, samples(t, img.Mask()))

	other := decode(t, encode(t, ramp(2, 2, 1, raster.Uint8)))
	assert.Error(t, img.SetMask(other))
	assert.NoError(t, img.Close())
}

func TestHeaderSize(t *testing.T) {
	src := ramp(32, 16, 1, raster.Uint8)
	img := decode(t, encode(t, src, HeaderSize(2048), TileSize(16, 16)))
	// two offsets and two byte counts, out of line
	assert.Equal(t, []uint64{2048 + 16, 2048 + 16 + 256}, img.IFD().TileOffsets)
	assert.Equal(t, src.Data(), samples(t, img))

	var buf bytes.Buffer
	err := Encode(context.Background(), &buf, src, HeaderSize(64))
	assert.True(t, errs.Is(err, errs.Output))
}

func TestEncodeRaw(t *testing.T) {
	info := raster.NewInfo(32, 16, 1, raster.Uint8, crs.NewBBox(0, 0, 32, 16), nil)
	tile := bytes.Repeat([]byte{7}, 256)
	var buf bytes.Buffer
	require.NoError(t, EncodeRaw(&buf, RawLayout{Info: info}, [][]byte{tile, nil}, TileSize(16, 16)))

	img := decode(t, buf.Bytes())
	assert.Equal(t, []uint64{256, 0}, img.IFD().TileByteCounts)
	assert.Equal(t, uint64(0), img.IFD().TileOffsets[1])
	line := make([]float32, 32)
	require.NoError(t, img.ReadLine(15, line))
	for x, v := range line {
		if x < 16 {
			assert.Equal(t, float32(7), v)
		} else {
			assert.Equal(t, float32(0), v)
		}
	}

	err := EncodeRaw(&buf, RawLayout{Info: info}, [][]byte{tile}, TileSize(16, 16))
	assert.True(t, errs.Is(err, errs.Shape))
	err = EncodeRaw(&buf, RawLayout{Info: info}, [][]byte{tile, tile}, RowsPerStrip(16))
	assert.True(t, errs.Is(err, errs.Config))
}

func TestBigTIFF(t *testing.T) {
	src := ramp(20, 20, 1, raster.Uint8)
	w, err := newWriter(TileSize(16, 16), WithCompression(Deflate))
	require.NoError(t, err)
	b, nbx, nby, err := w.layout(src.Info())
	require.NoError(t, err)
	ifd := w.ifd(src.Info(), b, nbx*nby)
	_, counts := ifd.blocks()
	var data bytes.Buffer
	require.NoError(t, w.encodeBlocks(context.Background(), src, b, nbx, nby, &data, counts))
	p := &plan{enc: encoder{enc: binary.LittleEndian, bigtiff: true}, ifd: ifd}
	p.compute(0)
	var buf bytes.Buffer
	require.NoError(t, p.write(&buf, &data))
	assert.Equal(t, []byte{'I', 'I', 43, 0, 8, 0}, buf.Bytes()[:6])

	img := decode(t, buf.Bytes())
	assert.Equal(t, src.Data(), samples(t, img))
}

type countingImage struct {
	raster.Image
	lines int
}

func (c *countingImage) ReadLine(y int, buf []float32) error {
	c.lines++
	return c.Image.ReadLine(y, buf)
}

// memSpool records how many source lines were read at each block write.
type memSpool struct {
	bytes.Buffer
	src    *countingImage
	writes []int
	sizes  []int
	closed bool
}

func (s *memSpool) Write(p []byte) (int, error) {
	s.writes = append(s.writes, s.src.lines)
	s.sizes = append(s.sizes, len(p))
	return s.Buffer.Write(p)
}

func (s *memSpool) Rewind() (io.Reader, error) { return &s.Buffer, nil }

func (s *memSpool) Close() error {
	s.closed = true
	return nil
}

func withSpool(s spool) WriterOption {
	return func(w *writer) error {
		w.newSpool = func() (spool, error) { return s, nil }
		return nil
	}
}

func TestEncodeStreamsBlockRows(t *testing.T) {
	src := &countingImage{Image: ramp(32, 48, 1, raster.Uint8)}
	sp := &memSpool{src: src}
	b := encode(t, src, TileSize(16, 16), withSpool(sp))

	// each block row leaves before the next one is read
	assert.Equal(t, []int{16, 16, 32, 32, 48, 48}, sp.writes)
	assert.Equal(t, []int{256, 256, 256, 256, 256, 256}, sp.sizes)
	assert.True(t, sp.closed)
	assert.Equal(t, src.Image.(*raster.Memory).Data(), samples(t, decode(t, b)))

	// strips stream the same way
	src = &countingImage{Image: ramp(8, 10, 1, raster.Uint8)}
	sp = &memSpool{src: src}
	b = encode(t, src, RowsPerStrip(4), WithCompression(LZW), withSpool(sp))
	assert.Equal(t, []int{4, 8, 10}, sp.writes)
	assert.Equal(t, src.Image.(*raster.Memory).Data(), samples(t, decode(t, b)))

	src = &countingImage{Image: failing{ramp(8, 8, 1, raster.Uint8)}}
	sp = &memSpool{src: src}
	var buf bytes.Buffer
	assert.Error(t, Encode(context.Background(), &buf, src, withSpool(sp)))
	assert.True(t, sp.closed)
	assert.Zero(t, buf.Len())
}

func TestCodecs(t *testing.T) {
	testfunc := func(src []byte) {
		t.Helper()
		pb := packBitsEncode(src)
		back, err := packBitsDecode(pb, len(src))
		require.NoError(t, err)
		assert.Equal(t, src, back)

		lr := lzw.NewReader(bytes.NewReader(lzwEncode(src)), lzw.MSB, 8)
		back, err = io.ReadAll(lr)
		require.NoError(t, err)
		assert.Equal(t, len(src), len(back))
		assert.True(t, bytes.Equal(src, back))
	}
	testfunc([]byte{})
	testfunc([]byte{1})
	testfunc([]byte{1, 1})
	testfunc([]byte{1, 2, 2, 3, 3, 3, 4})
	testfunc(bytes.Repeat([]byte{9}, 1000))
	testfunc(bytes.Repeat([]byte{1, 2, 3, 4, 5}, 3000))

	rnd := rand.New(rand.NewSource(42))
	noise := make([]byte, 100000)
	rnd.Read(noise)
	testfunc(noise)
	for i := range noise {
		noise[i] = byte(rnd.Intn(4))
	}
	testfunc(noise)

	// a literal run, then a repeat of three
	assert.Equal(t, []byte{1, 5, 6, 0xfe, 7}, packBitsEncode([]byte{5, 6, 7, 7, 7}))
}

func TestOptions(t *testing.T) {
	testfunc := func(s string, c Compression) {
		t.Helper()
		got, err := ParseCompression(s)
		require.NoError(t, err, s)
		assert.Equal(t, c, got, s)
	}
	testfunc("raw", None)
	testfunc("none", None)
	testfunc("zip", Deflate)
	testfunc("LZW", LZW)
	testfunc("pkb", PackBits)
	testfunc("jpg", JPEG)
	testfunc("jpg90", JPEG90)
	testfunc("png", PNG)

	_, err := ParseCompression("webp")
	var inv ErrInvalidOption
	assert.True(t, errors.As(err, &inv))

	_, err = newWriter(TileSize(10, 16))
	assert.True(t, errs.Is(err, errs.Config))
	_, err = newWriter(RowsPerStrip(0))
	assert.Error(t, err)
	_, err = newWriter(Concurrency(0))
	assert.Error(t, err)
}

type failing struct {
	*raster.Memory
}

func (failing) ReadLine(int, []float32) error { return errors.New("broken source") }

func TestWrite(t *testing.T) {
	ctx := context.Background()
	pool := storage.NewPool()
	defer pool.Close(ctx)
	dir := t.TempDir()

	src := ramp(9, 9, 3, raster.Uint8)
	uri := filepath.Join(dir, "img.tif")
	require.NoError(t, Write(ctx, pool, uri, src, WithCompression(Deflate)))
	img, err := Open(ctx, pool, uri)
	require.NoError(t, err)
	assert.Equal(t, src.Data(), samples(t, img))
	require.NoError(t, img.Close())

	bad := filepath.Join(dir, "bad.tif")
	err = Write(ctx, pool, bad, failing{src})
	assert.Error(t, err)
	_, err = os.Stat(bad)
	assert.True(t, os.IsNotExist(err))

	_, err = Open(ctx, pool, filepath.Join(dir, "missing.tif"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.tif")
	require.NoError(t, os.WriteFile(garbage, []byte("not a tiff at all"), 0644))
	_, err = Open(ctx, pool, garbage)
	assert.True(t, errs.Is(err, errs.Input))
}
