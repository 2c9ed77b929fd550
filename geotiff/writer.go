package geotiff

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
)

type writer struct {
	tileWidth, tileHeight int
	rowsPerStrip          int
	compression           Compression
	headerSize            uint64
	concurrency           int
	nodata                []float32
	newSpool              func() (spool, error)
}

// spool keeps the compressed blocks aside until the directory, which
// precedes them in the file, can be laid out.
type spool interface {
	io.Writer
	Rewind() (io.Reader, error)
	Close() error
}

type fileSpool struct {
	*os.File
}

func tempSpool() (spool, error) {
	f, err := os.CreateTemp("", "ntiff-*.blocks")
	if err != nil {
		return nil, errs.Outputf("create block spool: %w", err)
	}
	return fileSpool{f}, nil
}

func (s fileSpool) Rewind() (io.Reader, error) {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return nil, errs.Outputf("rewind block spool: %w", err)
	}
	return s.File, nil
}

func (s fileSpool) Close() error {
	err := s.File.Close()
	os.Remove(s.Name())
	return err
}

func newWriter(opts ...WriterOption) (*writer, error) {
	w := &writer{
		tileWidth:   256,
		tileHeight:  256,
		compression: None,
		concurrency: runtime.NumCPU(),
		newSpool:    tempSpool,
	}
	for _, o := range opts {
		if err := o(w); err != nil {
			return nil, errs.Configf("%w", err)
		}
	}
	return w, nil
}

func (w *writer) layout(info raster.Info) (block, int, int, error) {
	if info.Width <= 0 || info.Height <= 0 || info.Channels <= 0 || info.Channels > 4 {
		return block{}, 0, 0, errs.Shapef("cannot write a %dx%dx%d image", info.Width, info.Height, info.Channels)
	}
	b := block{channels: info.Channels, format: info.Format}
	if w.tileWidth > 0 {
		b.width, b.height = w.tileWidth, w.tileHeight
	} else {
		b.width, b.height = info.Width, min(w.rowsPerStrip, info.Height)
	}
	switch info.Format {
	case raster.Uint8, raster.Float32:
	default:
		return b, 0, 0, errs.Configf("cannot write %s samples", info.Format)
	}
	switch w.compression {
	case JPEG, JPEG90:
		if info.Format != raster.Uint8 || (info.Channels != 1 && info.Channels != 3) {
			return b, 0, 0, errs.Configf("jpeg needs uint8 gray or rgb samples, got %d %s channels", info.Channels, info.Format)
		}
	case PNG:
		if info.Format != raster.Uint8 {
			return b, 0, 0, errs.Configf("png needs uint8 samples, got %s", info.Format)
		}
	}
	return b, (info.Width + b.width - 1) / b.width, (info.Height + b.height - 1) / b.height, nil
}

func (w *writer) ifd(info raster.Info, b block, nblocks int) *IFD {
	ifd := &IFD{
		ImageWidth:          uint64(info.Width),
		ImageLength:         uint64(info.Height),
		Compression:         w.compression.tag(),
		SamplesPerPixel:     uint16(info.Channels),
		PlanarConfiguration: PlanarConfigurationContig,
		NoData:              formatNoData(w.nodata),
	}
	sf := uint16(SampleFormatUInt)
	if info.Format == raster.Float32 {
		sf = SampleFormatIEEEFP
	}
	for c := 0; c < info.Channels; c++ {
		ifd.BitsPerSample = append(ifd.BitsPerSample, uint16(info.Format.Bits()))
		ifd.SampleFormat = append(ifd.SampleFormat, sf)
	}
	switch {
	case info.Photometric == raster.MaskPhotometric:
		ifd.PhotometricInterpretation = PhotometricInterpretationMinIsBlack
	case info.Channels >= 3:
		ifd.PhotometricInterpretation = PhotometricInterpretationRGB
	default:
		ifd.PhotometricInterpretation = PhotometricInterpretationMinIsBlack
	}
	if info.Channels == 2 || info.Channels == 4 {
		ifd.ExtraSamples = []uint16{ExtraSamplesUnassAlpha}
	}
	counts := make([]uint64, nblocks)
	if w.tileWidth > 0 {
		ifd.TileWidth, ifd.TileLength = uint64(b.width), uint64(b.height)
		ifd.TileOffsets, ifd.TileByteCounts = make([]uint64, nblocks), counts
	} else {
		ifd.RowsPerStrip = uint64(b.height)
		ifd.StripOffsets, ifd.StripByteCounts = make([]uint64, nblocks), counts
	}
	ifd.setGeoreference(info)
	return ifd
}

// plan is the layout of a file: header, directory with its out of line
// values, block tables, then block data.
type plan struct {
	enc          encoder
	ifd          *IFD
	entries      []entry
	ifdOffset    uint64
	tableSize    uint64
	overflowSize uint64
	strileOffset uint64
	strileSize   uint64
	dataOffset   uint64
}

func u32(v []uint64) []uint32 {
	r := make([]uint32, len(v))
	for i, x := range v {
		r[i] = uint32(x)
	}
	return r
}

// fill lists the directory entries in ascending tag order, encoding block
// offsets on 32 bits for classic files.
func (p *plan) fill() {
	ifd := p.ifd
	offsets := func(v []uint64) interface{} {
		if p.enc.bigtiff {
			return v
		}
		return u32(v)
	}
	p.entries = p.entries[:0]
	add := func(tag uint16, data interface{}, strile bool) {
		p.entries = append(p.entries, entry{tag: tag, data: data, strile: strile})
	}
	add(256, []uint32{uint32(ifd.ImageWidth)}, false)
	add(257, []uint32{uint32(ifd.ImageLength)}, false)
	add(258, ifd.BitsPerSample, false)
	add(259, []uint16{ifd.Compression}, false)
	add(262, []uint16{ifd.PhotometricInterpretation}, false)
	if !ifd.Tiled() {
		add(273, offsets(ifd.StripOffsets), true)
	}
	add(277, []uint16{ifd.SamplesPerPixel}, false)
	if !ifd.Tiled() {
		add(278, []uint32{uint32(ifd.RowsPerStrip)}, false)
		add(279, u32(ifd.StripByteCounts), true)
	}
	add(284, []uint16{ifd.PlanarConfiguration}, false)
	if ifd.Tiled() {
		add(322, []uint32{uint32(ifd.TileWidth)}, false)
		add(323, []uint32{uint32(ifd.TileLength)}, false)
		add(324, offsets(ifd.TileOffsets), true)
		add(325, u32(ifd.TileByteCounts), true)
	}
	if len(ifd.ExtraSamples) > 0 {
		add(338, ifd.ExtraSamples, false)
	}
	add(339, ifd.SampleFormat, false)
	if len(ifd.ModelPixelScaleTag) > 0 {
		add(33550, ifd.ModelPixelScaleTag, false)
		add(33922, ifd.ModelTiePointTag, false)
	}
	if len(ifd.GeoKeyDirectoryTag) > 0 {
		add(34735, ifd.GeoKeyDirectoryTag, false)
	}
	if ifd.NoData != "" {
		add(42113, ifd.NoData, false)
	}
}

// compute places every part of the file, offsets of empty blocks being 0.
// It returns the size of the file.
func (p *plan) compute(headerSize uint64) uint64 {
	p.fill()
	p.ifdOffset = p.enc.headerSize()
	p.tableSize = p.enc.tableSize(len(p.entries))
	p.overflowSize, p.strileSize = 0, 0
	for _, e := range p.entries {
		if e.strile {
			p.strileSize += p.enc.outOfLine(e.data)
		} else {
			p.overflowSize += p.enc.outOfLine(e.data)
		}
	}
	p.strileOffset = max(p.ifdOffset+p.tableSize+p.overflowSize, headerSize)
	p.dataOffset = p.strileOffset + p.strileSize

	offsets, counts := p.ifd.blocks()
	off := p.dataOffset
	for i, c := range counts {
		offsets[i] = 0
		if c > 0 {
			offsets[i] = off
			off += c
		}
	}
	// refresh the encoded offset values
	p.fill()
	return off
}

func (p *plan) write(w io.Writer, data io.Reader) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	if err := p.enc.writeHeader(bw, p.ifdOffset); err != nil {
		return err
	}
	cnt := make([]byte, 8)
	if p.enc.bigtiff {
		p.enc.enc.PutUint64(cnt, uint64(len(p.entries)))
	} else {
		p.enc.enc.PutUint16(cnt, uint16(len(p.entries)))
		cnt = cnt[:2]
	}
	if _, err := bw.Write(cnt); err != nil {
		return err
	}
	overflow := &tagData{Offset: p.ifdOffset + p.tableSize}
	striles := &tagData{Offset: p.strileOffset}
	for _, e := range p.entries {
		data := overflow
		if e.strile {
			data = striles
		}
		if err := p.enc.writeEntry(bw, e.tag, e.data, data); err != nil {
			return err
		}
	}
	next := make([]byte, 8)
	if !p.enc.bigtiff {
		next = next[:4]
	}
	if _, err := bw.Write(next); err != nil {
		return err
	}
	if _, err := bw.Write(overflow.Bytes()); err != nil {
		return err
	}
	pad := p.strileOffset - overflow.NextOffset()
	if _, err := bw.Write(make([]byte, pad)); err != nil {
		return err
	}
	if _, err := bw.Write(striles.Bytes()); err != nil {
		return err
	}
	if _, err := io.Copy(bw, data); err != nil {
		return err
	}
	return bw.Flush()
}

// newPlan lays out a classic TIFF, switching to BigTIFF when offsets would
// not fit on 32 bits. The byte counts of ifd must be known.
func (w *writer) newPlan(ifd *IFD) (*plan, error) {
	p := &plan{enc: encoder{enc: binary.LittleEndian}, ifd: ifd}
	if size := p.compute(w.headerSize); size > math.MaxUint32 {
		p.enc.bigtiff = true
		p.compute(w.headerSize)
	}
	if w.headerSize > 0 && p.ifdOffset+p.tableSize+p.overflowSize > w.headerSize {
		return nil, errs.Outputf("directory needs %d bytes, header size is %d",
			p.ifdOffset+p.tableSize+p.overflowSize, w.headerSize)
	}
	return p, nil
}

// pack writes the samples of block bx from lines into raw, padding with
// zeros outside of the image.
func pack(raw []byte, lines [][]float32, rows int, bx int, b block, info raster.Info) {
	nc := info.Channels
	for i := range raw {
		raw[i] = 0
	}
	x0 := bx * b.width
	x1 := min(x0+b.width, info.Width)
	for r := 0; r < rows && r < b.height; r++ {
		row := raw[r*b.rowSize():]
		src := lines[r][x0*nc : x1*nc]
		if b.format == raster.Float32 {
			for i, v := range src {
				binary.LittleEndian.PutUint32(row[4*i:], math.Float32bits(v))
			}
			continue
		}
		for i, v := range src {
			row[i] = uint8(raster.ClampUint8(v))
		}
	}
}

// encodeBlocks compresses img one block row at a time, appending the blocks
// to sink in file order and recording their sizes in counts. Only one block
// row is held in memory.
func (w *writer) encodeBlocks(ctx context.Context, img raster.Image, b block, nbx, nby int, sink io.Writer, counts []uint64) error {
	info := img.Info()
	row := make([][]byte, nbx)
	lines := make([][]float32, b.height)
	for i := range lines {
		lines[i] = make([]float32, info.LineSize())
	}
	pool := gobs.NewPool(w.concurrency)
	for by := 0; by < nby; by++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows := min(b.height, info.Height-by*b.height)
		for r := 0; r < rows; r++ {
			if err := img.ReadLine(by*b.height+r, lines[r]); err != nil {
				return fmt.Errorf("read line %d: %w", by*b.height+r, err)
			}
		}
		bb := b
		if w.tileWidth == 0 {
			bb.height = rows
		}
		batch := pool.Batch()
		for bx := 0; bx < nbx; bx++ {
			idx := by*nbx + bx
			bx := bx
			batch.Submit(func() error {
				raw := make([]byte, bb.size())
				pack(raw, lines, rows, bx, bb, info)
				data, err := compress(w.compression, raw, bb)
				if err != nil {
					return errs.Outputf("compress block %d: %w", idx, err)
				}
				row[bx] = data
				return nil
			})
		}
		if err := batch.Wait(); err != nil {
			return err
		}
		for bx, data := range row {
			if _, err := sink.Write(data); err != nil {
				return errs.Outputf("spool block %d: %w", by*nbx+bx, err)
			}
			counts[by*nbx+bx] = uint64(len(data))
			row[bx] = nil
		}
	}
	return nil
}

// Encode writes img to out as a single image TIFF. Blocks are compressed
// concurrently, one block row at a time, and spooled until the directory
// can be written ahead of them.
func Encode(ctx context.Context, out io.Writer, img raster.Image, opts ...WriterOption) error {
	w, err := newWriter(opts...)
	if err != nil {
		return err
	}
	info := img.Info()
	b, nbx, nby, err := w.layout(info)
	if err != nil {
		return err
	}
	ifd := w.ifd(info, b, nbx*nby)
	_, counts := ifd.blocks()
	sp, err := w.newSpool()
	if err != nil {
		return err
	}
	defer sp.Close()
	if err := w.encodeBlocks(ctx, img, b, nbx, nby, sp, counts); err != nil {
		return err
	}
	data, err := sp.Rewind()
	if err != nil {
		return err
	}
	return w.writeBlocks(out, ifd, data)
}

func (w *writer) writeBlocks(out io.Writer, ifd *IFD, data io.Reader) error {
	p, err := w.newPlan(ifd)
	if err != nil {
		return err
	}
	if err := p.write(out, data); err != nil {
		return errs.Outputf("write tiff: %w", err)
	}
	return nil
}

// RawLayout describes a tiled image whose tiles are already encoded.
type RawLayout struct {
	Info        raster.Info
	Compression Compression
}

// EncodeRaw writes tiles, row major, as the tiles of an image described by
// l. A nil or empty tile is recorded with a zero offset and size.
func EncodeRaw(out io.Writer, l RawLayout, tiles [][]byte, opts ...WriterOption) error {
	w, err := newWriter(opts...)
	if err != nil {
		return err
	}
	if w.tileWidth == 0 {
		return errs.Configf("raw tiles need a tiled layout")
	}
	w.compression = l.Compression
	b, nbx, nby, err := w.layout(l.Info)
	if err != nil {
		return err
	}
	if len(tiles) != nbx*nby {
		return errs.Shapef("expected %dx%d tiles, got %d", nbx, nby, len(tiles))
	}
	ifd := w.ifd(l.Info, b, len(tiles))
	_, counts := ifd.blocks()
	data := make([]io.Reader, len(tiles))
	for i, t := range tiles {
		counts[i] = uint64(len(t))
		data[i] = bytes.NewReader(t)
	}
	return w.writeBlocks(out, ifd, io.MultiReader(data...))
}

// Write encodes img into the object at uri, which is discarded when
// encoding fails.
func Write(ctx context.Context, pool *storage.Pool, uri string, img raster.Image, opts ...WriterOption) error {
	return create(ctx, pool, uri, func(out io.Writer) error {
		return Encode(ctx, out, img, opts...)
	})
}

// WriteRaw stores pre-encoded tiles into the object at uri.
func WriteRaw(ctx context.Context, pool *storage.Pool, uri string, l RawLayout, tiles [][]byte, opts ...WriterOption) error {
	return create(ctx, pool, uri, func(out io.Writer) error {
		return EncodeRaw(out, l, tiles, opts...)
	})
}

func create(ctx context.Context, pool *storage.Pool, uri string, encode func(io.Writer) error) error {
	out, err := pool.Create(ctx, uri)
	if err != nil {
		return err
	}
	if err := encode(out); err != nil {
		storage.Abort(out)
		return fmt.Errorf("%s: %w", uri, err)
	}
	if err := out.Close(); err != nil {
		return errs.Outputf("close %s: %w", uri, err)
	}
	log.Logger(ctx).Debug("wrote tiff", zap.String("uri", uri))
	return nil
}
