package ntiff

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
)

// ComposeN writes the image made of the nw x nh images found in dir, laid
// out row by row in the order of their names.
func ComposeN(ctx context.Context, dir string, nw, nh int, out Output, uri string) error {
	if nw <= 0 || nh <= 0 {
		return errs.Configf("grid must be positive, got %dx%d", nw, nh)
	}
	names, err := listImages(dir)
	if err != nil {
		return err
	}
	n := nw * nh
	if len(names) < n {
		return errs.Inputf("%s holds %d images, %dx%d needed", dir, len(names), nw, nh)
	}
	if len(names) > n {
		log.Logger(ctx).Warn("too many images, extra ones ignored",
			zap.String("dir", dir), zap.Int("found", len(names)), zap.Int("used", n))
		names = names[:n]
	}

	pool := storage.NewPool()
	defer pool.Close(ctx)
	tiles := make([]raster.Image, 0, n)
	defer func() { closeAll(tiles) }()
	for _, name := range names {
		img, err := openSource(ctx, pool, name, "")
		if err != nil {
			return err
		}
		tiles = append(tiles, img)
	}
	m, err := newMosaic(tiles, nw, nh)
	if err != nil {
		return err
	}
	return writeResult(ctx, pool, m, uri, "", out)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Inputf("list images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names, nil
}

// mosaic lays equally sized images on a grid. It carries no georeference.
type mosaic struct {
	tiles  []raster.Image
	nw     int
	info   raster.Info
	tile   raster.Info
	buf    []float32
	masked bool
}

func newMosaic(tiles []raster.Image, nw, nh int) (*mosaic, error) {
	ref := tiles[0].Info()
	m := &mosaic{tiles: tiles, nw: nw, tile: ref}
	for i, t := range tiles {
		ti := t.Info()
		if ti.Width != ref.Width || ti.Height != ref.Height || ti.Channels != ref.Channels ||
			ti.Format != ref.Format || ti.Photometric != ref.Photometric {
			return nil, errs.Shapef("image %d is %s, image 0 is %s", i, ti, ref)
		}
		m.masked = m.masked || t.Mask() != nil
	}
	m.info = raster.Info{
		Width:       nw * ref.Width,
		Height:      nh * ref.Height,
		Channels:    ref.Channels,
		Format:      ref.Format,
		Photometric: ref.Photometric,
	}
	m.buf = make([]float32, ref.LineSize())
	return m, nil
}

func (m *mosaic) Info() raster.Info { return m.info }

func (m *mosaic) Close() error {
	var first error
	for _, t := range m.tiles {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *mosaic) Mask() raster.Image {
	if !m.masked {
		return nil
	}
	return &mosaicMask{m: m, buf: make([]float32, m.tile.Width)}
}

func (m *mosaic) ReadLine(y int, buf []float32) error {
	if y < 0 || y >= m.info.Height {
		return errs.Computationf("line %d out of [0,%d)", y, m.info.Height)
	}
	if len(buf) < m.info.LineSize() {
		return errs.Computationf("line buffer holds %d samples, %d needed", len(buf), m.info.LineSize())
	}
	row, ty := y/m.tile.Height, y%m.tile.Height
	ls := m.tile.LineSize()
	for col := 0; col < m.nw; col++ {
		if err := m.tiles[row*m.nw+col].ReadLine(ty, m.buf); err != nil {
			return err
		}
		copy(buf[col*ls:(col+1)*ls], m.buf)
	}
	return nil
}

// mosaicMask lays the tile masks, full for tiles without one.
type mosaicMask struct {
	m   *mosaic
	buf []float32
}

func (mm *mosaicMask) Info() raster.Info  { return mm.m.info.MaskInfo() }
func (mm *mosaicMask) Mask() raster.Image { return nil }
func (mm *mosaicMask) Close() error       { return nil }

func (mm *mosaicMask) ReadLine(y int, buf []float32) error {
	m := mm.m
	if y < 0 || y >= m.info.Height {
		return errs.Computationf("mask line %d out of [0,%d)", y, m.info.Height)
	}
	row, ty := y/m.tile.Height, y%m.tile.Height
	w := m.tile.Width
	for col := 0; col < m.nw; col++ {
		dst := buf[col*w : (col+1)*w]
		mask := m.tiles[row*m.nw+col].Mask()
		if mask == nil {
			for i := range dst {
				dst[i] = 255
			}
			continue
		}
		if err := mask.ReadLine(ty, mm.buf); err != nil {
			return err
		}
		copy(dst, mm.buf)
	}
	return nil
}
