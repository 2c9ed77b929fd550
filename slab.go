package ntiff

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SlabHeaderSize is the space reserved for the header and directory of a
// slab, its tile tables following at a fixed offset.
const SlabHeaderSize = 2048

// WorkToCache writes the work image at input as a tiled slab at uri,
// converted when conv is not nil.
func WorkToCache(ctx context.Context, input string, conv *Conversion, out Output, uri string) error {
	pool := storage.NewPool()
	defer pool.Close(ctx)
	src, err := geotiff.Open(ctx, pool, input)
	if err != nil {
		return errs.Inputf("open image: %w", err)
	}
	defer src.Close()
	var img raster.Image = src
	if conv != nil {
		if img, err = raster.Convert(src, conv.Format, conv.Channels); err != nil {
			return err
		}
	}
	return geotiff.Write(ctx, pool, uri, img, out.options(geotiff.HeaderSize(SlabHeaderSize))...)
}

// CacheToWork writes the slab at uri as a work image in strips, keeping its
// georeference.
func CacheToWork(ctx context.Context, uri string, c geotiff.Compression, output string) error {
	pool := storage.NewPool()
	defer pool.Close(ctx)
	src, err := geotiff.Open(ctx, pool, uri)
	if err != nil {
		return errs.Inputf("open slab: %w", err)
	}
	defer src.Close()
	return geotiff.Write(ctx, pool, output, src, geotiff.WithCompression(c), geotiff.RowsPerStrip(16))
}

// PbfTileSize is the nominal size given to vector tiles in a slab.
const PbfTileSize = 256

// PbfToCache packs the vector tiles <dir>/<col>/<row>.pbf of the nx x ny
// block whose upper left tile is (col, row) into a slab at uri. Missing
// tiles are recorded empty.
func PbfToCache(ctx context.Context, dir string, nx, ny, col, row int, uri string) error {
	if nx <= 0 || ny <= 0 {
		return errs.Configf("tile count must be positive, got %dx%d", nx, ny)
	}
	tiles := make([][]byte, nx*ny)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			idx := j*nx + i
			path := filepath.Join(dir, strconv.Itoa(col+i), strconv.Itoa(row+j)+".pbf")
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(path)
				if errors.Is(err, fs.ErrNotExist) {
					log.Logger(ctx).Debug("missing tile", zap.String("path", path))
					return nil
				}
				if err != nil {
					return errs.Inputf("read tile: %w", err)
				}
				tiles[idx] = data
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)
	l := geotiff.RawLayout{
		Info: raster.Info{
			Width:       nx * PbfTileSize,
			Height:      ny * PbfTileSize,
			Channels:    1,
			Format:      raster.Uint8,
			Photometric: raster.Gray,
		},
		Compression: geotiff.None,
	}
	return geotiff.WriteRaw(ctx, pool, uri, l, tiles,
		geotiff.TileSize(PbfTileSize, PbfTileSize), geotiff.HeaderSize(SlabHeaderSize))
}
