package ntiff

import (
	"context"

	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/nodata"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
)

type ManageOptions struct {
	Input string
	// Output defaults to Input. It is written only when pixels changed or
	// when it differs from Input.
	Output string
	// MaskOutput, when set, receives the nodata mask.
	MaskOutput string
	Format     raster.Format
	Channels   int
	Manager    nodata.Manager
}

// ManageNodata rewrites the nodata and target pixels of an image as set by
// opts.Manager, keeping its encoding.
func ManageNodata(ctx context.Context, opts ManageOptions) error {
	if opts.Output == "" {
		opts.Output = opts.Input
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)

	src, err := geotiff.Open(ctx, pool, opts.Input)
	if err != nil {
		return errs.Inputf("open image: %w", err)
	}
	info := src.Info()
	if info.Format != opts.Format || info.Channels != opts.Channels {
		src.Close()
		return errs.Shapef("%s is %dx%s, %dx%s expected", opts.Input, info.Channels, info.Format, opts.Channels, opts.Format)
	}
	enc := encodingOf(src)
	img, err := raster.ReadAll(src)
	// the input may be overwritten
	src.Close()
	if err != nil {
		return err
	}

	mask, changed, err := opts.Manager.Process(img)
	if err != nil {
		return err
	}
	logger := log.Logger(ctx)
	if changed || opts.Output != opts.Input {
		nd := opts.Manager.NewNodata
		if nd == nil {
			nd = opts.Manager.Target
		}
		logger.Debug("writing image", zap.String("uri", opts.Output), zap.Bool("changed", changed))
		if err := geotiff.Write(ctx, pool, opts.Output, img, append(enc, geotiff.NoData(nd))...); err != nil {
			return err
		}
	} else {
		logger.Info("image left untouched", zap.String("uri", opts.Input))
	}
	if opts.MaskOutput == "" {
		return nil
	}
	return geotiff.Write(ctx, pool, opts.MaskOutput, mask, append(enc, geotiff.WithCompression(geotiff.Deflate))...)
}

// encodingOf returns the writer options reproducing the block layout and
// compression of img.
func encodingOf(img *geotiff.Image) []geotiff.WriterOption {
	ifd := img.IFD()
	opts := []geotiff.WriterOption{geotiff.WithCompression(img.Compression())}
	if ifd.Tiled() {
		return append(opts, geotiff.TileSize(int(ifd.TileWidth), int(ifd.TileLength)))
	}
	if ifd.RowsPerStrip > 0 && ifd.RowsPerStrip < ifd.ImageLength {
		return append(opts, geotiff.RowsPerStrip(int(ifd.RowsPerStrip)))
	}
	return append(opts, geotiff.RowsPerStrip(int(ifd.ImageLength)))
}
