// Package ntiff implements the raster composition tools: mergeNtiff,
// decimateNtiff, overlayNtiff, composeNtiff, merge4tiff, manageNodata,
// work2cache, cache2work and pbf2cache. Each tool reads its sources through
// a storage pool, assembles a raster graph and writes the result in one
// pass.
package ntiff

import (
	"context"
	"fmt"

	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
)

// Output sets how results are encoded. A zero tile size keeps the default
// 256x256 tiles.
type Output struct {
	Compression           geotiff.Compression
	TileWidth, TileHeight int
}

func (o Output) options(extra ...geotiff.WriterOption) []geotiff.WriterOption {
	opts := []geotiff.WriterOption{geotiff.WithCompression(o.Compression)}
	if o.TileWidth > 0 || o.TileHeight > 0 {
		opts = append(opts, geotiff.TileSize(o.TileWidth, o.TileHeight))
	}
	return append(opts, extra...)
}

// maskOptions returns the encoding of written masks: deflated, on the tiles
// of the image.
func (o Output) maskOptions() []geotiff.WriterOption {
	m := o
	m.Compression = geotiff.Deflate
	return m.options()
}

// openSource opens the image at uri and attaches the mask at maskURI, when
// not empty.
func openSource(ctx context.Context, pool *storage.Pool, uri, maskURI string) (*geotiff.Image, error) {
	img, err := geotiff.Open(ctx, pool, uri)
	if err != nil {
		return nil, errs.Inputf("open image: %w", err)
	}
	if maskURI == "" {
		return img, nil
	}
	mask, err := geotiff.Open(ctx, pool, maskURI)
	if err != nil {
		img.Close()
		return nil, errs.Inputf("open mask: %w", err)
	}
	if mi := mask.Info(); mi.Channels != 1 || mi.Format != raster.Uint8 {
		img.Close()
		mask.Close()
		return nil, errs.Shapef("mask %s must hold one uint8 channel, got %dx%s", maskURI, mi.Channels, mi.Format)
	}
	if err := img.SetMask(mask); err != nil {
		img.Close()
		mask.Close()
		return nil, fmt.Errorf("%s: %w", maskURI, err)
	}
	return img, nil
}

// writeResult writes img to uri, then its mask to maskURI when not empty. An
// image without mask gets a full mask.
func writeResult(ctx context.Context, pool *storage.Pool, img raster.Image, uri, maskURI string, out Output, extra ...geotiff.WriterOption) error {
	logger := log.Logger(ctx)
	logger.Debug("writing", zap.String("uri", uri), zap.Stringer("info", img.Info()))
	if err := geotiff.Write(ctx, pool, uri, img, out.options(extra...)...); err != nil {
		return err
	}
	if maskURI == "" {
		return nil
	}
	mask := img.Mask()
	if mask == nil {
		mask = raster.Constant(img.Info().MaskInfo(), 255)
	}
	logger.Debug("writing mask", zap.String("uri", maskURI))
	return geotiff.Write(ctx, pool, maskURI, mask, out.maskOptions()...)
}

func closeAll(imgs []raster.Image) {
	for _, img := range imgs {
		if img != nil {
			img.Close()
		}
	}
}

// Conversion is an explicit output sample format and channel count, given
// on the command line as a pair.
type Conversion struct {
	Format   raster.Format
	Channels int
}

// ParseConversion returns the conversion asked by format and channels, nil
// when neither is given. Giving only one of them is an error.
func ParseConversion(format string, channels int) (*Conversion, error) {
	if format == "" && channels == 0 {
		return nil, nil
	}
	if format == "" || channels == 0 {
		return nil, errs.Configf("a conversion needs both the sample format and the channel count")
	}
	f, err := raster.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if channels < 1 || channels > 4 {
		return nil, errs.Configf("channels must be within [1,4], got %d", channels)
	}
	return &Conversion{Format: f, Channels: channels}, nil
}

// layout checks that imgs share their sample format and channel count and
// returns them.
func layout(imgs []raster.Image) (raster.Format, int, error) {
	ref := imgs[0].Info()
	for _, img := range imgs[1:] {
		if i := img.Info(); i.Format != ref.Format || i.Channels != ref.Channels {
			return 0, 0, errs.Shapef("inputs differ: %dx%s and %dx%s, a conversion is needed",
				ref.Channels, ref.Format, i.Channels, i.Format)
		}
	}
	return ref.Format, ref.Channels, nil
}

// convertAll applies conv to every image, in place.
func convertAll(imgs []raster.Image, conv *Conversion) error {
	if conv == nil {
		return nil
	}
	for i, img := range imgs {
		if img == nil {
			continue
		}
		c, err := raster.Convert(img, conv.Format, conv.Channels)
		if err != nil {
			return err
		}
		imgs[i] = c
	}
	return nil
}
