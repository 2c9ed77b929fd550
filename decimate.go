package ntiff

import (
	"context"
	"errors"

	"github.com/airbusgeo/ntiff/config"
	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
)

type DecimateOptions struct {
	Config string
	Root   string
	Output Output
	Nodata []float32
}

// DecimateN writes the image described by the first record of the image
// list by taking one pixel out of n from the other records, all in the same
// system. The inputs form one pack, or two when the first input is a
// background on the output grid.
func DecimateN(ctx context.Context, opts DecimateOptions) error {
	conf, err := config.Load(opts.Config, config.Decimate, opts.Root)
	if err != nil {
		return err
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)

	inputs := make([]raster.Image, 0, len(conf.Inputs))
	defer func() { closeAll(inputs) }()
	for _, rec := range conf.Inputs {
		img, err := openRecord(ctx, pool, rec, nil)
		if err != nil {
			return err
		}
		inputs = append(inputs, img)
	}
	out, err := outputInfo(conf.Output, nil)
	if err != nil {
		return err
	}
	if out.Format, out.Channels, err = layout(inputs); err != nil {
		return err
	}
	out.Photometric = raster.PhotometricFor(out.Channels)
	if len(opts.Nodata) != out.Channels {
		return errs.Configf("nodata needs %d values, got %d", out.Channels, len(opts.Nodata))
	}

	packs := raster.Packs(inputs)
	var bg raster.Image
	switch len(packs) {
	case 1:
	case 2:
		if len(packs[0]) != 1 {
			return errs.Shapef("a background must be alone in its pack, got %d images", len(packs[0]))
		}
		bg = packs[0][0]
		if !bg.Info().Compatible(out) {
			return errs.Shapef("background %s is not on the output grid %s", bg.Info(), out)
		}
	default:
		return errs.Shapef("inputs must form 1 or 2 (background) packs, got %d", len(packs))
	}
	src, err := raster.NewPackCompound(packs[len(packs)-1], opts.Nodata)
	if err != nil {
		return err
	}
	inputs = nil
	if bg != nil {
		inputs = []raster.Image{bg}
	}
	var images []raster.Image
	defer func() { closeAll(images) }()
	dec, err := raster.Decimate(src, out, opts.Nodata)
	switch {
	case errors.Is(err, raster.ErrEmpty):
		log.Logger(ctx).Warn("decimated image dropped: no pixel within the output", zap.Stringer("output", out))
		src.Close()
	case err != nil:
		src.Close()
		return err
	default:
		images = append(images, dec)
	}
	// the background lies under the decimated image
	images = append(images, inputs...)
	inputs = nil
	result, err := raster.NewCompound(out, opts.Nodata, images...)
	if err != nil {
		return err
	}
	images = []raster.Image{result}
	return writeResult(ctx, pool, result, conf.Output.Path, conf.Output.Mask, opts.Output,
		geotiff.NoData(opts.Nodata))
}
