package ntiff

import (
	"context"
	"errors"
	"fmt"

	"github.com/airbusgeo/ntiff/config"
	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"github.com/airbusgeo/ntiff/style"
	"go.uber.org/zap"
)

// MergeOptions configures MergeN.
type MergeOptions struct {
	// Config is the path of the image list, Root the directory replacing the
	// leading '?' of its paths.
	Config string
	Root   string
	Output Output
	Kernel raster.Kernel
	// Nodata holds one value per channel. It may be nil when Style defines
	// the nodata values.
	Nodata  []float32
	Convert *Conversion
	Style   *style.Style
	// Background keeps the first input, unstyled, under the others.
	Background bool
}

func (o *MergeOptions) check() error {
	if o.Style != nil && o.Convert != nil {
		return errs.Configf("a style cannot be combined with a conversion")
	}
	return nil
}

// MergeN writes the image described by the first record of the image list
// from the other records, possibly in other resolutions and systems.
// Records listed later are drawn over earlier ones.
func MergeN(ctx context.Context, opts MergeOptions) error {
	if err := opts.check(); err != nil {
		return err
	}
	conf, err := config.Load(opts.Config, config.Merge, opts.Root)
	if err != nil {
		return err
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)

	inputs := make([]raster.Image, 0, len(conf.Inputs))
	defer func() { closeAll(inputs) }()
	for _, rec := range conf.Inputs {
		c, err := crs.Get(rec.CRS)
		if err != nil {
			return errs.Inputf("%s: %w", rec.Path, err)
		}
		if !c.NativeArea().Contains(rec.BBox, 0) {
			log.Logger(ctx).Warn("image box outside of the validity area of its system",
				zap.String("image", rec.Path), zap.Stringer("bbox", rec.BBox), zap.String("crs", c.Code()))
		}
		img, err := openRecord(ctx, pool, rec, c)
		if err != nil {
			return err
		}
		inputs = append(inputs, img)
	}
	if err := convertAll(inputs, opts.Convert); err != nil {
		return err
	}

	oc, err := crs.Get(conf.Output.CRS)
	if err != nil {
		return errs.Configf("output: %w", err)
	}
	out, err := outputInfo(conf.Output, oc)
	if err != nil {
		return err
	}
	sources := inputs
	var bg raster.Image
	if opts.Background {
		bg, sources = inputs[0], inputs[1:]
		if len(sources) == 0 {
			return errs.Configf("a background needs other inputs")
		}
	}
	out.Format, out.Channels, err = layout(sources)
	if err != nil {
		return err
	}
	packNodata, outNodata := opts.Nodata, opts.Nodata
	var filters []raster.Filter
	if st := opts.Style; st != nil {
		if !st.Handles(out.Channels) {
			return errs.Shapef("style %q cannot be applied to %d channels", st.Identifier, out.Channels)
		}
		packNodata, outNodata = st.InputNodata(opts.Nodata), st.OutputNodata(opts.Nodata)
		out.Format, out.Channels = st.Format(out.Format), st.Channels(out.Channels)
		filters = append(filters, st.Apply)
	}
	if len(packNodata) != sources[0].Info().Channels {
		return errs.Configf("nodata needs %d values, got %d", sources[0].Info().Channels, len(packNodata))
	}
	if len(outNodata) != out.Channels {
		return errs.Configf("output nodata needs %d values, got %d", out.Channels, len(outNodata))
	}
	if bg != nil {
		if bi := bg.Info(); bi.Format != out.Format || bi.Channels != out.Channels {
			return errs.Shapef("background is %dx%s, output is %dx%s", bi.Channels, bi.Format, out.Channels, out.Format)
		}
	}
	out.Photometric = raster.PhotometricFor(out.Channels)

	// top first
	packs := raster.Packs(reversed(sources))
	if bg != nil {
		packs = append(packs, []raster.Image{bg})
	}
	// owned by the packs from now on
	inputs = nil

	var images []raster.Image
	defer func() { closeAll(images) }()
	for i, pack := range packs {
		nd, fs := packNodata, filters
		if bg != nil && i == len(packs)-1 {
			nd, fs = outNodata, nil
		}
		img, err := placePack(ctx, pack, out, opts.Kernel, nd, fs...)
		if errors.Is(err, raster.ErrEmpty) {
			log.Logger(ctx).Warn("image dropped: no pixel within the output", zap.Int("pack", i))
			continue
		}
		if err != nil {
			for _, p := range packs[i+1:] {
				closeAll(p)
			}
			return fmt.Errorf("pack %d: %w", i, err)
		}
		images = append(images, img)
	}
	result, err := raster.NewCompound(out, outNodata, images...)
	if err != nil {
		return err
	}
	images = []raster.Image{result}
	return writeResult(ctx, pool, result, conf.Output.Path, conf.Output.Mask, opts.Output,
		geotiff.NoData(outNodata))
}

func reversed(imgs []raster.Image) []raster.Image {
	r := make([]raster.Image, len(imgs))
	for i, img := range imgs {
		r[len(imgs)-1-i] = img
	}
	return r
}

// openRecord opens the image of rec, georeferenced by rec in system c.
func openRecord(ctx context.Context, pool *storage.Pool, rec config.Record, c *crs.CRS) (*geotiff.Image, error) {
	img, err := openSource(ctx, pool, rec.Path, rec.Mask)
	if err != nil {
		return nil, err
	}
	if err := img.SetGeometry(rec.BBox, rec.ResX, rec.ResY, c); err != nil {
		img.Close()
		return nil, fmt.Errorf("%s: %w", rec.Path, err)
	}
	return img, nil
}

// outputInfo returns the grid of the output record, without layout.
func outputInfo(rec config.Record, c *crs.CRS) (raster.Info, error) {
	info := raster.Info{BBox: rec.BBox, ResX: rec.ResX, ResY: rec.ResY, CRS: c}
	info.Width, info.Height = raster.Dimensions(rec.BBox, rec.ResX, rec.ResY)
	if info.Width <= 0 || info.Height <= 0 {
		return info, errs.Configf("output %s has no pixel at (%g,%g)", rec.BBox, rec.ResX, rec.ResY)
	}
	return info, nil
}

// placePack brings a pack of compatible images onto the grid of out: as is
// when compatible, resampled in the same system, reprojected otherwise. The
// filters are applied on the pack before interpolation.
func placePack(ctx context.Context, pack []raster.Image, out raster.Info, kernel raster.Kernel, nodata []float32, filters ...raster.Filter) (raster.Image, error) {
	c, err := raster.NewPackCompound(pack, nodata)
	if err != nil {
		closeAll(pack)
		return nil, err
	}
	var img raster.Image
	ci := c.Info()
	switch {
	case ci.Compatible(out):
		img = c
		for _, f := range filters {
			if img, err = f(img); err != nil {
				break
			}
		}
	case ci.CRS.Equal(out.CRS):
		img, err = raster.Resample(c, out, kernel, filters...)
	default:
		img, err = raster.Reproject(ctx, c, out, kernel, filters...)
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	log.Logger(ctx).Debug("placed pack", zap.Int("images", len(pack)), zap.Stringer("info", img.Info()))
	return img, nil
}
