package ntiff

import (
	"context"

	"github.com/airbusgeo/ntiff/config"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
)

type OverlayOptions struct {
	Config      string
	Output      Output
	Method      raster.MergeMethod
	Channels    int
	Photometric raster.Photometric
	// Background holds one value per output channel.
	Background []float32
	// Transparent is an RGB colour made fully transparent, ALPHATOP only.
	Transparent []float32
}

// OverlayN blends same sized images listed top first after the output. The
// output is not georeferenced.
func OverlayN(ctx context.Context, opts OverlayOptions) error {
	if opts.Transparent != nil && opts.Method != raster.AlphaTop {
		return errs.Configf("a transparent colour needs the ALPHATOP method, got %s", opts.Method)
	}
	conf, err := config.Load(opts.Config, config.Overlay, "")
	if err != nil {
		return err
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)

	inputs := make([]raster.Image, 0, len(conf.Inputs))
	defer func() { closeAll(inputs) }()
	for _, rec := range conf.Inputs {
		img, err := openSource(ctx, pool, rec.Path, rec.Mask)
		if err != nil {
			return err
		}
		inputs = append(inputs, img)
	}
	merged, err := raster.Merge(inputs, raster.MergeOptions{
		Method:      opts.Method,
		Channels:    opts.Channels,
		Photometric: opts.Photometric,
		Background:  opts.Background,
		Transparent: opts.Transparent,
	})
	if err != nil {
		return err
	}
	return writeResult(ctx, pool, merged, conf.Output.Path, conf.Output.Mask, opts.Output)
}
