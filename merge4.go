package ntiff

import (
	"context"

	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"go.uber.org/zap"
)

// Tile is an image path and its optional mask path.
type Tile struct {
	Image, Mask string
}

type Merge4Options struct {
	// Inputs are the quadrants, top left, top right, bottom left, bottom
	// right. Missing ones have an empty Image.
	Inputs     [4]Tile
	Background Tile
	Output     Tile
	Encoding   Output
	Gamma      float64
	Nodata     []float32
	Convert    *Conversion
}

// Merge4 writes the tile covering the four input tiles at half their
// resolution.
func Merge4(ctx context.Context, opts Merge4Options) error {
	if opts.Gamma <= 0 {
		return errs.Configf("gamma must be positive, got %g", opts.Gamma)
	}
	pool := storage.NewPool()
	defer pool.Close(ctx)

	var quads [4]raster.Image
	var bg raster.Image
	defer func() {
		closeAll(quads[:])
		if bg != nil {
			bg.Close()
		}
	}()
	for i, t := range opts.Inputs {
		if t.Image == "" {
			continue
		}
		img, err := openSource(ctx, pool, t.Image, t.Mask)
		if err != nil {
			return err
		}
		quads[i] = img
	}
	if opts.Background.Image != "" {
		img, err := openSource(ctx, pool, opts.Background.Image, opts.Background.Mask)
		if err != nil {
			return err
		}
		bg = img
	}
	if err := convertAll(quads[:], opts.Convert); err != nil {
		return err
	}
	if bg != nil && opts.Convert != nil {
		c, err := raster.Convert(bg, opts.Convert.Format, opts.Convert.Channels)
		if err != nil {
			return err
		}
		bg = c
	}

	merged, err := raster.Merge4(quads, raster.Merge4Options{
		Gamma:      opts.Gamma,
		Nodata:     opts.Nodata,
		Background: bg,
	})
	if err != nil {
		return err
	}
	quads, bg = [4]raster.Image{}, nil
	defer merged.Close()
	if opts.Background.Image != "" && !merged.BackgroundUsed() {
		log.Logger(ctx).Info("background ignored: the four images hold data everywhere",
			zap.String("background", opts.Background.Image))
	}
	return writeResult(ctx, pool, merged, opts.Output.Image, opts.Output.Mask, opts.Encoding,
		geotiff.NoData(opts.Nodata))
}
