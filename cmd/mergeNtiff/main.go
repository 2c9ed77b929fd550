package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/style"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"f": {Name: "config", Values: 1},
	"r": {Name: "root", Values: 1},
	"c": {Name: "compression", Values: 1},
	"i": {Name: "interpolation", Values: 1},
	"n": {Name: "nodata", Values: 1},
	"a": {Name: "format", Values: 1},
	"s": {Name: "channels", Values: 1},
	"p": {Name: "style", Values: 1},
	"g": {Name: "background"},
	"t": {Name: "tile", Values: 2},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newMergeCommand(), flags)
}

func newMergeCommand() *cobra.Command {
	var opts ntiff.MergeOptions
	var compression, interpolation, nodata, format, stylePath, tile string
	var channels int
	var debug bool

	cmd := &cobra.Command{
		Use:   "mergeNtiff -f config [-r root] [-c comp] [-i kernel] [-n nodata] [-a format -s channels] [-p style] [-g] [-t w h]",
		Short: "merge georeferenced images, possibly in other resolutions and systems, into one",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if opts.Output, err = cli.Encoding(compression, tile); err != nil {
				return err
			}
			if opts.Kernel, err = raster.ParseKernel(interpolation); err != nil {
				return err
			}
			if nodata != "" {
				if opts.Nodata, err = cli.ParseValues(nodata, 0); err != nil {
					return err
				}
			}
			if channels != 0 {
				if err := cli.CheckChannels(channels); err != nil {
					return err
				}
			}
			if opts.Convert, err = ntiff.ParseConversion(format, channels); err != nil {
				return err
			}
			if stylePath != "" {
				if opts.Style, err = style.Load(stylePath); err != nil {
					return err
				}
			}
			if opts.Style == nil && opts.Nodata == nil {
				return errs.Configf("nodata is required without style")
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&opts.Config, "config", "f", "", "image list: output first, then the inputs")
	fl.StringVarP(&opts.Root, "root", "r", "", "directory replacing the leading '?' of image paths")
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&interpolation, "interpolation", "i", "bicubic", "interpolation kernel (nn|linear|bicubic|lanczos)")
	fl.StringVarP(&nodata, "nodata", "n", "", "comma separated nodata values, one per channel")
	fl.StringVarP(&format, "format", "a", "", "output sample format (uint8|float32), with -s")
	fl.IntVarP(&channels, "channels", "s", 0, "output channel count, with -a")
	fl.StringVarP(&stylePath, "style", "p", "", "style file (json or yaml)")
	fl.BoolVarP(&opts.Background, "background", "g", false, "keep the first input as an unstyled background")
	fl.StringVarP(&tile, "tile", "t", "", "output tile size: width,height")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("config")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return ntiff.MergeN(cmd.Context(), opts)
	}
	return cmd
}
