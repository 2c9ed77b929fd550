package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"f": {Name: "config", Values: 1},
	"m": {Name: "method", Values: 1},
	"s": {Name: "channels", Values: 1},
	"c": {Name: "compression", Values: 1},
	"p": {Name: "photometric", Values: 1},
	"t": {Name: "transparent", Values: 1},
	"b": {Name: "background", Values: 1},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newOverlayCommand(), flags)
}

func newOverlayCommand() *cobra.Command {
	var opts ntiff.OverlayOptions
	var method, compression, photometric, transparent, background string
	var debug bool

	cmd := &cobra.Command{
		Use:   "overlayNtiff -f config -m method -s channels -b background [-c comp] [-p gray|rgb] [-t r,g,b]",
		Short: "blend images of the same size",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if err = cli.CheckChannels(opts.Channels); err != nil {
				return err
			}
			if opts.Method, err = raster.ParseMergeMethod(method); err != nil {
				return err
			}
			if opts.Output, err = cli.Encoding(compression, ""); err != nil {
				return err
			}
			opts.Photometric = raster.PhotometricFor(opts.Channels)
			if photometric != "" {
				if opts.Photometric, err = raster.ParsePhotometric(photometric); err != nil {
					return err
				}
			}
			if transparent != "" {
				if opts.Transparent, err = cli.ParseValues(transparent, 3); err != nil {
					return err
				}
			}
			opts.Background, err = cli.ParseValues(background, opts.Channels)
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&opts.Config, "config", "f", "", "image list: output first, then the inputs, top first")
	fl.StringVarP(&method, "method", "m", "TOP", "merge method (TOP|ALPHATOP|MULTIPLY)")
	fl.IntVarP(&opts.Channels, "channels", "s", 0, "output channel count")
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&photometric, "photometric", "p", "", "output photometric (gray|rgb)")
	fl.StringVarP(&transparent, "transparent", "t", "", "r,g,b colour made transparent, ALPHATOP only")
	fl.StringVarP(&background, "background", "b", "", "comma separated background values, one per output channel")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("channels")
	cmd.MarkFlagRequired("background")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return ntiff.OverlayN(cmd.Context(), opts)
	}
	return cmd
}
