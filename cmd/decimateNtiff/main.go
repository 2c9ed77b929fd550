package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"f": {Name: "config", Values: 1},
	"r": {Name: "root", Values: 1},
	"c": {Name: "compression", Values: 1},
	"n": {Name: "nodata", Values: 1},
	"t": {Name: "tile", Values: 2},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newDecimateCommand(), flags)
}

func newDecimateCommand() *cobra.Command {
	var opts ntiff.DecimateOptions
	var compression, nodata, tile string
	var debug bool

	cmd := &cobra.Command{
		Use:   "decimateNtiff -f config -n nodata [-r root] [-c comp] [-t w h]",
		Short: "build an image taking one pixel out of n from images of the same system",
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
			opts.Nodata, err = cli.ParseValues(nodata, 0)
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&opts.Config, "config", "f", "", "image list: output first, then the inputs")
	fl.StringVarP(&opts.Root, "root", "r", "", "directory replacing the leading '?' of image paths")
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&nodata, "nodata", "n", "", "comma separated nodata values, one per channel")
	fl.StringVarP(&tile, "tile", "t", "", "output tile size: width,height")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("nodata")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return ntiff.DecimateN(cmd.Context(), opts)
	}
	return cmd
}
