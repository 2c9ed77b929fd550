package main

import (
	"fmt"

	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"g":  {Name: "gamma", Values: 1},
	"n":  {Name: "nodata", Values: 1},
	"c":  {Name: "compression", Values: 1},
	"a":  {Name: "format", Values: 1},
	"s":  {Name: "channels", Values: 1},
	"ib": {Name: "image-background", Values: 1},
	"mb": {Name: "mask-background", Values: 1},
	"i1": {Name: "image1", Values: 1},
	"i2": {Name: "image2", Values: 1},
	"i3": {Name: "image3", Values: 1},
	"i4": {Name: "image4", Values: 1},
	"m1": {Name: "mask1", Values: 1},
	"m2": {Name: "mask2", Values: 1},
	"m3": {Name: "mask3", Values: 1},
	"m4": {Name: "mask4", Values: 1},
	"io": {Name: "image-out", Values: 1},
	"mo": {Name: "mask-out", Values: 1},
	"d":  {Name: "debug"},
}

func main() {
	cli.Main(newMerge4Command(), flags)
}

func newMerge4Command() *cobra.Command {
	var opts ntiff.Merge4Options
	var nodata, compression, format string
	var channels int
	var debug bool

	cmd := &cobra.Command{
		Use:   "merge4tiff -n nodata -io output [-g gamma] [-c comp] [-a format -s channels] [-ib bg [-mb bgmask]] [-i1..-i4 image [-m1..-m4 mask]] [-mo mask]",
		Short: "build a tile at half resolution from four tiles laid out 1 2 / 3 4",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if opts.Nodata, err = cli.ParseValues(nodata, 0); err != nil {
				return err
			}
			if opts.Encoding, err = cli.Encoding(compression, ""); err != nil {
				return err
			}
			if channels != 0 {
				if err := cli.CheckChannels(channels); err != nil {
					return err
				}
			}
			if opts.Convert, err = ntiff.ParseConversion(format, channels); err != nil {
				return err
			}
			for i, t := range opts.Inputs {
				if t.Image == "" && t.Mask != "" {
					return errs.Configf("mask %d given without image", i+1)
				}
			}
			if opts.Background.Image == "" && opts.Background.Mask != "" {
				return errs.Configf("background mask given without background image")
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.Float64VarP(&opts.Gamma, "gamma", "g", 1, "gamma applied to uint8 means, 1 keeps the plain mean")
	fl.StringVarP(&nodata, "nodata", "n", "", "comma separated nodata values, one per channel")
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&format, "format", "a", "", "output sample format (uint8|float32), with -s")
	fl.IntVarP(&channels, "channels", "s", 0, "output channel count, with -a")
	fl.StringVar(&opts.Background.Image, "image-background", "", "background image")
	fl.StringVar(&opts.Background.Mask, "mask-background", "", "background mask")
	for i := range opts.Inputs {
		fl.StringVar(&opts.Inputs[i].Image, fmt.Sprintf("image%d", i+1), "", fmt.Sprintf("image of quadrant %d", i+1))
		fl.StringVar(&opts.Inputs[i].Mask, fmt.Sprintf("mask%d", i+1), "", fmt.Sprintf("mask of quadrant %d", i+1))
	}
	fl.StringVar(&opts.Output.Image, "image-out", "", "output image")
	fl.StringVar(&opts.Output.Mask, "mask-out", "", "output mask")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("nodata")
	cmd.MarkFlagRequired("image-out")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return ntiff.Merge4(cmd.Context(), opts)
	}
	return cmd
}
