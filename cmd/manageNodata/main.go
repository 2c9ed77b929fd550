package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"target":      {Name: "target", Values: 1},
	"tolerance":   {Name: "tolerance", Values: 1},
	"touch-edges": {Name: "touch-edges"},
	"data":        {Name: "data", Values: 1},
	"nodata":      {Name: "nodata", Values: 1},
	"format":      {Name: "format", Values: 1},
	"channels":    {Name: "channels", Values: 1},
	"mask-out":    {Name: "mask-out", Values: 1},
	"d":           {Name: "debug"},
}

func main() {
	cli.Main(newManageCommand(), flags)
}

func newManageCommand() *cobra.Command {
	var opts ntiff.ManageOptions
	var target, data, nodata, format string
	var tolerance int
	var debug bool

	cmd := &cobra.Command{
		Use:   "manageNodata -target v,... -format uint8|float32 -channels n [-tolerance t] [-touch-edges] [-data v,...] [-nodata v,...] [-mask-out mask] input [output]",
		Short: "identify nodata pixels from a colour, rewrite them and extract a mask",
		Args:  cobra.RangeArgs(1, 2),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if err = cli.CheckChannels(opts.Channels); err != nil {
				return err
			}
			if opts.Format, err = raster.ParseFormat(format); err != nil {
				return err
			}
			m := &opts.Manager
			if m.Target, err = cli.ParseValues(target, opts.Channels); err != nil {
				return err
			}
			if data != "" {
				if m.NewData, err = cli.ParseValues(data, opts.Channels); err != nil {
					return err
				}
			}
			if nodata != "" {
				if m.NewNodata, err = cli.ParseValues(nodata, opts.Channels); err != nil {
					return err
				}
			}
			m.Tolerance = float32(tolerance)
			opts.Input = args[0]
			if len(args) == 2 {
				opts.Output = args[1]
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&target, "target", "", "comma separated samples of the nodata colour")
	fl.IntVar(&tolerance, "tolerance", 0, "per sample distance to the target still matching")
	fl.BoolVar(&opts.Manager.TouchEdges, "touch-edges", false, "only target pixels connected to the border are nodata")
	fl.StringVar(&data, "data", "", "colour given to target pixels holding data")
	fl.StringVar(&nodata, "nodata", "", "colour given to nodata pixels")
	fl.StringVar(&format, "format", "", "sample format of the image (uint8|float32)")
	fl.IntVar(&opts.Channels, "channels", 0, "channel count of the image")
	fl.StringVar(&opts.MaskOutput, "mask-out", "", "mask written from the nodata pixels")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("format")
	cmd.MarkFlagRequired("channels")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return ntiff.ManageNodata(cmd.Context(), opts)
	}
	return cmd
}
