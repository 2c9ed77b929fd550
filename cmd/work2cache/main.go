package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"c": {Name: "compression", Values: 1},
	"t": {Name: "tile", Values: 2},
	"a": {Name: "format", Values: 1},
	"s": {Name: "channels", Values: 1},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newWork2CacheCommand(), flags)
}

func newWork2CacheCommand() *cobra.Command {
	var compression, tile, format string
	var channels int
	var out ntiff.Output
	var conv *ntiff.Conversion
	var debug bool

	cmd := &cobra.Command{
		Use:   "work2cache input -c comp -t w h [-a format -s channels] output-uri",
		Short: "write a work image as a tiled slab",
		Args:  cobra.ExactArgs(2),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if out, err = cli.Encoding(compression, tile); err != nil {
				return err
			}
			if channels != 0 {
				if err := cli.CheckChannels(channels); err != nil {
					return err
				}
			}
			conv, err = ntiff.ParseConversion(format, channels)
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&compression, "compression", "c", "raw", "slab compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&tile, "tile", "t", "", "slab tile size: width,height")
	fl.StringVarP(&format, "format", "a", "", "slab sample format (uint8|float32), with -s")
	fl.IntVarP(&channels, "channels", "s", 0, "slab channel count, with -a")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("tile")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ntiff.WorkToCache(cmd.Context(), args[0], conv, out, args[1])
	}
	return cmd
}
