package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"s": {Name: "source", Values: 1},
	"g": {Name: "grid", Values: 2},
	"c": {Name: "compression", Values: 1},
	"t": {Name: "tile", Values: 2},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newComposeCommand(), flags)
}

func newComposeCommand() *cobra.Command {
	var dir, grid, compression, tile string
	var nw, nh int
	var out ntiff.Output
	var debug bool

	cmd := &cobra.Command{
		Use:   "composeNtiff -s dir -g nw nh [-c comp] [-t w h] output",
		Short: "lay the images of a directory on a grid, in name order",
		Args:  cobra.ExactArgs(1),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			g, err := cli.ParseInts(grid, 2)
			if err != nil {
				return err
			}
			nw, nh = g[0], g[1]
			out, err = cli.Encoding(compression, tile)
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&dir, "source", "s", "", "directory holding the images")
	fl.StringVarP(&grid, "grid", "g", "", "grid geometry: columns,rows")
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.StringVarP(&tile, "tile", "t", "", "output tile size: width,height")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("grid")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ntiff.ComposeN(cmd.Context(), dir, nw, nh, out, args[0])
	}
	return cmd
}
