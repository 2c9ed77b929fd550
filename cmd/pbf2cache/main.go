package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"r":      {Name: "root", Values: 1},
	"t":      {Name: "tiles", Values: 2},
	"ultile": {Name: "ultile", Values: 2},
	"d":      {Name: "debug"},
}

func main() {
	cli.Main(newPbf2CacheCommand(), flags)
}

func newPbf2CacheCommand() *cobra.Command {
	var root, tiles, ultile string
	var count, origin []int
	var debug bool

	cmd := &cobra.Command{
		Use:   "pbf2cache -r dir -t nx ny -ultile col row output-uri",
		Short: "pack the vector tiles <dir>/<col>/<row>.pbf of a block into a slab",
		Args:  cobra.ExactArgs(1),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if count, err = cli.ParseInts(tiles, 2); err != nil {
				return err
			}
			origin, err = cli.ParseInts(ultile, 2)
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&root, "root", "r", "", "directory of the vector tiles")
	fl.StringVarP(&tiles, "tiles", "t", "", "tile count of the slab: columns,rows")
	fl.StringVar(&ultile, "ultile", "", "column,row of the upper left tile")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")
	cmd.MarkFlagRequired("root")
	cmd.MarkFlagRequired("tiles")
	cmd.MarkFlagRequired("ultile")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ntiff.PbfToCache(cmd.Context(), root, count[0], count[1], origin[0], origin[1], args[0])
	}
	return cmd
}
