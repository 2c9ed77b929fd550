package main

import (
	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/internal/cli"
	"github.com/spf13/cobra"
)

var flags = map[string]cli.Flag{
	"c": {Name: "compression", Values: 1},
	"d": {Name: "debug"},
}

func main() {
	cli.Main(newCache2WorkCommand(), flags)
}

func newCache2WorkCommand() *cobra.Command {
	var compression string
	var out ntiff.Output
	var debug bool

	cmd := &cobra.Command{
		Use:   "cache2work input-uri [-c comp] output",
		Short: "write a slab as a work image in strips",
		Args:  cobra.ExactArgs(2),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			out, err = cli.Encoding(compression, "")
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&compression, "compression", "c", "raw", "output compression (raw|zip|lzw|pkb|jpg|jpg90|png)")
	fl.BoolVarP(&debug, "debug", "d", false, "debug logging")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ntiff.CacheToWork(cmd.Context(), args[0], out.Compression, args[1])
	}
	return cmd
}
