// Package cli holds the plumbing shared by the tools: argument
// normalisation, value parsers and process exit.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/airbusgeo/ntiff"
	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/crs/gdalcrs"
	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flag describes a historical single dash flag: the long cobra flag it maps
// to and the number of values following it.
type Flag struct {
	Name   string
	Values int
}

// Normalize rewrites the single dash flags listed in flags, such as
// "-io out.tif" or "-t 256 256", into "--image-out=out.tif" and
// "--tile=256,256". Other arguments are kept.
func Normalize(args []string, flags map[string]Flag) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) < 2 || a[0] != '-' || a[1] == '-' {
			out = append(out, a)
			continue
		}
		f, ok := flags[a[1:]]
		if !ok {
			out = append(out, a)
			continue
		}
		if f.Values == 0 {
			out = append(out, "--"+f.Name)
			continue
		}
		end := min(i+1+f.Values, len(args))
		out = append(out, "--"+f.Name+"="+strings.Join(args[i+1:end], ","))
		i = end - 1
	}
	return out
}

// ParseValues parses n comma separated numbers. n <= 0 accepts any count.
func ParseValues(s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if n > 0 && len(parts) != n {
		return nil, errs.Configf("expected %d comma separated values, got %q", n, s)
	}
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errs.Configf("invalid value %q in %q", p, s)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// ParseInts parses n comma separated integers.
func ParseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, errs.Configf("expected %d comma separated integers, got %q", n, s)
	}
	v := make([]int, n)
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errs.Configf("invalid integer %q in %q", p, s)
		}
		v[i] = d
	}
	return v, nil
}

// CheckChannels verifies a channel count given on the command line.
func CheckChannels(n int) error {
	if n < 1 || n > 4 {
		return errs.Configf("channels must be within [1,4], got %d", n)
	}
	return nil
}

// Encoding parses the compression and "width,height" tile size flags. An
// empty tile keeps the writer default.
func Encoding(compression, tile string) (ntiff.Output, error) {
	var out ntiff.Output
	c, err := geotiff.ParseCompression(compression)
	if err != nil {
		return out, errs.Configf("%w", err)
	}
	out.Compression = c
	if tile == "" {
		return out, nil
	}
	t, err := ParseInts(tile, 2)
	if err != nil {
		return out, err
	}
	if t[0] <= 0 || t[1] <= 0 || t[0]%16 != 0 || t[1]%16 != 0 {
		return out, errs.Configf("tile size must be positive multiples of 16, got %dx%d", t[0], t[1])
	}
	out.TileWidth, out.TileHeight = t[0], t[1]
	return out, nil
}

func debugRequested(args []string) bool {
	for _, a := range args {
		if a == "-d" || a == "--debug" {
			return true
		}
	}
	return false
}

// Main executes cmd on the process arguments and exits: 0 on success, 1 on
// error once the process pools are released.
func Main(cmd *cobra.Command, flags map[string]Flag) {
	args := Normalize(os.Args[1:], flags)
	logger := log.Console(debugRequested(args))
	logger.Debug("invocation", zap.String("command", shellescape.QuoteCommand(os.Args)))
	gdalcrs.Install()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd.SetArgs(args)
	cmd.SilenceErrors = true
	err := cmd.ExecuteContext(log.WithLogger(ctx, logger))
	stop()
	crs.Cleanup()
	if err != nil {
		logger.Error(err.Error(), zap.Stringer("kind", errs.KindOf(err)))
		log.Sync()
		fmt.Fprintln(os.Stderr, "see", cmd.Name(), "--help")
		os.Exit(1)
	}
	log.Sync()
}
