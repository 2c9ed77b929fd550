// Package config reads the image lists given to the composition tools.
//
// mergeNtiff lines are
//
//	IMG path crs xmin ymax xmax ymin resx resy
//	MSK path
//
// decimateNtiff lines are the same without the crs, and overlayNtiff lines
// are "image [mask]". The first record is the output. A MSK line applies to
// the IMG line before it, the one following the output being the output mask.
// Paths starting with '?' are rebased onto the images root.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	shellwords "github.com/mattn/go-shellwords"
)

type Kind int

const (
	Merge Kind = iota
	Decimate
	Overlay
)

func (k Kind) String() string {
	switch k {
	case Decimate:
		return "decimateNtiff"
	case Overlay:
		return "overlayNtiff"
	}
	return "mergeNtiff"
}

// fields returns the number of tokens of an IMG line, keyword included.
func (k Kind) fields() int {
	if k == Decimate {
		return 8
	}
	return 9
}

// Record is an image and its optional mask. CRS, BBox and resolutions are
// left empty for overlayNtiff, and CRS for decimateNtiff.
type Record struct {
	Path       string
	Mask       string
	CRS        string
	BBox       crs.BBox
	ResX, ResY float64
}

type Images struct {
	Output Record
	Inputs []Record
}

// Load reads the configuration file at path.
func Load(path string, kind Kind, root string) (*Images, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Configf("open configuration: %w", err)
	}
	defer f.Close()
	imgs, err := Parse(f, kind, root)
	if err != nil {
		return nil, errs.Configf("%s: %w", path, err)
	}
	return imgs, nil
}

// Parse reads a configuration of the given kind. Blank lines are skipped.
func Parse(r io.Reader, kind Kind, root string) (*Images, error) {
	var recs []Record
	// index in recs of the record a MSK line may apply to, -1 when none
	open := -1
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		toks, err := shellwords.Parse(line)
		if err != nil {
			return nil, errs.Configf("line %d: %w", n, err)
		}
		if kind == Overlay {
			rec, err := overlayRecord(toks, root)
			if err != nil {
				return nil, errs.Configf("line %d: %w", n, err)
			}
			recs = append(recs, rec)
			continue
		}
		switch {
		case len(toks) == 2 && toks[0] == "MSK":
			if open < 0 {
				return nil, errs.Configf("line %d: a MSK line must follow an IMG line", n)
			}
			recs[open].Mask = rebase(toks[1], root)
			open = -1
		case len(toks) == kind.fields() && toks[0] == "IMG":
			rec, err := imageRecord(toks, kind, root)
			if err != nil {
				return nil, errs.Configf("line %d: %w", n, err)
			}
			recs = append(recs, rec)
			open = len(recs) - 1
		default:
			return nil, errs.Configf("line %d: expected %d values for IMG or 2 for MSK, got %q",
				n, kind.fields(), line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Configf("read configuration: %w", err)
	}
	if len(recs) < 2 {
		return nil, errs.Configf("no input image")
	}
	return &Images{Output: recs[0], Inputs: recs[1:]}, nil
}

func rebase(path, root string) string {
	if strings.HasPrefix(path, "?") {
		return root + path[1:]
	}
	return path
}

func overlayRecord(toks []string, root string) (Record, error) {
	switch len(toks) {
	case 1:
		return Record{Path: rebase(toks[0], root)}, nil
	case 2:
		return Record{Path: rebase(toks[0], root), Mask: rebase(toks[1], root)}, nil
	}
	return Record{}, errs.Configf("expected an image and an optional mask, got %d values", len(toks))
}

func imageRecord(toks []string, kind Kind, root string) (Record, error) {
	rec := Record{Path: rebase(toks[1], root)}
	nums := toks[2:]
	if kind == Merge {
		rec.CRS = toks[2]
		nums = toks[3:]
	}
	v := make([]float64, len(nums))
	for i, s := range nums {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return rec, errs.Configf("invalid number %q", s)
		}
		v[i] = f
	}
	// xmin ymax xmax ymin resx resy
	rec.BBox = crs.NewBBox(v[0], v[3], v[2], v[1])
	rec.ResX, rec.ResY = v[4], v[5]
	if !(rec.ResX > 0) || !(rec.ResY > 0) {
		return rec, errs.Configf("%s: resolutions must be positive, got (%g,%g)", rec.Path, rec.ResX, rec.ResY)
	}
	if rec.BBox.Empty() {
		return rec, errs.Configf("%s: empty bbox %s", rec.Path, rec.BBox)
	}
	return rec, nil
}
