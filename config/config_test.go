package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMerge(t *testing.T) {
	conf := `IMG ?out.tif EPSG:2154 0 100 100 0 10 10
MSK ?out_msk.tif

IMG /data/a.tif EPSG:4326 -1 1 1 -1 0.5 0.5
MSK "/data/with space/a_msk.tif"
IMG ?b.tif EPSG:2154 0 10 10 0 1 1
`
	imgs, err := Parse(strings.NewReader(conf), Merge, "/root/")
	require.NoError(t, err)
	assert.Equal(t, Record{
		Path: "/root/out.tif", Mask: "/root/out_msk.tif", CRS: "EPSG:2154",
		BBox: crs.NewBBox(0, 0, 100, 100), ResX: 10, ResY: 10,
	}, imgs.Output)
	require.Len(t, imgs.Inputs, 2)
	assert.Equal(t, "/data/a.tif", imgs.Inputs[0].Path)
	assert.Equal(t, "/data/with space/a_msk.tif", imgs.Inputs[0].Mask)
	assert.Equal(t, "EPSG:4326", imgs.Inputs[0].CRS)
	assert.Equal(t, crs.NewBBox(-1, -1, 1, 1), imgs.Inputs[0].BBox)
	assert.Equal(t, "/root/b.tif", imgs.Inputs[1].Path)
	assert.Empty(t, imgs.Inputs[1].Mask)
}

func TestParseDecimate(t *testing.T) {
	conf := "IMG out.tif 0 4 4 0 4 4\nIMG in.tif 0 4 4 0 1 1\nMSK in_msk.tif\n"
	imgs, err := Parse(strings.NewReader(conf), Decimate, "")
	require.NoError(t, err)
	assert.Empty(t, imgs.Output.Mask)
	assert.Empty(t, imgs.Output.CRS)
	assert.Equal(t, 4.0, imgs.Output.ResX)
	require.Len(t, imgs.Inputs, 1)
	assert.Equal(t, "in_msk.tif", imgs.Inputs[0].Mask)

	// merge lines carry one more value
	_, err = Parse(strings.NewReader("IMG out.tif EPSG:2154 0 4 4 0 4 4\nIMG in.tif 0 4 4 0 1 1\n"), Decimate, "")
	assert.True(t, errs.Is(err, errs.Config))
}

func TestParseOverlay(t *testing.T) {
	imgs, err := Parse(strings.NewReader("out.tif out_msk.tif\n?top.tif\nbottom.tif bottom_msk.tif\n"), Overlay, "/r/")
	require.NoError(t, err)
	assert.Equal(t, Record{Path: "out.tif", Mask: "out_msk.tif"}, imgs.Output)
	assert.Equal(t, []Record{{Path: "/r/top.tif"}, {Path: "bottom.tif", Mask: "bottom_msk.tif"}}, imgs.Inputs)

	_, err = Parse(strings.NewReader("out.tif a b\nin.tif\n"), Overlay, "")
	assert.True(t, errs.Is(err, errs.Config))
}

func TestParseErrors(t *testing.T) {
	testfunc := func(conf string) {
		t.Helper()
		_, err := Parse(strings.NewReader(conf), Merge, "")
		assert.True(t, errs.Is(err, errs.Config), "%q: %v", conf, err)
	}
	img := "IMG a.tif EPSG:2154 0 10 10 0 1 1\n"
	testfunc("MSK m.tif\n" + img + img)
	testfunc(img + "MSK m.tif\nMSK n.tif\n" + img)
	testfunc(img)
	testfunc(img + "MSK m.tif\n")
	testfunc(img + "IMG a.tif EPSG:2154 0 10 10 0 1\n")
	testfunc(img + "IMG a.tif EPSG:2154 0 10 10 0 x 1\n")
	testfunc(img + "IMG a.tif EPSG:2154 0 10 10 0 0 1\n")
	testfunc(img + "IMG a.tif EPSG:2154 10 10 0 0 1 1\n")
	testfunc(img + "TIF a.tif EPSG:2154 0 10 10 0 1 1\n")
	testfunc(img + "IMG 'a.tif EPSG:2154 0 10 10 0 1 1\n")
	testfunc("")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.txt")
	require.NoError(t, os.WriteFile(path, []byte("IMG o.tif 0 2 2 0 2 2\nIMG i.tif 0 2 2 0 1 1\n"), 0o644))
	imgs, err := Load(path, Decimate, "")
	require.NoError(t, err)
	assert.Equal(t, "i.tif", imgs.Inputs[0].Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), Merge, "")
	assert.True(t, errs.Is(err, errs.Config))
	assert.Equal(t, "decimateNtiff", Decimate.String())
}
