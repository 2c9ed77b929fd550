package ntiff

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/geotiff"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/nodata"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/airbusgeo/ntiff/storage"
	"github.com/airbusgeo/ntiff/style"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCRS(t *testing.T, code string) *crs.CRS {
	t.Helper()
	c, err := crs.Get(code)
	require.NoError(t, err)
	return c
}

func writeTIFF(t *testing.T, path string, img raster.Image, opts ...geotiff.WriterOption) {
	t.Helper()
	pool := storage.NewPool()
	defer pool.Close(context.Background())
	require.NoError(t, geotiff.Write(context.Background(), pool, path, img, opts...))
}

func readTIFF(t *testing.T, path string) (raster.Info, []float32) {
	t.Helper()
	pool := storage.NewPool()
	defer pool.Close(context.Background())
	img, err := geotiff.Open(context.Background(), pool, path)
	require.NoError(t, err)
	defer img.Close()
	m, err := raster.ReadAll(img)
	require.NoError(t, err)
	return img.Info(), m.Data()
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func repeat(v float32, n int) []float32 {
	r := make([]float32, n)
	for i := range r {
		r[i] = v
	}
	return r
}

func TestMergeN(t *testing.T) {
	dir := t.TempDir()
	l93 := getCRS(t, "EPSG:2154")
	ramp, err := raster.NewMemory(raster.NewInfo(4, 4, 1, raster.Uint8, crs.NewBBox(0, 0, 4, 4), l93), nil)
	require.NoError(t, err)
	for i := range ramp.Data() {
		ramp.Data()[i] = float32(i * 10)
	}
	writeTIFF(t, filepath.Join(dir, "ramp.tif"), ramp)
	writeTIFF(t, filepath.Join(dir, "left.tif"),
		raster.Fill(raster.NewInfo(2, 4, 1, raster.Uint8, crs.NewBBox(0, 0, 2, 4), l93), 2))

	conf := filepath.Join(dir, "merge.txt")
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" EPSG:2154 0 4 4 0 1 1",
		"MSK "+filepath.Join(dir, "out_msk.tif"),
		"",
		"IMG ?ramp.tif EPSG:2154 0 4 4 0 1 1",
	)
	err = MergeN(context.Background(), MergeOptions{
		Config: conf, Root: dir + "/", Kernel: raster.Linear, Nodata: []float32{0},
	})
	require.NoError(t, err)
	info, data := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, crs.NewBBox(0, 0, 4, 4), info.BBox)
	assert.Equal(t, ramp.Data(), data)
	_, mask := readTIFF(t, filepath.Join(dir, "out_msk.tif"))
	assert.Equal(t, repeat(255, 16), mask)

	// later records are drawn over earlier ones
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" EPSG:2154 0 4 4 0 1 1",
		"IMG ?ramp.tif EPSG:2154 0 4 4 0 1 1",
		"IMG ?left.tif EPSG:2154 0 4 2 0 1 1",
	)
	err = MergeN(context.Background(), MergeOptions{
		Config: conf, Root: dir + "/", Kernel: raster.Nearest, Nodata: []float32{0},
	})
	require.NoError(t, err)
	_, data = readTIFF(t, filepath.Join(dir, "out.tif"))
	for y := 0; y < 4; y++ {
		assert.Equal(t, []float32{2, 2, ramp.Data()[y*4+2], ramp.Data()[y*4+3]}, data[y*4:(y+1)*4])
	}

	// the background is kept under the other inputs
	err = MergeN(context.Background(), MergeOptions{
		Config: conf, Root: dir + "/", Kernel: raster.Nearest, Nodata: []float32{0}, Background: true,
	})
	require.NoError(t, err)
	_, data2 := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, data, data2)
}

func TestMergeNOutsideArea(t *testing.T) {
	dir := t.TempDir()
	wgs := getCRS(t, "EPSG:4326")
	writeTIFF(t, filepath.Join(dir, "pacific.tif"),
		raster.Fill(raster.NewInfo(10, 10, 1, raster.Uint8, crs.NewBBox(-170, 0, -160, 10), wgs), 5))
	conf := filepath.Join(dir, "merge.txt")
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" EPSG:2154 600000 6600000 700000 6500000 10000 10000",
		"MSK "+filepath.Join(dir, "out_msk.tif"),
		"IMG "+filepath.Join(dir, "pacific.tif")+" EPSG:4326 -170 10 -160 0 1 1",
	)
	err := MergeN(context.Background(), MergeOptions{Config: conf, Kernel: raster.Linear, Nodata: []float32{7}})
	require.NoError(t, err)
	info, data := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, 10, info.Width)
	assert.Equal(t, repeat(7, 100), data)
	_, mask := readTIFF(t, filepath.Join(dir, "out_msk.tif"))
	assert.Equal(t, repeat(0, 100), mask)
}

func TestMergeNErrors(t *testing.T) {
	dir := t.TempDir()
	l93 := getCRS(t, "EPSG:2154")
	writeTIFF(t, filepath.Join(dir, "gray.tif"),
		raster.Fill(raster.NewInfo(2, 2, 1, raster.Uint8, crs.NewBBox(0, 0, 2, 2), l93), 1))
	writeTIFF(t, filepath.Join(dir, "rgb.tif"),
		raster.Fill(raster.NewInfo(2, 2, 3, raster.Uint8, crs.NewBBox(0, 0, 2, 2), l93), 1, 2, 3))
	conf := filepath.Join(dir, "merge.txt")
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" EPSG:2154 0 2 2 0 1 1",
		"IMG "+filepath.Join(dir, "gray.tif")+" EPSG:2154 0 2 2 0 1 1",
		"IMG "+filepath.Join(dir, "rgb.tif")+" EPSG:2154 0 2 2 0 1 1",
	)
	testfunc := func(opts MergeOptions, kind errs.Kind) {
		t.Helper()
		opts.Config = conf
		err := MergeN(context.Background(), opts)
		assert.True(t, errs.Is(err, kind), "got %v", err)
	}
	testfunc(MergeOptions{Nodata: []float32{0}}, errs.Shape)
	testfunc(MergeOptions{Nodata: []float32{0}, Convert: &Conversion{Format: raster.Uint8, Channels: 3}}, errs.Config)
	testfunc(MergeOptions{Nodata: []float32{0, 0, 0}, Convert: &Conversion{Format: raster.Uint8, Channels: 3},
		Style: &style.Style{}}, errs.Config)

	// a conversion reconciles the inputs
	err := MergeN(context.Background(), MergeOptions{Config: conf, Nodata: []float32{0, 0, 0},
		Convert: &Conversion{Format: raster.Uint8, Channels: 3}})
	require.NoError(t, err)
	info, data := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, 3, info.Channels)
	assert.Equal(t, []float32{1, 2, 3}, data[:3])
}

func TestDecimateN(t *testing.T) {
	dir := t.TempDir()
	src, err := raster.NewMemory(raster.NewInfo(4, 4, 1, raster.Uint8, crs.NewBBox(0, 0, 4, 4), nil), nil)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, float32(10*y+x))
		}
	}
	writeTIFF(t, filepath.Join(dir, "src.tif"), src)
	writeTIFF(t, filepath.Join(dir, "bg.tif"),
		raster.Fill(raster.NewInfo(4, 2, 1, raster.Uint8, crs.NewBBox(0, 0, 8, 4), nil), 9))

	conf := filepath.Join(dir, "decimate.txt")
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" 0 4 8 0 2 2",
		"MSK "+filepath.Join(dir, "out_msk.tif"),
		"IMG ?bg.tif 0 4 8 0 2 2",
		"IMG ?src.tif 0 4 4 0 1 1",
	)
	require.NoError(t, DecimateN(context.Background(), DecimateOptions{
		Config: conf, Root: dir + "/", Nodata: []float32{0},
	}))
	_, data := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, []float32{0, 2, 9, 9, 20, 22, 9, 9}, data)
	_, mask := readTIFF(t, filepath.Join(dir, "out_msk.tif"))
	assert.Equal(t, repeat(255, 8), mask)

	// without background the right half is nodata
	writeFile(t, conf,
		"IMG "+filepath.Join(dir, "out.tif")+" 0 4 8 0 2 2",
		"MSK "+filepath.Join(dir, "out_msk.tif"),
		"IMG ?src.tif 0 4 4 0 1 1",
	)
	require.NoError(t, DecimateN(context.Background(), DecimateOptions{
		Config: conf, Root: dir + "/", Nodata: []float32{0},
	}))
	_, mask = readTIFF(t, filepath.Join(dir, "out_msk.tif"))
	assert.Equal(t, []float32{255, 255, 0, 0, 255, 255, 0, 0}, mask)

	err = DecimateN(context.Background(), DecimateOptions{Config: conf, Root: dir + "/", Nodata: []float32{0, 0}})
	assert.True(t, errs.Is(err, errs.Config))
}

func TestOverlayN(t *testing.T) {
	dir := t.TempDir()
	info := raster.NewInfo(2, 2, 4, raster.Uint8, crs.BBox{}, nil)
	writeTIFF(t, filepath.Join(dir, "top.tif"), raster.Fill(info, 255, 0, 0, 128))
	writeTIFF(t, filepath.Join(dir, "bottom.tif"), raster.Fill(info, 128, 128, 128, 255))
	conf := filepath.Join(dir, "overlay.txt")
	writeFile(t, conf,
		filepath.Join(dir, "out.tif")+" "+filepath.Join(dir, "out_msk.tif"),
		filepath.Join(dir, "top.tif"),
		filepath.Join(dir, "bottom.tif"),
	)
	opts := OverlayOptions{
		Config: conf, Method: raster.AlphaTop, Channels: 4, Photometric: raster.RGB,
		Background: []float32{0, 0, 0, 0},
	}
	require.NoError(t, OverlayN(context.Background(), opts))
	_, data := readTIFF(t, filepath.Join(dir, "out.tif"))
	assert.Equal(t, []float32{192, 64, 64, 255}, data[:4])
	_, mask := readTIFF(t, filepath.Join(dir, "out_msk.tif"))
	assert.Equal(t, repeat(255, 4), mask)

	opts.Method, opts.Transparent = raster.Top, []float32{255, 255, 255}
	assert.True(t, errs.Is(OverlayN(context.Background(), opts), errs.Config))
}

func TestComposeN(t *testing.T) {
	dir := t.TempDir()
	tiles := filepath.Join(dir, "tiles")
	require.NoError(t, os.Mkdir(tiles, 0o755))
	for i, name := range []string{"a.tif", "b.tif", "c.tif", "d.tif", "e.tif"} {
		writeTIFF(t, filepath.Join(tiles, name),
			raster.Fill(raster.NewInfo(2, 1, 1, raster.Uint8, crs.BBox{}, nil), float32(i+1)))
	}
	writeFile(t, filepath.Join(tiles, ".lock"), "")
	require.NoError(t, os.Mkdir(filepath.Join(tiles, "sub"), 0o755))

	out := filepath.Join(dir, "out.tif")
	require.NoError(t, ComposeN(context.Background(), tiles, 2, 2, Output{}, out))
	info, data := readTIFF(t, out)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 2, info.Height)
	assert.Equal(t, []float32{1, 1, 2, 2, 3, 3, 4, 4}, data)

	err := ComposeN(context.Background(), tiles, 3, 2, Output{}, out)
	assert.True(t, errs.Is(err, errs.Input))

	writeTIFF(t, filepath.Join(tiles, "b.tif"),
		raster.Fill(raster.NewInfo(2, 1, 3, raster.Uint8, crs.BBox{}, nil), 1, 1, 1))
	err = ComposeN(context.Background(), tiles, 2, 2, Output{}, out)
	assert.True(t, errs.Is(err, errs.Shape))
}

func TestMosaicMask(t *testing.T) {
	info := raster.NewInfo(2, 1, 1, raster.Uint8, crs.BBox{}, nil)
	a, b := raster.Fill(info, 1), raster.Fill(info, 2)
	mask := raster.Fill(info.MaskInfo(), 0)
	mask.Set(1, 0, 255)
	require.NoError(t, b.SetMask(mask))
	m, err := newMosaic([]raster.Image{a, b}, 2, 1)
	require.NoError(t, err)
	require.NotNil(t, m.Mask())
	buf := make([]float32, 4)
	require.NoError(t, m.Mask().ReadLine(0, buf))
	assert.Equal(t, []float32{255, 255, 0, 255}, buf)
	assert.Error(t, m.ReadLine(1, buf))
}

func TestMerge4(t *testing.T) {
	dir := t.TempDir()
	info := raster.NewInfo(2, 2, 1, raster.Uint8, crs.BBox{}, nil)
	var opts Merge4Options
	for i := 0; i < 3; i++ {
		p := filepath.Join(dir, "q"+string(rune('1'+i))+".tif")
		writeTIFF(t, p, raster.Fill(info, 100))
		opts.Inputs[i] = Tile{Image: p}
	}
	writeTIFF(t, filepath.Join(dir, "bg.tif"), raster.Fill(info, 7))
	opts.Background = Tile{Image: filepath.Join(dir, "bg.tif")}
	opts.Output = Tile{Image: filepath.Join(dir, "out.tif"), Mask: filepath.Join(dir, "out_msk.tif")}
	opts.Gamma = 1
	opts.Nodata = []float32{0}
	require.NoError(t, Merge4(context.Background(), opts))
	_, data := readTIFF(t, opts.Output.Image)
	assert.Equal(t, []float32{100, 100, 100, 7}, data)
	_, mask := readTIFF(t, opts.Output.Mask)
	assert.Equal(t, repeat(255, 4), mask)

	opts.Background = Tile{}
	require.NoError(t, Merge4(context.Background(), opts))
	_, data = readTIFF(t, opts.Output.Image)
	assert.Equal(t, []float32{100, 100, 100, 0}, data)
	_, mask = readTIFF(t, opts.Output.Mask)
	assert.Equal(t, []float32{255, 255, 255, 0}, mask)

	opts.Gamma = 0
	assert.True(t, errs.Is(Merge4(context.Background(), opts), errs.Config))
}

func TestManageNodata(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tif")
	img := raster.Fill(raster.NewInfo(3, 3, 1, raster.Uint8, crs.NewBBox(0, 0, 3, 3), nil), 255)
	img.Set(1, 1, 10)
	writeTIFF(t, in, img, geotiff.WithCompression(geotiff.Deflate), geotiff.TileSize(16, 16))

	opts := ManageOptions{
		Input: in, Output: filepath.Join(dir, "out.tif"), MaskOutput: filepath.Join(dir, "msk.tif"),
		Format: raster.Uint8, Channels: 1,
		Manager: nodata.Manager{Target: []float32{255}, TouchEdges: true, NewNodata: []float32{0}},
	}
	require.NoError(t, ManageNodata(context.Background(), opts))
	_, data := readTIFF(t, opts.Output)
	assert.Equal(t, []float32{0, 0, 0, 0, 10, 0, 0, 0, 0}, data)
	_, mask := readTIFF(t, opts.MaskOutput)
	assert.Equal(t, []float32{0, 0, 0, 0, 255, 0, 0, 0, 0}, mask)

	pool := storage.NewPool()
	defer pool.Close(context.Background())
	out, err := geotiff.Open(context.Background(), pool, opts.Output)
	require.NoError(t, err)
	assert.Equal(t, geotiff.Deflate, out.Compression())
	assert.True(t, out.IFD().Tiled())
	assert.Equal(t, "0", strings.TrimRight(out.IFD().NoData, "\x00"))
	out.Close()

	// rewritten in place
	opts.Output, opts.MaskOutput = "", ""
	require.NoError(t, ManageNodata(context.Background(), opts))
	_, data = readTIFF(t, in)
	assert.Equal(t, []float32{0, 0, 0, 0, 10, 0, 0, 0, 0}, data)

	opts.Channels = 3
	assert.True(t, errs.Is(ManageNodata(context.Background(), opts), errs.Shape))
}

func TestSlabs(t *testing.T) {
	dir := t.TempDir()
	l93 := getCRS(t, "EPSG:2154")
	work, err := raster.NewMemory(raster.NewInfo(20, 10, 1, raster.Uint8, crs.NewBBox(0, 0, 200, 100), l93), nil)
	require.NoError(t, err)
	for i := range work.Data() {
		work.Data()[i] = float32(i % 251)
	}
	in := filepath.Join(dir, "work.tif")
	writeTIFF(t, in, work, geotiff.RowsPerStrip(4))

	slab := filepath.Join(dir, "slab.tif")
	require.NoError(t, WorkToCache(context.Background(), in,
		&Conversion{Format: raster.Uint8, Channels: 3}, Output{Compression: geotiff.LZW, TileWidth: 16, TileHeight: 16}, slab))
	raw, err := os.ReadFile(slab)
	require.NoError(t, err)
	require.Greater(t, len(raw), SlabHeaderSize)

	back := filepath.Join(dir, "back.tif")
	require.NoError(t, CacheToWork(context.Background(), slab, geotiff.None, back))
	info, data := readTIFF(t, back)
	assert.Equal(t, 3, info.Channels)
	assert.Equal(t, crs.NewBBox(0, 0, 200, 100), info.BBox)
	assert.True(t, info.CRS.Equal(l93))
	for i, v := range work.Data() {
		assert.Equal(t, []float32{v, v, v}, data[3*i:3*i+3])
	}
}

func TestPbfToCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "10"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10", "20.pbf"), []byte("tile-10-20"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10", "21.pbf"), []byte("tile-10-21!"), 0o644))

	out := filepath.Join(dir, "slab.tif")
	require.NoError(t, PbfToCache(context.Background(), dir, 2, 2, 10, 20, out))
	pool := storage.NewPool()
	defer pool.Close(context.Background())
	img, err := geotiff.Open(context.Background(), pool, out)
	require.NoError(t, err)
	defer img.Close()
	assert.Equal(t, 2*PbfTileSize, img.Info().Width)
	assert.Equal(t, []uint64{10, 0, 11, 0}, img.IFD().TileByteCounts)

	assert.True(t, errs.Is(PbfToCache(context.Background(), dir, 0, 2, 10, 20, out), errs.Config))
}
