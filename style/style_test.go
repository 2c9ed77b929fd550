package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/ntiff/crs"
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStyle(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func elevation(t *testing.T, w, h int, z func(x, y int) float32) *raster.Memory {
	t.Helper()
	l93, err := crs.Get("EPSG:2154")
	require.NoError(t, err)
	info := raster.NewInfo(w, h, 1, raster.Float32, crs.NewBBox(0, 0, float64(w), float64(h)), l93)
	data := make([]float32, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data = append(data, z(x, y))
		}
	}
	m, err := raster.NewMemory(info, data)
	require.NoError(t, err)
	return m
}

func read(t *testing.T, img raster.Image) []float32 {
	t.Helper()
	m, err := raster.ReadAll(img)
	require.NoError(t, err)
	return m.Data()
}

func TestLoad(t *testing.T) {
	s, err := Load(writeStyle(t, "shade.json", `{"identifier":"shade","hillshade":{"azimuth":180}}`))
	require.NoError(t, err)
	assert.Equal(t, "shade", s.Identifier)
	require.NotNil(t, s.Hillshade)
	assert.Equal(t, 45.0, s.Hillshade.Zenith)
	assert.Equal(t, 180.0, s.Hillshade.Azimuth)
	assert.Equal(t, 1.0, s.Hillshade.ZFactor)
	assert.Equal(t, float32(-99999), s.Hillshade.ImageNodata)
	assert.Nil(t, s.Slope)
	assert.True(t, s.Terrain())
	assert.Equal(t, raster.Uint8, s.Format(raster.Float32))
	assert.Equal(t, []float32{-99999}, s.InputNodata([]float32{0}))
	assert.Equal(t, []float32{0}, s.OutputNodata(nil))

	s, err = Load(writeStyle(t, "slope.yaml", "slope:\n  algo: z\n  unit: PERCENT\n"))
	require.NoError(t, err)
	require.NotNil(t, s.Slope)
	assert.Equal(t, "Z", s.Slope.Algo)
	assert.Equal(t, "percent", s.Slope.Unit)
	assert.Equal(t, float32(0), s.Slope.SlopeNodata)

	s, err = Load(writeStyle(t, "palette.yaml", `
palette:
  no_alpha: true
  colours:
    - {value: 100, red: 255}
    - {value: 0, blue: 255}
`))
	require.NoError(t, err)
	assert.False(t, s.Terrain())
	assert.Equal(t, 3, s.Channels(1))
	assert.Equal(t, 0.0, s.Palette.Colours[0].Value)
	assert.True(t, s.Handles(1))
	assert.False(t, s.Handles(3))
	assert.Equal(t, []float32{0, 0, 255}, s.OutputNodata([]float32{0}))

	invalid := func(name, content string) {
		t.Helper()
		_, err := Load(writeStyle(t, name, content))
		assert.True(t, errs.Is(err, errs.Config), "%s: %v", name, err)
	}
	invalid("both.json", `{"hillshade":{"zenith":30},"slope":{"unit":"degree"}}`)
	invalid("unit.json", `{"slope":{"unit":"radian"}}`)
	invalid("algo.json", `{"aspect":{"algo":"X"}}`)
	invalid("zenith.json", `{"hillshade":{"zenith":120}}`)
	invalid("twice.json", `{"palette":{"colours":[{"value":1},{"value":1}]}}`)
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errs.Is(err, errs.Config))
}

func TestHillshade(t *testing.T) {
	st := &Style{Hillshade: &Hillshade{Zenith: 45, Azimuth: 315, ZFactor: 1, ImageNodata: -99999}}
	img, err := st.Apply(elevation(t, 3, 3, func(x, y int) float32 { return 100 }))
	require.NoError(t, err)
	assert.Equal(t, raster.Uint8, img.Info().Format)
	for _, v := range read(t, img) {
		assert.Equal(t, float32(181), v)
	}

	// lit slope facing north west, shadowed slope facing south east
	lit, err := st.Apply(elevation(t, 3, 3, func(x, y int) float32 { return float32(x + y) }))
	require.NoError(t, err)
	dark, err := st.Apply(elevation(t, 3, 3, func(x, y int) float32 { return float32(-x - y) }))
	require.NoError(t, err)
	assert.Greater(t, read(t, lit)[4], float32(181))
	assert.Less(t, read(t, dark)[4], float32(181))

	// every neighbour of a nodata pixel is nodata
	holed, err := st.Apply(elevation(t, 4, 4, func(x, y int) float32 {
		if x == 0 && y == 0 {
			return -99999
		}
		return 100
	}))
	require.NoError(t, err)
	got := read(t, holed)
	assert.Equal(t, []float32{0, 0, 181, 181}, got[:4])
	assert.Equal(t, []float32{0, 0, 181, 181}, got[4:8])
	assert.Equal(t, []float32{181, 181, 181, 181}, got[8:12])
	assert.Equal(t, []float32{0}, holed.(interface{ Nodata() []float32 }).Nodata())
	mask := read(t, holed.Mask())
	assert.Equal(t, []float32{0, 0, 255, 255}, mask[:4])
	assert.Equal(t, []float32{0, 0, 255, 255}, mask[4:8])
	assert.Equal(t, []float32{255, 255, 255, 255}, mask[8:12])
}

func TestTerrainMask(t *testing.T) {
	dem := elevation(t, 3, 1, func(x, y int) float32 { return 100 })
	valid, err := raster.NewMemory(dem.Info().MaskInfo(), []float32{255, 0, 255})
	require.NoError(t, err)
	require.NoError(t, dem.SetMask(valid))
	st := &Style{Slope: &Slope{Algo: "H", Unit: "degree", ImageNodata: -99999, SlopeNodata: -1}}
	img, err := st.Apply(dem)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, read(t, img))
	assert.Equal(t, []float32{255, 0, 255}, read(t, img.Mask()))

	// the palette keeps the mask of the terrain it colours
	dem = elevation(t, 3, 1, func(x, y int) float32 {
		if x == 2 {
			return -99999
		}
		return 100
	})
	st = &Style{
		Hillshade: &Hillshade{Zenith: 45, Azimuth: 315, ZFactor: 1, ImageNodata: -99999},
		Palette:   &Palette{NoAlpha: true, Colours: []Colour{{Value: 0}, {Value: 255, Red: 255, Green: 255, Blue: 255}}},
	}
	img, err = st.Apply(dem)
	require.NoError(t, err)
	assert.Equal(t, []float32{255, 0, 0}, read(t, img.Mask()))
}

func TestSlope(t *testing.T) {
	ramp := func(x, y int) float32 { return float32(x) }
	testfunc := func(s *Slope, want float64) {
		t.Helper()
		img, err := (&Style{Slope: s}).Apply(elevation(t, 3, 3, ramp))
		require.NoError(t, err)
		assert.InDelta(t, want, read(t, img)[4], 1e-4)
	}
	testfunc(&Slope{Algo: "H", Unit: "degree", ImageNodata: -99999}, 45)
	testfunc(&Slope{Algo: "Z", Unit: "degree", ImageNodata: -99999}, 45)
	testfunc(&Slope{Algo: "H", Unit: "percent", ImageNodata: -99999}, 100)
	testfunc(&Slope{Algo: "H", Unit: "degree", ImageNodata: -99999, MaxSlope: 30}, 30)

	// edge pixels see the border column twice
	img, err := (&Style{Slope: &Slope{Algo: "Z", Unit: "percent", ImageNodata: -99999}}).Apply(elevation(t, 3, 1, ramp))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{50, 100, 50}, read(t, img), 1e-4)
}

func TestAspect(t *testing.T) {
	testfunc := func(z func(x, y int) float32, want float32) {
		t.Helper()
		img, err := (&Style{Aspect: &Aspect{Algo: "H", MinSlope: 1, ImageNodata: -99999, AspectNodata: -1}}).Apply(elevation(t, 3, 3, z))
		require.NoError(t, err)
		assert.InDelta(t, want, read(t, img)[4], 1e-3)
	}
	testfunc(func(x, y int) float32 { return float32(-x) }, 90)
	testfunc(func(x, y int) float32 { return float32(x) }, 270)
	testfunc(func(x, y int) float32 { return float32(-y) }, 180)
	testfunc(func(x, y int) float32 { return float32(y) }, 0)
	testfunc(func(x, y int) float32 { return 10 }, -1)
}

func TestGeographicResolution(t *testing.T) {
	wgs84, err := crs.Get("EPSG:4326")
	require.NoError(t, err)
	info := raster.NewInfo(1, 1, 1, raster.Float32, crs.NewBBox(0, 59.5, 1, 60.5), wgs84)
	tr, err := newTerrain(raster.Fill(info, 0), -99999, 0, raster.Float32, (&Slope{}).slope)
	require.NoError(t, err)
	resx, resy := tr.resolutions(0)
	assert.InDelta(t, MetresPerDegree/2, resx, 1e-6)
	assert.InDelta(t, MetresPerDegree, resy, 1e-9)

	_, err = newTerrain(raster.Fill(raster.NewInfo(1, 1, 3, raster.Uint8, info.BBox, wgs84), 0), 0, 0, raster.Uint8, nil)
	assert.True(t, errs.Is(err, errs.Shape))
}

func TestPalette(t *testing.T) {
	p := &Palette{Colours: []Colour{
		{Value: 0, Alpha: 255},
		{Value: 100, Red: 200, Green: 100, Blue: 50},
	}}
	assert.Equal(t, []float32{0, 0, 0, 255}, p.colour(-10))
	assert.Equal(t, []float32{0, 0, 0, 255}, p.colour(50))
	assert.Equal(t, []float32{200, 100, 50, 0}, p.colour(100))
	assert.Equal(t, []float32{200, 100, 50, 0}, p.colour(1000))

	p.RGBContinuous = true
	assert.Equal(t, []float32{100, 50, 25, 255}, p.colour(50))
	p.AlphaContinuous = true
	assert.Equal(t, []float32{100, 50, 25, 128}, p.colour(50))

	st := &Style{Palette: p}
	img, err := st.Apply(elevation(t, 2, 1, func(x, y int) float32 { return float32(100 * x) }))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Info().Channels)
	assert.Equal(t, raster.RGB, img.Info().Photometric)
	assert.Equal(t, []float32{0, 0, 0, 255, 200, 100, 50, 0}, read(t, img))

	_, err = st.Apply(raster.Fill(raster.NewInfo(1, 1, 3, raster.Uint8, crs.NewBBox(0, 0, 1, 1), nil), 0))
	assert.True(t, errs.Is(err, errs.Shape))
}

func TestApplyBeforeResampling(t *testing.T) {
	dem := elevation(t, 4, 4, func(x, y int) float32 { return 100 })
	st := &Style{
		Hillshade: &Hillshade{Zenith: 45, Azimuth: 315, ZFactor: 1, ImageNodata: -99999},
		Palette: &Palette{NoAlpha: true, Colours: []Colour{
			{Value: 0, Red: 1},
			{Value: 181, Red: 181, Green: 181, Blue: 181},
		}},
	}
	c, err := raster.NewPackCompound([]raster.Image{dem}, st.InputNodata(nil))
	require.NoError(t, err)
	out := raster.NewInfo(2, 2, 3, raster.Uint8, dem.Info().BBox, dem.Info().CRS)
	r, err := raster.Resample(c, out, raster.Nearest, st.Apply)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.Info().Channels)
	assert.Equal(t, []float32{1, 0, 0}, r.Nodata())
	got := read(t, r)
	require.Len(t, got, 12)
	for _, v := range got {
		assert.Equal(t, float32(181), v)
	}
}
