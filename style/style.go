// Package style turns single channel elevation images into hillshades,
// slopes, aspects or coloured images.
package style

import (
	"sort"
	"strings"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
	"github.com/spf13/viper"
)

// Hillshade lights the relief with a sun at Zenith degrees from the
// vertical, coming from Azimuth degrees clockwise from north.
type Hillshade struct {
	Zenith          float64 `mapstructure:"zenith"`
	Azimuth         float64 `mapstructure:"azimuth"`
	ZFactor         float64 `mapstructure:"z_factor"`
	ImageNodata     float32 `mapstructure:"image_nodata"`
	HillshadeNodata float32 `mapstructure:"hillshade_nodata"`
}

// Slope computes the steepest slope. Algo is H (Horn) or Z
// (Zevenbergen-Thorne), Unit degree or percent. Slopes above a positive
// MaxSlope are clamped.
type Slope struct {
	Algo        string  `mapstructure:"algo"`
	Unit        string  `mapstructure:"unit"`
	ImageNodata float32 `mapstructure:"image_nodata"`
	SlopeNodata float32 `mapstructure:"slope_nodata"`
	MaxSlope    float32 `mapstructure:"max_slope"`
}

// Aspect computes the direction of the steepest slope, in degrees clockwise
// from north. Flatter pixels than MinSlope degrees get AspectNodata.
type Aspect struct {
	Algo         string  `mapstructure:"algo"`
	MinSlope     float64 `mapstructure:"min_slope"`
	ImageNodata  float32 `mapstructure:"image_nodata"`
	AspectNodata float32 `mapstructure:"aspect_nodata"`
}

type Colour struct {
	Value float64 `mapstructure:"value"`
	Red   uint8   `mapstructure:"red"`
	Green uint8   `mapstructure:"green"`
	Blue  uint8   `mapstructure:"blue"`
	Alpha uint8   `mapstructure:"alpha"`
}

// Palette maps values to colours, interpolating between the colours of the
// two surrounding values when continuous.
type Palette struct {
	NoAlpha         bool     `mapstructure:"no_alpha"`
	RGBContinuous   bool     `mapstructure:"rgb_continuous"`
	AlphaContinuous bool     `mapstructure:"alpha_continuous"`
	Colours         []Colour `mapstructure:"colours"`
}

func (p *Palette) Empty() bool {
	return p == nil || len(p.Colours) == 0
}

type Style struct {
	Identifier string     `mapstructure:"identifier"`
	Hillshade  *Hillshade `mapstructure:"hillshade"`
	Slope      *Slope     `mapstructure:"slope"`
	Aspect     *Aspect    `mapstructure:"aspect"`
	Palette    *Palette   `mapstructure:"palette"`
}

var defaults = map[string]map[string]interface{}{
	"hillshade": {"zenith": 45, "azimuth": 315, "z_factor": 1, "image_nodata": -99999, "hillshade_nodata": 0},
	"slope":     {"algo": "H", "unit": "degree", "image_nodata": -99999, "slope_nodata": 0, "max_slope": 0},
	"aspect":    {"algo": "H", "min_slope": 1, "image_nodata": -99999, "aspect_nodata": -1},
}

// Load reads a JSON or YAML style file.
func Load(path string) (*Style, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Configf("read style %s: %w", path, err)
	}
	for section, values := range defaults {
		if !v.IsSet(section) {
			continue
		}
		for k, d := range values {
			v.SetDefault(section+"."+k, d)
		}
	}
	s := &Style{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errs.Configf("decode style %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, errs.Configf("style %s: %w", path, err)
	}
	return s, nil
}

func (s *Style) validate() error {
	n := 0
	for _, set := range []bool{s.Hillshade != nil, s.Slope != nil, s.Aspect != nil} {
		if set {
			n++
		}
	}
	if n > 1 {
		return errs.Configf("hillshade, slope and aspect are exclusive")
	}
	if s.Slope != nil {
		s.Slope.Algo = strings.ToUpper(s.Slope.Algo)
		s.Slope.Unit = strings.ToLower(s.Slope.Unit)
		if s.Slope.Algo != "H" && s.Slope.Algo != "Z" {
			return errs.Configf("unknown slope algorithm %q (H|Z)", s.Slope.Algo)
		}
		if s.Slope.Unit != "degree" && s.Slope.Unit != "percent" {
			return errs.Configf("unknown slope unit %q (degree|percent)", s.Slope.Unit)
		}
	}
	if s.Aspect != nil {
		s.Aspect.Algo = strings.ToUpper(s.Aspect.Algo)
		if s.Aspect.Algo != "H" && s.Aspect.Algo != "Z" {
			return errs.Configf("unknown aspect algorithm %q (H|Z)", s.Aspect.Algo)
		}
	}
	if s.Hillshade != nil && (s.Hillshade.Zenith < 0 || s.Hillshade.Zenith > 90) {
		return errs.Configf("hillshade zenith must be within [0,90], got %g", s.Hillshade.Zenith)
	}
	if p := s.Palette; !p.Empty() {
		sort.SliceStable(p.Colours, func(i, j int) bool { return p.Colours[i].Value < p.Colours[j].Value })
		for i := 1; i < len(p.Colours); i++ {
			if p.Colours[i].Value == p.Colours[i-1].Value {
				return errs.Configf("palette value %g is given twice", p.Colours[i].Value)
			}
		}
	}
	return nil
}

// Terrain tells whether the style derives a hillshade, a slope or an aspect.
func (s *Style) Terrain() bool {
	return s.Hillshade != nil || s.Slope != nil || s.Aspect != nil
}

// Handles tells whether the style applies to images of the given channel
// count: only single channel images can be styled.
func (s *Style) Handles(channels int) bool {
	if s.Terrain() || !s.Palette.Empty() {
		return channels == 1
	}
	return true
}

// Channels returns the channel count of a styled image whose source has in
// channels.
func (s *Style) Channels(in int) int {
	switch {
	case !s.Palette.Empty():
		if s.Palette.NoAlpha {
			return 3
		}
		return 4
	case s.Terrain():
		return 1
	}
	return in
}

// Format returns the sample format of a styled image.
func (s *Style) Format(in raster.Format) raster.Format {
	switch {
	case !s.Palette.Empty(), s.Hillshade != nil:
		return raster.Uint8
	case s.Slope != nil, s.Aspect != nil:
		return raster.Float32
	}
	return in
}

// InputNodata returns the nodata value expected on the source of the style,
// nd when the style does not define it.
func (s *Style) InputNodata(nd []float32) []float32 {
	switch {
	case s.Hillshade != nil:
		return []float32{s.Hillshade.ImageNodata}
	case s.Slope != nil:
		return []float32{s.Slope.ImageNodata}
	case s.Aspect != nil:
		return []float32{s.Aspect.ImageNodata}
	}
	return nd
}

// OutputNodata returns the nodata value of styled images.
func (s *Style) OutputNodata(nd []float32) []float32 {
	out := nd
	switch {
	case s.Hillshade != nil:
		out = []float32{s.Hillshade.HillshadeNodata}
	case s.Slope != nil:
		out = []float32{s.Slope.SlopeNodata}
	case s.Aspect != nil:
		out = []float32{s.Aspect.AspectNodata}
	}
	if !s.Palette.Empty() && len(out) > 0 {
		c := s.Palette.colour(float64(out[0]))
		return c[:s.Channels(1)]
	}
	return out
}

// Apply wraps img, a single channel image, into the styled image. The result
// owns img.
func (s *Style) Apply(img raster.Image) (raster.Image, error) {
	info := img.Info()
	if !s.Handles(info.Channels) {
		return nil, errs.Shapef("style %q cannot be applied to %d channels", s.Identifier, info.Channels)
	}
	var err error
	switch {
	case s.Hillshade != nil:
		img, err = newTerrain(img, s.Hillshade.ImageNodata, s.Hillshade.HillshadeNodata, raster.Uint8, s.Hillshade.shade)
	case s.Slope != nil:
		img, err = newTerrain(img, s.Slope.ImageNodata, s.Slope.SlopeNodata, raster.Float32, s.Slope.slope)
	case s.Aspect != nil:
		img, err = newTerrain(img, s.Aspect.ImageNodata, s.Aspect.AspectNodata, raster.Float32, s.Aspect.aspect)
	}
	if err != nil {
		return nil, err
	}
	if !s.Palette.Empty() && img.Info().Channels == 1 {
		img = newPaletted(img, s.Palette)
	}
	return img, nil
}
