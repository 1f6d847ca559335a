package app

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"
)

// ColorTheme is a named gradient for level visualization.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  ColorTheme = "enhanced"  // Dark blue through cyan and yellow to red

	DefaultColorMapSize = 256
)

var colorThemes = map[ColorTheme]func(float64) color.Color{
	ClassicTheme: func(v float64) color.Color {
		return HSV{H: 240 - v*240, S: 0.9 + v*0.1, V: math.Pow(v, 0.7)}.RGB()
	},
	GrayscaleTheme: func(v float64) color.Color {
		g := uint8(math.Pow(v, 0.7) * 255)
		return color.RGBA{R: g, G: g, B: g, A: 255}
	},
	JungleTheme: func(v float64) color.Color {
		return HSV{H: 120 - v*60, S: 1, V: 0.3 + math.Pow(v, 0.6)*0.7}.RGB()
	},
	ThermalTheme: func(v float64) color.Color {
		switch {
		case v < 1.0/3:
			return color.RGBA{R: uint8(v * 3 * 255), A: 255}
		case v < 2.0/3:
			return color.RGBA{R: 255, G: uint8((v - 1.0/3) * 3 * 255), A: 255}
		default:
			return color.RGBA{R: 255, G: 255, B: uint8(min((v-2.0/3)*3, 1) * 255), A: 255}
		}
	},
	MarineTheme: func(v float64) color.Color {
		return HSV{H: 240 - v*60, S: 1 - v*0.8, V: 0.3 + math.Pow(v, 0.6)*0.7}.RGB()
	},
	EnhancedTheme: func(v float64) color.Color {
		e := math.Pow(v, 0.7)
		switch {
		case v < 0.25:
			return HSV{H: 240, S: 1, V: min(e*4, 1)}.RGB()
		case v < 0.5:
			return HSV{H: 240 - (v-0.25)*240, S: 1, V: min(e*1.5, 1)}.RGB()
		case v < 0.75:
			return HSV{H: 180 - (v-0.5)*4*120, S: 1, V: min(e*1.5, 1)}.RGB()
		default:
			return HSV{H: 60 - (v-0.75)*4*60, S: 1, V: 1}.RGB()
		}
	},
}

// ParseColorTheme returns the theme with the given name.
func ParseColorTheme(name string) (ColorTheme, error) {
	theme := ColorTheme(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := colorThemes[theme]; !ok {
		return "", fmt.Errorf("unknown color theme %q, expected one of %s", name, strings.Join(ColorThemes(), ", "))
	}
	return theme, nil
}

// ColorThemes returns the names of all themes, sorted.
func ColorThemes() []string {
	names := make([]string, 0, len(colorThemes))
	for theme := range colorThemes {
		names = append(names, string(theme))
	}
	slices.Sort(names)
	return names
}

// ColorMapper maps levels to precomputed colors of a theme.
type ColorMapper struct {
	colors       []color.Color
	theme        func(float64) color.Color
	boundsMin    float64
	levelPerStep float64
}

func NewColorMapper(theme ColorTheme, bounds LevelBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a mapper with size colors. Unknown themes
// fall back to the enhanced theme.
func NewColorMapperWithSize(theme ColorTheme, bounds LevelBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	fn, ok := colorThemes[theme]
	if !ok {
		fn = colorThemes[EnhancedTheme]
	}

	cm := ColorMapper{
		colors: make([]color.Color, size),
		theme:  fn,
	}
	for i := range cm.colors {
		cm.colors[i] = fn(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)

	return &cm
}

// UpdateBounds sets the levels mapped to the first and the last color.
func (cm *ColorMapper) UpdateBounds(bounds LevelBounds) {
	cm.boundsMin = bounds.Min
	cm.levelPerStep = (bounds.Max - bounds.Min) / float64(len(cm.colors)-1)
}

// Color returns the color of level. Nil levels and levels below the bounds map
// to the first color, levels above them to the last.
func (cm *ColorMapper) Color(level *float64) color.Color {
	if level == nil || cm.levelPerStep <= 0 {
		return cm.colors[0]
	}

	i := int((*level - cm.boundsMin) / cm.levelPerStep)
	return cm.colors[min(max(i, 0), len(cm.colors)-1)]
}

// HSV is a color in the hue, saturation, value space.
type HSV struct {
	H float64 // Degrees, 0..360
	S float64 // 0..1
	V float64 // 0..1
}

func (hsv HSV) RGB() color.Color {
	v := uint8(hsv.V * 255)
	if hsv.S <= 0 {
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	p := uint8(hsv.V * (1 - hsv.S) * 255)
	q := uint8(hsv.V * (1 - hsv.S*f) * 255)
	t := uint8(hsv.V * (1 - hsv.S*(1-f)) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}
