package app

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColorTheme(t *testing.T) {
	for _, name := range ColorThemes() {
		theme, err := ParseColorTheme(name)
		require.NoError(t, err)
		assert.Equal(t, ColorTheme(name), theme)
	}

	theme, err := ParseColorTheme(" Thermal ")
	require.NoError(t, err)
	assert.Equal(t, ThermalTheme, theme)

	_, err = ParseColorTheme("sepia")
	assert.Error(t, err)
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapperWithSize(GrayscaleTheme, LevelBounds{Min: -100, Max: 0}, 101)

	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	assert.Equal(t, black, cm.Color(nil))
	assert.Equal(t, black, cm.Color(level(-150)))
	assert.Equal(t, black, cm.Color(level(-100)))
	assert.Equal(t, white, cm.Color(level(0)))
	assert.Equal(t, white, cm.Color(level(20)))

	mid := cm.Color(level(-50)).(color.RGBA)
	assert.Greater(t, mid.R, uint8(0))
	assert.Less(t, mid.R, uint8(255))
}

func TestColorMapper_Themes(t *testing.T) {
	for _, name := range ColorThemes() {
		t.Run(name, func(t *testing.T) {
			cm := NewColorMapper(ColorTheme(name), LevelBounds{Min: -100, Max: 0})
			for v := -110.0; v <= 10; v += 0.5 {
				_, _, _, a := cm.Color(level(v)).RGBA()
				assert.Equal(t, uint32(0xffff), a)
			}
		})
	}
}

func TestHSV_RGB(t *testing.T) {
	tests := []struct {
		hsv  HSV
		want color.RGBA
	}{
		{HSV{H: 0, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{HSV{H: 120, S: 1, V: 1}, color.RGBA{G: 255, A: 255}},
		{HSV{H: 240, S: 1, V: 1}, color.RGBA{B: 255, A: 255}},
		{HSV{H: 360, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{HSV{H: 90, S: 0, V: 1}, color.RGBA{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.hsv.RGB(), "%+v", tt.hsv)
	}
}
