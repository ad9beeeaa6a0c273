package color

import (
	"image"
	stdcolor "image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformCrop builds a w x h image filled with one color.
func uniformCrop(w, h int, c stdcolor.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultPalette(), 900)
}

func TestClassifyUniformColors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fill stdcolor.RGBA
		want string
	}{
		{"red body", stdcolor.RGBA{R: 200, G: 30, B: 30, A: 255}, "red"},
		{"blue body", stdcolor.RGBA{R: 30, G: 60, B: 200, A: 255}, "blue"},
		{"green body", stdcolor.RGBA{R: 40, G: 160, B: 60, A: 255}, "green"},
		{"yellow body", stdcolor.RGBA{R: 220, G: 200, B: 40, A: 255}, "yellow"},
		{"orange body", stdcolor.RGBA{R: 230, G: 140, B: 30, A: 255}, "orange"},
		{"white body", stdcolor.RGBA{R: 235, G: 235, B: 235, A: 255}, LabelWhite},
		{"black body", stdcolor.RGBA{R: 25, G: 25, B: 25, A: 255}, LabelBlack},
		{"gray body", stdcolor.RGBA{R: 128, G: 128, B: 128, A: 255}, LabelGray},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(uniformCrop(80, 60, tt.fill))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCenterRegionWins(t *testing.T) {
	t.Parallel()

	// Blue center block surrounded by red margins: only the center
	// region is sampled, so the crop reads as blue.
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	red := stdcolor.RGBA{R: 200, G: 30, B: 30, A: 255}
	blue := stdcolor.RGBA{R: 30, G: 60, B: 200, A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x >= 16 && x < 48 && y >= 16 && y < 48 {
				img.SetRGBA(x, y, blue)
			} else {
				img.SetRGBA(x, y, red)
			}
		}
	}

	got, err := newTestClassifier().Classify(img)
	require.NoError(t, err)
	assert.Equal(t, "blue", got)
}

func TestClassifyMajorityVote(t *testing.T) {
	t.Parallel()

	// 2/3 red, 1/3 blue across the full image: red wins the histogram.
	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	red := stdcolor.RGBA{R: 200, G: 30, B: 30, A: 255}
	blue := stdcolor.RGBA{R: 30, G: 60, B: 200, A: 255}
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			if x < 40 {
				img.SetRGBA(x, y, red)
			} else {
				img.SetRGBA(x, y, blue)
			}
		}
	}

	got, err := newTestClassifier().Classify(img)
	require.NoError(t, err)
	assert.Equal(t, "red", got)
}

func TestClassifyCropTooSmall(t *testing.T) {
	t.Parallel()

	c := newTestClassifier()

	_, err := c.Classify(uniformCrop(20, 20, stdcolor.RGBA{R: 200, A: 255}))
	assert.ErrorIs(t, err, ErrCropTooSmall)

	_, err = c.Classify(nil)
	assert.ErrorIs(t, err, ErrCropTooSmall)

	// 30x30 meets the 900px floor.
	_, err = c.Classify(uniformCrop(30, 30, stdcolor.RGBA{R: 200, G: 30, B: 30, A: 255}))
	assert.NoError(t, err)
}

func TestClassifyExcludedPixels(t *testing.T) {
	t.Parallel()

	// Saturation ~90, value ~250: too washed out for a hue bucket, too
	// saturated for white. Every pixel is excluded.
	glare := stdcolor.RGBA{R: 250, G: 250, B: 162, A: 255}
	_, err := newTestClassifier().Classify(uniformCrop(40, 40, glare))
	assert.ErrorIs(t, err, ErrNoUsablePixels)
}

func TestClassifyLargeCropDownsampled(t *testing.T) {
	t.Parallel()

	// A 640x480 crop still classifies correctly after downsampling.
	got, err := newTestClassifier().Classify(uniformCrop(640, 480, stdcolor.RGBA{R: 30, G: 60, B: 200, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, "blue", got)
}

func TestRGBToHSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		r, g, b float64
		h, s, v float64
	}{
		{"pure red", 255, 0, 0, 0, 255, 255},
		{"pure green", 0, 255, 0, 120, 255, 255},
		{"pure blue", 0, 0, 255, 240, 255, 255},
		{"white", 255, 255, 255, 0, 0, 255},
		{"black", 0, 0, 0, 0, 0, 0},
		{"mid gray", 128, 128, 128, 0, 0, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := rgbToHSV(tt.r, tt.g, tt.b)
			assert.InDelta(t, tt.h, h, 0.5)
			assert.InDelta(t, tt.s, s, 0.5)
			assert.InDelta(t, tt.v, v, 0.5)
		})
	}
}

func TestPaletteValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultPalette().Validate())

	p := DefaultPalette()
	p.WhiteValueMin = 40 // below black cutoff
	assert.Error(t, p.Validate())

	p = DefaultPalette()
	p.Chromatic = append(p.Chromatic, HueRange{Name: "red", HueMin: 0, HueMax: 10})
	assert.Error(t, p.Validate())

	p = DefaultPalette()
	p.Chromatic[0].HueMin = 400
	assert.Error(t, p.Validate())

	p = DefaultPalette()
	p.Chromatic[0].Name = ""
	assert.Error(t, p.Validate())
}

func TestHueInWrapsAroundZero(t *testing.T) {
	t.Parallel()

	assert.True(t, hueIn(350, 320, 20))
	assert.True(t, hueIn(10, 320, 20))
	assert.False(t, hueIn(180, 320, 20))
	assert.True(t, hueIn(45, 40, 60))
	assert.False(t, hueIn(70, 40, 60))
}
