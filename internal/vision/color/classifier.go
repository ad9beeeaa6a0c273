package color

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Classification failures. Both mean "try again on a later frame", not
// "stop trying": the track's color stays unset.
var (
	ErrCropTooSmall   = errors.New("color: crop below minimum area")
	ErrNoUsablePixels = errors.New("color: no pixels matched any palette bucket")
)

// maxSampleDim bounds the sampled crop size. Larger crops are
// downsampled first so per-frame cost stays flat.
const maxSampleDim = 64

// Classifier votes crop pixels into palette buckets and reports the
// dominant label. Instances are immutable and safe for concurrent use.
type Classifier struct {
	palette Palette
	labels  []string
	minArea int
}

// NewClassifier creates a classifier over the given palette. Crops whose
// pixel area is below minCropArea are rejected with ErrCropTooSmall.
func NewClassifier(palette Palette, minCropArea int) *Classifier {
	return &Classifier{
		palette: palette,
		labels:  palette.Labels(),
		minArea: minCropArea,
	}
}

// Classify returns the dominant palette label for a vehicle crop.
// Pixels are sampled from the center region only; the outer quarter
// margins carry road, glass, and shadow more often than body paint.
func (c *Classifier) Classify(img image.Image) (string, error) {
	if img == nil {
		return "", ErrCropTooSmall
	}
	b := img.Bounds()
	if b.Dx()*b.Dy() < c.minArea {
		return "", ErrCropTooSmall
	}

	img = downsample(img, maxSampleDim)
	b = img.Bounds()

	mx := b.Dx() / 4
	my := b.Dy() / 4
	region := image.Rect(b.Min.X+mx, b.Min.Y+my, b.Max.X-mx, b.Max.Y-my)
	if region.Empty() {
		region = b
	}

	counts := make(map[string]int, len(c.labels))
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(float64(r>>8), float64(g>>8), float64(bl>>8))
			if label, ok := c.palette.classify(h, s, v); ok {
				counts[label]++
			}
		}
	}

	best := ""
	bestCount := 0
	for _, label := range c.labels {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	if bestCount == 0 {
		return "", ErrNoUsablePixels
	}
	return best, nil
}

// downsample scales img so its longest side is at most maxDim.
func downsample(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}

	long := b.Dx()
	if b.Dy() > long {
		long = b.Dy()
	}
	scale := float64(maxDim) / float64(long)

	w := int(float64(b.Dx()) * scale)
	if w < 1 {
		w = 1
	}
	h := int(float64(b.Dy()) * scale)
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// rgbToHSV converts 0-255 RGB to HSV with hue in degrees [0, 360) and
// saturation/value on the 0-255 scale.
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	delta := max - min

	if max > 0 {
		s = delta / max * 255
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case g:
		h = 60 * ((b-r)/delta + 2)
	case b:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}
