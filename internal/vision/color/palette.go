package color

import (
	"fmt"
)

// Achromatic label names. Chromatic labels come from the palette's hue
// ranges.
const (
	LabelBlack = "black"
	LabelWhite = "white"
	LabelGray  = "gray"
)

// HueRange is one chromatic palette bucket. Hue is in degrees [0, 360);
// a range with HueMin > HueMax wraps through 0 (red). Saturation and
// value floors use the 0-255 scale.
type HueRange struct {
	Name   string  `json:"name"`
	HueMin float64 `json:"hue_min"`
	HueMax float64 `json:"hue_max"`
	SatMin float64 `json:"sat_min"`
	ValMin float64 `json:"val_min"`
}

// Palette defines the closed label set for classification. Achromatic
// labels are decided by value/saturation thresholds before any hue
// bucket is consulted; pixels matching no bucket are excluded from the
// vote. All thresholds use the 0-255 scale.
type Palette struct {
	BlackValueMax float64 `json:"black_value_max"` // value at or below: black
	WhiteSatMax   float64 `json:"white_sat_max"`   // saturation at or below, with bright value: white
	WhiteValueMin float64 `json:"white_value_min"`
	GraySatMax    float64 `json:"gray_sat_max"` // saturation at or below, with mid value: gray
	GrayValueMax  float64 `json:"gray_value_max"`

	Chromatic []HueRange `json:"chromatic"`
}

// DefaultPalette returns the production palette: black/white/gray plus
// red, blue, green, yellow, and orange hue bands.
func DefaultPalette() Palette {
	return Palette{
		BlackValueMax: 50,
		WhiteSatMax:   30,
		WhiteValueMin: 200,
		GraySatMax:    50,
		GrayValueMax:  200,
		Chromatic: []HueRange{
			{Name: "red", HueMin: 320, HueMax: 20, SatMin: 100, ValMin: 100},
			{Name: "blue", HueMin: 200, HueMax: 260, SatMin: 100, ValMin: 100},
			{Name: "green", HueMin: 80, HueMax: 160, SatMin: 50, ValMin: 50},
			{Name: "yellow", HueMin: 40, HueMax: 60, SatMin: 100, ValMin: 100},
			{Name: "orange", HueMin: 20, HueMax: 40, SatMin: 100, ValMin: 100},
		},
	}
}

// Labels returns the palette's label set in vote tie-break order:
// achromatic labels first, then chromatic ranges in palette order.
func (p Palette) Labels() []string {
	labels := make([]string, 0, 3+len(p.Chromatic))
	labels = append(labels, LabelBlack, LabelWhite, LabelGray)
	for _, hr := range p.Chromatic {
		labels = append(labels, hr.Name)
	}
	return labels
}

// Validate rejects palettes that cannot classify deterministically.
func (p Palette) Validate() error {
	if p.BlackValueMax < 0 || p.BlackValueMax > 255 {
		return fmt.Errorf("black_value_max %v out of range [0,255]", p.BlackValueMax)
	}
	if p.WhiteSatMax < 0 || p.WhiteSatMax > 255 {
		return fmt.Errorf("white_sat_max %v out of range [0,255]", p.WhiteSatMax)
	}
	if p.WhiteValueMin <= p.BlackValueMax || p.WhiteValueMin > 255 {
		return fmt.Errorf("white_value_min %v must be in (%v,255]", p.WhiteValueMin, p.BlackValueMax)
	}
	if p.GraySatMax < 0 || p.GraySatMax > 255 {
		return fmt.Errorf("gray_sat_max %v out of range [0,255]", p.GraySatMax)
	}
	if p.GrayValueMax <= p.BlackValueMax || p.GrayValueMax > 255 {
		return fmt.Errorf("gray_value_max %v must be in (%v,255]", p.GrayValueMax, p.BlackValueMax)
	}
	seen := map[string]bool{LabelBlack: true, LabelWhite: true, LabelGray: true}
	for i, hr := range p.Chromatic {
		if hr.Name == "" {
			return fmt.Errorf("chromatic[%d]: empty name", i)
		}
		if seen[hr.Name] {
			return fmt.Errorf("chromatic[%d]: duplicate label %q", i, hr.Name)
		}
		seen[hr.Name] = true
		if hr.HueMin < 0 || hr.HueMin >= 360 || hr.HueMax < 0 || hr.HueMax >= 360 {
			return fmt.Errorf("chromatic[%d] %q: hue bounds outside [0,360)", i, hr.Name)
		}
		if hr.SatMin < 0 || hr.SatMin > 255 || hr.ValMin < 0 || hr.ValMin > 255 {
			return fmt.Errorf("chromatic[%d] %q: saturation/value floors outside [0,255]", i, hr.Name)
		}
	}
	return nil
}

// classify assigns one HSV pixel to a palette label. The achromatic
// cascade runs first so dark and washed-out pixels never land in a hue
// bucket. The second return is false for excluded pixels.
func (p Palette) classify(h, s, v float64) (string, bool) {
	if v <= p.BlackValueMax {
		return LabelBlack, true
	}
	if s <= p.WhiteSatMax && v >= p.WhiteValueMin {
		return LabelWhite, true
	}
	if s <= p.GraySatMax && v <= p.GrayValueMax {
		return LabelGray, true
	}
	for _, hr := range p.Chromatic {
		if s < hr.SatMin || v < hr.ValMin {
			continue
		}
		if hueIn(h, hr.HueMin, hr.HueMax) {
			return hr.Name, true
		}
	}
	return "", false
}

// hueIn reports whether hue h lies in [lo, hi], wrapping through 0 when
// lo > hi.
func hueIn(h, lo, hi float64) bool {
	if lo <= hi {
		return h >= lo && h <= hi
	}
	return h >= lo || h <= hi
}
