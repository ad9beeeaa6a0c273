// Package color owns vehicle body-color classification from pixel crops.
//
// Responsibilities: HSV bucketing of a crop's center region against a
// closed palette, achromatic (black/white/gray) decisions by value and
// saturation thresholds, and histogram voting for the dominant label.
// Key types: Classifier, Palette, HueRange.
//
// Dependency rule: color may depend on vision only.
// No SQL/database code is allowed in this package.
package color
