package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/color"
	"github.com/roadsight-data/roadsight/internal/vision/plate"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
// This is the single source of truth for all default session values.
const DefaultConfigPath = "config/tracking.defaults.json"

// SessionConfig holds the per-session tracking and estimation parameters.
// The schema matches the POST /api/sessions request body so the same JSON
// can be used for both startup configuration and session creation. Fields
// are pointers so partial documents override only what they name; the
// Get* methods provide fallback defaults for nil fields.
type SessionConfig struct {
	// Calibration params
	PixelsPerMeter *float64 `json:"pixels_per_meter,omitempty"`
	FPS            *float64 `json:"fps,omitempty"`

	// Counting line params
	ROILine        *float64 `json:"roi_line,omitempty"`
	ROIOrientation *string  `json:"roi_orientation,omitempty"` // "horizontal" or "vertical"

	// Tracker params
	TrackingThreshold *float64 `json:"tracking_threshold,omitempty"` // association gate, pixels
	MaxMissedFrames   *int     `json:"max_missed_frames,omitempty"`
	HistorySize       *int     `json:"history_size,omitempty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty"`

	// Color classification params
	MinColorCropArea *int           `json:"min_color_crop_area,omitempty"` // square pixels
	ColorPalette     *color.Palette `json:"color_palette,omitempty"`

	// Plate matching params
	PlateMatchThreshold *int     `json:"plate_match_threshold,omitempty"`
	PlateConfusionCost  *int     `json:"plate_confusion_cost,omitempty"`
	PlateFormat         *string  `json:"plate_format,omitempty"` // "eu", "fr" or "ro"
	KnownPlates         []string `json:"known_plates,omitempty"`

	// Enrichment worker pool size
	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySessionConfig returns a SessionConfig with all fields set to nil.
// Getter fallbacks make an empty config equivalent to the defaults.
func EmptySessionConfig() *SessionConfig {
	return &SessionConfig{}
}

// DefaultSessionConfig returns a SessionConfig with every field populated
// with its default value. This mirrors config/tracking.defaults.json.
func DefaultSessionConfig() *SessionConfig {
	palette := color.DefaultPalette()
	return &SessionConfig{
		PixelsPerMeter:      ptrFloat64(8.0),
		FPS:                 ptrFloat64(30.0),
		ROILine:             ptrFloat64(400),
		ROIOrientation:      ptrString(string(vision.OrientationHorizontal)),
		TrackingThreshold:   ptrFloat64(50.0),
		MaxMissedFrames:     ptrInt(30),
		HistorySize:         ptrInt(30),
		MinConfidence:       ptrFloat64(0.5),
		MinColorCropArea:    ptrInt(900),
		ColorPalette:        &palette,
		PlateMatchThreshold: ptrInt(2),
		PlateConfusionCost:  ptrInt(0),
		PlateFormat:         ptrString(string(plate.FormatEU)),
		Workers:             ptrInt(4),
	}
}

// LoadSessionConfig loads a SessionConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptySessionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MergeDefaults returns a copy of c with every nil field filled in from
// base. Fields c names win, so a partial session request overrides only
// what it mentions. A nil base returns c unchanged.
func (c *SessionConfig) MergeDefaults(base *SessionConfig) *SessionConfig {
	if base == nil {
		return c
	}
	merged := *c
	if merged.PixelsPerMeter == nil {
		merged.PixelsPerMeter = base.PixelsPerMeter
	}
	if merged.FPS == nil {
		merged.FPS = base.FPS
	}
	if merged.ROILine == nil {
		merged.ROILine = base.ROILine
	}
	if merged.ROIOrientation == nil {
		merged.ROIOrientation = base.ROIOrientation
	}
	if merged.TrackingThreshold == nil {
		merged.TrackingThreshold = base.TrackingThreshold
	}
	if merged.MaxMissedFrames == nil {
		merged.MaxMissedFrames = base.MaxMissedFrames
	}
	if merged.HistorySize == nil {
		merged.HistorySize = base.HistorySize
	}
	if merged.MinConfidence == nil {
		merged.MinConfidence = base.MinConfidence
	}
	if merged.MinColorCropArea == nil {
		merged.MinColorCropArea = base.MinColorCropArea
	}
	if merged.ColorPalette == nil {
		merged.ColorPalette = base.ColorPalette
	}
	if merged.PlateMatchThreshold == nil {
		merged.PlateMatchThreshold = base.PlateMatchThreshold
	}
	if merged.PlateConfusionCost == nil {
		merged.PlateConfusionCost = base.PlateConfusionCost
	}
	if merged.PlateFormat == nil {
		merged.PlateFormat = base.PlateFormat
	}
	if merged.KnownPlates == nil {
		merged.KnownPlates = base.KnownPlates
	}
	if merged.Workers == nil {
		merged.Workers = base.Workers
	}
	return &merged
}

// Validate checks that the configuration values are valid.
func (c *SessionConfig) Validate() error {
	if c.PixelsPerMeter != nil && *c.PixelsPerMeter <= 0 {
		return fmt.Errorf("pixels_per_meter must be positive, got %f", *c.PixelsPerMeter)
	}
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.ROILine != nil && *c.ROILine < 0 {
		return fmt.Errorf("roi_line must be non-negative, got %f", *c.ROILine)
	}
	if c.ROIOrientation != nil {
		if !vision.Orientation(*c.ROIOrientation).IsValid() {
			return fmt.Errorf("roi_orientation must be %q or %q, got %q",
				vision.OrientationHorizontal, vision.OrientationVertical, *c.ROIOrientation)
		}
	}
	if c.TrackingThreshold != nil && *c.TrackingThreshold <= 0 {
		return fmt.Errorf("tracking_threshold must be positive, got %f", *c.TrackingThreshold)
	}
	if c.MaxMissedFrames != nil && *c.MaxMissedFrames < 0 {
		return fmt.Errorf("max_missed_frames must be non-negative, got %d", *c.MaxMissedFrames)
	}
	// Crossing detection needs the two most recent observations, so a
	// history shorter than 2 can never report a speed.
	if c.HistorySize != nil && *c.HistorySize < 2 {
		return fmt.Errorf("history_size must be at least 2, got %d", *c.HistorySize)
	}
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.MinColorCropArea != nil && *c.MinColorCropArea < 0 {
		return fmt.Errorf("min_color_crop_area must be non-negative, got %d", *c.MinColorCropArea)
	}
	if c.ColorPalette != nil {
		if err := c.ColorPalette.Validate(); err != nil {
			return fmt.Errorf("color_palette: %w", err)
		}
	}
	if c.PlateMatchThreshold != nil && *c.PlateMatchThreshold < 0 {
		return fmt.Errorf("plate_match_threshold must be non-negative, got %d", *c.PlateMatchThreshold)
	}
	if c.PlateConfusionCost != nil {
		if *c.PlateConfusionCost < 0 || *c.PlateConfusionCost > 1 {
			return fmt.Errorf("plate_confusion_cost must be 0 or 1, got %d", *c.PlateConfusionCost)
		}
	}
	if c.PlateFormat != nil {
		if !plate.Format(*c.PlateFormat).IsValid() {
			return fmt.Errorf("plate_format must be one of %q, %q, %q, got %q",
				plate.FormatEU, plate.FormatFR, plate.FormatRO, *c.PlateFormat)
		}
	}
	for i, known := range c.KnownPlates {
		if plate.CanonicalizeKnown(known) == "" {
			return fmt.Errorf("known_plates[%d] is empty after canonicalization: %q", i, known)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

// GetPixelsPerMeter returns the pixels_per_meter value or the default.
func (c *SessionConfig) GetPixelsPerMeter() float64 {
	if c.PixelsPerMeter == nil {
		return 8.0
	}
	return *c.PixelsPerMeter
}

// GetFPS returns the fps value or the default.
func (c *SessionConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30.0
	}
	return *c.FPS
}

// GetROILine returns the roi_line value or the default.
func (c *SessionConfig) GetROILine() float64 {
	if c.ROILine == nil {
		return 400
	}
	return *c.ROILine
}

// GetROIOrientation returns the roi_orientation value or the default.
func (c *SessionConfig) GetROIOrientation() vision.Orientation {
	if c.ROIOrientation == nil {
		return vision.OrientationHorizontal
	}
	return vision.Orientation(*c.ROIOrientation)
}

// GetTrackingThreshold returns the tracking_threshold value or the default.
func (c *SessionConfig) GetTrackingThreshold() float64 {
	if c.TrackingThreshold == nil {
		return 50.0
	}
	return *c.TrackingThreshold
}

// GetMaxMissedFrames returns the max_missed_frames value or the default.
func (c *SessionConfig) GetMaxMissedFrames() int {
	if c.MaxMissedFrames == nil {
		return 30
	}
	return *c.MaxMissedFrames
}

// GetHistorySize returns the history_size value or the default.
func (c *SessionConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 30
	}
	return *c.HistorySize
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *SessionConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetMinColorCropArea returns the min_color_crop_area value or the default.
func (c *SessionConfig) GetMinColorCropArea() int {
	if c.MinColorCropArea == nil {
		return 900
	}
	return *c.MinColorCropArea
}

// GetColorPalette returns the color_palette value or the default palette.
func (c *SessionConfig) GetColorPalette() color.Palette {
	if c.ColorPalette == nil {
		return color.DefaultPalette()
	}
	return *c.ColorPalette
}

// GetPlateMatchThreshold returns the plate_match_threshold value or the default.
func (c *SessionConfig) GetPlateMatchThreshold() int {
	if c.PlateMatchThreshold == nil {
		return 2
	}
	return *c.PlateMatchThreshold
}

// GetPlateConfusionCost returns the plate_confusion_cost value or the default.
func (c *SessionConfig) GetPlateConfusionCost() int {
	if c.PlateConfusionCost == nil {
		return 0
	}
	return *c.PlateConfusionCost
}

// GetPlateFormat returns the plate_format value or the default.
func (c *SessionConfig) GetPlateFormat() plate.Format {
	if c.PlateFormat == nil {
		return plate.FormatEU
	}
	return plate.Format(*c.PlateFormat)
}

// GetWorkers returns the workers value or the default.
func (c *SessionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}
