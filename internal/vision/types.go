package vision

import (
	"fmt"
	"image"
	"math"
)

// Class is a vehicle class label reported by the detector.
type Class string

const (
	ClassCar        Class = "car"
	ClassMotorcycle Class = "motorcycle"
	ClassBus        Class = "bus"
	ClassTruck      Class = "truck"
	ClassBicycle    Class = "bicycle"
)

// cocoClasses maps COCO class IDs to vehicle classes, following the
// standard ordering used by YOLO-family detectors.
var cocoClasses = map[int]Class{
	1: ClassBicycle,
	2: ClassCar,
	3: ClassMotorcycle,
	5: ClassBus,
	7: ClassTruck,
}

// ClassFromCOCO returns the vehicle class for a COCO class ID.
// The second return is false for IDs outside the vehicle set.
func ClassFromCOCO(id int) (Class, bool) {
	c, ok := cocoClasses[id]
	return c, ok
}

// IsValid reports whether c is one of the known vehicle classes.
func (c Class) IsValid() bool {
	switch c {
	case ClassCar, ClassMotorcycle, ClassBus, ClassTruck, ClassBicycle:
		return true
	}
	return false
}

// Size is a coarse vehicle size bucket derived from bounding-box area.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Bounding-box area thresholds in square pixels.
const (
	SmallAreaMax  = 10000.0
	MediumAreaMax = 30000.0
)

// SizeFromArea buckets a bounding-box area into a Size.
func SizeFromArea(area float64) Size {
	switch {
	case area < SmallAreaMax:
		return SizeSmall
	case area < MediumAreaMax:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// Direction is the travel direction recorded at the counting line.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Orientation selects which axis the counting line spans.
type Orientation string

const (
	// OrientationHorizontal is a line at y = roi_line; vehicles cross it
	// moving up or down.
	OrientationHorizontal Orientation = "horizontal"
	// OrientationVertical is a line at x = roi_line; vehicles cross it
	// moving left or right.
	OrientationVertical Orientation = "vertical"
)

// IsValid reports whether o is a known orientation.
func (o Orientation) IsValid() bool {
	return o == OrientationHorizontal || o == OrientationVertical
}

// Point is a 2D pixel position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to other.
func (p Point) DistanceTo(other Point) float64 {
	return math.Hypot(other.X-p.X, other.Y-p.Y)
}

// BBox is an axis-aligned bounding box in pixel coordinates with a
// top-left origin. X1/Y1 is the upper-left corner, X2/Y2 the lower-right.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area in square pixels.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Centroid returns the center point of the box.
func (b BBox) Centroid() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// PlateReading is a single OCR result for a detection's plate region.
// Confidence is nil when the OCR engine does not report one.
type PlateReading struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Detection is one detector output for one frame.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Class      Class   `json:"class"`
	Confidence float64 `json:"confidence"`

	// Crop holds the pixels under BBox when the caller supplies them.
	// Used for color classification; nil disables it for this detection.
	Crop image.Image `json:"-"`

	// CropB64 is the wire form of Crop: a base64-encoded JPEG or PNG.
	// DecodeCrop turns it into Crop; it is never read past the ingest edge.
	CropB64 string `json:"crop_b64,omitempty"`

	// Plate is an OCR reading attached to this detection, if any.
	Plate *PlateReading `json:"plate,omitempty"`
}

// Centroid returns the detection's bounding-box center.
func (d Detection) Centroid() Point { return d.BBox.Centroid() }

// Validate rejects malformed detections before they reach association.
// Frame dimensions of zero skip the in-frame check.
func (d Detection) Validate(frameW, frameH float64) error {
	b := d.BBox
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return fmt.Errorf("degenerate bbox [%.1f %.1f %.1f %.1f]", b.X1, b.Y1, b.X2, b.Y2)
	}
	if b.X1 < 0 || b.Y1 < 0 {
		return fmt.Errorf("bbox has negative origin [%.1f %.1f]", b.X1, b.Y1)
	}
	if frameW > 0 && frameH > 0 {
		if b.X1 >= frameW || b.Y1 >= frameH {
			return fmt.Errorf("bbox origin outside %vx%v frame", frameW, frameH)
		}
	}
	if !d.Class.IsValid() {
		return fmt.Errorf("unknown vehicle class %q", d.Class)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", d.Confidence)
	}
	return nil
}
