package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	// Crop payloads arrive as JPEG or PNG.
	_ "image/jpeg"
	_ "image/png"
)

// maxCropBytes caps decoded crop payloads. A vehicle crop is a small
// region of a video frame; anything larger is a malformed submission.
const maxCropBytes = 4 << 20

// DecodeCrop decodes the detection's base64 crop payload into Crop and
// clears the wire field. Detections without a payload are left alone.
func (d *Detection) DecodeCrop() error {
	if d.CropB64 == "" {
		return nil
	}
	payload := d.CropB64
	d.CropB64 = ""

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("crop is not valid base64: %w", err)
	}
	if len(raw) > maxCropBytes {
		return fmt.Errorf("crop payload is %d bytes, limit %d", len(raw), maxCropBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("crop is not a decodable image: %w", err)
	}

	d.Crop = img
	return nil
}
