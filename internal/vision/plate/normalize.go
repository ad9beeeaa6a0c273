package plate

import (
	"fmt"
	"strings"
)

// Allowed is the plate reading alphabet. European plates avoid I, O,
// and U to reduce confusion with 1, 0, and V; dash and space are
// separators and never survive normalization.
const Allowed = "ABCDEFGHJKLMNPQRSTVWXYZ0123456789- "

// MinLength is the shortest plausible plate after normalization.
// Anything shorter is treated as a false OCR detection.
const MinLength = 4

// Format selects a country length profile for validation.
type Format string

const (
	FormatEU Format = "eu" // generic European, 6-9 characters
	FormatFR Format = "fr" // French AB-123-CD, 7 without separators
	FormatRO Format = "ro" // Romanian B-123-ABC, 7-8 without separators
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	return f == FormatEU || f == FormatFR || f == FormatRO
}

// Normalize uppercases a raw OCR reading, strips characters outside the
// allowed alphabet, and drops separators. The result may be shorter
// than the input; ValidateFormat decides whether it is still a plate.
func Normalize(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(up))
	for _, r := range up {
		if r == '-' || r == ' ' {
			continue
		}
		if strings.ContainsRune(Allowed, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalizeKnown prepares a trusted known plate for matching:
// uppercase, separators removed, charset untouched. Known plates may
// legitimately contain letters the OCR alphabet excludes.
func CanonicalizeKnown(plate string) string {
	up := strings.ToUpper(strings.TrimSpace(plate))
	up = strings.ReplaceAll(up, "-", "")
	return strings.ReplaceAll(up, " ", "")
}

// ValidateFormat rejects normalized text whose length does not fit the
// format's profile.
func ValidateFormat(text string, f Format) error {
	if len(text) < MinLength {
		return fmt.Errorf("plate %q shorter than %d characters", text, MinLength)
	}
	switch f {
	case FormatEU:
		if len(text) < 6 || len(text) > 9 {
			return fmt.Errorf("plate %q outside EU length 6-9", text)
		}
	case FormatFR:
		if len(text) != 7 {
			return fmt.Errorf("plate %q not 7 characters (FR)", text)
		}
	case FormatRO:
		if len(text) < 7 || len(text) > 8 {
			return fmt.Errorf("plate %q outside RO length 7-8", text)
		}
	}
	return nil
}
