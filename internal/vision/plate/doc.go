// Package plate owns license-plate reading normalization, format
// validation, and fuzzy matching against a known-plate list.
//
// Responsibilities: uppercasing and charset-stripping raw OCR text,
// country length profiles, and Levenshtein distance with reduced cost
// for glyph pairs OCR engines routinely confuse (0/O, 1/I, 5/S, 7/Z,
// 8/B).
// Key types: Matcher, Result, Format.
//
// Dependency rule: plate may depend on vision only.
// No SQL/database code is allowed in this package.
package plate
