// Package kinematics owns counting-line crossing detection and the
// one-shot speed and direction estimates.
//
// Responsibilities: deciding whether a track's two most recent centroids
// bracket the configured counting line, converting the bracketing pixel
// displacement into km/h via the pixels-per-meter and fps calibration,
// and deriving the travel direction from the dominant displacement axis.
// Key types: Params, Estimate.
//
// Dependency rule: kinematics may depend on vision and track, but never
// on color, plate, or pipeline.
// No SQL/database code is allowed in this package.
package kinematics
