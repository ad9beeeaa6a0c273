// Package track owns vehicle track state and frame-to-frame association.
//
// Responsibilities: greedy nearest-centroid association with a distance
// gate, track lifecycle (creation, miss counting, expiry), bounded
// centroid history, and the write-once/improve-only estimate fields.
// Key types: Track, Tracker, History.
//
// Dependency rule: track may depend on vision, but never on kinematics,
// color, plate, or pipeline.
// No SQL/database code is allowed in this package.
package track
