// Package vision owns the shared detection-domain types for the vision
// tree.
//
// Responsibilities: bounding boxes and centroids, vehicle class and size
// labels, plate readings, and detection validation.
// Key types: Detection, BBox, Point.
//
// Dependency rule: vision is the leaf of the vision tree; it must not
// import the track, kinematics, color, plate, or pipeline packages.
// No SQL/database code is allowed in this package.
package vision
