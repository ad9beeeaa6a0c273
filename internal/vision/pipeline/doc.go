// Package pipeline orchestrates per-frame processing for one tracking
// session.
//
// It wires the tracker, counting-line estimator, color classifier, and
// plate matcher into a single ProcessFrame entry point and emits
// immutable per-frame records to adapter sinks (persistence, publish).
// The pipeline does not own domain logic; it delegates to the vision
// packages and adapters.
package pipeline
