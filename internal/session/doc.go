// Package session owns the lifecycle of tracking sessions.
//
// Responsibilities: session creation with validated configuration,
// serialized frame submission per session, closing with live-track
// discard, and the live session registry shared by the HTTP and
// WebSocket surfaces.
// Key types: Session, Manager.
//
// Dependency rule: session may depend on config, monitoring, and the
// vision pipeline, but never on the api, ws, or db packages.
// No SQL/database code is allowed in this package.
package session
