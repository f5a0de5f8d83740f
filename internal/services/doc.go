// Package services defines shared utilities consumed by the render pipeline
// components and the HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline phases, segment indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures stay
//     classifiable with errors.Is and map onto consistent HTTP statuses.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across the daemon and the render job.
package services
