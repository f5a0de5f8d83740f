// Package api defines the wire-format types shared by the daemon's HTTP
// handlers and the CLI client. It translates supervisor snapshots and history
// rows into transport-friendly DTOs so consumers never couple to internal
// types.
//
// DTOs use camelCase JSON tags for the browser editor. Timestamps are RFC3339
// with milliseconds. The render status payload keeps the editor's original
// shape ({status, progress, error}) with error null when there is none; the
// extra fields are additive.
package api
