// Package materialize copies cached audio assets into the directories the
// preview server and the bundler read from.
//
// Copies are idempotent and atomic: a destination that already exists is left
// alone, and new files appear through a temp file plus rename. Per-file
// failures never abort the batch; they are logged and returned in a Report so
// the render can proceed with whatever assets did land.
package materialize
