// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns the parsed Result; Prober narrows that
// to the one question the render pipeline asks, the playback duration of a
// narration asset.
package ffprobe
