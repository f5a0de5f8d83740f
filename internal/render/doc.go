// Package render implements the render job that runs in the child process
// started by the supervisor.
//
// A job loads the saved props, resolves every narration segment through the
// audio cache (rewriting /api/tts URLs to /audio/<digest>.mp3 and filling in
// probed durations), stages the assets, drives the external bundler, copies
// the assets into the bundle, computes the composition, and drives the
// external renderer. Progress and fatal errors are written to stdout as
// progress events; logs go to stderr.
package render
