// Package main hosts the chartreel CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon (`serve`), the hidden render
// child (`render-job`) the daemon spawns per job, and thin HTTP clients for
// starting, polling, and cancelling renders against a running daemon. Cache
// maintenance, dependency checks, and configuration scaffolding run locally.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
