// Package daemon coordinates the long-running chartreel process.
//
// It wires configuration, the audio cache, the props store, the render
// supervisor, and the run history into a single lifecycle with flock-based
// locking so two daemons never share the output and props files. The HTTP
// surface the editor talks to lives in api_server.go; rendering itself
// happens in a child process owned by the supervisor.
//
// Keep orchestration logic here: the pipeline steps live in their own
// packages while the daemon focuses on startup, shutdown, and routing.
package daemon
