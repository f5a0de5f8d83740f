// Package history records render runs in a small SQLite database so the CLI
// and API can list recent jobs and their outcome after a daemon restart.
package history
