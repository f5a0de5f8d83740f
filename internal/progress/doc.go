// Package progress defines the line protocol between the render job and its
// supervisor.
//
// The job writes one JSON event per line on stdout (version 1). The parser also
// accepts the older free-text markers ("Rendering: 42% (120/300 frames)") so
// adapter scripts that print them keep working. Overall maps a phase-local
// percentage onto the fixed 0-100 scale the status endpoint reports.
package progress
