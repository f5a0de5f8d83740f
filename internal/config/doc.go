// Package config loads, normalizes, and validates chartreel's TOML
// configuration.
//
// Load resolves the config file (explicit path, ~/.config/chartreel, or a
// project-local chartreel.toml), loads optional .env secrets, applies
// defaults, expands paths, and validates the result. Derived locations such as
// the props file, the output artifact, and the audio directories are exposed
// as methods so the daemon and the render job agree on them.
package config
