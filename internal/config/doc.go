// Package config loads and validates the daemon's startup configuration from
// JSON files, applying sensible defaults for fields the operator omits.
package config
