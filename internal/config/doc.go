// Package config loads, normalizes, and validates recordsync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// XDG_STATE_HOME and RECORDSYNC_NTFY_TOPIC. Gate, mirror and metrics paths
// default to files under the state directory so a config that only sets
// paths.state_dir is complete.
package config
