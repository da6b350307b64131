// Package config loads, validates, and normalizes reelpipe configuration
// from TOML. Defaults live in defaults.go; the annotated sample written by
// `reelpipe config init` is embedded from sample_config.toml.
package config
