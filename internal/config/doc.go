// Package config loads, validates and normalizes sbomflow configuration
// from TOML files, providing defaults for anything unset.
package config
