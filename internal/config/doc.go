// Package config loads, validates, and normalizes splice configuration.
//
// Configuration is TOML with sane defaults for every field, so a missing
// config file is not an error. Paths are expanded (~, relative) during
// normalization and validation rejects values the engine cannot run with.
package config
