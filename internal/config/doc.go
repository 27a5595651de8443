// Package config loads, normalizes, and validates shortsfactory configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// credentials such as SHORTSFACTORY_S3_SECRET_KEY and NTFY_TOPIC. The Config
// type centralizes every knob the daemon and CLI need so the inbox, storage,
// pipeline timing, publish cadence and video constraints are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
