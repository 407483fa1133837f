// Package config loads, normalizes, and validates recflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RECFLOW_BOT_TOKEN and OPENROUTER_API_KEY. The Config type centralizes every
// knob the daemon and CLI need: the watched directory, the chat gateway, the
// tag vocabulary, reminder and delivery tuning, and the optional AI backend.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
