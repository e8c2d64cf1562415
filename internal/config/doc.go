// Package config loads, normalizes, and validates weatherflow configuration data.
//
// It supplies repository defaults, resolves project-relative paths (including
// tilde shortcuts), reads TOML files, and honours environment fallbacks such
// as WEATHERFLOW_PROJECT_DIR and WEATHERFLOW_REMOTE_ROOT. The Config type is
// the single place where container names, the compose project, and the
// cluster remote root are decided, so staging and retrieval can never
// disagree about where data lives.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
