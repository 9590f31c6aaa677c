// Package config provides centralized configuration management for the n6
// security-event exchange pipeline.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file (found via CONFIG_PATH or DefaultConfigPaths), then environment
// variables, which always win. Each pipeline stage and service reads its own
// sub-struct off the shared Config type; a binary that only runs one stage
// (e.g. n6-aggregator) only touches the fields it needs.
package config
