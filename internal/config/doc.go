// Package config loads validator configuration from a TOML file, an
// optional .env file and EBPV_* environment variables, fills defaults and
// validates the result.
//
// Precedence, lowest first: built-in defaults, the TOML file, environment
// variables (including those set from .env), command-line flags applied by
// the caller.
package config
