// Package config loads yogisync settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables. A .env file, when present, seeds the environment without
// overriding variables that are already set. The merged result is checked
// against an embedded CUE schema before use.
//
// An empty calendar id passes validation on purpose: it is reported by the
// reconciler as a configuration error only when a sync actually runs, so
// commands such as `status` and `export` work without one.
package config
