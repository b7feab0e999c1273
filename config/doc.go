// Package config loads the balancer configuration from defaults, a YAML file,
// TCPLB_* environment variables and command-line flags, and validates it.
// It also owns the socket-address predicate used to filter the backend list
// before the pool is built.
package config
