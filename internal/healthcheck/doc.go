// Package healthcheck implements periodic health checking for backend servers.
// Each backend gets its own long-lived loop that probes it, records the
// outcome as the backend's availability state and sleeps a fixed interval.
package healthcheck
