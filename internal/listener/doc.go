// Package listener binds the service port and dispatches every accepted
// connection to its own goroutine.
package listener
