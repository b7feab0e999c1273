// Package httpserver runs the admin HTTP endpoint that exposes metrics and
// backend state. It is separate from the TCP data path.
package httpserver
