// Package relay implements the per-connection protocol: read the client's
// request up to the first blank line (\r\n\r\n) or client close, pick a
// backend from the pool, forward the bytes, read the backend's response until
// it closes, and write that response back to the client.
//
// Errors abort only the connection they occur on. Backend I/O failures are
// reported but never change a backend's availability; that is left to the
// health checker.
package relay
