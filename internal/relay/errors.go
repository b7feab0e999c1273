package relay

import (
	"fmt"
)

// BackendIOError reports a dial, write or read failure against a backend.
type BackendIOError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendIOError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendIOError) Unwrap() error {
	return e.Err
}

// ClientIOError reports a read or write failure on the client connection.
type ClientIOError struct {
	Op  string
	Err error
}

func (e *ClientIOError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *ClientIOError) Unwrap() error {
	return e.Err
}
