package network

import "fmt"

// ErrTimeout means the server did not answer within the dial or handshake
// deadline.
type ErrTimeout struct{}

func (e *ErrTimeout) Error() string {
	return "timed out waiting for server"
}

// ErrRefused means the server could be reached but rejected or dropped the
// connection attempt.
type ErrRefused struct {
	Err error
}

func (e *ErrRefused) Error() string {
	return fmt.Sprintf("connection refused: %v", e.Err)
}

// ErrConnectionClosed means an operation was attempted on a manager that is
// not connected.
type ErrConnectionClosed struct{}

func (e *ErrConnectionClosed) Error() string {
	return "connection closed"
}
