package messages

import "fmt"

// ErrTruncated is returned when a message ends before its payload is
// complete, or when a compressed payload fails to decompress.
type ErrTruncated struct{}

func (e *ErrTruncated) Error() string {
	return "message is truncated"
}

// ErrInvalidTag is returned when a message carries an unknown type tag.
type ErrInvalidTag struct {
	Tag uint8
}

func (e *ErrInvalidTag) Error() string {
	return fmt.Sprintf("unknown message tag %d", e.Tag)
}

// ErrVersionMismatch is returned when a message carries a schema version
// this build does not speak.
type ErrVersionMismatch struct {
	Got uint8
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("message schema version %d, this build speaks %d", e.Got, ProtocolVersion)
}
