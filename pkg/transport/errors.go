package transport

import "errors"

// Transport package errors.
var (
	// ErrClosed is returned by Conn.Recv once the connection has been closed
	// locally. Send and Accept return the underlying network error instead.
	ErrClosed = errors.New("transport: closed")

	// ErrMessageTooLarge is returned when a frame's declared length exceeds
	// MaxFrameSize.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrInvalidFrame is returned when a length-prefixed frame cannot be
	// parsed off the wire.
	ErrInvalidFrame = errors.New("transport: invalid frame")
)
