// Package transport provides the length-prefixed, connection-oriented byte
// stream that carries handshake and session traffic. It knows nothing about
// handshaketlv framing, SPAKE2+, or AEAD: it only guarantees that whatever
// byte slice one side sends via Conn.Send arrives whole and in order at the
// other side's Conn.Recv.
package transport

// MaxFrameSize bounds a single frame's payload to guard against a peer
// claiming an unreasonable length and exhausting memory before the real
// bytes are even read.
const MaxFrameSize = 16 * 1024 * 1024

// Conn is one established, ordered, reliable byte-stream connection.
type Conn interface {
	// Send writes one frame. It blocks until the frame (or an error) is
	// fully written.
	Send(frame []byte) error
	// Recv reads the next whole frame. It blocks until a frame arrives,
	// the connection is closed, or an error occurs.
	Recv() ([]byte, error)
	// Close releases the connection's resources. Recv calls blocked on
	// this connection return ErrClosed.
	Close() error
	// RemoteAddr identifies the peer for logging purposes.
	RemoteAddr() string
}

// Listener accepts incoming Conns.
type Listener interface {
	// Accept blocks until a new Conn is established or the listener is
	// closed.
	Accept() (Conn, error)
	// Close stops accepting new connections.
	Close() error
	// Addr identifies the local listening address for logging purposes.
	Addr() string
}
