package session

import (
	"sync"

	"github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/transport"
	"github.com/tui-server/secure-session/pkg/uuid"
)

// Connection is an authenticated, encrypted application-data channel
// established by a successful SPAKE2+ login or ECDHE+PSK resumption. Every
// Send/Receive is sealed with XChaCha20-Poly1305 under a key derived from
// the handshake's shared secret, independent of the counter-nonce AEAD used
// for the handshake's own confirmation tags.
type Connection struct {
	caller    uuid.CallerID
	conn      transport.Conn
	aead      *crypto.XAEAD
	plaintext bool

	mu      sync.Mutex
	closed  bool
	onClose func(uuid.CallerID)
}

// newConnection wraps a transport.Conn and traffic key into a Connection
// identified by caller. If plaintext is true (the client asked to turn off
// encryption during protocol negotiation), Send/Receive pass application
// records through the raw transport unsealed; the negotiation exchange
// itself was still encrypted regardless. onClose, if non-nil, runs exactly
// once when Close is first called, letting a Server deregister the
// connection.
func newConnection(caller uuid.CallerID, conn transport.Conn, trafficKey []byte, plaintext bool, onClose func(uuid.CallerID)) (*Connection, error) {
	aead, err := crypto.NewXAEAD(trafficKey)
	if err != nil {
		return nil, err
	}
	return &Connection{caller: caller, conn: conn, aead: aead, plaintext: plaintext, onClose: onClose}, nil
}

// CallerID identifies the user and connection this channel belongs to.
func (c *Connection) CallerID() uuid.CallerID {
	return c.caller
}

// Send encrypts and transmits an application record.
func (c *Connection) Send(plaintext []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}
	if c.plaintext {
		return c.conn.Send(plaintext)
	}
	sealed, err := c.aead.Seal(plaintext, nil)
	if err != nil {
		return err
	}
	return c.conn.Send(sealed)
}

// Receive blocks for and decrypts the next application record.
func (c *Connection) Receive() ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrConnectionClosed
	}
	raw, err := c.conn.Recv()
	if err != nil {
		return nil, err
	}
	if c.plaintext {
		return raw, nil
	}
	return c.aead.Open(raw, nil)
}

// Close tears down the underlying transport and runs the registered
// deregistration callback exactly once. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose(c.caller)
	}
	return c.conn.Close()
}
