package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
)

// TCPConfig configures a TCP Listener.
type TCPConfig struct {
	// ListenAddr is the address to listen on, e.g. ":4443".
	ListenAddr string
	// LoggerFactory builds the scoped logger used for connection
	// lifecycle events. May be nil to disable logging.
	LoggerFactory logging.LoggerFactory
}

// TCPListener accepts TCP connections and frames each one with a 4-byte
// big-endian length prefix.
type TCPListener struct {
	listener net.Listener
	log      logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// ListenTCP opens a TCP listener per cfg.
func ListenTCP(cfg TCPConfig) (*TCPListener, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	t := &TCPListener{listener: ln}
	if cfg.LoggerFactory != nil {
		t.log = cfg.LoggerFactory.NewLogger("transport-tcp")
	}
	if t.log != nil {
		t.log.Infof("listening on %s", ln.Addr())
	}
	return t, nil
}

// Accept blocks for the next incoming connection.
func (t *TCPListener) Accept() (Conn, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, err
	}
	if t.log != nil {
		t.log.Debugf("accepted connection from %s", conn.RemoteAddr())
	}
	return &framedConn{conn: conn, log: t.log}, nil
}

// Close stops accepting new connections.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.listener.Close()
}

// Addr returns the local listening address.
func (t *TCPListener) Addr() string {
	return t.listener.Addr().String()
}

// DialTCP connects to a TCP listener started with ListenTCP.
func DialTCP(addr string, loggerFactory logging.LoggerFactory) (Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("transport-tcp")
	}
	return &framedConn{conn: conn, log: log}, nil
}

// framedConn wraps a net.Conn (TCP or otherwise stream-oriented) with a
// 4-byte big-endian length prefix per frame.
type framedConn struct {
	conn net.Conn
	log  logging.LeveledLogger

	writeMu sync.Mutex
}

func (f *framedConn) Send(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return ErrMessageTooLarge
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := f.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := f.conn.Write(frame)
	return err
}

func (f *framedConn) Recv() (frame []byte, err error) {
	defer func() {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			err = ErrClosed
		}
	}()
	var header [4]byte
	if _, err := io.ReadFull(f.conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, ErrMessageTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(f.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (f *framedConn) Close() error {
	if f.log != nil {
		f.log.Debugf("closing connection to %s", f.conn.RemoteAddr())
	}
	return f.conn.Close()
}

func (f *framedConn) RemoteAddr() string {
	return f.conn.RemoteAddr().String()
}
