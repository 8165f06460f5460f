package transport

import "net"

// NewPipe returns a connected pair of in-memory Conns, framed the same way
// as a TCP connection. It is used by tests and by same-process client/server
// wiring that doesn't need a real socket.
func NewPipe() (client, server Conn) {
	c, s := net.Pipe()
	return &framedConn{conn: c}, &framedConn{conn: s}
}
