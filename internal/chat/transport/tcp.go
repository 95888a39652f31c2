package transport

import (
	"net"
)

type tcpConn struct {
	net.Conn
	id string
}

// NewConn - wraps net.Conn, the identifier is taken from its remote address.
func NewConn(c net.Conn) Conn {
	return &tcpConn{Conn: c, id: c.RemoteAddr().String()}
}

// NewConnWithID - wraps net.Conn with explicit peer identifier.
// Useful for in-memory connections (net.Pipe) which have no real address.
func NewConnWithID(c net.Conn, id string) Conn {
	return &tcpConn{Conn: c, id: id}
}

func (c *tcpConn) RemoteIdentifier() string {
	return c.id
}

type tcpListener struct {
	net.Listener
}

// Listen - binds stream listener (usually "tcp") to the address.
// Any bind failure is reported as *BindError.
func Listen(network, address string) (Listener, error) {
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, &BindError{Network: network, Address: address, Err: err}
	}
	return &tcpListener{l}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}
