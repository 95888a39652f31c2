// Package transport adapts byte-stream connections to the minimal contract
// the chat broker relies on: accept, read, write, close and a peer identifier.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Conn - accepted duplex connection with one remote peer.
type Conn interface {
	io.ReadWriteCloser
	// RemoteIdentifier - returns peer identifier in form of "ip:port".
	RemoteIdentifier() string
	// SetWriteDeadline - bounds the next Write call.
	SetWriteDeadline(t time.Time) error
}

// Listener - source of accepted connections.
// After Close, Accept returns an error matching net.ErrClosed.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// BindError - returned when a listener can not be bound to the requested address.
type BindError struct {
	Network string
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("transport: unable to bind %s %s: %v", e.Network, e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// IsBindError - reports whether err is (or wraps) *BindError.
func IsBindError(err error) bool {
	var be *BindError
	return errors.As(err, &be)
}
