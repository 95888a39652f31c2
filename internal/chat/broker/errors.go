package broker

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrDuplicateSession - returns when session with the same identifier is registered already.
	// It signals address reuse or a bug, the rejected connection should be closed by the caller.
	ErrDuplicateSession = errors.New("broker.Registry: session is registered already")

	// ErrRegistryFull - returns when registry capacity is exhausted.
	ErrRegistryFull = errors.New("broker.Registry: capacity is exhausted")

	// ErrSessionClosed - returns when session does not accept deliveries or registration anymore.
	// Also reported by Run when the session was closed from the outside (server shutdown).
	ErrSessionClosed = errors.New("broker.Session: closed")

	// ErrSessionRunning - returns on repeated Run call.
	ErrSessionRunning = errors.New("broker.Session: already running")

	// ErrOutboxFull - returns when recipient does not drain its outbox fast enough.
	ErrOutboxFull = errors.New("broker.Session: outbox is full")

	// ErrPeerClosed - the peer has closed connection cleanly.
	ErrPeerClosed = errors.New("broker.Session: peer closed connection")
)

// DuplicateSessionError - registry invariant violation for particular session identifier.
type DuplicateSessionError struct {
	ID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateSession, e.ID)
}

// Is - makes errors.Is(err, ErrDuplicateSession) true.
func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// PeerReadError - read from peer has failed with anything except clean close.
type PeerReadError struct {
	ID  string
	Err error
}

func (e *PeerReadError) Error() string {
	return fmt.Sprintf("broker.Session: read from %s failed: %v", e.ID, e.Err)
}

func (e *PeerReadError) Unwrap() error {
	return e.Err
}

// Reset - reports whether the peer has reset connection.
func (e *PeerReadError) Reset() bool {
	return errors.Is(e.Err, syscall.ECONNRESET)
}

// DeliveryError - failure to deliver a broadcast payload to single recipient.
// It is only logged and never propagated to the sender.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("broker: delivery to %s failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
