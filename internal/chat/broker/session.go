package broker

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wtask/chatrelay/internal/chat/message"
	"github.com/wtask/chatrelay/internal/chat/transport"
)

// Session - server side state of one accepted connection.
// Run owns the receive loop, outgoing payloads are queued and written by a dedicated writer.
type Session struct {
	id, trace   string
	conn        transport.Conn
	registry    *Registry
	broadcaster *Broadcaster
	log         *slog.Logger

	bufSize, outboxSize int
	writeTimeout        time.Duration

	state   atomic.Int32
	running atomic.Bool
	greeted atomic.Bool
	outbox  chan []byte
	// done - closed when the session stops accepting deliveries
	done      chan struct{}
	closeOnce sync.Once
	// closed - closed when Run has returned
	closed chan struct{}
	writer sync.WaitGroup
}

// NewSession - wraps accepted connection.
// The session is not registered, the caller registers it before Run.
func NewSession(conn transport.Conn, b *Broadcaster, options ...SessionOption) (*Session, error) {
	if conn == nil {
		return nil, errors.New("broker.NewSession: connection is nil")
	}
	if b == nil {
		return nil, errors.New("broker.NewSession: broadcaster is nil")
	}
	id := conn.RemoteIdentifier()
	if id == "" {
		return nil, errors.New("broker.NewSession: connection has empty identifier")
	}
	s := &Session{
		id:           id,
		trace:        uuid.NewString(),
		conn:         conn,
		registry:     b.registry,
		broadcaster:  b,
		bufSize:      1024,
		outboxSize:   64,
		writeTimeout: 10 * time.Second,
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}
	s.outbox = make(chan []byte, s.outboxSize)
	s.log = b.log.With("session", s.id, "trace", s.trace)
	return s, nil
}

// ID - peer identifier ("ip:port").
func (s *Session) ID() string {
	return s.id
}

// Trace - unique random identifier of the session, differs even for reused peer address.
func (s *Session) Trace() string {
	return s.trace
}

// State - current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done - closed after Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Deliver - enqueues payload for the peer.
// When the outbox is full it blocks up to the write timeout and then gives up with ErrOutboxFull.
func (s *Session) Deliver(payload []byte) error {
	if s.stopped() {
		return ErrSessionClosed
	}
	select {
	case s.outbox <- payload:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	// the writer is behind, wait no longer than a single write may take
	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()
	select {
	case s.outbox <- payload:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-timer.C:
		return ErrOutboxFull
	}
}

// Close - forcibly closes the transport, pending Read in Run returns an error.
// Intended for coordinated server shutdown, safe to call many times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Run - announces the session, relays every inbound chunk to other sessions
// and cleans up after the peer is gone. Blocks for the session lifetime.
// Returns the cause of termination: ErrPeerClosed, *PeerReadError
// or ErrSessionClosed if the session was closed by Close.
func (s *Session) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer close(s.closed)

	s.writer.Add(1)
	go func() {
		defer s.writer.Done()
		s.maintainOutbox()
	}()

	s.broadcaster.Greet(s)
	s.broadcaster.Announce(message.NoticeJoin, s)
	s.state.Store(int32(StateActive))
	s.log.Info("session joined", "clients", s.registry.Len())
	s.broadcaster.notify(Event{Kind: EventJoin, Session: s.id, Trace: s.trace})

	cause := s.maintainInbox()

	s.state.Store(int32(StateClosing))
	s.registry.Remove(s)
	s.broadcaster.Announce(message.NoticeLeave, s)
	s.Close()
	s.writer.Wait()
	s.state.Store(int32(StateClosed))

	s.logLeave(cause)
	s.broadcaster.notify(Event{Kind: EventLeave, Session: s.id, Trace: s.trace, Reason: cause})
	return cause
}

func (s *Session) maintainInbox() error {
	builder := message.Builder{}
	buf := make([]byte, s.bufSize)
	for {
		n, err := s.conn.Read(buf)
		if n == 0 && err == nil {
			// zero-length read means the peer is gone
			err = io.EOF
		}
		if n > 0 {
			if text := builder.Write(buf[:n]); len(text) > 0 {
				s.relay(text)
			}
		}
		if err != nil {
			if builder.Pending() > 0 {
				s.log.Debug("unfinished utf-8 sequence dropped", "bytes", builder.Pending())
			}
			return s.readFailure(err)
		}
	}
}

func (s *Session) relay(text []byte) {
	payload := message.Chat(s.id, text)
	recipients := s.broadcaster.Send(payload, s, s)
	s.log.Debug("message relayed", "text", string(text), "recipients", recipients)
	s.broadcaster.notify(Event{Kind: EventMessage, Session: s.id, Trace: s.trace, Payload: payload})
}

func (s *Session) readFailure(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	if s.stopped() {
		return ErrSessionClosed
	}
	return &PeerReadError{ID: s.id, Err: err}
}

func (s *Session) logLeave(cause error) {
	clients := s.registry.Len()
	var readErr *PeerReadError
	switch {
	case errors.Is(cause, ErrPeerClosed):
		s.log.Info("session left", "clients", clients)
	case errors.Is(cause, ErrSessionClosed):
		s.log.Info("session closed by server", "clients", clients)
	case errors.As(cause, &readErr) && readErr.Reset():
		s.log.Info("session reset by peer", "clients", clients)
	default:
		s.log.Warn("session dropped", "clients", clients, "error", cause)
	}
}

// maintainOutbox - writes queued payloads until the session is closed.
// A failed write is only logged: the dead peer is unregistered by its own receive loop.
func (s *Session) maintainOutbox() {
	for {
		select {
		case payload := <-s.outbox:
			s.write(payload)
		case <-s.done:
			return
		}
	}
}

func (s *Session) write(payload []byte) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.log.Debug("unable to set write deadline", "error", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		if s.stopped() {
			return
		}
		s.log.Warn("delivery failed", "error", &DeliveryError{Recipient: s.id, Err: err})
	}
}
