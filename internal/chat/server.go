// Package chat implements broadcast chat server over stream transports.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/internal/chat/history"
	"github.com/wtask/chatrelay/internal/chat/transport"
	"github.com/wtask/chatrelay/pkg/background"
)

// Server - accepts connections from any number of listeners and relays
// every message received from one client to all others.
type Server struct {
	log            *slog.Logger
	events         chan<- broker.Event
	historyGreets  int
	maxClients     int
	sessionOptions []broker.SessionOption

	registry    *broker.Registry
	broadcaster *broker.Broadcaster

	mu        sync.Mutex
	stopped   bool
	addr      net.Addr
	listeners map[transport.Listener]struct{}
	acceptors *background.Scope
	sessions  *background.Scope
}

// NewServer - creates chat server which is ready to serve several listeners.
func NewServer(options ...Option) (*Server, error) {
	s := &Server{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		listeners: make(map[transport.Listener]struct{}),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}

	s.registry = broker.NewRegistry(s.maxClients)
	broadcasterOptions := []broker.BroadcasterOption{broker.WithLogger(s.log)}
	if s.events != nil {
		broadcasterOptions = append(broadcasterOptions, broker.WithEvents(s.events))
	}
	if s.historyGreets > 0 {
		stack, err := history.NewStack(s.historyGreets)
		if err != nil {
			return nil, fmt.Errorf("chat.NewServer: %w", err)
		}
		broadcasterOptions = append(broadcasterOptions, broker.WithHistory(stack, s.historyGreets))
	}
	b, err := broker.NewBroadcaster(s.registry, broadcasterOptions...)
	if err != nil {
		return nil, fmt.Errorf("chat.NewServer: can't build broadcaster: %w", err)
	}
	s.broadcaster = b
	s.acceptors, _ = background.NewScope()
	s.sessions, _ = background.NewScope()
	return s, nil
}

// Start - binds TCP address and serves it in background.
// Bind failure is returned as *transport.BindError.
func (s *Server) Start(bindAddress string) error {
	l, err := transport.Listen("tcp", bindAddress)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.addr == nil {
		s.addr = l.Addr()
	}
	s.mu.Unlock()
	s.acceptors.Go(func(ctx context.Context) {
		stop := context.AfterFunc(ctx, func() { l.Close() })
		defer stop()
		if err := s.Serve(l); err != nil {
			s.log.Error("accept loop stopped", "addr", l.Addr().String(), "error", err)
		}
	})
	return nil
}

// Addr - returns address bound by the first Start, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Len - returns number of connected clients.
func (s *Server) Len() int {
	return s.registry.Len()
}

// Serve - accepts connections from the listener until Stop.
// Returns nil after Stop, and error if the listener fails otherwise.
// The listener is closed on return.
func (s *Server) Serve(l transport.Listener) error {
	if l == nil {
		return errors.New("chat.Server: listener is nil")
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		l.Close()
		return ErrServerStopped
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
		l.Close()
	}()

	s.log.Info("listening", "addr", l.Addr().String())
	var delay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isStopped() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.log.Warn("accept failed", "addr", l.Addr().String(), "error", err, "retry", delay)
			select {
			case <-time.After(delay):
			case <-s.acceptors.Context().Done():
				return nil
			}
			continue
		}
		delay = 0
		s.keep(conn)
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// keep - registers session for the connection and runs it in background.
func (s *Server) keep(conn transport.Conn) {
	session, err := broker.NewSession(conn, s.broadcaster, s.sessionOptions...)
	if err != nil {
		s.log.Error("session rejected", "peer", conn.RemoteIdentifier(), "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	if err := s.broadcaster.Admit(session); err != nil {
		s.mu.Unlock()
		switch {
		case errors.Is(err, broker.ErrRegistryFull):
			s.log.Warn("max clients reached, connection rejected", "peer", session.ID(), "clients", s.registry.Len())
		default:
			s.log.Error("session rejected", "peer", session.ID(), "error", err)
		}
		conn.Close()
		return
	}
	s.sessions.Go(func(ctx context.Context) {
		stop := context.AfterFunc(ctx, func() { session.Close() })
		defer stop()
		session.Run()
	})
	s.mu.Unlock()
}

// Stop - stops accepting, forcibly closes every connected session
// and waits their termination no longer than timeout.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	listeners := make([]transport.Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	from := time.Now()
	s.log.Info("stopping", "clients", s.registry.Len())
	for _, l := range listeners {
		l.Close()
	}
	// every running session closes its transport
	s.sessions.Cancel()

	var err error
	if !s.sessions.Wait(timeout) {
		err = ErrStopTimeout
	}
	s.acceptors.Cancel()
	// accept loops return right after their listeners are closed
	rest := time.Until(from.Add(timeout))
	if rest < 50*time.Millisecond {
		rest = 50 * time.Millisecond
	}
	if !s.acceptors.Wait(rest) && err == nil {
		err = ErrStopTimeout
	}
	s.broadcaster.Close()
	s.log.Info("stopped", "elapsed", time.Since(from), "error", err)
	return err
}
