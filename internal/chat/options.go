package chat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wtask/chatrelay/internal/chat/broker"
)

// Option - configures Server at construction.
type Option func(s *Server) error

// WithLogger - attaches structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("chat.WithLogger: logger is nil")
		}
		s.log = logger
		return nil
	}
}

// WithEvents - attaches channel to be notified of session events.
func WithEvents(events chan<- broker.Event) Option {
	return func(s *Server) error {
		if events == nil {
			return errors.New("chat.WithEvents: events channel is nil")
		}
		s.events = events
		return nil
	}
}

// WithHistoryGreets - replays up to n recent chat messages to every newly connected client.
// Zero value disables history.
func WithHistoryGreets(n int) Option {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("chat.WithHistoryGreets: invalid value (%d)", n)
		}
		s.historyGreets = n
		return nil
	}
}

// WithMaxClients - limits number of simultaneously connected clients.
// Zero value means unlimited.
func WithMaxClients(n int) Option {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("chat.WithMaxClients: invalid value (%d)", n)
		}
		s.maxClients = n
		return nil
	}
}

// WithSessionOptions - options applied to every accepted session.
func WithSessionOptions(options ...broker.SessionOption) Option {
	return func(s *Server) error {
		s.sessionOptions = append(s.sessionOptions, options...)
		return nil
	}
}
