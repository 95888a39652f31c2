package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wtask/chatrelay/internal/chat/history"
)

// BroadcasterOption - configures Broadcaster at construction.
type BroadcasterOption func(b *Broadcaster) error

// SessionOption - configures Session at construction.
type SessionOption func(s *Session) error

// WithLogger - attaches structured logger to Broadcaster and every session which uses it.
func WithLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) error {
		if logger == nil {
			return errors.New("broker.WithLogger: logger is nil")
		}
		b.log = logger
		return nil
	}
}

// WithEvents - attaches channel to be notified of join, leave and message events.
// Notification never blocks a session, undelivered events are dropped on Broadcaster.Close.
func WithEvents(events chan<- Event) BroadcasterOption {
	return func(b *Broadcaster) error {
		if b.events != nil {
			return errors.New("broker.WithEvents: events channel already set up")
		}
		b.events = events
		return nil
	}
}

// WithHistory - keeps chat payloads in the stack and replays up to greets of them to every newly joined session.
func WithHistory(stack *history.Stack, greets int) BroadcasterOption {
	return func(b *Broadcaster) error {
		if stack == nil {
			return errors.New("broker.WithHistory: stack is nil")
		}
		if greets < 0 {
			return fmt.Errorf("broker.WithHistory: invalid greets value (%d)", greets)
		}
		b.history = stack
		b.greets = greets
		return nil
	}
}

// WithBufferSize - overwrites default size of single read, it is also the max size of one chat message.
func WithBufferSize(size int) SessionOption {
	return func(s *Session) error {
		if size <= 0 {
			return fmt.Errorf("broker.WithBufferSize: invalid size (%d)", size)
		}
		s.bufSize = size
		return nil
	}
}

// WithOutboxSize - overwrites default length of session send queue.
func WithOutboxSize(size int) SessionOption {
	return func(s *Session) error {
		if size <= 0 {
			return fmt.Errorf("broker.WithOutboxSize: invalid size (%d)", size)
		}
		s.outboxSize = size
		return nil
	}
}

// WithWriteTimeout - overwrites default deadline of every single write to the peer.
func WithWriteTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) error {
		if timeout <= 0 {
			return fmt.Errorf("broker.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		s.writeTimeout = timeout
		return nil
	}
}
