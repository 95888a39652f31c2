// Package broker keeps chat sessions and relays messages between them.
package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wtask/chatrelay/internal/chat/history"
	"github.com/wtask/chatrelay/internal/chat/message"
)

// Broadcaster - fans payloads out to registry members.
// Every recipient is served independently: delivery only enqueues the payload
// into recipient outbox, writes are made by recipient own writer with a deadline.
type Broadcaster struct {
	registry *Registry
	log      *slog.Logger
	events   chan<- Event
	history  *history.Stack
	greets   int

	// admission orders history pushes and registry snapshots against newcomers
	admission sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewBroadcaster - builds Broadcaster over the registry.
func NewBroadcaster(registry *Registry, options ...BroadcasterOption) (*Broadcaster, error) {
	if registry == nil {
		return nil, errors.New("broker.NewBroadcaster: registry is nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		registry: registry,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			cancel()
			return nil, err
		}
	}
	return b, nil
}

// Registry - returns underlying registry.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// Send - delivers payload to every registered session except excluding one.
// Sender (if any) is the author of chat payload, it is recorded in history.
// Per-recipient failures are logged and never abort the fan-out.
// Returns number of recipients the payload was handed to.
func (b *Broadcaster) Send(payload []byte, sender, excluding *Session) int {
	if len(payload) == 0 {
		return 0
	}
	b.admission.Lock()
	if sender != nil && b.history != nil {
		b.history.Push(payload)
	}
	recipients := b.registry.Snapshot()
	b.admission.Unlock()

	delivered := 0
	for _, recipient := range recipients {
		if excluding != nil && recipient.ID() == excluding.ID() {
			continue
		}
		if err := recipient.Deliver(payload); err != nil {
			b.deliveryFailed(recipient, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) deliveryFailed(recipient *Session, err error) {
	if errors.Is(err, ErrSessionClosed) {
		// recipient is leaving right now
		b.log.Debug("skip closed recipient", "session", recipient.ID())
		return
	}
	b.log.Warn(
		"delivery failed",
		"session", recipient.ID(),
		"trace", recipient.Trace(),
		"error", &DeliveryError{Recipient: recipient.ID(), Err: err},
	)
}

// Announce - broadcasts join or leave notice about the subject to everyone else.
func (b *Broadcaster) Announce(kind message.NoticeKind, subject *Session) int {
	if subject == nil {
		return 0
	}
	return b.Send(message.Notice(kind, subject.ID()), nil, subject)
}

// Admit - registers the session and queues recent chat history for it.
// Every chat message reaches the newcomer once: either within the greeting or by Send.
func (b *Broadcaster) Admit(s *Session) error {
	if s == nil {
		return errors.New("broker.Broadcaster: session is nil")
	}
	b.admission.Lock()
	defer b.admission.Unlock()
	if err := b.registry.Add(s); err != nil {
		return err
	}
	// fresh outbox has room for the whole greeting
	b.greet(s, s.outboxSize)
	return nil
}

// Greet - delivers recent chat history directly to the session.
// No-op for the session greeted already, admitted one in particular.
func (b *Broadcaster) Greet(s *Session) int {
	if s == nil {
		return 0
	}
	return b.greet(s, b.greets)
}

func (b *Broadcaster) greet(s *Session, limit int) int {
	if !s.greeted.CompareAndSwap(false, true) {
		return 0
	}
	if b.history == nil || b.greets == 0 {
		return 0
	}
	delivered := 0
	for _, payload := range b.history.Tail(min(b.greets, limit)) {
		if err := s.Deliver(payload); err != nil {
			b.deliveryFailed(s, err)
			break
		}
		delivered++
	}
	return delivered
}

// notify - propagates event without blocking the caller.
func (b *Broadcaster) notify(event Event) {
	if b.events == nil {
		return
	}
	if event.OriginTime.IsZero() {
		event.OriginTime = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case b.events <- event:
		case <-b.ctx.Done():
		}
	}()
}

// Close - drops pending event notifications and waits their goroutines.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}
