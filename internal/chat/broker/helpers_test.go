package broker

import (
	"bytes"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtask/chatrelay/internal/chat/transport"
)

// recorder - collects everything written to the client side of a pipe.
type recorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// peer - the client end of an in-memory connection and the session serving it.
type peer struct {
	client   net.Conn
	session  *Session
	received *recorder
	result   chan error
}

func newPeer(test *testing.T, b *Broadcaster, id string, options ...SessionOption) *peer {
	test.Helper()
	client, server := net.Pipe()
	s, err := NewSession(transport.NewConnWithID(server, id), b, options...)
	require.NoError(test, err)
	p := &peer{client: client, session: s, received: &recorder{}, result: make(chan error, 1)}
	go io.Copy(p.received, client)
	test.Cleanup(func() { client.Close() })
	return p
}

// join - admits and runs the session, waits it becomes active.
func (p *peer) join(test *testing.T) *peer {
	test.Helper()
	require.NoError(test, p.session.broadcaster.Admit(p.session))
	go func() { p.result <- p.session.Run() }()
	require.Eventually(test, func() bool {
		return p.session.State() == StateActive
	}, time.Second, time.Millisecond)
	return p
}

func (p *peer) eventuallyReceives(test *testing.T, expected string) {
	test.Helper()
	require.Eventually(test, func() bool {
		return bytes.Contains([]byte(p.received.String()), []byte(expected))
	}, time.Second, time.Millisecond, "%s expected %q, received %q", p.session.ID(), expected, p.received.String())
}

func (p *peer) waitResult(test *testing.T) error {
	test.Helper()
	select {
	case err := <-p.result:
		return err
	case <-time.After(time.Second):
		test.Fatal(p.session.ID(), "session has not stopped")
		return nil
	}
}

// brokenConn - connection whose writes always fail and reads block until Close.
type brokenConn struct {
	id     string
	once   sync.Once
	closed chan struct{}
	mu     sync.Mutex
	writes int
}

func newBrokenConn(id string) *brokenConn {
	return &brokenConn{id: id, closed: make(chan struct{})}
}

func (c *brokenConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *brokenConn) Write([]byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return 0, syscall.EPIPE
}

func (c *brokenConn) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *brokenConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *brokenConn) RemoteIdentifier() string { return c.id }

func (c *brokenConn) SetWriteDeadline(time.Time) error { return nil }

// scriptedConn - returns prepared read result once, then blocks until Close.
type scriptedConn struct {
	brokenConn
	readErr error
	served  bool
}

func (c *scriptedConn) Read([]byte) (int, error) {
	c.mu.Lock()
	served := c.served
	c.served = true
	c.mu.Unlock()
	if !served {
		return 0, c.readErr
	}
	return c.brokenConn.Read(nil)
}

func (c *scriptedConn) Write(p []byte) (int, error) { return len(p), nil }

func newBroadcaster(test *testing.T, options ...BroadcasterOption) *Broadcaster {
	test.Helper()
	b, err := NewBroadcaster(NewRegistry(0), options...)
	require.NoError(test, err)
	test.Cleanup(b.Close)
	return b
}

// zeroConn - every read returns no data and no error.
type zeroConn struct {
	brokenConn
}

func (c *zeroConn) Read([]byte) (int, error) { return 0, nil }
