package broker

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/chatrelay/internal/chat/transport"
)

func TestNewSession(test *testing.T) {
	b := newBroadcaster(test)
	_, err := NewSession(nil, b)
	assert.Error(test, err)
	_, err = NewSession(newBrokenConn("x"), nil)
	assert.Error(test, err)
	_, err = NewSession(newBrokenConn(""), b)
	assert.Error(test, err)

	for _, option := range []SessionOption{
		WithBufferSize(0),
		WithOutboxSize(-1),
		WithWriteTimeout(0),
	} {
		_, err = NewSession(newBrokenConn("x"), b, option)
		assert.Error(test, err)
	}

	s1, err := NewSession(newBrokenConn("127.0.0.1:1"), b, WithBufferSize(16), WithOutboxSize(2), WithWriteTimeout(time.Second))
	require.NoError(test, err)
	s2, err := NewSession(newBrokenConn("127.0.0.1:1"), b)
	require.NoError(test, err)
	assert.Equal(test, "127.0.0.1:1", s1.ID())
	assert.NotEqual(test, s1.Trace(), s2.Trace())
	assert.Equal(test, StateConnecting, s1.State())
	assert.Equal(test, 16, s1.bufSize)
	assert.Equal(test, 2, cap(s1.outbox))
}

func TestSession_TwoClientsScenario(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "127.0.0.1:5001").join(test)
	c := newPeer(test, b, "127.0.0.1:5002").join(test)
	a.eventuallyReceives(test, "\n[notice] 127.0.0.1:5002 joined\n")

	_, err := a.client.Write([]byte("hello"))
	require.NoError(test, err)
	c.eventuallyReceives(test, "[127.0.0.1:5001]: hello")
	time.Sleep(20 * time.Millisecond)
	assert.NotContains(test, a.received.String(), "hello")

	c.client.Close()
	assert.ErrorIs(test, c.waitResult(test), ErrPeerClosed)
	a.eventuallyReceives(test, "\n[notice] 127.0.0.1:5002 left\n")
	assert.Equal(test, 1, b.Registry().Len())
	assert.Equal(test, StateClosed, c.session.State())
	select {
	case <-c.session.Done():
	default:
		test.Error("Done() must be closed after Run")
	}
}

func TestSession_RunOnce(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "a").join(test)
	assert.ErrorIs(test, a.session.Run(), ErrSessionRunning)
}

func TestSession_CloseStopsRun(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "a").join(test)
	c := newPeer(test, b, "c").join(test)

	require.NoError(test, a.session.Close())
	assert.NoError(test, a.session.Close(), "repeated Close must be no-op")
	assert.ErrorIs(test, a.waitResult(test), ErrSessionClosed)
	assert.Equal(test, StateClosed, a.session.State())
	assert.ErrorIs(test, a.session.Deliver([]byte("late")), ErrSessionClosed)
	c.eventuallyReceives(test, "[notice] a left")
	_, ok := b.Registry().Get("a")
	assert.False(test, ok)
}

func TestSession_ReadErrors(test *testing.T) {
	cases := []struct {
		err   error
		reset bool
	}{
		{fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{errors.New("unexpected"), false},
	}
	for _, c := range cases {
		b := newBroadcaster(test)
		conn := &scriptedConn{brokenConn: brokenConn{id: "x", closed: make(chan struct{})}, readErr: c.err}
		s, err := NewSession(conn, b)
		require.NoError(test, err)
		require.NoError(test, b.Registry().Add(s))

		cause := s.Run()
		var readErr *PeerReadError
		require.True(test, errors.As(cause, &readErr), "unexpected cause %v", cause)
		assert.Equal(test, "x", readErr.ID)
		assert.ErrorIs(test, cause, c.err)
		assert.Equal(test, c.reset, readErr.Reset())
		assert.Zero(test, b.Registry().Len())
	}
}

func TestSession_SplitRuneIsRelayedWhole(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "a").join(test)
	c := newPeer(test, b, "c").join(test)

	text := []byte("世界")
	_, err := a.client.Write(text[:4])
	require.NoError(test, err)
	c.eventuallyReceives(test, "[a]: 世")
	_, err = a.client.Write(text[4:])
	require.NoError(test, err)
	c.eventuallyReceives(test, "[a]: 界")
}

func TestSession_ChunkIsOneMessage(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "a", WithBufferSize(4)).join(test)
	c := newPeer(test, b, "c").join(test)

	_, err := a.client.Write([]byte("abcdef"))
	require.NoError(test, err)
	c.eventuallyReceives(test, "[a]: abcd[a]: ef")
}

func TestSession_WriteTimeoutIsolatesSlowPeer(test *testing.T) {
	b := newBroadcaster(test)
	sender := newPeer(test, b, "sender").join(test)

	// nobody reads the slow client end, so every write hangs until its deadline
	slowClient, slowServer := net.Pipe()
	defer slowClient.Close()
	slow, err := NewSession(transport.NewConnWithID(slowServer, "slow"), b, WithWriteTimeout(20*time.Millisecond))
	require.NoError(test, err)
	require.NoError(test, b.Registry().Add(slow))
	go slow.Run()
	require.Eventually(test, func() bool { return slow.State() == StateActive }, time.Second, time.Millisecond)

	fast := newPeer(test, b, "fast").join(test)
	for i := 0; i < 5; i++ {
		b.Send([]byte(fmt.Sprintf("%d;", i)), sender.session, sender.session)
	}
	fast.eventuallyReceives(test, "0;1;2;3;4;")
	assert.Equal(test, StateActive, slow.State())
	slow.Close()
}

func TestSession_ZeroLengthReadEndsSession(test *testing.T) {
	b := newBroadcaster(test)
	a := newPeer(test, b, "a").join(test)
	s, err := NewSession(&zeroConn{brokenConn: brokenConn{id: "z", closed: make(chan struct{})}}, b)
	require.NoError(test, err)
	require.NoError(test, b.Admit(s))

	result := make(chan error, 1)
	go func() { result <- s.Run() }()
	select {
	case err := <-result:
		assert.ErrorIs(test, err, ErrPeerClosed)
	case <-time.After(time.Second):
		test.Fatal("session is still running after zero-length read")
	}
	assert.Equal(test, StateClosed, s.State())
	_, ok := b.Registry().Get("z")
	assert.False(test, ok)
	a.eventuallyReceives(test, "\n[notice] z left\n")
}
