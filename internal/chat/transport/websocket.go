package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketListener - accepts chat peers over WebSocket upgrade requests.
// Every text or binary frame received from a peer is delivered as one read chunk.
type WebSocketListener struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	accepted chan Conn
	done     chan struct{}
	once     sync.Once
}

// ListenWebSocket - binds HTTP listener on the address and serves WebSocket upgrades on the path.
func ListenWebSocket(address, path string) (*WebSocketListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, &BindError{Network: "tcp", Address: address, Err: err}
	}
	if path == "" {
		path = "/"
	}
	wl := &WebSocketListener{
		listener: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// chat peers are not browsers bound to an origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		accepted: make(chan Conn),
		done:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, wl.handleUpgrade)
	wl.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go wl.server.Serve(l)
	return wl, nil
}

func (l *WebSocketListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already replied with an HTTP error
		return
	}
	conn := &wsConn{ws: ws, id: ws.RemoteAddr().String()}
	select {
	case l.accepted <- conn:
	case <-l.done:
		ws.Close()
	}
}

// Accept - waits for the next upgraded connection.
func (l *WebSocketListener) Accept() (Conn, error) {
	select {
	case c := <-l.accepted:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close - stops HTTP serving. Already accepted connections are not affected.
func (l *WebSocketListener) Close() error {
	err := net.ErrClosed
	l.once.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

// Addr - returns bound address.
func (l *WebSocketListener) Addr() net.Addr {
	return l.listener.Addr()
}

type wsConn struct {
	ws      *websocket.Conn
	id      string
	pending []byte
}

// Read - returns the next frame or the rest of previous frame which did not fit into p.
// Empty frames are skipped, zero-length read is reserved for a gone peer.
func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write - sends p as single text frame.
func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteIdentifier() string {
	return c.id
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
