package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// maxIdleConns bounds the connections kept open between lines
const maxIdleConns = 8

// WebSocketRelay writes each line as a JSON text frame to <base>/worker/results.
// Connections are pooled: a sender takes an idle connection or dials a new
// one, so concurrent jobs never wait on each other's dial or write. A failed
// connection is discarded along with its line.
type WebSocketRelay struct {
	url      string
	timeout  time.Duration
	observer Observer
	dialer   *websocket.Dialer
	idle     chan *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWebSocketRelay creates a websocket relay. http(s) base URLs are mapped
// to ws(s).
func NewWebSocketRelay(baseURL string, timeout time.Duration, observer Observer) *WebSocketRelay {
	u := baseURL + ResultsPath
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	}
	return &WebSocketRelay{
		url:      u,
		timeout:  timeout,
		observer: observer,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		idle:     make(chan *websocket.Conn, maxIdleConns),
	}
}

// URL returns the delivery endpoint
func (r *WebSocketRelay) URL() string {
	return r.url
}

// Send implements Relay
func (r *WebSocketRelay) Send(ctx context.Context, line string) {
	conn, err := r.take(ctx)
	if err != nil {
		debug.Debug("Relay websocket dial to %s failed: %v", r.url, err)
		notify(r.observer, false)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(r.timeout))
	if err := conn.WriteJSON(Payload{Line: line}); err != nil {
		debug.Debug("Relay websocket write failed: %v", err)
		conn.Close()
		notify(r.observer, false)
		return
	}
	r.put(conn)
	notify(r.observer, true)
}

// take returns an idle connection or dials a new one
func (r *WebSocketRelay) take(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-r.idle:
		return conn, nil
	default:
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	conn, _, err := r.dialer.DialContext(dialCtx, r.url, nil)
	if err != nil {
		return nil, err
	}
	debug.Debug("Relay websocket connected to %s", r.url)
	return conn, nil
}

// put returns a healthy connection to the pool, closing it when the pool is
// full or the relay is closed
func (r *WebSocketRelay) put(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		select {
		case r.idle <- conn:
			return
		default:
		}
	}
	closeConn(conn)
}

// Close sends a close frame on every idle connection and drops them.
// Connections in use are closed when their write finishes.
func (r *WebSocketRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var firstErr error
	for {
		select {
		case conn := <-r.idle:
			if err := closeConn(conn); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}

func closeConn(conn *websocket.Conn) error {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
