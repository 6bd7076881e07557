package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sevigo/revision-warden/internal/core"
)

// WebsocketTransport reads JSON events from a websocket relay. Relays carry
// no continuation point, so a reconnect resumes from now.
type WebsocketTransport struct {
	url       string
	userAgent string
	dialer    *websocket.Dialer
}

func NewWebsocketTransport(url, userAgent string, handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{
		url:       url,
		userAgent: userAgent,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (t *WebsocketTransport) SupportsResume() bool { return false }

func (t *WebsocketTransport) Connect(ctx context.Context, _ string) (Conn, error) {
	header := http.Header{}
	if t.userAgent != "" {
		header.Set("User-Agent", t.userAgent)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
	}

	wc := &wsConn{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-wc.done:
		}
	}()
	return wc, nil
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

func (c *wsConn) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return Event{}, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return Event{Data: data}, nil
	}
}

func (c *wsConn) Close() error {
	close(c.done)
	return c.conn.Close()
}
