// Package stream subscribes to the live revision scoring stream and buffers
// normalized candidates per wiki.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/sevigo/revision-warden/internal/config"
)

// Event is one raw message of the scoring stream.
type Event struct {
	ID   string
	Data []byte
}

// Conn is an open stream connection. Next blocks until an event arrives, the
// connection drops or ctx is done.
type Conn interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Transport opens connections to the scoring stream.
type Transport interface {
	// Connect opens a connection resuming after lastEventID when it is non-empty
	// and the transport supports continuation.
	Connect(ctx context.Context, lastEventID string) (Conn, error)
	// SupportsResume reports whether reconnects continue where the last
	// connection stopped. Without it every reconnect starts from now.
	SupportsResume() bool
}

// NewTransport builds the transport selected by cfg.Transport.
func NewTransport(cfg config.StreamConfig, userAgent string) (Transport, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch cfg.Transport {
	case "", "sse":
		return NewSSETransport(cfg.URL, userAgent, timeout), nil
	case "websocket":
		return NewWebsocketTransport(cfg.URL, userAgent, timeout), nil
	default:
		return nil, fmt.Errorf("unknown stream transport %q", cfg.Transport)
	}
}
