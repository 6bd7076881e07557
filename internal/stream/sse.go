package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sevigo/revision-warden/internal/core"
)

// SSETransport reads a Server-Sent Events endpoint and resumes with Last-Event-ID.
type SSETransport struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewSSETransport creates an SSE transport. connectTimeout bounds dialing and
// waiting for response headers; the body itself is read without deadline.
func NewSSETransport(url, userAgent string, connectTimeout time.Duration) *SSETransport {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
	}
	return &SSETransport{url: url, userAgent: userAgent, client: &http.Client{Transport: transport}}
}

func (t *SSETransport) SupportsResume() bool { return true }

func (t *SSETransport) Connect(ctx context.Context, lastEventID string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream returned %d", core.ErrTransientUpstream, resp.StatusCode)
	}
	return &sseConn{body: resp.Body, reader: bufio.NewReaderSize(resp.Body, 64*1024)}, nil
}

type sseConn struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Next assembles one event from "id" and "data" fields up to the blank line
// that terminates it. Comments and other fields are ignored.
func (c *sseConn) Next(ctx context.Context) (Event, error) {
	var (
		ev   Event
		data bytes.Buffer
	)
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return Event{}, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if data.Len() == 0 {
				continue
			}
			ev.Data = bytes.Clone(data.Bytes())
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
