package channel

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/spherical/slide-deck/internal/domain"
)

// WebSocketDialer connects to {BaseURL}/ws/{jobID}.
type WebSocketDialer struct {
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// NewWebSocketDialer accepts http(s) or ws(s) base URLs.
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	return &WebSocketDialer{
		BaseURL: baseURL,
		Dialer:  websocket.DefaultDialer,
	}
}

// StreamURL returns the stream endpoint for a job.
func (d *WebSocketDialer) StreamURL(jobID string) string {
	base := strings.TrimRight(d.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + url.PathEscape(jobID)
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, d.StreamURL(jobID), d.Header)
	if err != nil {
		return nil, domain.TransportError("failed to dial event stream", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, domain.TransportError("websocket read failed", err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
