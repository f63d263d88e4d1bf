package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
)

// WSTransport exchanges one payload per WebSocket connection. Headers are
// sent with the handshake, so computed headers always match the payload.
type WSTransport struct {
	dialer         websocket.Dialer
	messageTimeout time.Duration
	logger         zerolog.Logger
}

// NewWSTransport creates a new WSTransport
func NewWSTransport(messageTimeout time.Duration, logger zerolog.Logger) *WSTransport {
	if messageTimeout <= 0 {
		messageTimeout = 60 * time.Second
	}
	return &WSTransport{
		dialer:         websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		messageTimeout: messageTimeout,
		logger:         logger.With().Str("component", "transport-ws").Logger(),
	}
}

// Send implements Transport
func (t *WSTransport) Send(ctx context.Context, service string, settings *config.ServiceConfig, payload Payload, headers []Header) (*jsonrpc.Reply, error) {
	if !settings.HasHost() {
		return nil, ErrNoHost
	}

	reqBytes, err := payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	handshake := make(http.Header, len(headers))
	for _, h := range headers {
		handshake.Set(h.Name, h.Value)
	}

	conn, resp, err := t.dialer.DialContext(ctx, settings.Host, handshake)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect WebSocket: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect WebSocket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.messageTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return nil, fmt.Errorf("failed to write WebSocket message: %w", err)
	}

	conn.SetReadDeadline(deadline)
	_, body, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read WebSocket message: %w", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	t.logger.Debug().
		Str("service", service).
		Int("requests", len(payload.Requests)).
		Int("bytes", len(body)).
		Msg("WebSocket exchange completed")

	reply, err := jsonrpc.ParseReply(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return reply, nil
}
