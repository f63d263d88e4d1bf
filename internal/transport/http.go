package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
)

// HTTPTransport posts payloads to the service host over HTTP
type HTTPTransport struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPTransport creates a new HTTPTransport
func NewHTTPTransport(timeout time.Duration, logger zerolog.Logger) *HTTPTransport {
	return NewHTTPTransportWithClient(&http.Client{Timeout: timeout}, logger)
}

// NewHTTPTransportWithClient creates an HTTPTransport over an existing client
func NewHTTPTransportWithClient(client *http.Client, logger zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		httpClient: client,
		logger:     logger.With().Str("component", "transport-http").Logger(),
	}
}

// Send implements Transport
func (t *HTTPTransport) Send(ctx context.Context, service string, settings *config.ServiceConfig, payload Payload, headers []Header) (*jsonrpc.Reply, error) {
	if !settings.HasHost() {
		return nil, ErrNoHost
	}

	reqBytes, err := payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.Host, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for _, h := range headers {
		httpReq.Header.Set(h.Name, h.Value)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	t.logger.Debug().
		Str("service", service).
		Int("requests", len(payload.Requests)).
		Int("bytes", len(body)).
		Msg("HTTP exchange completed")

	reply, err := jsonrpc.ParseReply(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return reply, nil
}
