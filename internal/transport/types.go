// Package transport sends serialized JSON-RPC payloads to a remote service
// and hands back the decoded reply.
package transport

import (
	"context"
	"errors"
	"fmt"

	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
)

// ErrNoHost is returned when the settings carry no target host
var ErrNoHost = errors.New("service host is not configured")

// Header is a single outbound header
type Header struct {
	Name  string
	Value string
}

// Payload is the set of calls sent in one exchange
type Payload struct {
	Requests []*jsonrpc.Request
	Batch    bool // send as array even for one request
}

// Bytes returns the wire form: a single object, or an array for batches
func (p Payload) Bytes() ([]byte, error) {
	if !p.Batch && len(p.Requests) == 1 {
		return p.Requests[0].Bytes()
	}
	return jsonrpc.MarshalBatchRequest(p.Requests)
}

// Transport delivers a payload and returns the parsed reply.
// Any failure (network, non-2xx status, malformed body) is returned as an error.
type Transport interface {
	Send(ctx context.Context, service string, settings *config.ServiceConfig, payload Payload, headers []Header) (*jsonrpc.Reply, error)
}

// Mux routes a send to the transport registered for the service's kind
type Mux struct {
	transports map[config.TransportKind]Transport
}

// NewMux creates a Mux from kind -> transport pairs
func NewMux(transports map[config.TransportKind]Transport) *Mux {
	return &Mux{transports: transports}
}

// Send implements Transport
func (m *Mux) Send(ctx context.Context, service string, settings *config.ServiceConfig, payload Payload, headers []Header) (*jsonrpc.Reply, error) {
	kind := settings.Transport
	if kind == "" {
		kind = config.DefaultTransport
	}
	t, ok := m.transports[kind]
	if !ok {
		return nil, fmt.Errorf("no transport registered for kind '%s'", kind)
	}
	return t.Send(ctx, service, settings, payload, headers)
}
