package batcher

import (
	"fmt"
	"net/http"

	"rpcclient/internal/header"
	"rpcclient/internal/jsonrpc"
	"rpcclient/internal/transport"
)

// ContentType is sent with every exchange unless set explicitly
const ContentType = "application/json"

// HeaderValue is either a literal or a computation over the outbound
// payloads, evaluated once per dispatch
type HeaderValue struct {
	literal string
	compute header.Func
}

// Literal returns a static header value
func Literal(v string) HeaderValue {
	return HeaderValue{literal: v}
}

// Computed returns a header value computed from the outbound payloads
func Computed(fn header.Func) HeaderValue {
	return HeaderValue{compute: fn}
}

// IsComputed returns true for computed values
func (h HeaderValue) IsComputed() bool {
	return h.compute != nil
}

func (h HeaderValue) evaluate(payloads []*jsonrpc.Request) (string, error) {
	if h.compute == nil {
		return h.literal, nil
	}
	return h.compute(payloads)
}

type namedHeader struct {
	name  string
	value HeaderValue
}

// headerSet is an ordered header list where the first entry for a name wins
type headerSet struct {
	entries []namedHeader
	seen    map[string]bool
}

func newHeaderSet() *headerSet {
	return &headerSet{seen: make(map[string]bool)}
}

// add appends a header unless the name is already present.
// Returns false when the header was ignored.
func (s *headerSet) add(name string, value HeaderValue) bool {
	key := http.CanonicalHeaderKey(name)
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.entries = append(s.entries, namedHeader{name: key, value: value})
	return true
}

// evaluate resolves every value against the payloads
func (s *headerSet) evaluate(payloads []*jsonrpc.Request) ([]transport.Header, error) {
	out := make([]transport.Header, 0, len(s.entries))
	for _, e := range s.entries {
		v, err := e.value.evaluate(payloads)
		if err != nil {
			return nil, fmt.Errorf("failed to compute header '%s': %w", e.name, err)
		}
		out = append(out, transport.Header{Name: e.name, Value: v})
	}
	return out, nil
}
