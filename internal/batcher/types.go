package batcher

import (
	"encoding/json"
	"errors"
	"time"

	"rpcclient/internal/cache"
	"rpcclient/internal/jsonrpc"
)

// ErrPending is returned when decoding a result that has not been resolved yet
var ErrPending = errors.New("result is still pending")

// State is the resolution state of a Result
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// CallRecord represents one logical call within a cycle
type CallRecord struct {
	ID          jsonrpc.ID
	Method      string
	Params      json.RawMessage
	Service     string
	ClientLabel string
	Cacheable   bool
	CacheTTL    time.Duration // cache.DefaultTTL means adapter default
}

// Request returns the wire form of the call
func (r *CallRecord) Request() *jsonrpc.Request {
	return &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  r.Method,
		Params:  r.Params,
		ID:      r.ID,
		Client:  r.ClientLabel,
	}
}

// Fingerprint returns the cache key of the call
func (r *CallRecord) Fingerprint() string {
	return cache.Fingerprint(r.Service, r.Method, r.Params)
}

// Result is the eventual outcome of one call. Callers get a handle when
// the call is issued; it is final once the cycle has executed.
type Result struct {
	id    jsonrpc.ID
	state State
	data  json.RawMessage
	err   *jsonrpc.Error
}

func newResult(id jsonrpc.ID) *Result {
	return &Result{id: id}
}

// ID returns the correlation id of the call
func (r *Result) ID() jsonrpc.ID {
	return r.id
}

// State returns the resolution state
func (r *Result) State() State {
	return r.state
}

// Pending returns true until the result is resolved
func (r *Result) Pending() bool {
	return r.state == StatePending
}

// Success returns true if the call succeeded
func (r *Result) Success() bool {
	return r.state == StateSucceeded
}

// Data returns a copy of the result payload; nil unless succeeded
func (r *Result) Data() json.RawMessage {
	if r.data == nil {
		return nil
	}
	return append(json.RawMessage(nil), r.data...)
}

// Err returns the structured error; nil unless failed
func (r *Result) Err() *jsonrpc.Error {
	return r.err
}

// Decode unmarshals the payload into v, or returns the call's error
func (r *Result) Decode(v interface{}) error {
	switch r.state {
	case StatePending:
		return ErrPending
	case StateFailed:
		return r.err
	}
	if len(r.data) == 0 {
		return nil
	}
	return json.Unmarshal(r.data, v)
}

// entry converts a resolved result into its cache form
func (r *Result) entry() cache.Entry {
	return cache.Entry{
		Success: r.state == StateSucceeded,
		Data:    r.data,
		Error:   r.err,
	}
}

// succeed resolves the result; a finalized result is left untouched
func (r *Result) succeed(data json.RawMessage) bool {
	if r.state != StatePending {
		return false
	}
	r.state = StateSucceeded
	r.data = data
	return true
}

// fail resolves the result as failed; a finalized result is left untouched
func (r *Result) fail(err *jsonrpc.Error) bool {
	if r.state != StatePending {
		return false
	}
	if err == nil {
		err = jsonrpc.NewError(jsonrpc.CodeInternalError, "")
	}
	r.state = StateFailed
	r.err = err
	return true
}
