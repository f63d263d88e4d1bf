package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyReply is returned when a reply body carries no JSON value
var ErrEmptyReply = errors.New("empty reply")

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// HasError returns true if the response contains an error
func (r *Response) HasError() bool {
	return r.Error != nil
}

// IsSuccess returns true if the response is successful
func (r *Response) IsSuccess() bool {
	return r.Error == nil
}

// HasID returns true if the response echoes a non-null id
func (r *Response) HasID() bool {
	return !r.ID.IsAbsent() && !r.ID.IsNull()
}

// ResultIsNull returns true if the response result is JSON null
func (r *Response) ResultIsNull() bool {
	if r == nil {
		return true
	}
	if len(r.Result) == 0 {
		return true
	}
	return bytes.Equal(r.Result, []byte("null"))
}

// NewResponseRaw creates a response with raw JSON result
func NewResponseRaw(id ID, result json.RawMessage) *Response {
	return &Response{
		JSONRPC: Version,
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   err,
		ID:      id,
	}
}

// ParseResponse parses a JSON-RPC response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reply is a decoded reply body: one object, or the objects of a batch
// array. Array elements that are not response objects are kept in Invalid.
type Reply struct {
	Responses []*Response
	Invalid   []json.RawMessage
	Batch     bool
}

// IsEmpty returns true if the reply holds no usable response
func (r *Reply) IsEmpty() bool {
	return r == nil || len(r.Responses) == 0
}

// ParseReply parses a reply body. A top-level JSON null yields an empty
// reply; a malformed body is an error.
func ParseReply(data []byte) (*Reply, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, ErrEmptyReply
	}

	if bytes.Equal(data, []byte("null")) {
		return &Reply{}, nil
	}

	if data[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, fmt.Errorf("failed to parse batch reply: %w", err)
		}
		reply := &Reply{Batch: true}
		for _, element := range elements {
			resp, ok := parseElement(element)
			if !ok {
				reply.Invalid = append(reply.Invalid, element)
				continue
			}
			reply.Responses = append(reply.Responses, resp)
		}
		return reply, nil
	}

	if data[0] != '{' {
		return nil, fmt.Errorf("failed to parse reply: unexpected %q", data[0])
	}
	resp, err := ParseResponse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}
	return &Reply{Responses: []*Response{resp}}, nil
}

// parseElement decodes a single batch element; only JSON objects qualify
func parseElement(element json.RawMessage) (*Response, bool) {
	trimmed := trimWhitespace(element)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	resp, err := ParseResponse(trimmed)
	if err != nil {
		return nil, false
	}
	return resp, true
}

// Bytes returns the response as JSON bytes
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// MarshalBatchResponse marshals multiple responses as a JSON array
func MarshalBatchResponse(responses []*Response) ([]byte, error) {
	return json.Marshal(responses)
}

// GetResultAs unmarshals the result into the provided type
func (r *Response) GetResultAs(v interface{}) error {
	if r.Result == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}
