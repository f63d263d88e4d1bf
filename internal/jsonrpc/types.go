package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes
const (
	CodeAppInvalidParams       = 6000
	CodeAppValidationError     = 6001
	CodeAppUnauthorized        = 7000
	CodeAppForbidden           = 7001
	CodeAppExternalIntegration = 8000
	CodeAppInternalIntegration = 8001
)

var defaultMessages = map[int]string{
	CodeParseError:             "Parse error",
	CodeInvalidRequest:         "Invalid Request",
	CodeMethodNotFound:         "Method not found",
	CodeInvalidParams:          "Invalid params",
	CodeInternalError:          "Internal error",
	CodeAppInvalidParams:       "Invalid parameters",
	CodeAppValidationError:     "Validation error",
	CodeAppUnauthorized:        "Unauthorized",
	CodeAppForbidden:           "Forbidden",
	CodeAppExternalIntegration: "External integration error",
	CodeAppInternalIntegration: "Internal integration error",
}

// DefaultMessage returns the fixed message for a known code, or "" otherwise
func DefaultMessage(code int) string {
	return defaultMessages[code]
}

// ID represents a JSON-RPC request/response ID
// It can be a string, number, or null. An ID decoded from a payload
// remembers whether the field was present at all.
type ID struct {
	value   interface{}
	present bool
}

// NewIDString creates an ID from a string
func NewIDString(s string) ID {
	return ID{value: s, present: true}
}

// NewIDInt creates an ID from an integer
func NewIDInt(n int64) ID {
	return ID{value: n, present: true}
}

// NewIDNull creates a null ID
func NewIDNull() ID {
	return ID{value: nil, present: true}
}

// IsNull returns true if the ID is null or absent
func (id ID) IsNull() bool {
	return id.value == nil
}

// IsAbsent returns true if the ID field was never set or decoded
func (id ID) IsAbsent() bool {
	return !id.present
}

// Value returns the underlying value
func (id ID) Value() interface{} {
	return id.value
}

// Key returns a comparable form of the ID. Numeric IDs compare equal
// regardless of whether they were built locally or decoded.
func (id ID) Key() string {
	if id.value == nil {
		return ""
	}
	data, err := json.Marshal(id.value)
	if err != nil {
		return fmt.Sprint(id.value)
	}
	return string(data)
}

// String returns a printable form of the ID
func (id ID) String() string {
	if s, ok := id.value.(string); ok {
		return s
	}
	return id.Key()
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are kept as
// json.Number so large integer ids keep their exact digits.
func (id *ID) UnmarshalJSON(data []byte) error {
	id.present = true
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(&id.value)
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// WithDefaultMessage fills an empty message from the code table
func (e *Error) WithDefaultMessage() *Error {
	if e.Message == "" {
		e.Message = DefaultMessage(e.Code)
	}
	return e
}

// NewError creates a new JSON-RPC error. An empty message is replaced
// with the code's default message.
func NewError(code int, message string) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	return e.WithDefaultMessage()
}

// NewErrorWithData creates a new JSON-RPC error with data
func NewErrorWithData(code int, message string, data interface{}) *Error {
	e := NewError(code, message)
	if data != nil {
		if rawData, err := json.Marshal(data); err == nil {
			e.Data = rawData
		}
	}
	return e
}

// Common errors
var (
	ErrParse          = NewError(CodeParseError, "")
	ErrInvalidRequest = NewError(CodeInvalidRequest, "")
	ErrMethodNotFound = NewError(CodeMethodNotFound, "")
	ErrInvalidParams  = NewError(CodeInvalidParams, "")
	ErrInternal       = NewError(CodeInternalError, "")
)
