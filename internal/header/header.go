// Package header builds outbound header values computed from the final
// list of request payloads of a dispatch (signatures, tokens, scripts).
package header

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
)

// DefaultTokenTTL is the lifetime of JWT bearer tokens built from config
const DefaultTokenTTL = 5 * time.Minute

// Func computes a header value from the outbound payloads
type Func func(payloads []*jsonrpc.Request) (string, error)

// FromConfig builds the computation of a configured header.
// Static headers return a nil Func.
func FromConfig(h config.HeaderConfig, svc *config.ServiceConfig, logger zerolog.Logger) (Func, error) {
	switch {
	case h.Script != "":
		fn, err := Script(h.Name, h.Script, logger)
		if err != nil {
			return nil, fmt.Errorf("header '%s': %w", h.Name, err)
		}
		return fn, nil
	case h.Sign == config.SignHMACSHA3:
		return HMACSHA3([]byte(svc.AuthKey)), nil
	case h.Sign == config.SignJWT:
		return JWTBearer([]byte(svc.AuthKey), svc.ClientLabel, DefaultTokenTTL), nil
	case h.Sign != "":
		return nil, fmt.Errorf("header '%s': unknown signing scheme '%s'", h.Name, h.Sign)
	default:
		return nil, nil
	}
}

// canonicalPayloads is the byte string that signatures cover
func canonicalPayloads(payloads []*jsonrpc.Request) ([]byte, error) {
	data, err := jsonrpc.MarshalBatchRequest(payloads)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payloads: %w", err)
	}
	return data, nil
}
