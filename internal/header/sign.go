package header

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"

	"rpcclient/internal/jsonrpc"
)

// PayloadDigestClaim carries the sha256 of the signed payloads in a JWT
const PayloadDigestClaim = "payload_sha256"

// HMACSHA3 signs the payload list with HMAC-SHA3-256 and returns it hex encoded
func HMACSHA3(secret []byte) Func {
	return func(payloads []*jsonrpc.Request) (string, error) {
		data, err := canonicalPayloads(payloads)
		if err != nil {
			return "", err
		}
		mac := hmac.New(sha3.New256, secret)
		mac.Write(data)
		return hex.EncodeToString(mac.Sum(nil)), nil
	}
}

// JWTBearer issues a short-lived HS256 token bound to the payload digest
// and returns it as a bearer credential
func JWTBearer(secret []byte, issuer string, ttl time.Duration) Func {
	return func(payloads []*jsonrpc.Request) (string, error) {
		data, err := canonicalPayloads(payloads)
		if err != nil {
			return "", err
		}
		digest := sha256.Sum256(data)

		now := time.Now()
		claims := jwt.MapClaims{
			"iat":              jwt.NewNumericDate(now),
			"exp":              jwt.NewNumericDate(now.Add(ttl)),
			PayloadDigestClaim: hex.EncodeToString(digest[:]),
		}
		if issuer != "" {
			claims["iss"] = issuer
		}

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return "Bearer " + token, nil
	}
}
