package model

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// maxSessionIDDigits is the decimal width of 2^128-1.
const maxSessionIDDigits = 39

// SessionID is the decimal form of a 128-bit random integer.
type SessionID string

// NewSessionID allocates a fresh identifier from a random (v4) UUID.
func NewSessionID() SessionID {
	u := uuid.New()
	return SessionID(new(big.Int).SetBytes(u[:]).String())
}

// ParseSessionID accepts base-10 digits only and returns the canonical form.
func ParseSessionID(raw string) (SessionID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxSessionIDDigits {
		return "", ErrMalformedCookie
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", ErrMalformedCookie
		}
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() <= 0 || n.BitLen() > 128 {
		return "", ErrMalformedCookie
	}
	return SessionID(n.String()), nil
}

func (s SessionID) String() string {
	return string(s)
}

func (s SessionID) IsZero() bool {
	return s == ""
}
