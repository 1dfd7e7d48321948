// Package token generates opaque invitation tokens.
//
// Tokens carry no embedded meaning: 32 bytes from crypto/rand encoded with
// unpadded base64url, so every token is exactly 43 URL-safe characters.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

const (
	// Bytes is the amount of randomness per token (256 bits).
	Bytes = 32
	// Length is the encoded length of a token.
	Length = 43
)

type Generator interface {
	Generate() (string, error)
}

type randomGenerator struct {
	source io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() Generator {
	return &randomGenerator{source: rand.Reader}
}

// NewFromReader returns a Generator reading entropy from r.
func NewFromReader(r io.Reader) Generator {
	return &randomGenerator{source: r}
}

func (g *randomGenerator) Generate() (string, error) {
	buf := make([]byte, Bytes)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// WellFormed reports whether raw could have been produced by a Generator.
func WellFormed(raw string) bool {
	if len(raw) != Length {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
