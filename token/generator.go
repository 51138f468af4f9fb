package token

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// DefaultTokenBytes is 256 bits of entropy for both session ids and session tokens.
const DefaultTokenBytes = 32

// Generator mints session identifiers and session-scoped secrets.
// Both are drawn independently from a cryptographically secure source, so a
// session token can never be derived from the session id it belongs to.
type Generator struct {
	size   int
	source io.Reader
}

// GeneratorOption defines a function type to modify the Generator instance.
type GeneratorOption func(*Generator)

// WithSource replaces the random source (primarily for testing failure paths)
func WithSource(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.source = r
	}
}

// NewGenerator returns a Generator producing size-byte values. Sizes below
// 16 bytes are raised to the default.
func NewGenerator(size int, options ...GeneratorOption) *Generator {
	if size < 16 {
		size = DefaultTokenBytes
	}
	g := &Generator{
		size:   size,
		source: rand.Reader,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// NewSessionID returns a fixed length, URL-safe session identifier.
func (g *Generator) NewSessionID() (string, error) {
	id, err := g.random()
	if err != nil {
		return "", errors.Wrap(err, "[Generator NewSessionID]")
	}
	return id, nil
}

// NewSessionToken returns a fixed length, URL-safe session token.
func (g *Generator) NewSessionToken() (string, error) {
	t, err := g.random()
	if err != nil {
		return "", errors.Wrap(err, "[Generator NewSessionToken]")
	}
	return t, nil
}

// EncodedLen is the length of every value this generator returns.
func (g *Generator) EncodedLen() int {
	return base64.RawURLEncoding.EncodedLen(g.size)
}

func (g *Generator) random() (string, error) {
	b := make([]byte, g.size)
	if _, err := io.ReadFull(g.source, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
