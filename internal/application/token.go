package application

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenSource issues single-use verification tokens and checks their format
// before any lookup is attempted.
type TokenSource interface {
	Generate() (string, error)
	Valid(token string) bool
}

// RandomTokenSource yields URL-safe base64 tokens from crypto/rand.
type RandomTokenSource struct {
	Bytes int
}

func NewRandomTokenSource() *RandomTokenSource {
	return &RandomTokenSource{Bytes: 32}
}

func (s *RandomTokenSource) Generate() (string, error) {
	b := make([]byte, s.Bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *RandomTokenSource) Valid(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(s.Bytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}
