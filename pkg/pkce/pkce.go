// Package pkce generates the per-attempt secrets of an authorization code
// login: the PKCE code verifier, its S256 challenge, and the CSRF state.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// entropyBytes yields a 43 character base64url string.
	entropyBytes = 32

	MinVerifierLength = 43
	MaxVerifierLength = 128

	// MethodS256 is the only challenge method this package produces.
	MethodS256 = "S256"
)

// Reader is the randomness source. Tests replace it to simulate failures.
var Reader io.Reader = rand.Reader

// GenerateCodeVerifier returns a fresh high-entropy code verifier.
// An error from the random source is returned as is; there is no fallback.
func GenerateCodeVerifier() (string, error) {
	v, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return v, nil
}

// GenerateCodeChallenge derives the S256 challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState returns an unguessable state value. It is drawn
// independently of any verifier.
func GenerateState() (string, error) {
	s, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return s, nil
}

// ValidVerifier reports whether v has a permitted length and only uses
// unreserved characters.
func ValidVerifier(v string) bool {
	if len(v) < MinVerifierLength || len(v) > MaxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !unreserved(v[i]) {
			return false
		}
	}
	return true
}

func unreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

func randomToken() (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
