// Package seal produces opaque, tamper-proof values for cookies: JSON
// payloads encrypted with AES-GCM and signed with HMAC-SHA256.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

const (
	MinSecretLength = 32

	keySize = 32
)

type envelope struct {
	Data      json.RawMessage `json:"data"`
	IssuedAt  time.Time       `json:"iat"`
	ExpiresAt time.Time       `json:"exp"`
}

// Sealer seals and opens payloads.
type Sealer struct {
	signingKey    []byte
	encryptionKey []byte
	now           func() time.Time
}

// New creates a Sealer from explicit keys.
// signingKey: 32+ bytes for HMAC-SHA256
// encryptionKey: 32 bytes for AES-256
func New(signingKey, encryptionKey []byte) (*Sealer, error) {
	if len(signingKey) < keySize {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if len(encryptionKey) != keySize {
		return nil, errors.New("encryption key must be exactly 32 bytes for AES-256")
	}

	return &Sealer{
		signingKey:    signingKey,
		encryptionKey: encryptionKey,
		now:           time.Now,
	}, nil
}

// NewFromSecret derives independent signing and encryption keys from a
// single secret with HKDF-SHA256. purpose separates key spaces so the same
// secret can back several sealers.
func NewFromSecret(secret []byte, purpose string) (*Sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
	}

	r := hkdf.New(sha256.New, secret, nil, []byte("swipify seal "+purpose))
	signingKey := make([]byte, keySize)
	encryptionKey := make([]byte, keySize)
	if _, err := io.ReadFull(r, signingKey); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	if _, err := io.ReadFull(r, encryptionKey); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return New(signingKey, encryptionKey)
}

// WithClock replaces the time source. It is meant for tests.
func (s *Sealer) WithClock(now func() time.Time) *Sealer {
	s.now = now
	return s
}

// Seal encodes v as JSON, encrypts and signs it. The value stops opening
// after ttl.
func (s *Sealer) Seal(v any, ttl time.Duration) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := s.now()
	raw, err := json.Marshal(envelope{Data: data, IssuedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	encrypted, err := s.encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(s.sign(encrypted)), nil
}

// Open verifies and decrypts token into v.
func (s *Sealer) Open(token string, v any) error {
	signed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}

	encrypted, err := s.verify(signed)
	if err != nil {
		return err
	}

	raw, err := s.decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("%w: decrypt: %v", ErrInvalidToken, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ErrInvalidToken
	}
	if !s.now().Before(env.ExpiresAt) {
		return ErrExpiredToken
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// encrypt encrypts data using AES-GCM
func (s *Sealer) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func (s *Sealer) decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// sign prepends an HMAC-SHA256 signature to data.
func (s *Sealer) sign(data []byte) []byte {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write(data)

	signed := make([]byte, 0, sha256.Size+len(data))
	signed = h.Sum(signed)
	return append(signed, data...)
}

// verify checks the signature and returns the signed data.
func (s *Sealer) verify(signed []byte) ([]byte, error) {
	if len(signed) < sha256.Size {
		return nil, ErrInvalidSignature
	}

	signature := signed[:sha256.Size]
	data := signed[sha256.Size:]

	h := hmac.New(sha256.New, s.signingKey)
	h.Write(data)
	if !hmac.Equal(signature, h.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	return data, nil
}

// GenerateRandomKey generates a cryptographically secure random key
func GenerateRandomKey(size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
