// Package token caches the command line client's tokens on disk.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"swipify/pkg/user"
)

// Cache is the on-disk token cache
type Cache struct {
	Profile      *user.Profile `json:"profile,omitempty"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	Scope        string        `json:"scope,omitempty"`
	Expiry       time.Time     `json:"expiry"`
}

// TokenSet returns the cached tokens.
func (c *Cache) TokenSet() *user.TokenSet {
	return &user.TokenSet{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Scope:        c.Scope,
		ExpiresAt:    c.Expiry,
	}
}

// Storage handles token persistence
type Storage struct {
	cachePath string
}

func NewStorage(cachePath string) *Storage {
	return &Storage{cachePath: cachePath}
}

// DefaultCachePath returns the per-user cache location.
func DefaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "swipify", "token.json")
}

// Path returns the cache file location.
func (s *Storage) Path() string {
	return s.cachePath
}

// Save writes tok and profile with owner-only permissions. A nil profile
// keeps the cached one.
func (s *Storage) Save(tok *user.TokenSet, profile *user.Profile) error {
	if tok == nil {
		return fmt.Errorf("cannot save nil token")
	}

	if profile == nil {
		if prev, err := s.Load(); err == nil && prev != nil {
			profile = prev.Profile
		}
	}

	// Create cache directory with 0700 permissions (rwx for owner only)
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := Cache{
		Profile:      profile,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        tok.Scope,
		Expiry:       tok.ExpiresAt,
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	// Write with 0600 permissions (rw- for owner only)
	if err := os.WriteFile(s.cachePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

// Load reads the cache. It returns nil, nil when nothing is cached.
func (s *Storage) Load() (*Cache, error) {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	return &cache, nil
}

// Delete removes the token cache file
func (s *Storage) Delete() error {
	if err := os.Remove(s.cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token cache: %w", err)
	}
	return nil
}

// Exists checks if a token cache file exists
func (s *Storage) Exists() bool {
	_, err := os.Stat(s.cachePath)
	return err == nil
}
