// Package user defines the application's view of an authenticated identity
// and the tokens held on its behalf.
package user

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Profile is the identity returned by the provider's profile endpoint.
type Profile struct {
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// TokenSet is the provider-issued access and refresh token pair.
type TokenSet struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is unusable at now, treating
// tokens that expire within skew as already expired.
func (t TokenSet) Expired(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// ExpiresIn returns the whole seconds left before expiry, never negative.
func (t TokenSet) ExpiresIn(now time.Time) int64 {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Rotate returns next with the previous refresh token carried over when
// the provider did not issue a new one.
func (t TokenSet) Rotate(next TokenSet) TokenSet {
	if next.RefreshToken == "" {
		next.RefreshToken = t.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = t.Scope
	}
	return next
}

// User is a local account linked to one provider identity.
type User struct {
	ID string `json:"id"`
	Profile
	Token     TokenSet  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists users keyed by (provider, external id).
type Store interface {
	// Upsert creates the user for profile or updates the existing one,
	// replacing its profile fields and token set. A token set without a
	// refresh token keeps the stored one.
	Upsert(ctx context.Context, profile Profile, token TokenSet) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	UpdateToken(ctx context.Context, id string, token TokenSet) error
}
