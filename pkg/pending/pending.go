// Package pending keeps the server-side half of in-flight logins: the PKCE
// verifier bound to each state value, consumed at most once.
package pending

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown, consumed or evicted states.
	ErrNotFound = errors.New("pending login not found")
	// ErrExists is returned when a state is already pending.
	ErrExists = errors.New("pending login already exists")
)

const (
	// DefaultTTL bounds how long a user may take to approve the login.
	DefaultTTL = 10 * time.Minute

	// retention keeps entries past ExpiresAt so a late callback can be
	// told apart from a forged one.
	retention = time.Minute
)

// PendingLogin is one login attempt awaiting its callback.
type PendingLogin struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Provider     string    `json:"provider,omitempty"`
	ReturnTo     string    `json:"return_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the attempt can no longer complete at now.
func (p *PendingLogin) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Store holds pending logins keyed by state.
type Store interface {
	Put(ctx context.Context, p *PendingLogin) error
	// Take returns and removes the entry for state. Concurrent callers for
	// the same state see at most one success; the rest get ErrNotFound.
	// Expired entries may still be returned; callers check Expired.
	Take(ctx context.Context, state string) (*PendingLogin, error)
}

// keepFor is the physical lifetime of p in a backend.
func keepFor(p *PendingLogin, now time.Time) time.Duration {
	d := p.ExpiresAt.Sub(now) + retention
	if d < time.Second {
		d = time.Second
	}
	return d
}

func validate(p *PendingLogin) error {
	if p == nil || p.State == "" {
		return errors.New("pending login requires a state")
	}
	if p.ExpiresAt.IsZero() {
		return errors.New("pending login requires an expiry")
	}
	return nil
}
