// Package session ties a browser to a local user after login with a signed
// cookie.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var ErrNoSession = errors.New("no valid session")

const (
	DefaultCookieName = "swipify_session"
	DefaultMaxAge     = 30 * 24 * time.Hour

	issuer = "swipify"
)

// Options configures the session cookie.
type Options struct {
	CookieName string
	MaxAge     time.Duration
	// Secure is set in production so the cookie only travels over HTTPS.
	Secure bool
}

// Claims is the payload of the session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and validates session cookies.
type Manager struct {
	key  []byte
	opts Options
	now  func() time.Time
}

// NewManager derives the HMAC key from secret.
func NewManager(secret []byte, opts Options) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("swipify session")), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	return &Manager{key: key, opts: opts, now: time.Now}, nil
}

// WithClock replaces the time source. It is meant for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

// Issue creates a session for userID and sets it on w.
func (m *Manager) Issue(w http.ResponseWriter, userID string) (*Claims, error) {
	if userID == "" {
		return nil, errors.New("session requires a user id")
	}

	now := m.now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.opts.MaxAge)),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, m.cookie(signed, int(m.opts.MaxAge/time.Second)))
	return claims, nil
}

// Parse validates a session token.
func (m *Manager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if claims.Subject == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

// UserID returns the user bound to the request's session cookie.
func (m *Manager) UserID(r *http.Request) (string, error) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}
	claims, err := m.Parse(c.Value)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type contextKey struct{}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext returns the id stored by RequireUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// RequireUser rejects requests without a valid session with 401 and a
// pointer to the login entry point.
func (m *Manager) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.UserID(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":     "unauthenticated",
				"login_url": "/login",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
