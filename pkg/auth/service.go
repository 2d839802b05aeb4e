// Package auth runs the Authorization Code + PKCE login flow and keeps
// stored provider tokens fresh.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"swipify/pkg/logger"
	"swipify/pkg/metrics"
	"swipify/pkg/oauth"
	"swipify/pkg/pending"
	"swipify/pkg/pkce"
	"swipify/pkg/user"
	"swipify/pkg/validation"
)

// Provider is the identity provider as the flow sees it.
type Provider interface {
	Name() string
	AuthCodeURL(state, challenge string) (string, error)
	Exchange(ctx context.Context, code, verifier string) (*user.TokenSet, error)
	FetchProfile(ctx context.Context, accessToken string) (*user.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (*user.TokenSet, error)
}

var _ Provider = (*oauth.Provider)(nil)

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	Logger zerolog.Logger
	Now    func() time.Time

	// LoginTTL bounds the time between Begin and Complete.
	LoginTTL time.Duration
	// ProfileAttempts is how many times the profile fetch is tried.
	ProfileAttempts   int
	ProfileRetryDelay time.Duration
	// ExpirySkew treats access tokens this close to expiry as expired.
	ExpirySkew time.Duration
}

type Service struct {
	provider Provider
	logins   pending.Store
	users    user.Store
	log      zerolog.Logger
	now      func() time.Time

	loginTTL        time.Duration
	profileAttempts int
	retryDelay      time.Duration
	skew            time.Duration

	refreshes singleflight.Group
}

func NewService(provider Provider, logins pending.Store, users user.Store, opts Options) *Service {
	s := &Service{
		provider:        provider,
		logins:          logins,
		users:           users,
		log:             opts.Logger,
		now:             opts.Now,
		loginTTL:        opts.LoginTTL,
		profileAttempts: opts.ProfileAttempts,
		retryDelay:      opts.ProfileRetryDelay,
		skew:            opts.ExpirySkew,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loginTTL <= 0 {
		s.loginTTL = pending.DefaultTTL
	}
	if s.profileAttempts <= 0 {
		s.profileAttempts = 2
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 250 * time.Millisecond
	}
	if s.skew <= 0 {
		s.skew = time.Minute
	}
	return s
}

// Attempt is a started login.
type Attempt struct {
	State     string
	AuthURL   string
	ReturnTo  string
	ExpiresAt time.Time
}

// Begin starts a login: it records a fresh verifier under a fresh state and
// returns the authorization URL to redirect the browser to.
func (s *Service) Begin(ctx context.Context, returnTo string) (*Attempt, error) {
	if s.provider == nil {
		return nil, &Error{Stage: StageIdle, Kind: ErrConfigMissing}
	}

	verifier, err := pkce.GenerateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	state, err := pkce.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := s.provider.AuthCodeURL(state, pkce.GenerateCodeChallenge(verifier))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidConfig) {
			s.log.Error().Err(err).Msg("login configuration incomplete")
			return nil, &Error{Stage: StageIdle, Kind: ErrConfigMissing, Err: err}
		}
		return nil, err
	}

	now := s.now()
	p := &pending.PendingLogin{
		State:        state,
		CodeVerifier: verifier,
		Provider:     s.provider.Name(),
		ReturnTo:     validation.SafeReturnPath(returnTo),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.loginTTL),
	}
	if err := s.logins.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record pending login: %w", err)
	}

	metrics.RecordLoginStarted()
	s.log.Debug().Str("state", logger.Prefix(state)).Time("expires_at", p.ExpiresAt).Msg("login started")

	return &Attempt{State: state, AuthURL: authURL, ReturnTo: p.ReturnTo, ExpiresAt: p.ExpiresAt}, nil
}

// Callback is what the provider redirect carried, plus the state the
// browser was bound to when the login began.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	BoundState       string
}

// Login is a completed login.
type Login struct {
	User     *user.User
	ReturnTo string
}

// Complete validates a callback, exchanges the code and resolves the local
// user. Each step must succeed before the next one runs.
func (s *Service) Complete(ctx context.Context, cb Callback) (*Login, error) {
	if cb.Error != "" {
		s.discardBound(ctx, cb)
		return nil, s.loginFailed(StageAwaitingCode, ErrProviderDenied,
			fmt.Errorf("%s: %s", cb.Error, cb.ErrorDescription))
	}
	if cb.Code == "" {
		s.discardBound(ctx, cb)
		return nil, s.loginFailed(StageAwaitingCode, ErrMissingCode, nil)
	}

	if !sameState(cb.State, cb.BoundState) {
		return nil, s.loginFailed(StageAwaitingCode, ErrStateMismatch, errors.New("callback state does not match this browser"))
	}
	p, err := s.logins.Take(ctx, cb.State)
	switch {
	case errors.Is(err, pending.ErrNotFound):
		return nil, s.loginFailed(StageAwaitingCode, ErrStateMismatch, errors.New("unknown or already used state"))
	case err != nil:
		return nil, s.loginFailed(StageAwaitingCode, ErrVerifierMissing, err)
	case p.State != cb.State:
		return nil, s.loginFailed(StageAwaitingCode, ErrStateMismatch, nil)
	}

	now := s.now()
	if p.Expired(now) {
		return nil, s.loginFailed(StageAwaitingCode, ErrExpiredVerifier,
			fmt.Errorf("expired at %s", p.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	if p.CodeVerifier == "" {
		return nil, s.loginFailed(StageAwaitingCode, ErrVerifierMissing, nil)
	}
	metrics.LoginDuration.Observe(now.Sub(p.CreatedAt).Seconds())

	start := time.Now()
	tok, err := s.provider.Exchange(ctx, cb.Code, p.CodeVerifier)
	metrics.RecordProviderRequest("exchange", err, time.Since(start))
	if err != nil {
		return nil, s.loginFailed(StageStateValidated, ErrTokenExchangeFailed, err)
	}
	if tok.AccessToken == "" {
		return nil, s.loginFailed(StageStateValidated, ErrTokenExchangeFailed, errors.New("no access token in response"))
	}

	profile, err := s.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, s.loginFailed(StageCodeExchanged, ErrProfileFetchFailed, err)
	}

	u, err := s.users.Upsert(ctx, *profile, *tok)
	if err != nil {
		return nil, s.loginFailed(StageProfileFetched, ErrUserStore, err)
	}

	metrics.RecordLoginSuccess()
	s.log.Info().
		Str("user_id", u.ID).
		Str("provider", u.Provider).
		Str("state", logger.Prefix(cb.State)).
		Msg("login success")

	return &Login{User: u, ReturnTo: p.ReturnTo}, nil
}

// fetchProfile is the only retried step; the code exchange never is.
func (s *Service) fetchProfile(ctx context.Context, accessToken string) (*user.Profile, error) {
	var lastErr error
	for attempt := 1; attempt <= s.profileAttempts; attempt++ {
		start := time.Now()
		profile, err := s.provider.FetchProfile(ctx, accessToken)
		metrics.RecordProviderRequest("profile", err, time.Since(start))
		if err == nil {
			return profile, nil
		}
		lastErr = err

		if attempt == s.profileAttempts {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("profile fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(s.retryDelay):
		}
	}
	return nil, lastErr
}

// Discard drops a pending login that will not be completed. Unknown states
// are ignored.
func (s *Service) Discard(ctx context.Context, state string) error {
	if state == "" {
		return nil
	}
	if _, err := s.logins.Take(ctx, state); err != nil && !errors.Is(err, pending.ErrNotFound) {
		return fmt.Errorf("failed to discard pending login: %w", err)
	}
	return nil
}

// discardBound removes the pending login of a callback that failed before
// validation, but only when it belongs to this browser.
func (s *Service) discardBound(ctx context.Context, cb Callback) {
	if !sameState(cb.State, cb.BoundState) {
		return
	}
	if err := s.Discard(ctx, cb.State); err != nil {
		s.log.Warn().Err(err).Msg("failed to discard pending login")
	}
}

func (s *Service) loginFailed(stage Stage, kind, cause error) error {
	err := &Error{Stage: stage, Kind: kind, Err: cause}
	reason := Reason(err)
	metrics.RecordLoginFailure(reason)

	ev := s.log.Warn()
	if kind == ErrUserStore || kind == ErrVerifierMissing {
		ev = s.log.Error()
	}
	ev.Str("stage", string(stage)).Str("reason", reason).AnErr("cause", cause).Msg("login failure")
	return err
}

func sameState(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
