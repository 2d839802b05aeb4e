package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"swipify/pkg/user"
)

// Exchange trades an authorization code for tokens. The verifier is always
// sent; an empty verifier is refused without contacting the provider.
// The exchange is not retried: codes are single-use.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*user.TokenSet, error) {
	if verifier == "" {
		return nil, ErrMissingVerifier
	}
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	ctx = p.httpContext(ctx)
	tok, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classify("exchange code", err)
	}

	if p.idTokenVerifier != nil {
		if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
			if _, err := p.idTokenVerifier.Verify(ctx, raw); err != nil {
				return nil, fmt.Errorf("failed to verify ID token: %w", err)
			}
		}
	}

	return toTokenSet(tok), nil
}

// Refresh obtains a new access token with a refresh token. A refusal by
// the provider wraps ErrGrantRejected; transport failures and 5xx or
// temporarily_unavailable replies do not.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*user.TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	src := p.oauth2.TokenSource(p.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify("refresh token", err)
	}
	return toTokenSet(tok), nil
}

// ValidToken returns cached when it is still usable and otherwise refreshes
// it. The bool reports whether a refresh happened.
func (p *Provider) ValidToken(ctx context.Context, cached *user.TokenSet) (*user.TokenSet, bool, error) {
	if cached == nil {
		return nil, false, nil
	}

	if !cached.Expired(time.Now(), time.Minute) {
		return cached, false, nil
	}

	if cached.RefreshToken == "" {
		return nil, false, fmt.Errorf("token expired and no refresh token available")
	}

	next, err := p.Refresh(ctx, cached.RefreshToken)
	if err != nil {
		return nil, false, fmt.Errorf("token refresh failed: %w", err)
	}
	rotated := cached.Rotate(*next)
	return &rotated, true, nil
}

func classify(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if rejected(status, re.ErrorCode) {
			return fmt.Errorf("%s: %w (status=%d error=%q): %w", op, ErrGrantRejected, status, re.ErrorCode, err)
		}
		return fmt.Errorf("%s: provider unavailable (status=%d error=%q): %w", op, status, re.ErrorCode, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rejected reports whether a token endpoint error refuses the grant itself,
// as opposed to an outage the caller can retry later.
func rejected(status int, code string) bool {
	switch code {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	case "temporarily_unavailable", "server_error":
		return false
	}
	return status == http.StatusBadRequest || status == http.StatusUnauthorized
}

func toTokenSet(tok *oauth2.Token) *user.TokenSet {
	ts := &user.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	return ts
}
