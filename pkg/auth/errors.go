package auth

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by Service wraps exactly one of them.
var (
	ErrProviderDenied      = errors.New("provider denied authorization")
	ErrMissingCode         = errors.New("authorization code missing from callback")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrVerifierMissing     = errors.New("no code verifier recorded for state")
	ErrExpiredVerifier     = errors.New("login attempt expired")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrUserStore           = errors.New("user store failure")
	ErrNoRefreshToken      = errors.New("no refresh token stored")
	ErrReauthRequired      = errors.New("re-authentication required")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrConfigMissing       = errors.New("oauth configuration missing")
	ErrUserNotFound        = errors.New("user not found")
)

// Stage is a step of the login flow.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageAwaitingCode       Stage = "awaiting_code"
	StageStateValidated     Stage = "state_validated"
	StageCodeExchanged      Stage = "code_exchanged"
	StageProfileFetched     Stage = "profile_fetched"
	StageUserResolved       Stage = "user_resolved"
	StageSessionEstablished Stage = "session_established"
	StageRefresh            Stage = "refresh"
)

// Error is a failed flow step. errors.Is matches both Kind and the
// underlying cause.
type Error struct {
	// Stage is the last stage the attempt reached.
	Stage Stage
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var reasons = []struct {
	kind    error
	reason  string
	message string
}{
	{ErrProviderDenied, "provider_denied", "The login was cancelled or denied."},
	{ErrMissingCode, "missing_code", "The provider did not return an authorization code."},
	{ErrStateMismatch, "state_mismatch", "The login could not be verified."},
	{ErrVerifierMissing, "verifier_missing", "The login could not be verified."},
	{ErrExpiredVerifier, "expired", "The login took too long."},
	{ErrTokenExchangeFailed, "token_exchange", "The provider did not accept the login."},
	{ErrProfileFetchFailed, "profile_fetch", "Your profile could not be loaded."},
	{ErrUserStore, "user_store", "Your account could not be saved."},
	{ErrNoRefreshToken, "no_refresh_token", "Please log in again."},
	{ErrReauthRequired, "reauth_required", "Please log in again."},
	{ErrRefreshFailed, "refresh_failed", "The provider could not be reached."},
	{ErrConfigMissing, "config_missing", "Login is not configured."},
	{ErrUserNotFound, "user_not_found", "Please log in again."},
}

// Reason returns a short label for err suitable for metrics and logs.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.kind) {
			return r.reason
		}
	}
	return "internal"
}

// Message returns text that is safe to show the user. Provider payloads
// never leak through it.
func Message(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.kind) {
			return r.message
		}
	}
	return "Something went wrong."
}

// KnownMessage reports whether msg is one Message can produce.
func KnownMessage(msg string) bool {
	for _, r := range reasons {
		if r.message == msg {
			return true
		}
	}
	return false
}
