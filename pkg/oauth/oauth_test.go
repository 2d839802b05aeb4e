package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipify/pkg/oauth"
	"swipify/pkg/oauth/oauthtest"
	"swipify/pkg/pkce"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		cfg     oauth.Config
		missing []string
	}{
		{"complete public client", oauth.ProviderSpotify, oauth.Config{ClientID: "c", RedirectURL: "http://x/cb"}, nil},
		{"no client id", oauth.ProviderSpotify, oauth.Config{RedirectURL: "http://x/cb"}, []string{"client_id"}},
		{"no redirect", oauth.ProviderSpotify, oauth.Config{ClientID: "c"}, []string{"redirect_url"}},
		{"confidential without secret", oauth.ProviderSpotify, oauth.Config{ClientID: "c", RedirectURL: "u", Confidential: true}, []string{"client_secret"}},
		{"oidc without issuer", oauth.ProviderOIDC, oauth.Config{ClientID: "c", RedirectURL: "u"}, []string{"issuer_url"}},
		{"nothing", oauth.ProviderSpotify, oauth.Config{}, []string{"client_id", "redirect_url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.kind)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, oauth.ErrInvalidConfig)
			for _, m := range tt.missing {
				assert.Contains(t, err.Error(), m)
			}
		})
	}
}

func TestNewSpotifyProvider_MissingConfig(t *testing.T) {
	_, err := oauth.NewSpotifyProvider(oauth.Config{RedirectURL: "http://x/cb"})
	assert.ErrorIs(t, err, oauth.ErrInvalidConfig)
}

func TestAuthCodeURL(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	verifier, err := pkce.GenerateCodeVerifier()
	require.NoError(t, err)
	challenge := pkce.GenerateCodeChallenge(verifier)

	raw, err := p.AuthCodeURL("state-xyz", challenge)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, oauthtest.ClientID, q.Get("client_id"))
	assert.Equal(t, oauthtest.RedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "user-read-email user-read-private", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, challenge, q.Get("code_challenge"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.NotContains(t, raw, verifier, "the verifier must never leave the server")
}

func TestAuthCodeURL_MissingInputs(t *testing.T) {
	p := oauthtest.NewServer(t).Provider(t)

	_, err := p.AuthCodeURL("", "challenge")
	assert.ErrorIs(t, err, oauth.ErrInvalidConfig)

	_, err = p.AuthCodeURL("state", "")
	assert.ErrorIs(t, err, oauth.ErrInvalidConfig)
}

func TestExchange_SendsVerifier(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	before := time.Now()
	tok, err := p.Exchange(context.Background(), "code-abc", "verifier-abc")
	require.NoError(t, err)

	assert.Equal(t, "AT1", tok.AccessToken)
	assert.Equal(t, "RT1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "user-read-email user-read-private", tok.Scope)
	assert.WithinDuration(t, before.Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	reqs := srv.TokenRequests()
	require.Len(t, reqs, 1)
	form := reqs[0]
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-abc", form.Get("code"))
	assert.Equal(t, oauthtest.RedirectURL, form.Get("redirect_uri"))
	assert.Equal(t, oauthtest.ClientID, form.Get("client_id"))
	assert.Equal(t, "verifier-abc", form.Get("code_verifier"))
}

func TestExchange_RefusesEmptyVerifier(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	_, err := p.Exchange(context.Background(), "code-abc", "")
	assert.ErrorIs(t, err, oauth.ErrMissingVerifier)
	assert.Empty(t, srv.TokenRequests(), "no token request may be sent without a verifier")
}

func TestExchange_Rejected(t *testing.T) {
	srv := oauthtest.NewServer(t)
	srv.OnToken(func(url.Values) oauthtest.Response {
		return oauthtest.Response{Status: http.StatusBadRequest, Body: map[string]any{"error": "invalid_grant"}}
	})
	p := srv.Provider(t)

	_, err := p.Exchange(context.Background(), "used-code", "verifier")
	assert.ErrorIs(t, err, oauth.ErrGrantRejected)
	assert.Len(t, srv.TokenRequests(), 1, "code exchange must not be retried")
}

func TestRefresh_KeepsRefreshTokenWhenAbsent(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	tok, err := p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "AT2", tok.AccessToken)
	assert.Equal(t, "RT1", tok.RefreshToken)

	reqs := srv.TokenRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "refresh_token", reqs[0].Get("grant_type"))
	assert.Equal(t, "RT1", reqs[0].Get("refresh_token"))
	assert.Equal(t, oauthtest.ClientID, reqs[0].Get("client_id"))
	assert.Empty(t, reqs[0].Get("client_secret"))
}

func TestRefresh_Rotation(t *testing.T) {
	srv := oauthtest.NewServer(t)
	srv.OnToken(func(url.Values) oauthtest.Response {
		return oauthtest.Response{Status: http.StatusOK, Body: map[string]any{
			"access_token": "AT3", "refresh_token": "RT2", "expires_in": 3600, "token_type": "Bearer",
		}}
	})
	p := srv.Provider(t)

	tok, err := p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "RT2", tok.RefreshToken)
}

func TestRefresh_ConfidentialClientSendsSecret(t *testing.T) {
	srv := oauthtest.NewServer(t)
	cfg := srv.Config()
	cfg.ClientSecret = "s3cret"
	cfg.Confidential = true
	p, err := oauth.NewSpotifyProvider(cfg, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", srv.TokenRequests()[0].Get("client_secret"))
}

func TestRefresh_Rejected(t *testing.T) {
	srv := oauthtest.NewServer(t)
	srv.OnToken(func(url.Values) oauthtest.Response {
		return oauthtest.Response{Status: http.StatusBadRequest, Body: map[string]any{"error": "invalid_grant", "error_description": "Refresh token revoked"}}
	})
	p := srv.Provider(t)

	_, err := p.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, oauth.ErrGrantRejected)
}

func TestRefresh_TransportFailureIsNotRejection(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)
	srv.Close()

	_, err := p.Refresh(context.Background(), "RT1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, oauth.ErrGrantRejected))
}

func TestRefresh_ProviderOutageIsNotRejection(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
	}{
		{"503 temporarily unavailable", http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"}},
		{"500 server error", http.StatusInternalServerError, map[string]any{"error": "server_error"}},
		{"502 without body", http.StatusBadGateway, nil},
		{"400 temporarily unavailable", http.StatusBadRequest, map[string]any{"error": "temporarily_unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := oauthtest.NewServer(t)
			srv.OnToken(func(url.Values) oauthtest.Response {
				return oauthtest.Response{Status: tt.status, Body: tt.body}
			})
			p := srv.Provider(t)

			_, err := p.Refresh(context.Background(), "RT1")
			require.Error(t, err)
			assert.False(t, errors.Is(err, oauth.ErrGrantRejected))
		})
	}
}

func TestRefresh_UnauthorizedIsRejection(t *testing.T) {
	srv := oauthtest.NewServer(t)
	srv.OnToken(func(url.Values) oauthtest.Response {
		return oauthtest.Response{Status: http.StatusUnauthorized, Body: map[string]any{"error": "invalid_client"}}
	})
	p := srv.Provider(t)

	_, err := p.Refresh(context.Background(), "RT1")
	assert.ErrorIs(t, err, oauth.ErrGrantRejected)
}

func TestRefresh_Empty(t *testing.T) {
	p := oauthtest.NewServer(t).Provider(t)
	_, err := p.Refresh(context.Background(), "")
	assert.Error(t, err)
}

func TestFetchProfile(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	prof, err := p.FetchProfile(context.Background(), "AT1")
	require.NoError(t, err)
	assert.Equal(t, "spotify", prof.Provider)
	assert.Equal(t, "spotify-user-1", prof.ExternalID)
	assert.Equal(t, "Ada", prof.DisplayName)
	assert.Equal(t, "ada@example.com", prof.Email)
	assert.Equal(t, "https://i.scdn.co/image/ada", prof.AvatarURL)
	assert.Equal(t, []string{"Bearer AT1"}, srv.ProfileAuthorizations())
}

func TestFetchProfile_Failures(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)

	srv.QueueProfile(
		oauthtest.Response{Status: http.StatusUnauthorized, Body: map[string]any{"error": "expired"}},
		oauthtest.Response{Status: http.StatusOK, Body: map[string]any{"display_name": "no id"}},
	)

	_, err := p.FetchProfile(context.Background(), "AT1")
	assert.ErrorIs(t, err, oauth.ErrProfileUnavailable)

	_, err = p.FetchProfile(context.Background(), "AT1")
	assert.ErrorIs(t, err, oauth.ErrProfileUnavailable)

	_, err = p.FetchProfile(context.Background(), "")
	assert.ErrorIs(t, err, oauth.ErrProfileUnavailable)
}

func TestValidToken(t *testing.T) {
	srv := oauthtest.NewServer(t)
	p := srv.Provider(t)
	ctx := context.Background()

	tok, refreshed, err := p.ValidToken(ctx, nil)
	assert.NoError(t, err)
	assert.Nil(t, tok)
	assert.False(t, refreshed)

	fresh := oauthTokenSet("AT1", "RT1", time.Now().Add(time.Hour))
	tok, refreshed, err = p.ValidToken(ctx, &fresh)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, "AT1", tok.AccessToken)

	stale := oauthTokenSet("AT1", "RT1", time.Now().Add(-time.Minute))
	tok, refreshed, err = p.ValidToken(ctx, &stale)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "AT2", tok.AccessToken)
	assert.Equal(t, "RT1", tok.RefreshToken)

	noRefresh := oauthTokenSet("AT1", "", time.Now().Add(-time.Minute))
	_, _, err = p.ValidToken(ctx, &noRefresh)
	assert.Error(t, err)
}

func TestOIDCProvider(t *testing.T) {
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"userinfo_endpoint": %q,
			"jwks_uri": %q,
			"id_token_signing_alg_values_supported": ["RS256"]
		}`, issuer, issuer+"/authorize", issuer+"/token", issuer+"/userinfo", issuer+"/keys")
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer AT-oidc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                "oidc-user-7",
			"email":              "grace@example.com",
			"preferred_username": "grace",
			"picture":            "https://example.com/grace.png",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuer = srv.URL

	p, err := oauth.NewOIDCProvider(context.Background(), oauth.Config{
		Name:        "musicshare",
		ClientID:    "ms-client",
		RedirectURL: "http://app.test/callback",
		IssuerURL:   issuer,
	}, oauth.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, "musicshare", p.Name())
	assert.Contains(t, p.Scopes(), "openid")

	raw, err := p.AuthCodeURL("st", "ch")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, issuer+"/authorize?"))

	prof, err := p.FetchProfile(context.Background(), "AT-oidc")
	require.NoError(t, err)
	assert.Equal(t, "musicshare", prof.Provider)
	assert.Equal(t, "oidc-user-7", prof.ExternalID)
	assert.Equal(t, "grace", prof.DisplayName)
	assert.Equal(t, "grace@example.com", prof.Email)

	_, err = p.FetchProfile(context.Background(), "wrong")
	assert.ErrorIs(t, err, oauth.ErrProfileUnavailable)
}
