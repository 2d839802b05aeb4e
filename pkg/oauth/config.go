package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"swipify/pkg/pkce"
)

var (
	// ErrInvalidConfig reports a provider configuration that cannot produce
	// an authorization request.
	ErrInvalidConfig = errors.New("oauth provider configuration incomplete")
	// ErrGrantRejected is returned when the token endpoint refuses a code
	// or refresh token.
	ErrGrantRejected = errors.New("provider rejected the grant")
	// ErrMissingVerifier guards against exchanging a code without PKCE.
	ErrMissingVerifier = errors.New("code verifier is required for code exchange")
	// ErrProfileUnavailable is returned when the profile endpoint fails.
	ErrProfileUnavailable = errors.New("profile unavailable")
)

const (
	ProviderSpotify = "spotify"
	ProviderOIDC    = "oidc"

	DefaultSpotifyAPIURL = "https://api.spotify.com"
)

// DefaultSpotifyScopes are requested when none are configured.
var DefaultSpotifyScopes = []string{"user-read-email", "user-read-private", "user-top-read"}

// Config holds the client registration with the identity provider
type Config struct {
	// Name identifies the provider on stored users; defaults to the kind.
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Confidential clients must hold a secret; public clients rely on PKCE alone.
	Confidential bool

	// Endpoint overrides, mainly for tests and self-hosted providers.
	AuthURL  string
	TokenURL string
	APIURL   string

	// IssuerURL enables OIDC discovery.
	IssuerURL string
}

// Validate names every missing setting.
func (c Config) Validate(kind string) error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.RedirectURL == "" {
		missing = append(missing, "redirect_url")
	}
	if c.Confidential && c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if kind == ProviderOIDC && c.IssuerURL == "" {
		missing = append(missing, "issuer_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Provider wraps the OAuth2 config with the provider's profile lookup
type Provider struct {
	name       string
	oauth2     *oauth2.Config
	profiles   profileSource
	httpClient *http.Client

	oidcProvider    *oidc.Provider
	idTokenVerifier *oidc.IDTokenVerifier
}

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for every outbound provider call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// NewSpotifyProvider creates a provider for Spotify accounts.
func NewSpotifyProvider(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(ProviderSpotify); err != nil {
		return nil, err
	}

	endpoint := spotify.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultSpotifyScopes
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultSpotifyAPIURL
	}

	p := &Provider{
		name: nameOr(cfg.Name, ProviderSpotify),
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.profiles = &spotifyProfiles{provider: p, meURL: strings.TrimRight(apiURL, "/") + "/v1/me"}
	return p, nil
}

// NewOIDCProvider creates a provider from an OpenID Connect issuer using
// discovery.
func NewOIDCProvider(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(ProviderOIDC); err != nil {
		return nil, err
	}

	p := &Provider{name: nameOr(cfg.Name, ProviderOIDC)}
	for _, opt := range opts {
		opt(p)
	}

	discovered, err := oidc.NewProvider(p.httpContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider at %s: %w", cfg.IssuerURL, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess}
	}

	endpoint := discovered.Endpoint()
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	p.oauth2 = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}
	p.oidcProvider = discovered
	p.idTokenVerifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	p.profiles = &oidcProfiles{provider: p}
	return p, nil
}

// Name identifies the provider on stored users.
func (p *Provider) Name() string {
	return p.name
}

// Scopes returns the requested scopes.
func (p *Provider) Scopes() []string {
	return p.oauth2.Scopes
}

// ClientID returns the registered client id.
func (p *Provider) ClientID() string {
	return p.oauth2.ClientID
}

// AuthCodeURL builds the authorization request for one login attempt. The
// query carries response_type, client_id, redirect_uri, scope, state and
// the S256 code challenge.
func (p *Provider) AuthCodeURL(state, challenge string) (string, error) {
	var missing []string
	if p.oauth2.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if p.oauth2.RedirectURL == "" {
		missing = append(missing, "redirect_url")
	}
	if p.oauth2.Endpoint.AuthURL == "" {
		missing = append(missing, "auth_url")
	}
	if state == "" {
		missing = append(missing, "state")
	}
	if challenge == "" {
		missing = append(missing, "code_challenge")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	return p.oauth2.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	), nil
}

// httpContext carries the configured HTTP client to oauth2 and go-oidc.
func (p *Provider) httpContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// NewProvider builds the provider for kind, spotify or oidc.
func NewProvider(ctx context.Context, kind string, cfg Config, opts ...Option) (*Provider, error) {
	switch kind {
	case "", ProviderSpotify:
		return NewSpotifyProvider(cfg, opts...)
	case ProviderOIDC:
		return NewOIDCProvider(ctx, cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, kind)
	}
}
