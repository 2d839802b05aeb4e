// Package config loads server settings from defaults, an optional YAML file
// and SWIPIFY_* environment variables, in that order.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"swipify/pkg/oauth"
	"swipify/pkg/pending"
	"swipify/pkg/store"
)

var (
	// ErrMissing reports required settings that were not provided.
	ErrMissing = errors.New("required configuration missing")
	// ErrInvalid reports settings that are present but unusable.
	ErrInvalid = errors.New("invalid configuration")
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"SWIPIFY_LISTEN_ADDR"`
	BaseURL     string `yaml:"base_url" env:"SWIPIFY_BASE_URL"`
	Environment string `yaml:"environment" env:"SWIPIFY_ENV"`
	LogLevel    string `yaml:"log_level" env:"SWIPIFY_LOG_LEVEL"`

	TLSCertFile string `yaml:"tls_cert_file" env:"SWIPIFY_TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"SWIPIFY_TLS_KEY_FILE"`

	AllowedOrigins []string `yaml:"allowed_origins" env:"SWIPIFY_ALLOWED_ORIGINS" envSeparator:","`
	TrustProxy     bool     `yaml:"trust_proxy" env:"SWIPIFY_TRUST_PROXY"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Provider  Provider  `yaml:"provider"`
	Session   Session   `yaml:"session"`
	Pending   Pending   `yaml:"pending"`
	Database  Database  `yaml:"database"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps" env:"SWIPIFY_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"SWIPIFY_RATE_LIMIT_BURST"`
}

// Provider is the OAuth client registration.
type Provider struct {
	// Kind is spotify or oidc.
	Kind         string   `yaml:"kind" env:"SWIPIFY_PROVIDER"`
	Name         string   `yaml:"name" env:"SWIPIFY_PROVIDER_NAME"`
	ClientID     string   `yaml:"client_id" env:"SWIPIFY_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"SWIPIFY_CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"SWIPIFY_REDIRECT_URI"`
	Scopes       []string `yaml:"scopes" env:"SWIPIFY_SCOPES" envSeparator:","`
	Confidential bool     `yaml:"confidential" env:"SWIPIFY_CONFIDENTIAL_CLIENT"`
	AuthURL      string   `yaml:"auth_url" env:"SWIPIFY_AUTH_URL"`
	TokenURL     string   `yaml:"token_url" env:"SWIPIFY_TOKEN_URL"`
	APIURL       string   `yaml:"api_url" env:"SWIPIFY_API_URL"`
	IssuerURL    string   `yaml:"issuer_url" env:"SWIPIFY_ISSUER_URL"`
}

// OAuth converts the registration for pkg/oauth.
func (p Provider) OAuth() oauth.Config {
	return oauth.Config{
		Name:         p.Name,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Confidential: p.Confidential,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
		APIURL:       p.APIURL,
		IssuerURL:    p.IssuerURL,
	}
}

type Session struct {
	// Secret keys both the session cookie and the login binding cookie.
	// Base64 values are decoded.
	Secret     string        `yaml:"secret" env:"SWIPIFY_SESSION_SECRET"`
	CookieName string        `yaml:"cookie_name" env:"SWIPIFY_SESSION_COOKIE"`
	MaxAge     time.Duration `yaml:"max_age" env:"SWIPIFY_SESSION_MAX_AGE"`
}

// SecretBytes returns the decoded secret.
func (s Session) SecretBytes() []byte {
	if s.Secret == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(s.Secret); err == nil && len(decoded) >= 32 {
		return decoded
	}
	return []byte(s.Secret)
}

// Pending configures where in-flight logins are kept.
type Pending struct {
	Backend         string        `yaml:"backend" env:"SWIPIFY_PENDING_BACKEND"`
	TTL             time.Duration `yaml:"ttl" env:"SWIPIFY_LOGIN_TTL"`
	RedisAddr       string        `yaml:"redis_addr" env:"SWIPIFY_REDIS_ADDR"`
	RedisPassword   string        `yaml:"redis_password" env:"SWIPIFY_REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redis_db" env:"SWIPIFY_REDIS_DB"`
	Namespace       string        `yaml:"namespace" env:"SWIPIFY_NAMESPACE"`
	Kubeconfig      string        `yaml:"kubeconfig" env:"SWIPIFY_KUBECONFIG"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"SWIPIFY_CLEANUP_INTERVAL"`
}

func (p Pending) Options() pending.Options {
	return pending.Options{
		Backend:       p.Backend,
		RedisAddr:     p.RedisAddr,
		RedisPassword: p.RedisPassword,
		RedisDB:       p.RedisDB,
		Namespace:     p.Namespace,
		Kubeconfig:    p.Kubeconfig,
	}
}

type Database struct {
	Driver string `yaml:"driver" env:"SWIPIFY_DB_DRIVER"`
	DSN    string `yaml:"dsn" env:"SWIPIFY_DB_DSN"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		RateLimit:   RateLimit{RPS: 10, Burst: 20},
		Provider:    Provider{Kind: oauth.ProviderSpotify},
		Session: Session{
			CookieName: "swipify_session",
			MaxAge:     30 * 24 * time.Hour,
		},
		Pending: Pending{
			Backend:         pending.BackendMemory,
			TTL:             pending.DefaultTTL,
			Namespace:       "default",
			CleanupInterval: 5 * time.Minute,
		},
		Database: Database{
			Driver: store.DriverSQLite,
			DSN:    "swipify.db",
		},
	}
}

// Load reads path (optional) and the environment on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Provider.RedirectURL == "" && cfg.BaseURL != "" {
		cfg.Provider.RedirectURL = strings.TrimRight(cfg.BaseURL, "/") + "/callback"
	}
	return &cfg, nil
}

// Production reports whether cookies must be Secure.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

// TLS reports whether the server terminates TLS itself.
func (c *Config) TLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Validate names every missing setting in one error so a misconfigured
// deployment fails once, at startup.
func (c *Config) Validate() error {
	var missing []string
	need := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	need(c.Provider.ClientID != "", "SWIPIFY_CLIENT_ID")
	need(c.Provider.RedirectURL != "", "SWIPIFY_REDIRECT_URI")
	need(!c.Provider.Confidential || c.Provider.ClientSecret != "", "SWIPIFY_CLIENT_SECRET")
	need(c.Provider.Kind != oauth.ProviderOIDC || c.Provider.IssuerURL != "", "SWIPIFY_ISSUER_URL")
	need(c.Session.Secret != "", "SWIPIFY_SESSION_SECRET")
	need(c.Pending.Backend != pending.BackendRedis || c.Pending.RedisAddr != "", "SWIPIFY_REDIS_ADDR")
	need(c.Database.DSN != "", "SWIPIFY_DB_DSN")

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	switch c.Provider.Kind {
	case oauth.ProviderSpotify, oauth.ProviderOIDC:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalid, c.Provider.Kind)
	}
	switch c.Pending.Backend {
	case pending.BackendMemory, pending.BackendRedis, pending.BackendKubernetes:
	default:
		return fmt.Errorf("%w: unknown pending backend %q", ErrInvalid, c.Pending.Backend)
	}
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalid, c.Database.Driver)
	}
	if len(c.Session.SecretBytes()) < 32 {
		return fmt.Errorf("%w: SWIPIFY_SESSION_SECRET must be at least 32 bytes", ErrInvalid)
	}
	if c.Pending.TTL <= 0 {
		return fmt.Errorf("%w: login ttl must be positive", ErrInvalid)
	}
	if c.Pending.CleanupInterval <= 0 {
		return fmt.Errorf("%w: SWIPIFY_CLEANUP_INTERVAL must be positive", ErrInvalid)
	}
	return nil
}
