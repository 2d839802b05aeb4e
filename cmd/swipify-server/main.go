package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"swipify/pkg/auth"
	"swipify/pkg/config"
	"swipify/pkg/handlers"
	"swipify/pkg/logger"
	"swipify/pkg/metrics"
	"swipify/pkg/middleware"
	"swipify/pkg/oauth"
	"swipify/pkg/pending"
	"swipify/pkg/seal"
	"swipify/pkg/session"
	"swipify/pkg/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("SWIPIFY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swipify-server: %v\n", err)
		os.Exit(1)
	}
	log := logger.ForEnvironment(cfg.Environment, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(errors.Join(auth.ErrConfigMissing, err)).Msg("refusing to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	users, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer users.Close()
	if err := users.WithLogger(log).Migrate(ctx); err != nil {
		return err
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("user store ready")

	logins, err := pending.New(ctx, cfg.Pending.Options())
	if err != nil {
		return err
	}
	defer func() {
		if err := pending.Close(logins); err != nil {
			log.Warn().Err(err).Msg("failed to close pending login store")
		}
	}()
	if k, ok := logins.(*pending.KubernetesStore); ok {
		go k.RunCleanup(ctx, cfg.Pending.CleanupInterval, func(removed int, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("pending login cleanup failed")
				return
			}
			metrics.PendingLoginsCleaned.Add(float64(removed))
		})
	}
	log.Info().Str("backend", cfg.Pending.Backend).Dur("ttl", cfg.Pending.TTL).Msg("pending login store ready")

	provider, err := oauth.NewProvider(ctx, cfg.Provider.Kind, cfg.Provider.OAuth())
	if err != nil {
		return fmt.Errorf("failed to setup provider: %w", errors.Join(auth.ErrConfigMissing, err))
	}

	secret := cfg.Session.SecretBytes()
	binder, err := seal.NewFromSecret(secret, "login-binding")
	if err != nil {
		return fmt.Errorf("failed to initialize login binding: %w", err)
	}
	sessions, err := session.NewManager(secret, session.Options{
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Production(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sessions: %w", err)
	}

	svc := auth.NewService(provider, logins, users, auth.Options{
		Logger:   log,
		LoginTTL: cfg.Pending.TTL,
	})

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	h := handlers.New(svc, users, sessions, binder, handlers.Options{
		Logger:        log,
		Secure:        cfg.Production(),
		ProviderLabel: providerLabel(provider.Name()),
		Info:          handlers.NewInfo(provider.Name(), provider.ClientID(), provider.Scopes(), baseURL),
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.RequestLogger(log)(handler)
	handler = middleware.SecurityHeaders(handler)
	if cfg.TLS() {
		handler = middleware.HSTS(handler)
	}
	if len(cfg.AllowedOrigins) > 0 {
		handler = middleware.CORS(cfg.AllowedOrigins)(handler)
		log.Info().Strs("origins", cfg.AllowedOrigins).Msg("CORS enabled")
	}
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 5*time.Minute, cfg.TrustProxy)
	defer rateLimiter.Stop()
	handler = rateLimiter.Middleware(handler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("base_url", baseURL).
			Str("provider", provider.Name()).
			Bool("tls", cfg.TLS()).
			Msg("starting swipify server")
		if cfg.TLS() {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func providerLabel(name string) string {
	if name == oauth.ProviderSpotify {
		return "Spotify"
	}
	if name == "" {
		return "your provider"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
