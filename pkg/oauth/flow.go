package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"swipify/pkg/pages"
	"swipify/pkg/pkce"
	"swipify/pkg/user"
)

// LoopbackTimeout bounds how long the CLI waits for the browser.
const LoopbackTimeout = 5 * time.Minute

// LoopbackLogin is a login running against a local callback server.
type LoopbackLogin struct {
	AuthURL string
	// Addr is the host:port the callback server listens on.
	Addr string

	done  chan struct{}
	once  sync.Once
	token *user.TokenSet
	err   error
}

func (l *LoopbackLogin) finish(tok *user.TokenSet, err error) {
	l.once.Do(func() {
		l.token, l.err = tok, err
		close(l.done)
	})
}

// Wait blocks until the flow completes or ctx ends.
func (l *LoopbackLogin) Wait(ctx context.Context) (*user.TokenSet, error) {
	select {
	case <-l.done:
		return l.token, l.err
	case <-ctx.Done():
		return nil, fmt.Errorf("authentication cancelled: %w", ctx.Err())
	}
}

// StartLoopbackLogin runs the authorization code flow with PKCE for a
// command line client. The provider's redirect URL must point at
// http://127.0.0.1:<port>/callback.
func (p *Provider) StartLoopbackLogin(ctx context.Context, port int) (*LoopbackLogin, error) {
	state, err := pkce.GenerateState()
	if err != nil {
		return nil, err
	}
	verifier, err := pkce.GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}

	authURL, err := p.AuthCodeURL(state, pkce.GenerateCodeChallenge(verifier))
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener: %w", err)
	}

	login := &LoopbackLogin{AuthURL: authURL, Addr: listener.Addr().String(), done: make(chan struct{})}
	codes := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(state)) != 1 {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			login.finish(nil, errors.New("invalid state parameter - possible CSRF attack"))
			return
		}

		if errParam := q.Get("error"); errParam != "" {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			login.finish(nil, fmt.Errorf("authorization failed: %s", errParam))
			return
		}

		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			login.finish(nil, errors.New("missing authorization code"))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = pages.LoopbackSuccess().Render(w)

		select {
		case codes <- code:
		default:
		}
	})

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			login.finish(nil, fmt.Errorf("callback server error: %w", err))
		}
	}()

	go func() {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		timer := time.NewTimer(LoopbackTimeout)
		defer timer.Stop()

		select {
		case code := <-codes:
			tok, err := p.Exchange(ctx, code, verifier)
			if err != nil {
				login.finish(nil, fmt.Errorf("failed to exchange code for token: %w", err))
				return
			}
			login.finish(tok, nil)
		case <-login.done:
		case <-ctx.Done():
			login.finish(nil, fmt.Errorf("authentication cancelled: %w", ctx.Err()))
		case <-timer.C:
			login.finish(nil, errors.New("authentication timeout - no callback received after 5 minutes"))
		}
	}()

	return login, nil
}
