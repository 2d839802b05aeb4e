package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"swipify/pkg/auth"
	"swipify/pkg/middleware"
	"swipify/pkg/seal"
	"swipify/pkg/session"
	"swipify/pkg/user"
)

// BindingCookieName holds the sealed state of the login in progress, tying
// the callback to the browser that started it.
const BindingCookieName = "swipify_login"

const sessionFailedMessage = "Your session could not be started."

type binding struct {
	State string `json:"state"`
}

// Options configures Handler. Zero values select the defaults.
type Options struct {
	Logger zerolog.Logger
	// Secure marks cookies Secure; set in production.
	Secure        bool
	ProviderLabel string
	CallbackPath  string
	Info          InfoResponse
}

// Handler serves the login flow, the session API and the auth pages.
type Handler struct {
	auth     *auth.Service
	users    user.Store
	sessions *session.Manager
	binder   *seal.Sealer
	log      zerolog.Logger
	opts     Options
}

func New(svc *auth.Service, users user.Store, sessions *session.Manager, binder *seal.Sealer, opts Options) *Handler {
	if opts.ProviderLabel == "" {
		opts.ProviderLabel = "Spotify"
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/callback"
	}
	return &Handler{
		auth:     svc,
		users:    users,
		sessions: sessions,
		binder:   binder,
		log:      opts.Logger,
		opts:     opts,
	}
}

// Register adds every route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleHome)
	mux.Handle("GET /login", middleware.NoStore(http.HandlerFunc(h.HandleLogin)))
	mux.Handle("GET "+h.opts.CallbackPath, middleware.NoStore(http.HandlerFunc(h.HandleCallback)))
	mux.HandleFunc("GET /auth/error", h.HandleAuthError)
	mux.HandleFunc("POST /logout", h.HandleLogout)

	mux.Handle("GET /api/me", h.api(h.HandleMe))
	mux.Handle("GET /api/token", h.api(h.HandleToken))
	mux.Handle("POST /api/token/refresh", h.api(h.HandleRefresh))

	mux.HandleFunc("GET /info", HandleInfo(h.opts.Info))
	mux.HandleFunc("GET /health", HandleHealth)
}

func (h *Handler) api(fn http.HandlerFunc) http.Handler {
	return middleware.NoStore(h.sessions.RequireUser(fn))
}

func (h *Handler) setBinding(w http.ResponseWriter, state string, expires time.Time) error {
	ttl := time.Until(expires)
	if ttl <= 0 {
		return errors.New("login attempt already expired")
	}
	value, err := h.binder.Seal(binding{State: state}, ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, h.bindingCookie(value, int(ttl/time.Second)))
	return nil
}

// boundState returns the state this browser started a login with, or ""
// when the binding cookie is absent, expired or forged.
func (h *Handler) boundState(r *http.Request) string {
	c, err := r.Cookie(BindingCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	var b binding
	if err := h.binder.Open(c.Value, &b); err != nil {
		h.log.Debug().Err(err).Msg("ignoring login binding cookie")
		return ""
	}
	return b.State
}

func (h *Handler) clearBinding(w http.ResponseWriter) {
	http.SetCookie(w, h.bindingCookie("", -1))
}

func (h *Handler) bindingCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     BindingCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.Secure,
		// Lax keeps the cookie on the provider's top-level redirect back.
		SameSite: http.SameSiteLaxMode,
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	LoginURL string `json:"login_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError maps a flow error to a status. Errors that only a fresh
// login can fix carry the login URL so the client restarts the flow.
func writeAuthError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: auth.Reason(err), Message: auth.Message(err)}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, auth.ErrReauthRequired),
		errors.Is(err, auth.ErrNoRefreshToken),
		errors.Is(err, auth.ErrUserNotFound):
		status = http.StatusUnauthorized
		resp.LoginURL = "/login"
	case errors.Is(err, auth.ErrRefreshFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}
