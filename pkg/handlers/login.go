package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"swipify/pkg/auth"
	"swipify/pkg/pages"
	"swipify/pkg/user"
	"swipify/pkg/validation"
)

// HandleLogin starts a login and redirects to the provider.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	// a fresh login replaces whatever this browser left unfinished
	if previous := h.boundState(r); previous != "" {
		if err := h.auth.Discard(r.Context(), previous); err != nil {
			h.log.Warn().Err(err).Msg("failed to discard previous login")
		}
	}

	attempt, err := h.auth.Begin(r.Context(), r.URL.Query().Get("return_to"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start login")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_ = pages.AuthError(auth.Message(err), "/login").Render(w)
		return
	}

	if err := h.setBinding(w, attempt.State, attempt.ExpiresAt); err != nil {
		_ = h.auth.Discard(r.Context(), attempt.State)
		h.log.Error().Err(err).Msg("failed to bind login to browser")
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, attempt.AuthURL, http.StatusFound)
}

// HandleCallback completes the login the provider redirected back with.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := auth.Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		BoundState:       h.boundState(r),
	}
	h.clearBinding(w)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	login, err := h.auth.Complete(ctx, cb)
	if err != nil {
		redirectToError(w, r, auth.Message(err))
		return
	}

	if _, err := h.sessions.Issue(w, login.User.ID); err != nil {
		h.log.Error().Err(err).Str("user_id", login.User.ID).Msg("failed to issue session")
		redirectToError(w, r, sessionFailedMessage)
		return
	}
	h.log.Debug().Str("user_id", login.User.ID).Str("stage", string(auth.StageSessionEstablished)).Msg("session established")

	http.Redirect(w, r, validation.SafeReturnPath(login.ReturnTo), http.StatusFound)
}

func redirectToError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, "/auth/error?message="+url.QueryEscape(message), http.StatusFound)
}

// HandleAuthError renders the failed-login page. Only messages this
// server produces are echoed back.
func (h *Handler) HandleAuthError(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if !auth.KnownMessage(message) && message != sessionFailedMessage {
		message = auth.Message(nil)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pages.AuthError(message, "/login").Render(w)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	h.clearBinding(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleHome renders the landing page for anonymous and logged in visitors.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	var current *user.User
	if id, err := h.sessions.UserID(r); err == nil {
		u, err := h.users.Get(r.Context(), id)
		switch {
		case errors.Is(err, user.ErrNotFound):
			h.sessions.Clear(w)
		case err != nil:
			h.log.Error().Err(err).Msg("failed to load user")
		default:
			current = u
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pages.Landing(current, h.opts.ProviderLabel).Render(w)
}
