package handlers

import (
	"errors"
	"net/http"
	"time"

	"swipify/pkg/auth"
	"swipify/pkg/session"
	"swipify/pkg/user"
)

// TokenResponse is an access token handed to the signed-in browser.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

func tokenResponse(t *user.TokenSet) TokenResponse {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   t.ExpiresIn(time.Now()),
		Scope:       t.Scope,
	}
}

// HandleMe returns the signed-in user's profile. Tokens are never included.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := session.UserIDFromContext(r.Context())
	u, err := h.users.Get(r.Context(), id)
	if errors.Is(err, user.ErrNotFound) {
		h.sessions.Clear(w)
		writeAuthError(w, &auth.Error{Stage: auth.StageRefresh, Kind: auth.ErrUserNotFound, Err: err})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load user")
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleToken returns a usable access token, refreshing it when needed.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	id, _ := session.UserIDFromContext(r.Context())
	tok, err := h.auth.AccessToken(r.Context(), id)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tok))
}

// HandleRefresh forces a refresh. A 401 with login_url tells the client to
// send the user through the full login again.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id, _ := session.UserIDFromContext(r.Context())
	tok, err := h.auth.Refresh(r.Context(), id)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tok))
}
