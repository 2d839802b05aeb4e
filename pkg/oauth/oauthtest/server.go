// Package oauthtest provides an in-process fake of the provider's token and
// profile endpoints.
package oauthtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"swipify/pkg/oauth"
)

const (
	ClientID    = "client-123"
	RedirectURL = "http://app.test/callback"
)

// Response is a canned HTTP reply.
type Response struct {
	Status int
	Body   any
}

// Server fakes an authorization server with a Spotify style /v1/me.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	tokenRequests  []url.Values
	profileAuth    []string
	tokenReply     func(form url.Values) Response
	profileReplies []Response
}

// NewServer starts a fake that issues AT1/RT1 for codes and AT2 without a
// new refresh token for refreshes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{tokenReply: DefaultTokenReply}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/v1/me", s.handleProfile)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// DefaultTokenReply answers the two grant types with fixed tokens.
func DefaultTokenReply(form url.Values) Response {
	switch form.Get("grant_type") {
	case "authorization_code":
		return Response{Status: http.StatusOK, Body: map[string]any{
			"access_token":  "AT1",
			"refresh_token": "RT1",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"scope":         "user-read-email user-read-private",
		}}
	case "refresh_token":
		return Response{Status: http.StatusOK, Body: map[string]any{
			"access_token": "AT2",
			"expires_in":   3600,
			"token_type":   "Bearer",
		}}
	}
	return Response{Status: http.StatusBadRequest, Body: map[string]any{"error": "unsupported_grant_type"}}
}

// Config returns a provider configuration pointing at the fake.
func (s *Server) Config() oauth.Config {
	return oauth.Config{
		ClientID:    ClientID,
		RedirectURL: RedirectURL,
		Scopes:      []string{"user-read-email", "user-read-private"},
		AuthURL:     s.URL + "/authorize",
		TokenURL:    s.URL + "/api/token",
		APIURL:      s.URL,
	}
}

// Provider builds a Spotify provider against the fake.
func (s *Server) Provider(t testing.TB) *oauth.Provider {
	t.Helper()
	p, err := oauth.NewSpotifyProvider(s.Config(), oauth.WithHTTPClient(s.Client()))
	if err != nil {
		t.Fatalf("NewSpotifyProvider() error = %v", err)
	}
	return p
}

// OnToken replaces the token endpoint behaviour.
func (s *Server) OnToken(fn func(form url.Values) Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenReply = fn
}

// QueueProfile makes the next profile calls return the given replies in
// order; afterwards the default profile is served.
func (s *Server) QueueProfile(replies ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileReplies = append(s.profileReplies, replies...)
}

// TokenRequests returns the forms posted to the token endpoint.
func (s *Server) TokenRequests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.tokenRequests...)
}

// ProfileAuthorizations returns the Authorization headers of profile calls.
func (s *Server) ProfileAuthorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.profileAuth...)
}

// DefaultProfile is the Spotify user the fake returns.
func DefaultProfile() map[string]any {
	return map[string]any{
		"id":           "spotify-user-1",
		"display_name": "Ada",
		"email":        "ada@example.com",
		"images":       []map[string]any{{"url": "https://i.scdn.co/image/ada"}},
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenRequests = append(s.tokenRequests, r.PostForm)
	reply := s.tokenReply
	s.mu.Unlock()

	writeJSON(w, reply(r.PostForm))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.profileAuth = append(s.profileAuth, r.Header.Get("Authorization"))
	resp := Response{Status: http.StatusOK, Body: DefaultProfile()}
	if len(s.profileReplies) > 0 {
		resp = s.profileReplies[0]
		s.profileReplies = s.profileReplies[1:]
	}
	s.mu.Unlock()

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}
