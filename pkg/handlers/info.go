package handlers

import (
	"encoding/json"
	"net/http"
)

// InfoResponse describes how clients authenticate against this server
type InfoResponse struct {
	Provider   string   `json:"provider"`
	ClientID   string   `json:"client_id"`
	Scopes     []string `json:"scopes"`
	LoginURL   string   `json:"login_url"`
	TokenURL   string   `json:"token_url"`
	RefreshURL string   `json:"refresh_url"`
	LogoutURL  string   `json:"logout_url"`
}

// NewInfo fills the endpoint URLs relative to baseURL.
func NewInfo(provider, clientID string, scopes []string, baseURL string) InfoResponse {
	return InfoResponse{
		Provider:   provider,
		ClientID:   clientID,
		Scopes:     scopes,
		LoginURL:   baseURL + "/login",
		TokenURL:   baseURL + "/api/token",
		RefreshURL: baseURL + "/api/token/refresh",
		LogoutURL:  baseURL + "/logout",
	}
}

// HandleInfo returns the auth configuration
func HandleInfo(info InfoResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
