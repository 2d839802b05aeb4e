package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"swipify/pkg/user"
)

type profileSource interface {
	fetch(ctx context.Context, accessToken string) (*user.Profile, error)
}

// FetchProfile loads the identity behind an access token.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*user.Profile, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrProfileUnavailable)
	}
	prof, err := p.profiles.fetch(p.httpContext(ctx), accessToken)
	if err != nil {
		return nil, err
	}
	if prof.ExternalID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrProfileUnavailable)
	}
	prof.Provider = p.name
	return prof, nil
}

type spotifyProfiles struct {
	provider *Provider
	meURL    string
}

type spotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (s *spotifyProfiles) fetch(ctx context.Context, accessToken string) (*user.Profile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.meURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: profile endpoint returned %d", ErrProfileUnavailable, resp.StatusCode)
	}

	var su spotifyUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&su); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %w", ErrProfileUnavailable, err)
	}

	prof := &user.Profile{
		ExternalID:  su.ID,
		DisplayName: su.DisplayName,
		Email:       su.Email,
	}
	if prof.DisplayName == "" {
		prof.DisplayName = su.ID
	}
	if len(su.Images) > 0 {
		prof.AvatarURL = su.Images[0].URL
	}
	return prof, nil
}

type oidcProfiles struct {
	provider *Provider
}

func (o *oidcProfiles) fetch(ctx context.Context, accessToken string) (*user.Profile, error) {
	info, err := o.provider.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}

	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Picture           string `json:"picture"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %w", ErrProfileUnavailable, err)
	}

	prof := &user.Profile{
		ExternalID:  info.Subject,
		DisplayName: claims.Name,
		Email:       info.Email,
		AvatarURL:   claims.Picture,
	}
	if prof.DisplayName == "" {
		prof.DisplayName = claims.PreferredUsername
	}
	return prof, nil
}
