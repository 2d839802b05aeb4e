package oauth_test

import (
	"time"

	"swipify/pkg/user"
)

func oauthTokenSet(access, refresh string, expires time.Time) user.TokenSet {
	return user.TokenSet{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresAt: expires}
}
