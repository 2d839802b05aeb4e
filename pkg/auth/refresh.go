package auth

import (
	"context"
	"errors"
	"time"

	"swipify/pkg/metrics"
	"swipify/pkg/oauth"
	"swipify/pkg/user"
)

// refreshTimeout bounds a refresh shared by concurrent AccessToken calls.
const refreshTimeout = 30 * time.Second

// Refresh trades the user's stored refresh token for a new access token and
// stores the result. When the provider returns no refresh token the stored
// one is kept. A rejected grant leaves the stored record untouched and
// returns ErrReauthRequired.
func (s *Service) Refresh(ctx context.Context, userID string) (*user.TokenSet, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, u)
}

// AccessToken returns a usable access token for the user, refreshing it
// first when it is expired or about to expire. Concurrent calls for the same
// user share one refresh.
func (s *Service) AccessToken(ctx context.Context, userID string) (*user.TokenSet, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Token.Expired(s.now(), s.skew) {
		return &u.Token, nil
	}

	// The shared refresh outlives any one caller so that a cancelled request
	// neither fails the others nor drops a rotated refresh token.
	ch := s.refreshes.DoChan(userID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		// another caller may have refreshed while we waited
		current, err := s.user(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !current.Token.Expired(s.now(), s.skew) {
			return &current.Token, nil
		}
		return s.refresh(ctx, current)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*user.TokenSet), nil
	case <-ctx.Done():
		return nil, &Error{Stage: StageRefresh, Kind: ErrRefreshFailed, Err: ctx.Err()}
	}
}

func (s *Service) user(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, &Error{Stage: StageRefresh, Kind: ErrUserNotFound, Err: err}
	}
	if err != nil {
		return nil, &Error{Stage: StageRefresh, Kind: ErrUserStore, Err: err}
	}
	return u, nil
}

func (s *Service) refresh(ctx context.Context, u *user.User) (*user.TokenSet, error) {
	start := time.Now()
	defer func() {
		metrics.TokenRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	if u.Token.RefreshToken == "" {
		return nil, s.refreshFailed(u.ID, ErrNoRefreshToken, nil)
	}

	next, err := s.provider.Refresh(ctx, u.Token.RefreshToken)
	metrics.RecordProviderRequest("refresh", err, time.Since(start))
	if err != nil {
		if errors.Is(err, oauth.ErrGrantRejected) {
			return nil, s.refreshFailed(u.ID, ErrReauthRequired, err)
		}
		return nil, s.refreshFailed(u.ID, ErrRefreshFailed, err)
	}

	rotated := u.Token.Rotate(*next)
	if err := s.users.UpdateToken(ctx, u.ID, rotated); err != nil {
		return nil, s.refreshFailed(u.ID, ErrUserStore, err)
	}

	metrics.RecordTokenRefreshSuccess()
	s.log.Info().
		Str("user_id", u.ID).
		Bool("rotated", next.RefreshToken != "").
		Time("expires_at", rotated.ExpiresAt).
		Msg("refresh success")
	return &rotated, nil
}

func (s *Service) refreshFailed(userID string, kind, cause error) error {
	err := &Error{Stage: StageRefresh, Kind: kind, Err: cause}
	metrics.RecordTokenRefreshFailure(Reason(err))
	s.log.Warn().Str("user_id", userID).Str("reason", Reason(err)).AnErr("cause", cause).Msg("refresh failure")
	return err
}
