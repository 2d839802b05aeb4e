package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipify/pkg/oauth"
	"swipify/pkg/oauth/oauthtest"
	"swipify/pkg/pending"
	"swipify/pkg/pkce"
	"swipify/pkg/store"
	"swipify/pkg/user"
)

type harness struct {
	srv    *oauthtest.Server
	logins *pending.MemoryStore
	users  *store.Store
	svc    *Service
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{srv: oauthtest.NewServer(t), now: time.Now()}

	h.logins = pending.NewMemoryStore()
	t.Cleanup(func() { h.logins.Close() })

	users, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })
	require.NoError(t, users.Migrate(ctx))
	h.users = users

	h.svc = NewService(h.srv.Provider(t), h.logins, h.users, Options{
		Logger:            zerolog.Nop(),
		Now:               func() time.Time { return h.now },
		ProfileRetryDelay: time.Millisecond,
	})
	return h
}

func (h *harness) begin(t *testing.T) *Attempt {
	t.Helper()
	a, err := h.svc.Begin(context.Background(), "/swipe")
	require.NoError(t, err)
	return a
}

func (h *harness) complete(a *Attempt, code string) (*Login, error) {
	return h.svc.Complete(context.Background(), Callback{Code: code, State: a.State, BoundState: a.State})
}

func (h *harness) codeRequests() []url.Values {
	var out []url.Values
	for _, form := range h.srv.TokenRequests() {
		if form.Get("grant_type") == "authorization_code" {
			out = append(out, form)
		}
	}
	return out
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var authErr *Error
	require.True(t, errors.As(err, &authErr), "want *auth.Error, got %T", err)
	assert.Equal(t, kind, authErr.Kind)
}

func TestLoginEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.begin(t)
	assert.Equal(t, "/swipe", a.ReturnTo)
	assert.Equal(t, h.now.Add(pending.DefaultTTL), a.ExpiresAt)

	authURL, err := url.Parse(a.AuthURL)
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, a.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	login, err := h.complete(a, "fake-code")
	require.NoError(t, err)

	u := login.User
	assert.Equal(t, "/swipe", login.ReturnTo)
	assert.Equal(t, "AT1", u.Token.AccessToken)
	assert.Equal(t, "RT1", u.Token.RefreshToken)
	assert.InDelta(t, 3600, u.Token.ExpiresIn(time.Now()), 5)
	assert.Equal(t, "spotify", u.Provider)
	assert.Equal(t, "spotify-user-1", u.ExternalID)
	assert.Equal(t, "Ada", u.DisplayName)
	assert.Equal(t, "https://i.scdn.co/image/ada", u.AvatarURL)

	stored, err := h.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "AT1", stored.Token.AccessToken)

	reqs := h.codeRequests()
	require.Len(t, reqs, 1)
	form := reqs[0]
	assert.Equal(t, "fake-code", form.Get("code"))
	assert.Equal(t, oauthtest.RedirectURL, form.Get("redirect_uri"))
	assert.Equal(t, oauthtest.ClientID, form.Get("client_id"))
	verifier := form.Get("code_verifier")
	require.NotEmpty(t, verifier)
	assert.True(t, pkce.ValidVerifier(verifier))
	assert.Equal(t, q.Get("code_challenge"), pkce.GenerateCodeChallenge(verifier))
	assert.NotEqual(t, a.State, verifier)

	assert.Equal(t, []string{"Bearer AT1"}, h.srv.ProfileAuthorizations())

	_, err = h.logins.Take(ctx, a.State)
	assert.ErrorIs(t, err, pending.ErrNotFound, "pending login must be consumed")
}

func TestEveryCodeExchangeCarriesVerifier(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		_, err := h.complete(h.begin(t), "code")
		require.NoError(t, err)
	}

	reqs := h.codeRequests()
	require.Len(t, reqs, 3)
	seen := map[string]bool{}
	for _, form := range reqs {
		v := form.Get("code_verifier")
		assert.NotEmpty(t, v)
		assert.False(t, seen[v], "verifiers must not repeat across attempts")
		seen[v] = true
	}
}

func TestCompleteReplay(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	_, err := h.complete(a, "code")
	require.NoError(t, err)

	_, err = h.complete(a, "code")
	assertKind(t, err, ErrStateMismatch)
	assert.Len(t, h.codeRequests(), 1)
}

func TestCompleteConcurrentCallbacks(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.complete(a, "code"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, h.codeRequests(), 1)
}

func TestCompleteProviderDenied(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	_, err := h.svc.Complete(context.Background(), Callback{
		Error:            "access_denied",
		ErrorDescription: "user said no",
		State:            a.State,
		BoundState:       a.State,
	})
	assertKind(t, err, ErrProviderDenied)
	assert.NotContains(t, Message(err), "user said no")

	_, err = h.complete(a, "code")
	assertKind(t, err, ErrStateMismatch)
	assert.Empty(t, h.srv.TokenRequests())
}

func TestCompleteMissingCode(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	_, err := h.complete(a, "")
	assertKind(t, err, ErrMissingCode)

	_, err = h.logins.Take(context.Background(), a.State)
	assert.ErrorIs(t, err, pending.ErrNotFound)
}

func TestCompleteStateMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.begin(t)
	other := h.begin(t)

	tests := []struct {
		name string
		cb   Callback
	}{
		{"no bound state", Callback{Code: "c", State: a.State}},
		{"no query state", Callback{Code: "c", BoundState: a.State}},
		{"other browser", Callback{Code: "c", State: a.State, BoundState: other.State}},
		{"prefix", Callback{Code: "c", State: a.State[:10], BoundState: a.State[:10]}},
		{"case", Callback{Code: "c", State: swapCase(a.State), BoundState: swapCase(a.State)}},
		{"unknown", Callback{Code: "c", State: "unknown-state", BoundState: "unknown-state"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Complete(ctx, tt.cb)
			assertKind(t, err, ErrStateMismatch)
		})
	}
	assert.Empty(t, h.srv.TokenRequests())

	// a mismatch must not burn the genuine attempt
	_, err := h.complete(a, "code")
	assert.NoError(t, err)
}

func swapCase(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 32
		case c >= 'A' && c <= 'Z':
			b[i] = c + 32
		}
	}
	return string(b)
}

func TestCompleteExpired(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	h.now = h.now.Add(11 * time.Minute)
	_, err := h.complete(a, "code")
	assertKind(t, err, ErrExpiredVerifier)
	assert.Empty(t, h.srv.TokenRequests())
}

func TestCompleteVerifierMissing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.logins.Put(context.Background(), &pending.PendingLogin{
		State:     "state-without-verifier",
		CreatedAt: h.now,
		ExpiresAt: h.now.Add(time.Minute),
	}))

	_, err := h.svc.Complete(context.Background(), Callback{
		Code: "code", State: "state-without-verifier", BoundState: "state-without-verifier",
	})
	assertKind(t, err, ErrVerifierMissing)
	assert.Empty(t, h.srv.TokenRequests())
}

func TestCompleteTokenExchangeFailed(t *testing.T) {
	h := newHarness(t)
	h.srv.OnToken(func(url.Values) oauthtest.Response {
		return oauthtest.Response{Status: http.StatusBadRequest, Body: map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid authorization code",
		}}
	})

	_, err := h.complete(h.begin(t), "bad-code")
	assertKind(t, err, ErrTokenExchangeFailed)
	assert.ErrorIs(t, err, oauth.ErrGrantRejected)
	assert.NotContains(t, Message(err), "Invalid authorization code")
	assert.Len(t, h.srv.TokenRequests(), 1, "code exchange is never retried")

	n, err := h.users.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompleteProfileRetry(t *testing.T) {
	h := newHarness(t)
	h.srv.QueueProfile(oauthtest.Response{Status: http.StatusBadGateway, Body: map[string]any{}})

	login, err := h.complete(h.begin(t), "code")
	require.NoError(t, err)
	assert.Equal(t, "spotify-user-1", login.User.ExternalID)
	assert.Len(t, h.srv.ProfileAuthorizations(), 2)
	assert.Len(t, h.codeRequests(), 1)
}

func TestCompleteProfileFetchFailed(t *testing.T) {
	h := newHarness(t)
	fail := oauthtest.Response{Status: http.StatusInternalServerError, Body: map[string]any{}}
	h.srv.QueueProfile(fail, fail)

	_, err := h.complete(h.begin(t), "code")
	assertKind(t, err, ErrProfileFetchFailed)
	assert.Len(t, h.srv.ProfileAuthorizations(), 2)
	assert.Len(t, h.codeRequests(), 1)
}

type failingUsers struct{ user.Store }

func (failingUsers) Upsert(context.Context, user.Profile, user.TokenSet) (*user.User, error) {
	return nil, errors.New("disk full")
}

func TestCompleteUserStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.svc.users = failingUsers{h.users}

	_, err := h.complete(h.begin(t), "code")
	assertKind(t, err, ErrUserStore)
}

func TestConcurrentFirstLoginsShareOneUser(t *testing.T) {
	h := newHarness(t)
	attempts := []*Attempt{h.begin(t), h.begin(t), h.begin(t)}

	var wg sync.WaitGroup
	ids := make([]string, len(attempts))
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a *Attempt) {
			defer wg.Done()
			login, err := h.complete(a, "code")
			if assert.NoError(t, err) {
				ids[i] = login.User.ID
			}
		}(i, a)
	}
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[0], ids[2])
	n, err := h.users.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type brokenProvider struct{ Provider }

func (brokenProvider) Name() string { return "spotify" }

func (brokenProvider) AuthCodeURL(string, string) (string, error) {
	return "", oauth.ErrInvalidConfig
}

func TestBeginConfigMissing(t *testing.T) {
	logins := pending.NewMemoryStore()
	defer logins.Close()

	svc := NewService(brokenProvider{}, logins, nil, Options{Logger: zerolog.Nop()})
	_, err := svc.Begin(context.Background(), "/")
	assertKind(t, err, ErrConfigMissing)
	assert.Zero(t, logins.Len(), "nothing is recorded before the redirect can be built")

	svc = NewService(nil, logins, nil, Options{Logger: zerolog.Nop()})
	_, err = svc.Begin(context.Background(), "/")
	assertKind(t, err, ErrConfigMissing)
}

func TestBeginSanitizesReturnTo(t *testing.T) {
	h := newHarness(t)
	a, err := h.svc.Begin(context.Background(), "https://evil.example/steal")
	require.NoError(t, err)
	assert.Equal(t, "/", a.ReturnTo)
}

func TestBeginUniqueAttempts(t *testing.T) {
	h := newHarness(t)
	a, b := h.begin(t), h.begin(t)
	assert.NotEqual(t, a.State, b.State)
	assert.Equal(t, 2, h.logins.Len())
}

func TestDiscard(t *testing.T) {
	h := newHarness(t)
	a := h.begin(t)

	require.NoError(t, h.svc.Discard(context.Background(), a.State))
	require.NoError(t, h.svc.Discard(context.Background(), a.State))
	require.NoError(t, h.svc.Discard(context.Background(), ""))

	_, err := h.complete(a, "code")
	assertKind(t, err, ErrStateMismatch)
}

func TestMessages(t *testing.T) {
	err := &Error{Stage: StageStateValidated, Kind: ErrTokenExchangeFailed, Err: errors.New("raw payload")}
	assert.Equal(t, "token_exchange", Reason(err))
	assert.True(t, KnownMessage(Message(err)))
	assert.False(t, KnownMessage("raw payload"))
	assert.Equal(t, "internal", Reason(errors.New("other")))
}
