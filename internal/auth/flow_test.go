package auth

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"
)

func TestNewOAuthConfig(t *testing.T) {
	cfg := NewOAuthConfig("cid", "secret", "http://localhost:8080/callback")
	require.Equal(t, "cid", cfg.ClientID)
	require.Equal(t, "http://localhost:8080/callback", cfg.RedirectURL)
	require.Contains(t, cfg.Scopes, youtube.YoutubeUploadScope)
	require.NotEmpty(t, cfg.Endpoint.AuthURL)
	require.NotEmpty(t, cfg.Endpoint.TokenURL)
}

func TestAuthorizationURL(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	raw, err := flow.AuthorizationURL(42)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, cfg.RedirectURL, q.Get("redirect_uri"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Contains(t, q.Get("scope"), "youtube.upload")

	// State token is fresh and remembered for later verification.
	require.NotEmpty(t, q.Get("state"))
	require.Equal(t, store.PendingState(42), q.Get("state"))
}

func TestExchangeBareCode(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	require.NoError(t, flow.ExchangeCode(context.Background(), 42, "  good-code\n"))
	require.True(t, store.Has(42))
}

func TestExchangeFullRedirectURL(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	authURL, err := flow.AuthorizationURL(42)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")

	raw := cfg.RedirectURL + "?code=good-code&state=" + state
	require.NoError(t, flow.ExchangeCode(context.Background(), 42, raw))
	require.True(t, store.Has(42))
}

func TestExchangeStateMismatch(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	_, err := flow.AuthorizationURL(42)
	require.NoError(t, err)

	raw := cfg.RedirectURL + "?code=good-code&state=forged"
	err = flow.ExchangeCode(context.Background(), 42, raw)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	require.Contains(t, ae.Reason, "state token mismatch")
	require.False(t, store.Has(42))
}

func TestExchangeStateWithoutPending(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	raw := cfg.RedirectURL + "?code=good-code&state=stale"
	err := flow.ExchangeCode(context.Background(), 42, raw)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	require.False(t, store.Has(42))
}

func TestExchangeUnusableInput(t *testing.T) {
	store, cfg, _ := newTestStore(t, newTokenServer(t))
	flow := NewFlow(store, cfg)

	for _, raw := range []string{"", "   ", cfg.RedirectURL + "?error=access_denied"} {
		err := flow.ExchangeCode(context.Background(), 42, raw)
		var ae *AuthError
		require.ErrorAs(t, err, &ae, "input %q", raw)
	}
	require.False(t, store.Has(42))
}
