package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// NewOAuthConfig builds the Google OAuth config requesting the YouTube upload
// scope.
func NewOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{youtube.YoutubeUploadScope},
		Endpoint:     google.Endpoint,
	}
}

// Flow drives the user-facing half of the OAuth handshake: it hands out
// authorization URLs and turns relayed codes into stored credentials.
type Flow struct {
	store *Store
	oauth *oauth2.Config
}

func NewFlow(store *Store, oauth *oauth2.Config) *Flow {
	return &Flow{store: store, oauth: oauth}
}

// AuthorizationURL composes the provider authorization URL requesting offline
// access, with a fresh anti-forgery state token embedded.
func (f *Flow) AuthorizationURL(userID int64) (string, error) {
	state, err := f.store.IssuePending(userID)
	if err != nil {
		return "", err
	}
	return f.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// ExchangeCode completes the handshake from whatever the user relayed back:
// either the bare authorization code from the callback page, or the full
// redirect URL pasted from the browser. When the input carries a state
// parameter it must match the pending one for this user.
func (f *Flow) ExchangeCode(ctx context.Context, userID int64, raw string) error {
	code, state, err := f.parseCallbackInput(raw)
	if err != nil {
		return &AuthError{Reason: "unreadable authorization response", Err: err}
	}
	if state != "" {
		pending := f.store.PendingState(userID)
		if pending == "" || state != pending {
			return &AuthError{Reason: "state token mismatch, run /auth again"}
		}
	}
	_, err = f.store.Complete(ctx, userID, code)
	return err
}

// parseCallbackInput reconstructs the provider's redirect-response shape from
// the relayed text and extracts code and state. A bare code is wrapped into a
// synthetic redirect URL first so both inputs go through the same path.
func (f *Flow) parseCallbackInput(raw string) (code, state string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("empty authorization code")
	}
	if !strings.Contains(raw, "://") {
		raw = fmt.Sprintf("%s?code=%s", f.oauth.RedirectURL, url.QueryEscape(raw))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	code = q.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("no code parameter in %q", raw)
	}
	return code, q.Get("state"), nil
}
