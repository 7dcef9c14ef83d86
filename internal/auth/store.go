package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const credentialVersion = 1

// credentialRecord is the on-disk shape of one user's token set. Explicit
// fields rather than an opaque blob so the schema can evolve.
type credentialRecord struct {
	Version      int       `json:"version"`
	UserID       int64     `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists per-user OAuth credentials and pending-authorization state
// under flat files keyed by user id. All credential reads and writes for one
// user are serialized: a read can turn into a write when the token needs a
// refresh, and two concurrent refreshes would clobber each other.
type Store struct {
	oauth     *oauth2.Config
	tokensDir string
	statesDir string

	mu     sync.Mutex
	byUser map[int64]*sync.Mutex
}

func NewStore(oauth *oauth2.Config, tokensDir, statesDir string) (*Store, error) {
	for _, d := range []string{tokensDir, statesDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	return &Store{
		oauth:     oauth,
		tokensDir: tokensDir,
		statesDir: statesDir,
		byUser:    make(map[int64]*sync.Mutex),
	}, nil
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byUser[userID]
	if !ok {
		l = &sync.Mutex{}
		s.byUser[userID] = l
	}
	return l
}

func (s *Store) tokenPath(userID int64) string {
	return filepath.Join(s.tokensDir, fmt.Sprintf("%d.json", userID))
}

func (s *Store) statePath(userID int64) string {
	return filepath.Join(s.statesDir, fmt.Sprintf("%d.state", userID))
}

// IssuePending generates a fresh anti-forgery state token for the user,
// replacing any prior one.
func (s *Store) IssuePending(userID int64) (string, error) {
	state := ulid.Make().String()
	if err := writeFileAtomic(s.statePath(userID), []byte(state), 0o600); err != nil {
		return "", fmt.Errorf("persist pending state: %w", err)
	}
	return state, nil
}

// PendingState returns the last issued state token for the user, or "" if none.
func (s *Store) PendingState(userID int64) string {
	b, err := os.ReadFile(s.statePath(userID))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Complete exchanges an authorization code for a token pair and persists it,
// overwriting any existing credential for the user.
func (s *Store) Complete(ctx context.Context, userID int64, code string) (*oauth2.Token, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Reason: "code exchange rejected", Err: err}
	}
	if err := s.persist(userID, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Valid returns a usable credential for the user, refreshing lazily when the
// stored one has expired. Absent credential or failed refresh both yield
// ErrNoCredential.
func (s *Store) Valid(ctx context.Context, userID int64) (*oauth2.Token, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	tok, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: expired and no refresh token", ErrNoCredential)
	}

	fresh, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		log.Warn().Int64("uid", userID).Err(err).Msg("token refresh failed")
		return nil, fmt.Errorf("%w: refresh rejected: %v", ErrNoCredential, err)
	}
	if err := s.persist(userID, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Has reports whether a credential record exists, without triggering refresh.
func (s *Store) Has(userID int64) bool {
	_, err := os.Stat(s.tokenPath(userID))
	return err == nil
}

func (s *Store) load(userID int64) (*oauth2.Token, error) {
	b, err := os.ReadFile(s.tokenPath(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credential: %w", err)
	}
	var rec credentialRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Expiry:       rec.Expiry,
	}, nil
}

func (s *Store) persist(userID int64, tok *oauth2.Token) error {
	rec := credentialRecord{
		Version:      credentialVersion,
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       s.oauth.Scopes,
		UpdatedAt:    time.Now().UTC(),
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := writeFileAtomic(s.tokenPath(userID), b, 0o600); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file plus rename so a reader never sees a
// partial record.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
