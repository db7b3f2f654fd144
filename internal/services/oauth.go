package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	// PhotosReadOnlyScope grants read access to the library, albums and media bytes.
	PhotosReadOnlyScope = "https://www.googleapis.com/auth/photoslibrary.readonly"
)

// NewGoogleOAuthConfig builds the authorization code flow configuration for the Photos Library API.
func NewGoogleOAuthConfig(cfg shared.GoogleConfig) (*oauth2.Config, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{PhotosReadOnlyScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}, nil
}

// AuthURL returns the consent page URL. A refresh token is only issued with offline access and forced consent.
func AuthURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// TokenStore keeps the OAuth token in a JSON file readable only by the owner.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a store backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the stored token. A missing file is [shared.ErrNotAuthenticated].
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no token at %s, run `gpb auth login`", shared.ErrNotAuthenticated, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: token file %s is not valid JSON: %v", shared.ErrNotAuthenticated, s.path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token file %s is empty", shared.ErrNotAuthenticated, s.path)
	}
	return &token, nil
}

// Save writes token atomically with mode 0600.
func (s *TokenStore) Save(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// persistingSource saves every token it hands out that differs from the previous one.
type persistingSource struct {
	base  oauth2.TokenSource
	store *TokenStore
	last  string
	mu    sync.Mutex
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if token.AccessToken != p.last {
		if err := p.store.Save(token); err != nil {
			return nil, err
		}
		p.last = token.AccessToken
	}
	return token, nil
}

// NewAuthorizedClient returns an HTTP client that signs requests with the stored token
// and writes refreshed tokens back to the store.
func NewAuthorizedClient(ctx context.Context, config *oauth2.Config, store *TokenStore, timeout time.Duration) (*http.Client, error) {
	token, err := store.Load()
	if err != nil {
		return nil, err
	}

	source := &persistingSource{
		base:  config.TokenSource(ctx, token),
		store: store,
		last:  token.AccessToken,
	}

	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
	client.Timeout = timeout
	return client, nil
}
