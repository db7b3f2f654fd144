package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/gphotos-backup/internal/server"
	"github.com/desertthunder/gphotos-backup/internal/services"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

const authTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow for the Photos Library API.
//
// Starts a local HTTP server, opens browser for user authorization, and stores the exchanged token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	oauthConfig, err := services.NewGoogleOAuthConfig(r.config.Credentials.Google)
	if err != nil {
		return fmt.Errorf("%w: set credentials.google in %s", err, r.configPath)
	}

	token, err := r.doOAuth(ctx, oauthConfig, !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	store := services.NewTokenStore(r.config.Credentials.Google.TokenPath)
	if err := store.Save(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", store.Path())
	r.writePlain("You can now use: gpb sync\n")

	return nil
}

// AuthStatus reports whether a usable token is stored.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	store := services.NewTokenStore(r.config.Credentials.Google.TokenPath)
	token, err := store.Load()
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlain("✗ Not authenticated (%s)\n", store.Path())
			r.writePlain("Run 'gpb auth login' to authorize access.\n")
			return nil
		}
		return err
	}

	r.writePlain("✓ Token stored at %s\n", store.Path())
	switch {
	case token.Expiry.IsZero():
		r.writePlain("  Access token: no expiry\n")
	case token.Valid():
		r.writePlain("  Access token: valid, expires %s\n", humanize.Time(token.Expiry))
	default:
		r.writePlain("  Access token: expired %s\n", humanize.Time(token.Expiry))
	}

	if token.RefreshToken != "" {
		r.writePlain("  Refresh token: present\n")
	} else {
		r.writePlain("  Refresh token: missing, run 'gpb auth login' again\n")
	}
	return nil
}

func (r *Runner) doOAuth(ctx context.Context, config *oauth2.Config, openBrowser bool) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := services.AuthURL(config, state)
	oauthHandler := server.NewOAuthHandler(config, state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	if openBrowser {
		r.writePlain("→ Opening browser for Google authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	} else {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: authorization cancelled", shared.ErrInterrupted)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
