// Package server provides HTTP routing, middleware, and OAuth handling for the CLI login flow.
//
// # Routing
//
// [BasicRouter] binds each route to a single method using [http.ServeMux] method patterns. Callback
// routes answer GET only, so a stray POST or probe cannot consume the one-shot callback.
//
// [Middleware] wraps the whole router, first added outermost, so unmatched requests are logged too.
// [RequestLogger] is the only middleware the CLI installs.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. A grant without a refresh token is rejected, since unattended
// syncs depend on refreshing access tokens.
//
// It only processes one callback to prevent replay attacks.
//
// # Current Usage
//
// `gpb auth login` starts a temporary HTTP server on the configured host and port (localhost:3000 by default),
// opens the Google consent page, handles the callback, and shuts down after receiving the token.
//
// # Handler Interface
//
// Handlers implement [Handler], which adds the list of paths they answer to [http.Handler].
package server
