// Package services defines the [Catalog] interface for a remote media library and implements it for Google Photos.
//
// # Catalog Interface
//
// The sync engine only depends on [Catalog], so tests substitute an in-memory catalog.
// Album and album item listings are returned as [iter.Seq2] sequences that page lazily.
// Date range listings are returned one page at a time because the caller persists the page cursor.
//
// # Google Photos Implementation
//
// [PhotosService] calls the Photos Library API with an [http.Client] that already carries OAuth credentials
// (see [NewAuthorizedClient]). Wire responses are decoded into [PhotosMediaItem] and [PhotosAlbum]
// and validated once on the way in; invalid entries are logged and dropped.
//
// # Retry Policy
//
// Every request runs under a [RetryPolicy] backed by github.com/sethvargo/go-retry:
// three attempts, exponential backoff from 4s capped at 10s, with hooks before each sleep and after each attempt.
//
// # Error Handling
//
// Non-2xx responses become [*APIError] values that unwrap to [shared.ErrTransient] or [shared.ErrPermanent]:
//   - network failures, 429 and 5xx : transient, retried
//   - other 4xx : permanent, returned immediately
//   - undecodable bodies or HTML served in place of media : [shared.ErrMalformedResponse], permanent
//
// # OAuth
//
// [NewGoogleOAuthConfig] builds the read-only authorization code flow. Tokens live in a [TokenStore];
// refreshed tokens are written back so the next run starts with a valid one.
package services
