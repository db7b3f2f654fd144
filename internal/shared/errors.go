package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote catalog errors
	ErrAPIRequest        = fmt.Errorf("API request failed")
	ErrTransient         = fmt.Errorf("transient remote failure")
	ErrPermanent         = fmt.Errorf("permanent remote failure")
	ErrMalformedResponse = fmt.Errorf("malformed response")
	ErrInvalidItem       = fmt.Errorf("invalid media item")

	// Sync errors
	ErrLedgerUnavailable = fmt.Errorf("ledger unavailable")
	ErrPageFailed        = fmt.Errorf("page listing failed")
	ErrInterrupted       = fmt.Errorf("interrupted")
	ErrLocked            = fmt.Errorf("another instance holds the lock")
	ErrRecordNotFound    = fmt.Errorf("record not found")
	ErrAlbumNotFound     = fmt.Errorf("album not found")
	ErrRunNotFound       = fmt.Errorf("sync run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
