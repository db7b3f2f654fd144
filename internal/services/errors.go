package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the Photos API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Status)
}

// Transient reports whether the status is worth retrying: 429 and every 5xx.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap lets callers match the failure class with [errors.Is].
func (e *APIError) Unwrap() error {
	if e.Transient() {
		return shared.ErrTransient
	}
	return shared.ErrPermanent
}

// IsTransient classifies err for the retry policy.
//
// Cancellation, malformed bodies, token refresh failures and 4xx responses other than 429 are permanent.
// Network failures and server side errors are transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, shared.ErrMalformedResponse) || errors.Is(err, shared.ErrPermanent) || errors.Is(err, shared.ErrRefreshFailed) {
		return false
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return false
	}
	if errors.Is(err, shared.ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// decodeError turns a non-2xx response into an [*APIError].
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
	}

	// Missing content is sometimes served as a placeholder image.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		apiErr.Message = "image not found or broken"
		return apiErr
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		if envelope.Error.Status != "" {
			apiErr.Status = envelope.Error.Status
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = "empty response"
	}
	return apiErr
}
