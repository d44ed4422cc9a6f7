package translate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var (
	// ErrMissingAPIKey indicates that no credential was configured.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("provider returned no translation")
)

// TransientError marks a provider failure worth retrying: connectivity,
// rate limiting, timeouts and server-side errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify wraps err in a TransientError when it belongs to a retryable
// class. Other errors are returned unchanged.
func classify(err error) error {
	if err == nil || IsTransient(err) {
		return err
	}
	if isTransientCause(err) {
		return &TransientError{Err: err}
	}
	return err
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return transientStatus(oaiErr.StatusCode)
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return transientStatus(gErr.Code)
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return transientStatus(gErrPtr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}
