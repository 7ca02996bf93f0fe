package errors

import (
	"errors"
	"fmt"
)

// Kind classifies the failures a monitoring run can encounter
type Kind string

const (
	// KindSessionInvalid means no authenticated browser session is reachable.
	// Fatal to the whole run.
	KindSessionInvalid Kind = "session_invalid"
	// KindPostUnreachable means a post's detail view could not be opened.
	// The post is skipped and counted as failed.
	KindPostUnreachable Kind = "post_unreachable"
	// KindAssetUnresolved means a single image never resolved past a
	// placeholder. Only that image is skipped.
	KindAssetUnresolved Kind = "asset_unresolved"
	// KindDownloadFailed is a transport or storage error for one asset.
	KindDownloadFailed Kind = "download_failed"
	// KindTimestampUnparseable means a post's publish time could not be
	// determined. The post is treated as not fresh and counted as skipped.
	KindTimestampUnparseable Kind = "timestamp_unparseable"
	// KindConfig is an invalid or missing configuration. Fatal to the run.
	KindConfig Kind = "config"

	KindNetwork     Kind = "network"
	KindServerError Kind = "server_error"
	KindUnknown     Kind = "unknown"
)

// Error carries the failure kind alongside the message so the orchestrator
// can count and itemize failures by reason
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error with a formatted message
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around an underlying cause
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain, KindUnknown if untyped
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether an error must terminate the run. Everything else
// is caught at the orchestrator boundary and counted.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindSessionInvalid, KindConfig:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindServerError:
		return true
	case KindSessionInvalid, KindPostUnreachable, KindConfig, KindTimestampUnparseable:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
