package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeNetwork represents a failed fetch or a non-2xx response
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeCacheWrite represents an unavailable content cache or a rejected write
	ErrTypeCacheWrite ErrorType = "cache_write"
	// ErrTypeNotFound represents an absent playlist or song
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeModeMismatch represents a mutation aimed at the reserved playlist
	ErrTypeModeMismatch ErrorType = "mode_mismatch"
	// ErrTypeValidation represents invalid caller input
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeDownload wraps any failure of a single song acquisition
	ErrTypeDownload ErrorType = "download"
	// ErrTypePlayback represents URL resolution or media engine failures
	ErrTypePlayback ErrorType = "playback"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewHTTPStatusError creates a network error for a non-success status code.
// Server errors and 429 are retryable, everything else is not.
func NewHTTPStatusError(endpoint string, status int) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    fmt.Sprintf("%s returned status %d", endpoint, status),
		StatusCode: status,
		Retryable:  status >= 500 || status == http.StatusTooManyRequests,
	}
}

// NewCacheWriteError creates a new cache write error
func NewCacheWriteError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeCacheWrite,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
	}
}

// NewModeMismatchError creates an error for a mutation of the reserved playlist
func NewModeMismatchError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeModeMismatch,
		Message:    message,
		StatusCode: http.StatusConflict,
		Retryable:  false,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// NewDownloadError wraps the cause of a failed song acquisition. Retryability
// is inherited from the cause.
func NewDownloadError(songID string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeDownload,
		Message:    fmt.Sprintf("download of %s failed", songID),
		StatusCode: http.StatusBadGateway,
		Retryable:  IsRetryable(cause),
		Cause:      cause,
	}
}

// NewPlaybackError creates a new playback error
func NewPlaybackError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypePlayback,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsCacheWriteError checks if an error is a cache write error
func IsCacheWriteError(err error) bool {
	return GetErrorType(err) == ErrTypeCacheWrite
}

// RootType returns the type of the innermost AppError in the chain, which is
// more useful than the outer type for download errors.
func RootType(err error) ErrorType {
	root := ErrTypeUnknown
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			root = appErr.Type
		}
		err = stderrors.Unwrap(err)
	}
	return root
}
