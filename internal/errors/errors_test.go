package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Type:    ErrTypeNetwork,
				Message: "connection failed",
			},
			expected: "network: connection failed",
		},
		{
			name: "error with cause",
			err: &AppError{
				Type:    ErrTypeCacheWrite,
				Message: "put failed",
				Cause:   fmt.Errorf("disk full"),
			},
			expected: "cache_write: put failed (caused by: disk full)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewHTTPStatusError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		err := NewHTTPStatusError("/stream", tt.status)
		if err.Type != ErrTypeNetwork {
			t.Errorf("status %d: Type = %v, want network", tt.status, err.Type)
		}
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: Retryable = %v, want %v", tt.status, err.Retryable, tt.retryable)
		}
		if err.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, err.StatusCode)
		}
	}
}

func TestNewDownloadError_InheritsRetryable(t *testing.T) {
	retryable := NewDownloadError("abc", NewNetworkError("proxy unreachable", nil))
	if !retryable.Retryable {
		t.Error("download error over a network failure should be retryable")
	}

	permanent := NewDownloadError("abc", NewHTTPStatusError("/stream/proxy/abc", http.StatusNotFound))
	if permanent.Retryable {
		t.Error("download error over a 404 should not be retryable")
	}
}

func TestGetErrorType_Wrapped(t *testing.T) {
	err := fmt.Errorf("playlist op: %w", NewNotFoundError("playlist pl_1"))

	if GetErrorType(err) != ErrTypeNotFound {
		t.Errorf("GetErrorType() = %v, want not_found", GetErrorType(err))
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
	if GetErrorType(fmt.Errorf("plain")) != ErrTypeUnknown {
		t.Error("plain errors should be unknown")
	}
}

func TestRootType(t *testing.T) {
	err := NewDownloadError("x", fmt.Errorf("writing: %w", NewCacheWriteError("put failed", nil)))

	if GetErrorType(err) != ErrTypeDownload {
		t.Errorf("GetErrorType() = %v, want download", GetErrorType(err))
	}
	if RootType(err) != ErrTypeCacheWrite {
		t.Errorf("RootType() = %v, want cache_write", RootType(err))
	}
	if RootType(nil) != ErrTypeUnknown {
		t.Error("RootType(nil) should be unknown")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(NewModeMismatchError("downloaded")); got != "This collection cannot be modified" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(fmt.Errorf("boom")); got != "Something went wrong" {
		t.Errorf("UserMessage() = %q", got)
	}
}
