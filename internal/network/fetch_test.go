package network

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kordia/kordia-go/internal/errors"
)

func TestFetchAll(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 600*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	var calls int
	var lastDone, lastTotal int64
	got, err := FetchAll(context.Background(), server.Client(), server.URL, FetchOptions{
		Progress: func(done, total int64) {
			calls++
			lastDone, lastTotal = done, total
		},
	})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if !bytes.Equal(got.Body, payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), len(got.Body))
	}
	if got.ContentType != "audio/mpeg" {
		t.Errorf("Expected content type audio/mpeg, got %s", got.ContentType)
	}
	if calls == 0 {
		t.Error("Expected progress callback to be called")
	}
	if lastDone != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Errorf("Expected final progress %d/%d, got %d/%d", len(payload), len(payload), lastDone, lastTotal)
	}
}

func TestFetchAllStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := FetchAll(context.Background(), server.Client(), server.URL, FetchOptions{})
	if err == nil {
		t.Fatal("Expected error for 502 response")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("Expected AppError, got %T", err)
	}
	if appErr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", appErr.StatusCode)
	}
	if !appErr.Retryable {
		t.Error("Expected 502 to be retryable")
	}
}

func TestFetchAllTruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	_, err := FetchAll(context.Background(), server.Client(), server.URL, FetchOptions{})
	if err == nil {
		t.Fatal("Expected error for truncated body")
	}
	if !errors.IsNetworkError(err) {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestFetchAllMaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer server.Close()

	_, err := FetchAll(context.Background(), server.Client(), server.URL, FetchOptions{MaxBytes: 1024})
	if err == nil {
		t.Fatal("Expected error when payload exceeds MaxBytes")
	}
}

func TestFetchAllUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := FetchAll(context.Background(), NewClient(nil), url, FetchOptions{})
	if !errors.IsNetworkError(err) {
		t.Errorf("Expected network error, got %v", err)
	}
}
