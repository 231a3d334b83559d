package network

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	if config.Timeout != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %v", config.Timeout)
	}

	if config.MaxIdleConnsPerHost != 10 {
		t.Errorf("Expected MaxIdleConnsPerHost 10, got %d", config.MaxIdleConnsPerHost)
	}

	if config.UserAgent == "" {
		t.Error("Expected a default user agent")
	}
}

func TestNewClientWithNilConfig(t *testing.T) {
	client := NewClient(nil)

	if client == nil {
		t.Fatal("Expected client to be created with default config")
	}

	if client.Timeout != 15*time.Second {
		t.Errorf("Expected default timeout 15s, got %v", client.Timeout)
	}
}

func TestNewPayloadClient(t *testing.T) {
	timeout := 5 * time.Minute
	client := NewPayloadClient(timeout)

	if client.Timeout != timeout {
		t.Errorf("Expected timeout %v, got %v", timeout, client.Timeout)
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	config := DefaultClientConfig()
	config.UserAgent = "kordia-test"
	resp, err := NewClient(config).Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if got != "kordia-test" {
		t.Errorf("Expected user agent kordia-test, got %q", got)
	}
}

func TestConnectionPoolingSettings(t *testing.T) {
	config := DefaultClientConfig()
	config.UserAgent = ""
	client := NewClient(config)

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("Expected transport to be *http.Transport when no user agent is set")
	}

	if transport.MaxIdleConns != config.MaxIdleConns {
		t.Errorf("Expected MaxIdleConns %d, got %d", config.MaxIdleConns, transport.MaxIdleConns)
	}

	if transport.MaxConnsPerHost != config.MaxConnsPerHost {
		t.Errorf("Expected MaxConnsPerHost %d, got %d", config.MaxConnsPerHost, transport.MaxConnsPerHost)
	}

	if transport.ResponseHeaderTimeout != config.ResponseHeaderTimeout {
		t.Errorf("Expected ResponseHeaderTimeout %v, got %v", config.ResponseHeaderTimeout, transport.ResponseHeaderTimeout)
	}
}
