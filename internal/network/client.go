package network

import (
	"net/http"
	"time"
)

// ClientConfig holds configuration for HTTP client
type ClientConfig struct {
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	UserAgent             string
}

// DefaultClientConfig returns the configuration used for catalog calls
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:               15 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		UserAgent:             "kordia/1.0",
	}
}

// NewClient creates a new HTTP client with pooled connections
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}

	var rt http.RoundTripper = transport
	if config.UserAgent != "" {
		rt = &userAgentTransport{base: transport, userAgent: config.UserAgent}
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: rt,
	}
}

// NewPayloadClient returns a client for whole-payload audio fetches. Only the
// overall timeout is long; the host must still answer headers promptly.
func NewPayloadClient(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.MaxIdleConnsPerHost = 20
	config.ResponseHeaderTimeout = 60 * time.Second
	return NewClient(config)
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}
