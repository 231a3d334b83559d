package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/network"
)

// ClientOptions configures a catalog Client
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to the remote catalog host
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       errors.RetryConfig
	logger      *zap.Logger
}

// NewClient creates a catalog client for baseURL
func NewClient(baseURL string, opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		config := network.DefaultClientConfig()
		if opts.Timeout > 0 {
			config.Timeout = opts.Timeout
		}
		httpClient = network.NewClient(config)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	retry := errors.DefaultRetryConfig()
	if opts.MaxRetries >= 0 {
		retry.MaxRetries = opts.MaxRetries
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:       retry,
		logger:      logger,
	}
}

// BaseURL returns the catalog root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// OfflineAudioURL returns the canonical offline URL for id. It is both the
// host's playback endpoint and the audio cache key.
func (c *Client) OfflineAudioURL(id string) string {
	return c.baseURL + "/offline/audio/" + url.PathEscape(id)
}

// ProxyURL returns the raw-audio proxy endpoint for id
func (c *Client) ProxyURL(id string) string {
	return c.baseURL + "/stream/proxy/" + url.PathEscape(id)
}

// Search queries the catalog
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("search query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("max_results", strconv.Itoa(maxResults))

	var results []SearchResult
	if err := c.getJSON(ctx, "/search", "/search?"+params.Encode(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// StreamInfo requests a fresh playable URL for id
func (c *Client) StreamInfo(ctx context.Context, id string) (*StreamInfo, error) {
	var info StreamInfo
	if err := c.getJSON(ctx, "/stream/{id}", "/stream/"+url.PathEscape(id), &info); err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, errors.NewNetworkError(fmt.Sprintf("no stream URL returned for %s", id), nil)
	}
	return &info, nil
}

// StreamURL implements the playback engine's resolver
func (c *Client) StreamURL(ctx context.Context, id string) (string, error) {
	info, err := c.StreamInfo(ctx, id)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// RequestHostDownload asks the host to fetch and persist song server-side
func (c *Client) RequestHostDownload(ctx context.Context, song Song) error {
	body := map[string]string{
		"ytid":      song.ID,
		"title":     song.Title,
		"artist":    song.Artist,
		"thumbnail": song.Thumbnail,
	}
	return c.doJSON(ctx, http.MethodPost, "/offline/download/{id}", "/offline/download/"+url.PathEscape(song.ID), body, nil)
}

// OfflineSongs returns the host's offline store
func (c *Client) OfflineSongs(ctx context.Context) ([]OfflineSong, error) {
	var resp struct {
		Songs []OfflineSong `json:"songs"`
	}
	if err := c.getJSON(ctx, "/offline", "/offline", &resp); err != nil {
		return nil, err
	}
	return resp.Songs, nil
}

// DeleteOffline removes id from the host's offline store
func (c *Client) DeleteOffline(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/offline/{id}", "/offline/"+url.PathEscape(id), nil, nil)
}

// ImportPlaylist resolves an external playlist URL into songs
func (c *Client) ImportPlaylist(ctx context.Context, playlistURL string) (*ImportedPlaylist, error) {
	params := url.Values{}
	params.Set("url", strings.TrimSpace(playlistURL))

	var imported ImportedPlaylist
	if err := c.getJSON(ctx, "/playlist/import", "/playlist/import?"+params.Encode(), &imported); err != nil {
		return nil, err
	}
	return &imported, nil
}

// Cleanup purges the host's transient stream URL cache
func (c *Client) Cleanup(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/cleanup", "/cleanup", nil, nil)
}

// ListPlaylists returns every playlist stored on the host
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	if err := c.getJSON(ctx, "/playlists", "/playlists/", &playlists); err != nil {
		return nil, err
	}
	return playlists, nil
}

// GetPlaylist returns one host playlist
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var p Playlist
	if err := c.getJSON(ctx, "/playlists/{id}", "/playlists/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlaylist creates a playlist on the host and returns the stored copy
func (c *Client) CreatePlaylist(ctx context.Context, id, name string) (*Playlist, error) {
	var p Playlist
	body := map[string]string{"id": id, "name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/playlists", "/playlists/", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RenamePlaylist renames a host playlist
func (c *Client) RenamePlaylist(ctx context.Context, id, name string) error {
	body := map[string]string{"name": name}
	return c.doJSON(ctx, http.MethodPut, "/playlists/{id}", "/playlists/"+url.PathEscape(id), body, nil)
}

// DeletePlaylist deletes a host playlist
func (c *Client) DeletePlaylist(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/playlists/{id}", "/playlists/"+url.PathEscape(id), nil, nil)
}

// AddPlaylistSong appends song on the host and returns the updated playlist
func (c *Client) AddPlaylistSong(ctx context.Context, id string, song Song) (*Playlist, error) {
	var p Playlist
	if err := c.doJSON(ctx, http.MethodPost, "/playlists/{id}/songs", "/playlists/"+url.PathEscape(id)+"/songs", song, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RemovePlaylistSong removes a song on the host and returns the updated playlist
func (c *Client) RemovePlaylistSong(ctx context.Context, id, songID string) (*Playlist, error) {
	var p Playlist
	path := "/playlists/" + url.PathEscape(id) + "/songs/" + url.PathEscape(songID)
	if err := c.doJSON(ctx, http.MethodDelete, "/playlists/{id}/songs/{ytid}", path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// getJSON performs an idempotent GET with retry
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out interface{}) error {
	return errors.RetryWithBackoff(ctx, c.retry, func() error {
		return c.do(ctx, http.MethodGet, endpoint, path, nil, out)
	})
}

// doJSON performs a single non-retried request
func (c *Client) doJSON(ctx context.Context, method, endpoint, path string, body, out interface{}) error {
	return c.do(ctx, method, endpoint, path, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.NewNetworkError("rate limiter wait cancelled", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("invalid request %s %s: %v", method, path, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest(endpoint, "error", time.Since(start))
		c.logger.Debug("Catalog request failed", zap.String("method", method), zap.String("endpoint", endpoint), zap.Error(err))
		return errors.NewNetworkError(fmt.Sprintf("%s %s failed", method, endpoint), err)
	}
	defer resp.Body.Close()
	monitoring.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errors.NewNotFoundError(fmt.Sprintf("%s %s not found", method, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errors.NewHTTPStatusError(endpoint, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewNetworkError(fmt.Sprintf("failed to decode %s response", endpoint), err)
	}
	return nil
}
