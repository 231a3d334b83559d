package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/config"
	"github.com/kordia/kordia-go/internal/device"
	"github.com/kordia/kordia-go/internal/offline"
	"github.com/kordia/kordia-go/internal/playback"
)

type silentOutput struct {
	events chan playback.MediaEvent
}

func (o *silentOutput) Load(string) error                  { return nil }
func (o *silentOutput) Play() error                        { return nil }
func (o *silentOutput) Pause() error                       { return nil }
func (o *silentOutput) SetVolume(float64) error            { return nil }
func (o *silentOutput) Seek(float64) error                 { return nil }
func (o *silentOutput) Events() <-chan playback.MediaEvent { return o.events }
func (o *silentOutput) Close() error                       { return nil }

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("KORDIA_HOME", home)

	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/offline":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"songs": []api.OfflineSong{{ID: "h1", Title: "Host song"}},
			})
		case "/playlists/":
			json.NewEncoder(w).Encode([]api.Playlist{{ID: "pl_1", Name: "Remote", Songs: []api.Song{}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(host.Close)

	cfg, err := config.Load(filepath.Join(home, "settings.json"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	cfg.Server.BaseURL = host.URL
	return cfg
}

func TestResolveMode(t *testing.T) {
	cfg := newTestConfig(t)

	if mode, _ := ResolveMode(cfg, ""); mode != device.Desktop {
		t.Errorf("Default viewport should resolve desktop, got %s", mode)
	}
	if mode, _ := ResolveMode(cfg, "mobile"); mode != device.Mobile {
		t.Errorf("Override should win, got %s", mode)
	}
	if _, err := ResolveMode(cfg, "tablet"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestMobileSession(t *testing.T) {
	cfg := newTestConfig(t)
	s, err := New(context.Background(), cfg, nil, Options{ModeOverride: "mobile"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.Offline.(*offline.LocalBackend); !ok {
		t.Errorf("Expected local backend, got %T", s.Offline)
	}
	if s.Engine != nil {
		t.Error("Playback was not requested")
	}

	s.Start(context.Background())
	list := s.Playlists.List()
	if len(list) != 1 || list[0].ID != api.DownloadedPlaylistID {
		t.Errorf("Expected only the Downloaded playlist, got %+v", list)
	}

	stats := s.Stats(context.Background())
	if stats.Mode != "mobile" || stats.RegistrySongs != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestDesktopSession(t *testing.T) {
	cfg := newTestConfig(t)
	s, err := New(context.Background(), cfg, nil, Options{ModeOverride: "desktop"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.Offline.(*offline.HostBackend); !ok {
		t.Errorf("Expected host backend, got %T", s.Offline)
	}

	s.Start(context.Background())
	list := s.Playlists.List()
	if len(list) != 2 || list[1].ID != "pl_1" {
		t.Errorf("Expected host playlists, got %+v", list)
	}
	// The first refresh also mirrors the host's offline list
	if d := list[0]; len(d.Songs) != 1 || d.Songs[0].ID != "h1" {
		t.Errorf("Expected mirrored host songs in Downloaded, got %+v", d)
	}

	songs, err := s.Songs(context.Background())
	if err != nil || len(songs) != 1 {
		t.Errorf("Songs = %v, %v", songs, err)
	}
	if stats := s.Stats(context.Background()); stats.HostErr != nil {
		t.Errorf("Expected reachable host, got %v", stats.HostErr)
	}
}

func TestSessionWithPlayback(t *testing.T) {
	cfg := newTestConfig(t)
	out := &silentOutput{events: make(chan playback.MediaEvent)}
	s, err := New(context.Background(), cfg, nil, Options{ModeOverride: "mobile", Playback: true, Output: out})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Engine == nil {
		t.Fatal("Expected playback engine")
	}
	if got := s.Engine.Snapshot().Volume; got != cfg.Playback.Volume {
		t.Errorf("Volume = %v, want %v", got, cfg.Playback.Volume)
	}

	s.Start(context.Background())
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestPlaybackNeedsOutput(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Playback.MPVEnabled = false

	if _, err := New(context.Background(), cfg, nil, Options{ModeOverride: "mobile", Playback: true}); err == nil {
		t.Error("Expected error when mpv is disabled and no output is given")
	}
}
