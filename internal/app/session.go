package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/config"
	"github.com/kordia/kordia-go/internal/device"
	"github.com/kordia/kordia-go/internal/download"
	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/network"
	"github.com/kordia/kordia-go/internal/offline"
	"github.com/kordia/kordia-go/internal/playback"
	"github.com/kordia/kordia-go/internal/playlist"
	"github.com/kordia/kordia-go/internal/store"
)

// Version is reported by health checks and the CLI
const Version = "1.0.0"

// Options tunes session construction
type Options struct {
	// ModeOverride forces "mobile" or "desktop" ahead of configuration
	ModeOverride string
	// Playback creates the playback engine
	Playback bool
	// Output replaces the mpv output, mostly for tests
	Output playback.MediaOutput
}

// Session owns every component of a running client. It is built once at
// process start and torn down with Close.
type Session struct {
	Config   *config.Config
	Logger   *zap.Logger
	Mode     device.Mode
	DB       *sql.DB
	Catalog  *api.Client
	Caches   *store.CacheStore
	KV       *store.KVStore
	Notifier *download.Notifier
	Boundary *errors.Boundary
	Health   *monitoring.HealthChecker

	Offline    offline.OfflineBackend
	Batch      *offline.Batch
	Reconciler *offline.Reconciler
	Playlists  *playlist.Store
	Engine     *playback.Engine

	mu      sync.Mutex
	hostErr error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// NewLogger builds the process logger from the logging section
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// ResolveMode picks the device mode for a session. An explicit override wins
// over device.force_mode, which wins over the device signals.
func ResolveMode(cfg *config.Config, override string) (device.Mode, error) {
	signals := device.NewConfigSignals(cfg.Live())
	var forced device.Mode
	if override != "" {
		m, ok := device.ParseMode(override)
		if !ok {
			return "", errors.NewValidationError(fmt.Sprintf("unknown mode %q", override))
		}
		forced = m
	}

	resolver := device.NewResolver(signals).WithOverride(func() (device.Mode, bool) {
		if forced != "" {
			return forced, true
		}
		return signals.ForcedMode()
	})
	return resolver.Mode(), nil
}

// New builds a session. The device mode is resolved once here and selects
// the offline and playlist backends for the session's lifetime.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mode, err := ResolveMode(cfg, opts.ModeOverride)
	if err != nil {
		return nil, err
	}

	db, err := store.InitDB(cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Session{
		Config:   cfg,
		Logger:   logger,
		Mode:     mode,
		DB:       db,
		Caches:   store.NewCacheStore(db, logger.Named("cache")),
		KV:       store.NewKVStore(db),
		Notifier: download.NewNotifier(),
		Health:   monitoring.NewHealthChecker(Version, db),
	}
	s.Boundary = errors.NewBoundary(logger, s.Notifier)

	clientCfg := network.DefaultClientConfig()
	clientCfg.Timeout = time.Duration(cfg.Network.Timeout) * time.Second
	s.Catalog = api.NewClient(cfg.Server.BaseURL, api.ClientOptions{
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		MaxRetries:        cfg.Network.MaxRetries,
		HTTPClient:        network.NewClient(clientCfg),
		Logger:            monitoring.ComponentLogger(logger, "catalog", string(mode)),
	})

	if err := s.buildBackends(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if opts.Playback {
		output := opts.Output
		if output == nil {
			if !cfg.Playback.MPVEnabled {
				db.Close()
				return nil, errors.NewValidationError("playback requested but mpv is disabled")
			}
			output, err = playback.NewMPVOutput(logger.Named("mpv"))
			if err != nil {
				db.Close()
				return nil, errors.NewPlaybackError("failed to start media output", err)
			}
		}
		s.Engine = playback.NewEngine(output, s.Catalog, playback.Options{
			Volume:   cfg.Playback.Volume,
			Logger:   monitoring.ComponentLogger(logger, "playback", string(mode)),
			Boundary: s.Boundary,
		})
	}

	logger.Info("Session ready",
		zap.String("mode", string(mode)),
		zap.String("host", s.Catalog.BaseURL()),
		zap.Bool("playback", s.Engine != nil),
	)
	return s, nil
}

func (s *Session) buildBackends(ctx context.Context) error {
	cfg := s.Config
	mode := string(s.Mode)
	offlineLogger := monitoring.ComponentLogger(s.Logger, "offline", mode)
	playlistLogger := monitoring.ComponentLogger(s.Logger, "playlist", mode)

	var (
		playlists playlist.Backend
		refresher playlist.Refresher
	)

	switch s.Mode {
	case device.Mobile:
		registry := offline.LoadRegistry(ctx, s.KV, store.OfflineCacheKey, offlineLogger)
		local, err := offline.NewLocalBackend(ctx, s.Catalog, s.Caches, registry, offline.LocalOptions{
			PayloadClient:  network.NewPayloadClient(time.Duration(cfg.Network.DownloadTimeout) * time.Second),
			ThumbnailMaxPx: cfg.Cache.ThumbnailMaxPx,
			Progress:       s.Notifier,
			Logger:         offlineLogger,
		})
		if err != nil {
			return err
		}
		s.Offline = local
		playlists = playlist.NewLocalBackend(s.KV, playlistLogger)
	default:
		mirror := offline.LoadRegistry(ctx, s.KV, offline.HostMirrorKey, offlineLogger)
		host := offline.NewHostBackend(s.Catalog, mirror, offlineLogger)
		s.Offline = host
		refresher = hostRefresher{host: host, session: s}
		playlists = playlist.NewRemoteBackend(s.Catalog, playlistLogger)
	}

	s.Batch = offline.NewBatch(s.Offline, cfg.Download.ConcurrentDownloads, s.Notifier, offlineLogger)
	s.Reconciler = offline.NewReconciler(offline.AudioCache(s.Caches), s.Catalog.OfflineAudioURL, offlineLogger)
	s.Playlists = playlist.NewStore(playlists, s.Offline.Registry(), playlist.Options{
		Importer:         s.Catalog,
		OfflineRefresher: refresher,
		Logger:           playlistLogger,
	})
	return nil
}

// Start runs the background work of a long lived session: the notifier,
// provenance tracking and the periodic playlist refresh.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.Notifier.Start()

	if err := s.Playlists.Refresh(ctx); err != nil {
		s.Boundary.Handle("playlists.load", err)
	}

	board := s.Reconciler.Board()
	board.OnChange(func(id string, p offline.Provenance) {
		s.Notifier.Publish(download.MessageProvenance, map[string]string{"ytid": id, "provenance": string(p)})
	})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.Reconciler.Watch(ctx, s.Offline.Registry())
	}()
	go func() {
		defer s.wg.Done()
		s.Playlists.Run(ctx, time.Duration(s.Config.Playlist.RefreshIntervalSeconds)*time.Second)
	}()

	if s.Engine != nil {
		updates, unsubscribe := s.Engine.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-updates:
					if !ok {
						return
					}
					s.Notifier.Publish(download.MessagePlayback, snap)
				}
			}
		}()
	}
}

// hostRefresher remembers whether the last mirror refresh reached the host
type hostRefresher struct {
	host    *offline.HostBackend
	session *Session
}

func (r hostRefresher) Refresh(ctx context.Context) error {
	err := r.host.Refresh(ctx)
	r.session.recordHost(err)
	return err
}

// Songs lists the offline songs and remembers whether the host answered
func (s *Session) Songs(ctx context.Context) ([]api.Song, error) {
	songs, err := s.Offline.Songs(ctx)
	if s.Mode == device.Desktop {
		s.recordHost(err)
	}
	return songs, err
}

func (s *Session) recordHost(err error) {
	if err != nil && !errors.IsNetworkError(err) {
		return
	}
	s.mu.Lock()
	s.hostErr = err
	s.mu.Unlock()
}

// Stats gathers what the health check reports on
func (s *Session) Stats(ctx context.Context) monitoring.Stats {
	stats := monitoring.Stats{
		Mode:            string(s.Mode),
		RegistrySongs:   s.Offline.Registry().Len(),
		ActiveDownloads: s.Notifier.GetStats().Active,
	}
	if usage, err := s.Caches.Usage(ctx); err == nil {
		for _, u := range usage {
			stats.CacheEntries += u.Entries
			stats.CacheBytes += u.Bytes
		}
	}
	s.mu.Lock()
	stats.HostErr = s.hostErr
	s.mu.Unlock()
	return stats
}

// Close stops background work and releases every resource. It is safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		if s.Engine != nil {
			if cerr := s.Engine.Close(); cerr != nil {
				s.Logger.Warn("Failed to close media output", zap.Error(cerr))
			}
		}
		s.Notifier.Stop()
		err = s.DB.Close()
		s.Logger.Info("Session closed")
		s.Logger.Sync()
	})
	return err
}
