package offline

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/artwork"
	"github.com/kordia/kordia-go/internal/device"
	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/network"
	"github.com/kordia/kordia-go/internal/store"
)

// OfflineBackend acquires, lists and deletes downloaded songs for one
// device mode.
type OfflineBackend interface {
	Mode() device.Mode
	// Download makes song available offline. Any failure is a download error.
	Download(ctx context.Context, song api.Song) error
	// Delete removes id from offline storage
	Delete(ctx context.Context, id string) error
	// Songs lists the offline songs, most recent first
	Songs(ctx context.Context) ([]api.Song, error)
	// Registry is the local view of the offline list used for display
	Registry() *Registry
}

// ProgressSink receives download lifecycle events
type ProgressSink interface {
	NotifyStarted(songID string)
	NotifyProgress(songID string, bytesProcessed, totalBytes int64)
	NotifyCompleted(songID string)
	NotifyFailed(songID string, err error)
}

type nopSink struct{}

func (nopSink) NotifyStarted(string)                {}
func (nopSink) NotifyProgress(string, int64, int64) {}
func (nopSink) NotifyCompleted(string)              {}
func (nopSink) NotifyFailed(string, error)          {}

// LocalBackend keeps audio in the device's own content cache
type LocalBackend struct {
	catalog       *api.Client
	payloadClient *http.Client
	audio         *store.Cache
	thumbnails    *store.Cache
	registry      *Registry
	thumbMaxPx    int
	progress      ProgressSink
	logger        *zap.Logger
}

// LocalOptions configures a LocalBackend
type LocalOptions struct {
	PayloadClient  *http.Client
	ThumbnailMaxPx int
	Progress       ProgressSink
	Logger         *zap.Logger
}

// NewLocalBackend opens both cache namespaces and returns a mobile backend
func NewLocalBackend(ctx context.Context, catalog *api.Client, caches *store.CacheStore, registry *Registry, opts LocalOptions) (*LocalBackend, error) {
	audio, err := caches.Open(ctx, store.AudioNamespace)
	if err != nil {
		return nil, err
	}
	thumbnails, err := caches.Open(ctx, store.ThumbnailNamespace)
	if err != nil {
		return nil, err
	}

	b := &LocalBackend{
		catalog:       catalog,
		payloadClient: opts.PayloadClient,
		audio:         audio,
		thumbnails:    thumbnails,
		registry:      registry,
		thumbMaxPx:    opts.ThumbnailMaxPx,
		progress:      opts.Progress,
		logger:        opts.Logger,
	}
	if b.payloadClient == nil {
		b.payloadClient = network.NewPayloadClient(5 * time.Minute)
	}
	if b.progress == nil {
		b.progress = nopSink{}
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

// Mode implements OfflineBackend
func (b *LocalBackend) Mode() device.Mode { return device.Mobile }

// Registry implements OfflineBackend
func (b *LocalBackend) Registry() *Registry { return b.registry }

// Download fetches the whole payload through the host's proxy, writes it
// under the canonical offline URL and only then registers the song.
func (b *LocalBackend) Download(ctx context.Context, song api.Song) error {
	start := time.Now()
	monitoring.RecordDownloadStart()
	logger := b.logger.With(zap.String("ytid", song.ID))

	fail := func(err error) error {
		monitoring.RecordDownloadFailed(string(device.Mobile))
		logger.Warn("Download failed", zap.Error(err))
		return errors.NewDownloadError(song.ID, err)
	}

	payload, err := network.FetchAll(ctx, b.payloadClient, b.catalog.ProxyURL(song.ID), network.FetchOptions{
		Progress: func(done, total int64) {
			b.progress.NotifyProgress(song.ID, done, total)
		},
	})
	if err != nil {
		return fail(err)
	}

	contentType := payload.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	canonical := b.catalog.OfflineAudioURL(song.ID)
	if err := b.audio.Put(ctx, canonical, store.Entry{Body: payload.Body, ContentType: contentType}); err != nil {
		return fail(err)
	}

	b.cacheThumbnail(ctx, song.Thumbnail, logger)

	registered := song
	registered.URL = canonical
	added, err := b.registry.prepend(ctx, registered)
	if err != nil {
		return fail(err)
	}

	monitoring.RecordDownloadComplete(string(device.Mobile), time.Since(start), int64(len(payload.Body)))
	logger.Info("Song cached for offline playback",
		zap.Int("bytes", len(payload.Body)),
		zap.Bool("newly_registered", added),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// cacheThumbnail is best effort; failures only get logged
func (b *LocalBackend) cacheThumbnail(ctx context.Context, thumbnailURL string, logger *zap.Logger) {
	if thumbnailURL == "" {
		return
	}
	img, err := artwork.Fetch(ctx, b.payloadClient, thumbnailURL, b.thumbMaxPx)
	if err != nil {
		logger.Debug("Thumbnail not cached", zap.String("thumbnail", thumbnailURL), zap.Error(err))
		return
	}
	if err := b.thumbnails.Put(ctx, thumbnailURL, store.Entry{Body: img.Body, ContentType: img.ContentType}); err != nil {
		logger.Debug("Thumbnail not cached", zap.String("thumbnail", thumbnailURL), zap.Error(err))
	}
}

// Delete unregisters id and drops its cached audio and thumbnail. Cache
// failures are logged and do not fail the call.
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	song, known := b.registry.Get(id)

	if _, err := b.registry.remove(ctx, id); err != nil {
		return err
	}

	if _, err := b.audio.Delete(ctx, b.catalog.OfflineAudioURL(id)); err != nil {
		b.logger.Warn("Failed to delete cached audio", zap.String("ytid", id), zap.Error(err))
	}
	if known && song.Thumbnail != "" {
		if _, err := b.thumbnails.Delete(ctx, song.Thumbnail); err != nil {
			b.logger.Warn("Failed to delete cached thumbnail", zap.String("ytid", id), zap.Error(err))
		}
	}
	return nil
}

// Songs returns the registry
func (b *LocalBackend) Songs(ctx context.Context) ([]api.Song, error) {
	return b.registry.List(), nil
}

// Audio returns the cached payload for a registered song
func (b *LocalBackend) Audio(ctx context.Context, id string) (*store.Entry, error) {
	return b.audio.Match(ctx, b.catalog.OfflineAudioURL(id))
}

// HostBackend delegates offline storage to the host
type HostBackend struct {
	catalog *api.Client
	mirror  *Registry
	logger  *zap.Logger
}

// NewHostBackend returns a desktop backend. mirror caches the host's list
// for display.
func NewHostBackend(catalog *api.Client, mirror *Registry, logger *zap.Logger) *HostBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostBackend{catalog: catalog, mirror: mirror, logger: logger}
}

// Mode implements OfflineBackend
func (b *HostBackend) Mode() device.Mode { return device.Desktop }

// Registry implements OfflineBackend
func (b *HostBackend) Registry() *Registry { return b.mirror }

// Download asks the host to persist song. The mirror is refreshed from the
// host afterwards, never edited locally.
func (b *HostBackend) Download(ctx context.Context, song api.Song) error {
	start := time.Now()
	monitoring.RecordDownloadStart()

	if err := b.catalog.RequestHostDownload(ctx, song); err != nil {
		monitoring.RecordDownloadFailed(string(device.Desktop))
		b.logger.Warn("Host download failed", zap.String("ytid", song.ID), zap.Error(err))
		return errors.NewDownloadError(song.ID, err)
	}

	monitoring.RecordDownloadComplete(string(device.Desktop), time.Since(start), 0)
	b.logger.Info("Host persisted song", zap.String("ytid", song.ID), zap.Duration("took", time.Since(start)))
	return nil
}

// Delete removes id on the host
func (b *HostBackend) Delete(ctx context.Context, id string) error {
	return b.catalog.DeleteOffline(ctx, id)
}

// Songs reads the host's list and mirrors it locally
func (b *HostBackend) Songs(ctx context.Context) ([]api.Song, error) {
	hostSongs, err := b.catalog.OfflineSongs(ctx)
	if err != nil {
		return nil, err
	}

	songs := make([]api.Song, 0, len(hostSongs))
	for _, s := range hostSongs {
		songs = append(songs, s.ToSong(b.catalog.OfflineAudioURL(s.ID)))
	}

	if err := b.mirror.replace(ctx, songs); err != nil {
		b.logger.Warn("Failed to update offline mirror", zap.Error(err))
	}
	return songs, nil
}

// Refresh re-reads the host list into the mirror
func (b *HostBackend) Refresh(ctx context.Context) error {
	_, err := b.Songs(ctx)
	return err
}
