package playlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/store"
)

// Backend stores user playlists. Every mutation returns the playlist as
// stored afterwards so callers can refresh their copy from it.
type Backend interface {
	Load(ctx context.Context) ([]api.Playlist, error)
	Create(ctx context.Context, p api.Playlist) (api.Playlist, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, name string) (api.Playlist, error)
	AddSong(ctx context.Context, id string, song api.Song) (api.Playlist, error)
	RemoveSong(ctx context.Context, id, songID string) (api.Playlist, error)
	// Import creates p with all of its songs in one step
	Import(ctx context.Context, p api.Playlist) (api.Playlist, error)
}

// LocalBackend keeps playlists in the local key/value state. Playlists
// marked non-persistent live in memory only. A nil kv keeps everything in
// memory.
type LocalBackend struct {
	kv     *store.KVStore
	logger *zap.Logger

	mu        sync.Mutex
	playlists []api.Playlist
	loaded    bool
}

// NewLocalBackend creates a backend over kv
func NewLocalBackend(kv *store.KVStore, logger *zap.Logger) *LocalBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBackend{kv: kv, logger: logger}
}

// Load implements Backend. An unreadable document yields no playlists.
func (b *LocalBackend) Load(ctx context.Context) ([]api.Playlist, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded && b.kv != nil {
		var stored []api.Playlist
		if _, err := b.kv.Get(ctx, store.PlaylistsKey, &stored); err != nil {
			b.logger.Warn("Discarding unreadable playlists", zap.Error(err))
			stored = nil
		}
		b.playlists = stored
	}
	b.loaded = true
	return clonePlaylists(b.playlists), nil
}

// Create implements Backend
func (b *LocalBackend) Create(ctx context.Context, p api.Playlist) (api.Playlist, error) {
	return b.Import(ctx, p)
}

// Import implements Backend
func (b *LocalBackend) Import(ctx context.Context, p api.Playlist) (api.Playlist, error) {
	if _, err := b.Load(ctx); err != nil {
		return api.Playlist{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p = p.Clone()
	if p.Songs == nil {
		p.Songs = []api.Song{}
	}
	if p.CoverThumbnail == "" && len(p.Songs) > 0 {
		p.CoverThumbnail = p.Songs[0].Thumbnail
	}
	next := append(clonePlaylists(b.playlists), p)
	if err := b.commitLocked(ctx, next); err != nil {
		return api.Playlist{}, err
	}
	return p.Clone(), nil
}

// Delete implements Backend
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.Load(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]api.Playlist, 0, len(b.playlists))
	for _, p := range b.playlists {
		if p.ID != id {
			next = append(next, p)
		}
	}
	if len(next) == len(b.playlists) {
		return errors.NewNotFoundError(fmt.Sprintf("playlist %s not found", id))
	}
	return b.commitLocked(ctx, next)
}

// Rename implements Backend
func (b *LocalBackend) Rename(ctx context.Context, id, name string) (api.Playlist, error) {
	return b.update(ctx, id, func(p *api.Playlist) {
		p.Name = name
	})
}

// AddSong appends song unless the playlist already holds its id. The cover
// is taken from the song when the playlist has none.
func (b *LocalBackend) AddSong(ctx context.Context, id string, song api.Song) (api.Playlist, error) {
	return b.update(ctx, id, func(p *api.Playlist) {
		if p.HasSong(song.ID) {
			return
		}
		p.Songs = append(p.Songs, song)
		if p.CoverThumbnail == "" {
			p.CoverThumbnail = song.Thumbnail
		}
	})
}

// RemoveSong drops songID. The cover follows the new first song.
func (b *LocalBackend) RemoveSong(ctx context.Context, id, songID string) (api.Playlist, error) {
	return b.update(ctx, id, func(p *api.Playlist) {
		kept := make([]api.Song, 0, len(p.Songs))
		for _, s := range p.Songs {
			if s.ID != songID {
				kept = append(kept, s)
			}
		}
		p.Songs = kept
		p.CoverThumbnail = ""
		if len(kept) > 0 {
			p.CoverThumbnail = kept[0].Thumbnail
		}
	})
}

func (b *LocalBackend) update(ctx context.Context, id string, fn func(p *api.Playlist)) (api.Playlist, error) {
	if _, err := b.Load(ctx); err != nil {
		return api.Playlist{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := clonePlaylists(b.playlists)
	for i := range next {
		if next[i].ID != id {
			continue
		}
		fn(&next[i])
		if err := b.commitLocked(ctx, next); err != nil {
			return api.Playlist{}, err
		}
		return next[i].Clone(), nil
	}
	return api.Playlist{}, errors.NewNotFoundError(fmt.Sprintf("playlist %s not found", id))
}

// commitLocked writes the persistent playlists and then adopts next
func (b *LocalBackend) commitLocked(ctx context.Context, next []api.Playlist) error {
	durable := make([]api.Playlist, 0, len(next))
	for _, p := range next {
		if p.IsPersistent() {
			durable = append(durable, p)
		}
	}
	if b.kv != nil {
		if err := b.kv.Set(ctx, store.PlaylistsKey, durable); err != nil {
			return err
		}
	}
	b.playlists = next
	return nil
}

// RemoteBackend keeps playlists on the host
type RemoteBackend struct {
	catalog *api.Client
	logger  *zap.Logger
}

// NewRemoteBackend creates a backend over the host's playlist endpoints
func NewRemoteBackend(catalog *api.Client, logger *zap.Logger) *RemoteBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteBackend{catalog: catalog, logger: logger}
}

// Load implements Backend
func (b *RemoteBackend) Load(ctx context.Context) ([]api.Playlist, error) {
	return b.catalog.ListPlaylists(ctx)
}

// Create implements Backend
func (b *RemoteBackend) Create(ctx context.Context, p api.Playlist) (api.Playlist, error) {
	created, err := b.catalog.CreatePlaylist(ctx, p.ID, p.Name)
	if err != nil {
		return api.Playlist{}, err
	}
	return *created, nil
}

// Import creates the playlist and then adds its songs one by one. A failed
// add stops the import; the playlist keeps the songs added so far.
func (b *RemoteBackend) Import(ctx context.Context, p api.Playlist) (api.Playlist, error) {
	created, err := b.Create(ctx, p)
	if err != nil {
		return api.Playlist{}, err
	}
	for _, s := range p.Songs {
		updated, err := b.catalog.AddPlaylistSong(ctx, created.ID, s)
		if err != nil {
			b.logger.Warn("Import stopped", zap.String("playlist", created.ID), zap.String("ytid", s.ID), zap.Error(err))
			return created, err
		}
		created = *updated
	}
	return created, nil
}

// Delete implements Backend
func (b *RemoteBackend) Delete(ctx context.Context, id string) error {
	return b.catalog.DeletePlaylist(ctx, id)
}

// Rename renames on the host and reads the playlist back, since the host
// only acknowledges the rename.
func (b *RemoteBackend) Rename(ctx context.Context, id, name string) (api.Playlist, error) {
	if err := b.catalog.RenamePlaylist(ctx, id, name); err != nil {
		return api.Playlist{}, err
	}
	p, err := b.catalog.GetPlaylist(ctx, id)
	if err != nil {
		return api.Playlist{}, err
	}
	return *p, nil
}

// AddSong implements Backend
func (b *RemoteBackend) AddSong(ctx context.Context, id string, song api.Song) (api.Playlist, error) {
	p, err := b.catalog.AddPlaylistSong(ctx, id, song)
	if err != nil {
		return api.Playlist{}, err
	}
	return *p, nil
}

// RemoveSong implements Backend
func (b *RemoteBackend) RemoveSong(ctx context.Context, id, songID string) (api.Playlist, error) {
	p, err := b.catalog.RemovePlaylistSong(ctx, id, songID)
	if err != nil {
		return api.Playlist{}, err
	}
	return *p, nil
}

func clonePlaylists(in []api.Playlist) []api.Playlist {
	out := make([]api.Playlist, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func newPlaylistID(now time.Time) string {
	return fmt.Sprintf("pl_%d", now.UnixMilli())
}
