package playlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/security"
)

// DefaultRefreshInterval is how often Run re-reads playlists
const DefaultRefreshInterval = 30 * time.Second

// DownloadedName is the display name of the reserved playlist
const DownloadedName = "Descargadas"

// SongSource lists the offline songs, most recent first
type SongSource interface {
	List() []api.Song
}

// Importer resolves an external playlist URL
type Importer interface {
	ImportPlaylist(ctx context.Context, playlistURL string) (*api.ImportedPlaylist, error)
}

// Refresher re-reads a remote list into a local mirror
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options configures a Store
type Options struct {
	Importer Importer
	// OfflineRefresher is refreshed together with the playlists, if set
	OfflineRefresher Refresher
	Logger           *zap.Logger
	Now              func() time.Time
}

// Store is the playlist view of the app: the Downloaded playlist followed by
// the user's playlists. Non-persistent playlists never reach the backend;
// they live in a session overlay that survives reloads.
type Store struct {
	backend   Backend
	session   *LocalBackend
	songs     SongSource
	importer  Importer
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.RWMutex
	playlists []api.Playlist
	transient map[string]bool
}

// NewStore creates a store. Call Load or Run to fill it.
func NewStore(backend Backend, songs SongSource, opts Options) *Store {
	s := &Store{
		backend:   backend,
		session:   NewLocalBackend(nil, opts.Logger),
		transient: make(map[string]bool),
		songs:     songs,
		importer:  opts.Importer,
		refresher: opts.OfflineRefresher,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load replaces the user playlists with the backend's, followed by the
// session overlay
func (s *Store) Load(ctx context.Context) error {
	playlists, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	overlay, err := s.session.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := make([]api.Playlist, 0, len(playlists)+len(overlay))
	for _, p := range playlists {
		if p.IsReserved() || s.transient[p.ID] {
			continue
		}
		user = append(user, p.Clone())
	}
	user = append(user, overlay...)
	s.playlists = user
	return nil
}

// Refresh reloads the playlists and the offline mirror. Both are attempted;
// the first error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	err := s.Load(ctx)
	if s.refresher != nil {
		if rerr := s.refresher.Refresh(ctx); rerr != nil {
			s.logger.Warn("Offline list refresh failed", zap.Error(rerr))
			if err == nil {
				err = rerr
			}
		}
	}
	return err
}

// Run refreshes every interval until ctx is done. The refresh replaces the
// mirror wholesale, so a mutation racing with it shows up on the next round.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Playlist refresh failed", zap.Error(err))
			}
		}
	}
}

// Downloaded synthesises the reserved playlist from the offline songs
func (s *Store) Downloaded() api.Playlist {
	var songs []api.Song
	if s.songs != nil {
		songs = s.songs.List()
	}
	if songs == nil {
		songs = []api.Song{}
	}

	p := api.Playlist{
		ID:        api.DownloadedPlaylistID,
		Name:      DownloadedName,
		Songs:     songs,
		CreatedAt: api.NewFlexibleTime(time.Unix(0, 0)),
	}
	if len(songs) > 0 {
		p.CoverThumbnail = songs[0].Thumbnail
	}
	return p
}

// List returns the Downloaded playlist followed by the user playlists
func (s *Store) List() []api.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Playlist, 0, len(s.playlists)+1)
	out = append(out, s.Downloaded())
	for _, p := range s.playlists {
		out = append(out, p.Clone())
	}
	return out
}

// Get returns the playlist with id
func (s *Store) Get(id string) (api.Playlist, error) {
	if id == api.DownloadedPlaylistID {
		return s.Downloaded(), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.playlists[i].Clone(), nil
	}
	return api.Playlist{}, notFound(id)
}

// Create adds an empty playlist. A non-persistent playlist lasts for the
// session only.
func (s *Store) Create(ctx context.Context, name string, persistent bool) (api.Playlist, error) {
	name, err := security.SanitizeName(name)
	if err != nil {
		return api.Playlist{}, err
	}
	backend := s.backend
	if !persistent {
		backend = s.session
	}
	created, err := backend.Create(ctx, s.newPlaylist(name, persistent, nil))
	if err != nil {
		return api.Playlist{}, err
	}
	if !persistent {
		s.mu.Lock()
		s.transient[created.ID] = true
		s.mu.Unlock()
	}
	s.upsert(created)
	s.logger.Info("Playlist created", zap.String("playlist", created.ID), zap.String("name", created.Name))
	return created.Clone(), nil
}

// Delete removes a user playlist. The Downloaded playlist cannot be deleted
// and is left alone.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == api.DownloadedPlaylistID {
		return nil
	}
	if err := s.mustExist(id); err != nil {
		return err
	}
	if err := s.backendFor(id).Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.transient, id)
	if i := s.indexLocked(id); i >= 0 {
		s.playlists = append(s.playlists[:i:i], s.playlists[i+1:]...)
	}
	s.mu.Unlock()
	return nil
}

// Rename renames a user playlist
func (s *Store) Rename(ctx context.Context, id, name string) error {
	if id == api.DownloadedPlaylistID {
		return nil
	}
	name, err := security.SanitizeName(name)
	if err != nil {
		return err
	}
	return s.mutate(id, func() (api.Playlist, error) {
		return s.backendFor(id).Rename(ctx, id, name)
	})
}

// AddSong appends song to a user playlist. Adding a song already present
// changes nothing.
func (s *Store) AddSong(ctx context.Context, id string, song api.Song) error {
	if id == api.DownloadedPlaylistID {
		return nil
	}
	if err := security.ValidateID(song.ID); err != nil {
		return err
	}
	return s.mutate(id, func() (api.Playlist, error) {
		return s.backendFor(id).AddSong(ctx, id, song)
	})
}

// RemoveSong removes songID from a user playlist
func (s *Store) RemoveSong(ctx context.Context, id, songID string) error {
	if id == api.DownloadedPlaylistID {
		return nil
	}
	return s.mutate(id, func() (api.Playlist, error) {
		return s.backendFor(id).RemoveSong(ctx, id, songID)
	})
}

// ImportPlaylist resolves playlistURL and stores the result as a new
// persistent playlist, songs in their original order
func (s *Store) ImportPlaylist(ctx context.Context, playlistURL string) (api.Playlist, error) {
	if s.importer == nil {
		return api.Playlist{}, errors.NewValidationError("playlist import is not available")
	}
	playlistURL, err := security.ValidateImportURL(playlistURL)
	if err != nil {
		return api.Playlist{}, err
	}

	imported, err := s.importer.ImportPlaylist(ctx, playlistURL)
	if err != nil {
		return api.Playlist{}, err
	}

	name, err := security.SanitizeName(imported.Title)
	if err != nil {
		name = "Imported playlist"
	}

	seen := make(map[string]bool, len(imported.Songs))
	songs := make([]api.Song, 0, len(imported.Songs))
	for _, song := range imported.Songs {
		if song.ID == "" || seen[song.ID] {
			continue
		}
		seen[song.ID] = true
		songs = append(songs, song)
	}

	created, err := s.backend.Import(ctx, s.newPlaylist(name, true, songs))
	if created.ID != "" {
		s.upsert(created)
	}
	if err != nil {
		return created.Clone(), err
	}
	s.logger.Info("Playlist imported",
		zap.String("playlist", created.ID),
		zap.Int("songs", len(created.Songs)),
	)
	return created.Clone(), nil
}

func (s *Store) mutate(id string, fn func() (api.Playlist, error)) error {
	if err := s.mustExist(id); err != nil {
		return err
	}
	updated, err := fn()
	if err != nil {
		return err
	}
	s.upsert(updated)
	return nil
}

// backendFor returns where the playlist with id is kept
func (s *Store) backendFor(id string) Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transient[id] {
		return s.session
	}
	return s.backend
}

func (s *Store) mustExist(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexLocked(id) < 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) upsert(p api.Playlist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(p.ID); i >= 0 {
		s.playlists[i] = p.Clone()
		return
	}
	s.playlists = append(s.playlists, p.Clone())
}

func (s *Store) indexLocked(id string) int {
	for i, p := range s.playlists {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// newPlaylist builds a playlist with a fresh time based id
func (s *Store) newPlaylist(name string, persistent bool, songs []api.Song) api.Playlist {
	now := s.now()

	s.mu.RLock()
	id := newPlaylistID(now)
	for s.indexLocked(id) >= 0 {
		now = now.Add(time.Millisecond)
		id = newPlaylistID(now)
	}
	s.mu.RUnlock()

	p := api.Playlist{
		ID:        id,
		Name:      name,
		Songs:     songs,
		CreatedAt: api.NewFlexibleTime(s.now()),
	}
	if p.Songs == nil {
		p.Songs = []api.Song{}
	}
	if !persistent {
		p.Persistent = &persistent
	}
	return p
}

func notFound(id string) error {
	return errors.NewNotFoundError(fmt.Sprintf("playlist %s not found", id))
}
