package offline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/store"
)

// HostMirrorKey holds the last host offline list seen in desktop mode. It is
// kept apart from store.OfflineCacheKey so a desktop session never
// overwrites the songs a mobile session cached locally.
const HostMirrorKey = "kordia_offline_host_mirror"

// Registry is the persisted, most-recent-first list of downloaded songs.
// Reads are open to everyone; only this package mutates it.
type Registry struct {
	kv     *store.KVStore
	key    string
	logger *zap.Logger

	mu      sync.RWMutex
	songs   []api.Song
	subs    map[int]chan []api.Song
	nextSub int
}

// LoadRegistry reads the registry stored under key. A missing or
// undecodable document yields an empty registry.
func LoadRegistry(ctx context.Context, kv *store.KVStore, key string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		kv:     kv,
		key:    key,
		logger: logger,
		subs:   make(map[int]chan []api.Song),
	}

	var songs []api.Song
	if _, err := kv.Get(ctx, key, &songs); err != nil {
		logger.Warn("Discarding unreadable offline registry", zap.String("key", key), zap.Error(err))
		songs = nil
	}
	r.songs = songs
	if key == store.OfflineCacheKey {
		monitoring.UpdateRegistrySize(len(songs))
	}
	return r
}

// List returns a copy of the registered songs, most recent first
func (r *Registry) List() []api.Song {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]api.Song(nil), r.songs...)
}

// Len returns the number of registered songs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.songs)
}

// Get returns the registered song with id
func (r *Registry) Get(id string) (api.Song, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.songs {
		if s.ID == id {
			return s, true
		}
	}
	return api.Song{}, false
}

// Contains reports whether id is registered
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Subscribe returns a channel that receives the full list after every
// change. Slow readers only see the latest list. Call the returned func to
// unsubscribe.
func (r *Registry) Subscribe() (<-chan []api.Song, func()) {
	ch := make(chan []api.Song, 1)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// prepend registers song at the front. An already registered id is left in
// place and prepend reports false.
func (r *Registry) prepend(ctx context.Context, song api.Song) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.songs {
		if s.ID == song.ID {
			return false, nil
		}
	}

	next := make([]api.Song, 0, len(r.songs)+1)
	next = append(next, song)
	next = append(next, r.songs...)
	if err := r.commitLocked(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// remove drops id and reports whether it was registered
func (r *Registry) remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]api.Song, 0, len(r.songs))
	for _, s := range r.songs {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if len(next) == len(r.songs) {
		return false, nil
	}
	if err := r.commitLocked(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// replace swaps the whole list, dropping duplicate ids
func (r *Registry) replace(ctx context.Context, songs []api.Song) error {
	seen := make(map[string]bool, len(songs))
	next := make([]api.Song, 0, len(songs))
	for _, s := range songs {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		next = append(next, s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sameSongs(r.songs, next) {
		return nil
	}
	return r.commitLocked(ctx, next)
}

// commitLocked persists next and only then makes it visible
func (r *Registry) commitLocked(ctx context.Context, next []api.Song) error {
	if err := r.kv.Set(ctx, r.key, next); err != nil {
		return err
	}
	r.songs = next
	if r.key == store.OfflineCacheKey {
		monitoring.UpdateRegistrySize(len(next))
	}

	for _, ch := range r.subs {
		snapshot := append([]api.Song(nil), next...)
		select {
		case ch <- snapshot:
		default:
			// Replace the stale pending list with the latest one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
	return nil
}

func sameSongs(a, b []api.Song) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !songEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func songEqual(a, b api.Song) bool {
	return a.ID == b.ID && a.Title == b.Title && a.Artist == b.Artist &&
		a.Thumbnail == b.Thumbnail && a.URL == b.URL && a.DurationSeconds() == b.DurationSeconds()
}
