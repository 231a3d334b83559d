package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/store"
)

type testEnv struct {
	db      *sql.DB
	kv      *store.KVStore
	caches  *store.CacheStore
	closeDB func() error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testEnv{
		db:      db,
		kv:      store.NewKVStore(db),
		caches:  store.NewCacheStore(db, nil),
		closeDB: db.Close,
	}
}

// fakeHost serves the proxy, thumbnail and offline endpoints
type fakeHost struct {
	mu        sync.Mutex
	payloads  map[string]string
	failProxy map[string]int
	offline   []api.OfflineSong
	requested []string
	deleted   []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		payloads:  make(map[string]string),
		failProxy: make(map[string]int),
	}
}

func (h *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/stream/proxy/"):
		id := strings.TrimPrefix(r.URL.Path, "/stream/proxy/")
		if status, ok := h.failProxy[id]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := h.payloads[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mp4")
		w.Write([]byte(body))
	case strings.HasPrefix(r.URL.Path, "/thumbs/"):
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("not really a jpeg"))
	case r.URL.Path == "/offline" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{"songs": h.offline})
	case strings.HasPrefix(r.URL.Path, "/offline/download/") && r.Method == http.MethodPost:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		id := strings.TrimPrefix(r.URL.Path, "/offline/download/")
		if status, ok := h.failProxy[id]; ok {
			w.WriteHeader(status)
			return
		}
		h.requested = append(h.requested, id)
		h.offline = append([]api.OfflineSong{{ID: id, Title: body["title"], Artist: body["artist"], Thumbnail: body["thumbnail"]}}, h.offline...)
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	case strings.HasPrefix(r.URL.Path, "/offline/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/offline/")
		h.deleted = append(h.deleted, id)
		kept := h.offline[:0]
		for _, s := range h.offline {
			if s.ID != id {
				kept = append(kept, s)
			}
		}
		h.offline = kept
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	default:
		http.NotFound(w, r)
	}
}

func startFakeHost(t *testing.T, h *fakeHost) (*httptest.Server, *api.Client) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server, api.NewClient(server.URL, api.ClientOptions{RequestsPerSecond: 1000})
}

func newLocalBackend(t *testing.T, env *testEnv, catalog *api.Client) *LocalBackend {
	t.Helper()
	registry := LoadRegistry(context.Background(), env.kv, store.OfflineCacheKey, nil)
	backend, err := NewLocalBackend(context.Background(), catalog, env.caches, registry, LocalOptions{})
	if err != nil {
		t.Fatalf("Failed to create local backend: %v", err)
	}
	return backend
}

func song(id string) api.Song {
	return api.Song{ID: id, Title: "Title " + id, Artist: "Artist"}
}
