package offline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/monitoring"
	"github.com/kordia/kordia-go/internal/store"
)

// Provenance says where a registered song's audio is believed to live
type Provenance string

const (
	// Pending means the lookup has not finished yet
	Pending Provenance = "pending"
	// Resident means the local audio cache holds the payload
	Resident Provenance = "resident"
	// HostOnly means the payload is not in the local cache
	HostOnly Provenance = "host"
	// Unknown means the lookup failed
	Unknown Provenance = "unknown"
)

// Lookup is the read side of the audio cache
type Lookup interface {
	Has(ctx context.Context, key string) (bool, error)
}

// OpenFunc opens the audio cache for one pass
type OpenFunc func(ctx context.Context) (Lookup, error)

// AudioCache adapts a CacheStore to an OpenFunc
func AudioCache(caches *store.CacheStore) OpenFunc {
	return func(ctx context.Context) (Lookup, error) {
		cache, err := caches.Open(ctx, store.AudioNamespace)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}
}

// Reconciler checks registered songs against the audio cache
type Reconciler struct {
	open        OpenFunc
	keyFor      func(id string) string
	board       *ProvenanceBoard
	concurrency int
	logger      *zap.Logger
}

// NewReconciler creates a reconciler. keyFor maps a song id to its
// canonical offline URL.
func NewReconciler(open OpenFunc, keyFor func(id string) string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		open:        open,
		keyFor:      keyFor,
		board:       NewProvenanceBoard(),
		concurrency: 8,
		logger:      logger,
	}
}

// Board returns the provenance board fed by Watch
func (r *Reconciler) Board() *ProvenanceBoard {
	return r.board
}

// Reconcile reports, per song id, whether the audio cache holds its payload.
// Ids whose lookup failed are left out. An empty input returns at once
// without touching the cache.
func (r *Reconciler) Reconcile(ctx context.Context, songs []api.Song) map[string]bool {
	result := make(map[string]bool, len(songs))
	if len(songs) == 0 {
		return result
	}

	var mu sync.Mutex
	r.pass(ctx, songs, func(id string, p Provenance) {
		if p == Unknown {
			return
		}
		mu.Lock()
		result[id] = p == Resident
		mu.Unlock()
	})
	return result
}

// pass looks every song up concurrently and reports each outcome as it
// arrives. Outcomes arrive in no particular order.
func (r *Reconciler) pass(ctx context.Context, songs []api.Song, report func(id string, p Provenance)) {
	start := time.Now()
	defer func() { monitoring.RecordReconcilePass(time.Since(start)) }()

	cache, err := r.open(ctx)
	if err != nil {
		r.logger.Warn("Audio cache unavailable, provenance unknown", zap.Error(err))
		for _, s := range songs {
			monitoring.RecordReconcileLookup("error")
			report(s.ID, Unknown)
		}
		return
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, s := range songs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			has, err := cache.Has(ctx, r.keyFor(id))
			switch {
			case err != nil:
				r.logger.Debug("Residency lookup failed", zap.String("ytid", id), zap.Error(err))
				monitoring.RecordReconcileLookup("error")
				report(id, Unknown)
			case has:
				monitoring.RecordReconcileLookup("resident")
				report(id, Resident)
			default:
				monitoring.RecordReconcileLookup("absent")
				report(id, HostOnly)
			}
		}(s.ID)
	}
	wg.Wait()
}

// Watch re-runs the pass whenever registry changes and is non-empty, feeding
// the board. It blocks until ctx is done.
func (r *Reconciler) Watch(ctx context.Context, registry *Registry) {
	updates, unsubscribe := registry.Subscribe()
	defer unsubscribe()

	r.runOnBoard(ctx, registry.List())

	for {
		select {
		case <-ctx.Done():
			return
		case songs, ok := <-updates:
			if !ok {
				return
			}
			r.runOnBoard(ctx, songs)
		}
	}
}

func (r *Reconciler) runOnBoard(ctx context.Context, songs []api.Song) {
	r.board.Reset(songs)
	if len(songs) == 0 {
		return
	}
	r.pass(ctx, songs, r.board.Set)
}

// ProvenanceBoard holds the latest provenance of every registered song
type ProvenanceBoard struct {
	mu       sync.RWMutex
	state    map[string]Provenance
	onChange func(id string, p Provenance)
}

// NewProvenanceBoard creates an empty board
func NewProvenanceBoard() *ProvenanceBoard {
	return &ProvenanceBoard{state: make(map[string]Provenance)}
}

// OnChange registers a callback invoked after every update
func (b *ProvenanceBoard) OnChange(fn func(id string, p Provenance)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Reset tracks exactly songs, every one of them Pending
func (b *ProvenanceBoard) Reset(songs []api.Song) {
	next := make(map[string]Provenance, len(songs))
	for _, s := range songs {
		next[s.ID] = Pending
	}
	b.mu.Lock()
	b.state = next
	b.mu.Unlock()
}

// Set records the provenance of id
func (b *ProvenanceBoard) Set(id string, p Provenance) {
	b.mu.Lock()
	b.state[id] = p
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(id, p)
	}
}

// Get returns the provenance of id; untracked ids are Unknown
func (b *ProvenanceBoard) Get(id string) Provenance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.state[id]; ok {
		return p
	}
	return Unknown
}

// Snapshot returns a copy of the board
func (b *ProvenanceBoard) Snapshot() map[string]Provenance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Provenance, len(b.state))
	for id, p := range b.state {
		out[id] = p
	}
	return out
}
