package offline

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/download"
)

// ErrInFlight is returned when a download for the same id is already running
var ErrInFlight = stderrors.New("download already in progress")

// BatchResult is the aggregate outcome of DownloadAll
type BatchResult struct {
	ID        string           `json:"id"`
	Requested int              `json:"requested"`
	Succeeded int              `json:"succeeded"`
	Skipped   []string         `json:"skipped,omitempty"`
	Failed    map[string]error `json:"-"`
}

// FailedCount returns the number of songs whose download failed
func (r BatchResult) FailedCount() int {
	return len(r.Failed)
}

// Batch issues downloads through a backend, never running two downloads
// of the same id at once.
type Batch struct {
	backend  OfflineBackend
	workers  int
	progress ProgressSink
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewBatch creates a Batch running at most workers downloads at a time
func NewBatch(backend OfflineBackend, workers int, progress ProgressSink, logger *zap.Logger) *Batch {
	if workers <= 0 {
		workers = 4
	}
	if progress == nil {
		progress = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{
		backend:  backend,
		workers:  workers,
		progress: progress,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight reports whether a download of id is running
func (b *Batch) InFlight(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inFlight[id]
	return ok
}

func (b *Batch) claim(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inFlight[id]; ok {
		return false
	}
	b.inFlight[id] = struct{}{}
	return true
}

func (b *Batch) release(id string) {
	b.mu.Lock()
	delete(b.inFlight, id)
	b.mu.Unlock()
}

// Download runs a single guarded download
func (b *Batch) Download(ctx context.Context, song api.Song) error {
	if !b.claim(song.ID) {
		return ErrInFlight
	}
	defer b.release(song.ID)
	return b.run(ctx, song)
}

func (b *Batch) run(ctx context.Context, song api.Song) error {
	b.progress.NotifyStarted(song.ID)
	if err := b.backend.Download(ctx, song); err != nil {
		b.progress.NotifyFailed(song.ID, err)
		return err
	}
	b.progress.NotifyCompleted(song.ID)
	return nil
}

// DownloadAll downloads songs concurrently and reports how many succeeded.
// One failure never aborts the others. Ids already in flight, and repeats
// within songs, are skipped.
func (b *Batch) DownloadAll(ctx context.Context, songs []api.Song) BatchResult {
	result := BatchResult{
		ID:        uuid.NewString(),
		Requested: len(songs),
		Failed:    make(map[string]error),
	}

	seen := make(map[string]bool, len(songs))
	var claimed []api.Song
	for _, s := range songs {
		if seen[s.ID] || !b.claim(s.ID) {
			result.Skipped = append(result.Skipped, s.ID)
			continue
		}
		seen[s.ID] = true
		claimed = append(claimed, s)
	}
	if len(claimed) == 0 {
		return result
	}

	logger := b.logger.With(zap.String("batch", result.ID))

	// Jobs still queued when ctx ends never reach the handler, so whatever
	// the handler did not release is released once the pool is down.
	var doneMu sync.Mutex
	released := make(map[string]bool, len(claimed))
	defer func() {
		doneMu.Lock()
		defer doneMu.Unlock()
		for _, s := range claimed {
			if !released[s.ID] {
				b.release(s.ID)
			}
		}
	}()

	pool := download.NewWorkerPool(b.workers, len(claimed), func(ctx context.Context, job *download.Job) error {
		defer func() {
			doneMu.Lock()
			released[job.Song.ID] = true
			b.release(job.Song.ID)
			doneMu.Unlock()
		}()
		return b.run(ctx, job.Song)
	}, logger)

	if err := pool.Start(ctx); err != nil {
		for _, s := range claimed {
			result.Failed[s.ID] = err
		}
		return result
	}
	defer pool.Stop()

	submitted := 0
	for _, s := range claimed {
		if err := pool.Submit(&download.Job{ID: uuid.NewString(), Song: s}); err != nil {
			result.Failed[s.ID] = err
			continue
		}
		submitted++
	}

	answered := make(map[string]bool, submitted)
	for i := 0; i < submitted; i++ {
		select {
		case res := <-pool.Results():
			answered[res.SongID] = true
			if res.Success() {
				result.Succeeded++
			} else {
				result.Failed[res.SongID] = res.Error
			}
		case <-ctx.Done():
			for _, s := range claimed {
				if _, failed := result.Failed[s.ID]; !failed && !answered[s.ID] {
					result.Failed[s.ID] = ctx.Err()
				}
			}
			logger.Warn("Batch download cancelled", zap.Int("succeeded", result.Succeeded))
			return result
		}
	}

	logger.Info("Batch download finished",
		zap.Int("requested", result.Requested),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result
}
