package playback

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/monitoring"
)

// State of the playback session
type State string

const (
	Idle    State = "idle"
	Loading State = "loading"
	Playing State = "playing"
	Paused  State = "paused"
)

// DefaultVolume is the volume of a fresh session
const DefaultVolume = 0.7

// Snapshot is a copy of the playback session
type Snapshot struct {
	Current  *api.Song  `json:"current,omitempty"`
	Queue    []api.Song `json:"queue"`
	Index    int        `json:"index"`
	State    State      `json:"state"`
	Volume   float64    `json:"volume"`
	Position float64    `json:"position"`
	Duration float64    `json:"duration"`
}

// StreamResolver turns a song id into a fresh playable URL
type StreamResolver interface {
	StreamURL(ctx context.Context, id string) (string, error)
}

// Options configures an Engine
type Options struct {
	Volume   float64 // zero selects DefaultVolume
	Logger   *zap.Logger
	Boundary *errors.Boundary
}

// Engine owns the media output, the queue and the transport state
type Engine struct {
	output   MediaOutput
	resolver StreamResolver
	logger   *zap.Logger
	boundary *errors.Boundary

	mu       sync.Mutex
	current  *api.Song
	queue    []api.Song
	index    int
	state    State
	settled  State // state to fall back to when a load fails
	volume   float64
	position float64
	duration float64
	token    uint64

	subs    map[int]chan Snapshot
	nextSub int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewEngine creates an engine and starts following output's events
func NewEngine(output MediaOutput, resolver StreamResolver, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	boundary := opts.Boundary
	if boundary == nil {
		boundary = errors.NewBoundary(logger, nil)
	}

	volume := DefaultVolume
	if opts.Volume > 0 {
		volume = clamp(opts.Volume, 0, 1)
	}

	e := &Engine{
		output:   output,
		resolver: resolver,
		logger:   logger,
		boundary: boundary,
		index:    -1,
		state:    Idle,
		settled:  Idle,
		volume:   volume,
		subs:     make(map[int]chan Snapshot),
		done:     make(chan struct{}),
	}
	if err := output.SetVolume(e.volume); err != nil {
		logger.Warn("Failed to apply initial volume", zap.Error(err))
	}

	e.wg.Add(1)
	go e.followEvents()
	return e
}

// Close stops following events and releases the media output
func (e *Engine) Close() error {
	select {
	case <-e.done:
		return nil
	default:
		close(e.done)
	}
	e.wg.Wait()
	return e.output.Close()
}

// PlaySong resolves a URL for song and starts it. When queue is non-nil it
// replaces the queue and the index moves to song's position in it, or -1.
// Failures are reported at the boundary and leave the session unchanged.
// A call superseded by a later PlaySong is dropped when it resolves.
// PlaySong reports false when song could not be started.
func (e *Engine) PlaySong(ctx context.Context, song api.Song, queue []api.Song) bool {
	return e.play(ctx, song, func() {
		if queue != nil {
			e.queue = append([]api.Song(nil), queue...)
			e.index = indexOf(e.queue, song.ID)
		}
	})
}

// play starts song and, once the output accepted it, runs commit under the
// lock. commit is skipped for failed and superseded requests. A superseded
// request reports true: a later one owns the session by then.
func (e *Engine) play(ctx context.Context, song api.Song, commit func()) bool {
	e.mu.Lock()
	e.token++
	token := e.token
	if e.state != Loading {
		e.settled = e.state
	}
	e.state = Loading
	e.publishLocked()
	e.mu.Unlock()

	url, err := e.resolve(ctx, song)

	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.token {
		monitoring.RecordPlaybackEvent("superseded")
		e.logger.Debug("Dropping superseded play request", zap.String("ytid", song.ID))
		return true
	}

	if err == nil {
		err = e.start(url)
	}
	if err != nil {
		e.state = e.settled
		e.publishLocked()
		monitoring.RecordPlaybackEvent("failed")
		e.boundary.Handle("play", errors.NewPlaybackError(fmt.Sprintf("cannot play %s", song.ID), err))
		return false
	}

	played := song
	e.current = &played
	commit()
	e.state = Playing
	e.position = 0
	e.duration = float64(song.DurationSeconds())
	e.publishLocked()

	monitoring.RecordPlaybackEvent("play")
	e.logger.Info("Playing", zap.String("ytid", song.ID), zap.String("title", song.Title), zap.Int("index", e.index))
	return true
}

func (e *Engine) resolve(ctx context.Context, song api.Song) (string, error) {
	if song.URL != "" {
		return song.URL, nil
	}
	if e.resolver == nil {
		return "", fmt.Errorf("no stream resolver for %s", song.ID)
	}
	return e.resolver.StreamURL(ctx, song.ID)
}

func (e *Engine) start(url string) error {
	if err := e.output.Load(url); err != nil {
		return err
	}
	return e.output.Play()
}

// TogglePlay switches between Playing and Paused. It does nothing without
// a current song.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}

	switch e.state {
	case Playing:
		if e.boundary.Handle("pause", wrapOutput(e.output.Pause())) {
			return
		}
		e.state = Paused
		monitoring.RecordPlaybackEvent("pause")
	case Paused:
		// A track that played out restarts from the top
		if e.duration > 0 && e.position >= e.duration {
			if e.boundary.Handle("resume", wrapOutput(e.output.Seek(0))) {
				return
			}
			e.position = 0
		}
		if e.boundary.Handle("resume", wrapOutput(e.output.Play())) {
			return
		}
		e.state = Playing
		monitoring.RecordPlaybackEvent("resume")
	default:
		return
	}
	e.publishLocked()
}

// PlayNext moves to the next queue entry. At the end of the queue, or when
// the next song fails to start, it does nothing and reports false.
func (e *Engine) PlayNext(ctx context.Context) bool {
	return e.step(ctx, 1)
}

// PlayPrevious moves to the previous queue entry. At the start of the queue,
// with no current index, or when the song fails to start, it does nothing.
func (e *Engine) PlayPrevious(ctx context.Context) bool {
	return e.step(ctx, -1)
}

func (e *Engine) step(ctx context.Context, delta int) bool {
	e.mu.Lock()
	if delta < 0 && e.index < 0 {
		e.mu.Unlock()
		return false
	}
	next := e.index + delta
	if next < 0 || next >= len(e.queue) {
		e.mu.Unlock()
		return false
	}
	song := e.queue[next]
	e.mu.Unlock()

	return e.playAt(ctx, song)
}

// playAt starts a queued song and moves the index onto it. The queue may
// have changed while the URL resolved, so the index is looked up again.
func (e *Engine) playAt(ctx context.Context, song api.Song) bool {
	return e.play(ctx, song, func() {
		e.index = indexOf(e.queue, song.ID)
	})
}

// SetVolume sets the output level, clamped to 0..1
func (e *Engine) SetVolume(v float64) {
	v = clamp(v, 0, 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.boundary.Handle("volume", wrapOutput(e.output.SetVolume(v))) {
		return
	}
	e.volume = v
	e.publishLocked()
}

// Seek jumps to t seconds and reports the new position right away, without
// waiting for the output to confirm it. Until the duration is known the
// only valid position is 0.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}
	t = clamp(t, 0, e.duration)
	if e.boundary.Handle("seek", wrapOutput(e.output.Seek(t))) {
		return
	}
	e.position = t
	e.publishLocked()
}

// AddToQueue appends song unless its id is already queued
func (e *Engine) AddToQueue(song api.Song) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if indexOf(e.queue, song.ID) >= 0 {
		return false
	}
	e.queue = append(e.queue, song)
	e.publishLocked()
	return true
}

// RemoveFromQueue drops the entry at index. The current index keeps pointing
// at the same song; removing the current entry clears it while the song
// keeps playing.
func (e *Engine) RemoveFromQueue(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.queue) {
		return false
	}

	next := make([]api.Song, 0, len(e.queue)-1)
	next = append(next, e.queue[:index]...)
	next = append(next, e.queue[index+1:]...)
	e.queue = next

	switch {
	case index < e.index:
		e.index--
	case index == e.index:
		e.index = -1
	}
	e.publishLocked()
	return true
}

// ClearQueue empties the queue. The current song keeps playing.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	e.index = -1
	e.publishLocked()
}

// Snapshot returns a copy of the session
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel receiving the session after every change.
// Slow readers only see the latest snapshot.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Queue:    append([]api.Song{}, e.queue...),
		Index:    e.index,
		State:    e.state,
		Volume:   e.volume,
		Position: e.position,
		Duration: e.duration,
	}
	if e.current != nil {
		current := *e.current
		s.Current = &current
	}
	return s
}

func (e *Engine) publishLocked() {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (e *Engine) followEvents() {
	defer e.wg.Done()
	events := e.output.Events()

	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleEvent(ev MediaEvent) {
	switch ev.Kind {
	case EventPosition:
		e.mu.Lock()
		e.position = ev.Value
		e.publishLocked()
		e.mu.Unlock()
	case EventDuration:
		e.mu.Lock()
		if ev.Value > 0 {
			e.duration = ev.Value
		}
		e.publishLocked()
		e.mu.Unlock()
	case EventEnded:
		monitoring.RecordPlaybackEvent("ended")
		if e.PlayNext(context.Background()) {
			return
		}
		e.mu.Lock()
		if e.state == Playing {
			e.state = Paused
			if e.duration > 0 {
				e.position = e.duration
			}
			e.publishLocked()
		}
		e.mu.Unlock()
		e.logger.Debug("Stopped at end of track")
	}
}

func wrapOutput(err error) error {
	if err == nil {
		return nil
	}
	return errors.NewPlaybackError("media output rejected the command", err)
}

func indexOf(songs []api.Song, id string) int {
	for i, s := range songs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
