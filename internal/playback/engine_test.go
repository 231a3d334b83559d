package playback

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/kordia/kordia-go/internal/api"
)

type fakeOutput struct {
	mu      sync.Mutex
	loaded  []string
	playing bool
	volume  float64
	seeks   []float64
	failOn  map[string]bool
	events  chan MediaEvent
	closed  bool
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{failOn: make(map[string]bool), events: make(chan MediaEvent, 16)}
}

func (f *fakeOutput) fail(op string) error {
	if f.failOn[op] {
		return stderrors.New(op + " rejected")
	}
	return nil
}

func (f *fakeOutput) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("load"); err != nil {
		return err
	}
	f.loaded = append(f.loaded, url)
	return nil
}

func (f *fakeOutput) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("play"); err != nil {
		return err
	}
	f.playing = true
	return nil
}

func (f *fakeOutput) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *fakeOutput) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	return nil
}

func (f *fakeOutput) Seek(t float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, t)
	return nil
}

func (f *fakeOutput) Events() <-chan MediaEvent { return f.events }

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) lastLoaded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loaded) == 0 {
		return ""
	}
	return f.loaded[len(f.loaded)-1]
}

// fakeResolver answers stream URLs, optionally waiting on a gate per id
type fakeResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]bool
	calls []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{gates: make(map[string]chan struct{}), fail: make(map[string]bool)}
}

func (r *fakeResolver) StreamURL(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, id)
	gate := r.gates[id]
	fail := r.fail[id]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return "", stderrors.New("resolution failed")
	}
	return "https://stream/" + id, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeOutput, *fakeResolver) {
	t.Helper()
	out := newFakeOutput()
	res := newFakeResolver()
	e := NewEngine(out, res, Options{})
	t.Cleanup(func() { e.Close() })
	return e, out, res
}

func songs(ids ...string) []api.Song {
	out := make([]api.Song, len(ids))
	for i, id := range ids {
		out[i] = api.Song{ID: id, Title: "Song " + id}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewEngineDefaults(t *testing.T) {
	e, out, _ := newTestEngine(t)
	snap := e.Snapshot()

	if snap.State != Idle || snap.Index != -1 || snap.Current != nil {
		t.Errorf("Unexpected initial snapshot %+v", snap)
	}
	if snap.Volume != DefaultVolume || out.volume != DefaultVolume {
		t.Errorf("Expected default volume applied, got %v / %v", snap.Volume, out.volume)
	}
}

func TestPlaySongUsesKnownURL(t *testing.T) {
	e, out, res := newTestEngine(t)
	s := api.Song{ID: "a", URL: "http://host/offline/audio/a"}

	e.PlaySong(context.Background(), s, nil)

	if out.lastLoaded() != s.URL {
		t.Errorf("Loaded %s, want %s", out.lastLoaded(), s.URL)
	}
	if len(res.calls) != 0 {
		t.Error("Resolver should not be called for a song carrying a URL")
	}
	if snap := e.Snapshot(); snap.State != Playing || snap.Current.ID != "a" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestPlaySongWithQueue(t *testing.T) {
	e, out, _ := newTestEngine(t)
	queue := songs("a", "b", "c")

	e.PlaySong(context.Background(), queue[1], queue)

	snap := e.Snapshot()
	if snap.Index != 1 || len(snap.Queue) != 3 {
		t.Errorf("Unexpected queue state %+v", snap)
	}
	if out.lastLoaded() != "https://stream/b" {
		t.Errorf("Loaded %s", out.lastLoaded())
	}

	e.PlaySong(context.Background(), api.Song{ID: "z"}, songs("x", "y"))
	if snap := e.Snapshot(); snap.Index != -1 {
		t.Errorf("Song absent from queue should give index -1, got %d", snap.Index)
	}
}

func TestPlaySongFailureLeavesStateUnchanged(t *testing.T) {
	e, out, res := newTestEngine(t)
	res.fail["bad"] = true

	e.PlaySong(context.Background(), api.Song{ID: "bad"}, songs("bad"))
	if snap := e.Snapshot(); snap.State != Idle || snap.Current != nil || len(snap.Queue) != 0 {
		t.Errorf("Failed play changed state: %+v", snap)
	}

	e.PlaySong(context.Background(), songs("a")[0], nil)
	out.failOn["play"] = true
	e.PlaySong(context.Background(), songs("b")[0], nil)

	snap := e.Snapshot()
	if snap.State != Playing || snap.Current.ID != "a" {
		t.Errorf("Rejected play should keep the previous session, got %+v", snap)
	}
}

func TestSupersededPlayIsDropped(t *testing.T) {
	e, out, res := newTestEngine(t)
	gate := make(chan struct{})
	res.gates["slow"] = gate

	done := make(chan struct{})
	go func() {
		e.PlaySong(context.Background(), api.Song{ID: "slow"}, nil)
		close(done)
	}()
	waitFor(t, func() bool {
		res.mu.Lock()
		defer res.mu.Unlock()
		return len(res.calls) == 1
	})

	e.PlaySong(context.Background(), api.Song{ID: "fast"}, nil)
	close(gate)
	<-done

	if snap := e.Snapshot(); snap.Current == nil || snap.Current.ID != "fast" || snap.State != Playing {
		t.Errorf("Slow request overwrote the latest: %+v", snap)
	}
	if out.lastLoaded() != "https://stream/fast" {
		t.Errorf("Output loaded %s", out.lastLoaded())
	}
}

func TestTogglePlay(t *testing.T) {
	e, out, _ := newTestEngine(t)

	e.TogglePlay()
	if e.Snapshot().State != Idle {
		t.Error("Toggle without a song should do nothing")
	}

	e.PlaySong(context.Background(), songs("a")[0], nil)
	e.TogglePlay()
	if e.Snapshot().State != Paused || out.playing {
		t.Error("Expected paused")
	}
	e.TogglePlay()
	if e.Snapshot().State != Playing || !out.playing {
		t.Error("Expected playing")
	}
}

func TestNextPreviousBounds(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	queue := songs("a", "b", "c")
	e.PlaySong(ctx, queue[0], queue)

	if e.PlayPrevious(ctx) {
		t.Error("Previous at index 0 should be a no-op")
	}
	if !e.PlayNext(ctx) || !e.PlayNext(ctx) {
		t.Fatal("Expected two advances")
	}
	if snap := e.Snapshot(); snap.Index != 2 || snap.Current.ID != "c" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if e.PlayNext(ctx) {
		t.Error("Next at the end should be a no-op")
	}
	if !e.PlayPrevious(ctx) || e.Snapshot().Current.ID != "b" {
		t.Error("Expected to step back to b")
	}
}

func TestFailedStepKeepsIndex(t *testing.T) {
	e, _, res := newTestEngine(t)
	ctx := context.Background()
	queue := songs("a", "b", "c")
	e.PlaySong(ctx, queue[0], queue)
	res.fail["b"] = true

	if e.PlayNext(ctx) {
		t.Error("Next should report false when b cannot start")
	}
	snap := e.Snapshot()
	if snap.Index != 0 || snap.Current.ID != "a" || snap.State != Playing {
		t.Errorf("Failed next changed the session: %+v", snap)
	}

	res.fail["b"] = false
	if !e.PlayNext(ctx) || e.Snapshot().Index != 1 {
		t.Errorf("Expected to reach b once it resolves, got %+v", e.Snapshot())
	}
}

func TestStepFollowsQueueChangedDuringLoad(t *testing.T) {
	e, _, res := newTestEngine(t)
	ctx := context.Background()
	queue := songs("a", "b", "c")
	e.PlaySong(ctx, queue[0], queue)

	gate := make(chan struct{})
	res.gates["b"] = gate
	done := make(chan bool)
	go func() { done <- e.PlayNext(ctx) }()
	waitFor(t, func() bool { return e.Snapshot().State == Loading })

	e.RemoveFromQueue(0)
	close(gate)
	if !<-done {
		t.Fatal("Expected b to start")
	}
	if snap := e.Snapshot(); snap.Index != 0 || snap.Current.ID != "b" {
		t.Errorf("Index should point at b after the removal, got %+v", snap)
	}
}

func TestEndedWithFailingNextStops(t *testing.T) {
	e, out, res := newTestEngine(t)
	queue := songs("a", "b")
	e.PlaySong(context.Background(), queue[0], queue)
	res.fail["b"] = true

	out.events <- MediaEvent{Kind: EventDuration, Value: 60}
	out.events <- MediaEvent{Kind: EventEnded}
	waitFor(t, func() bool { return e.Snapshot().State == Paused })

	snap := e.Snapshot()
	if snap.Index != 0 || snap.Current.ID != "a" || snap.Position != 60 {
		t.Errorf("Track should stop at its end when b fails, got %+v", snap)
	}
}

func TestSeekClampsAndMirrors(t *testing.T) {
	e, out, _ := newTestEngine(t)

	e.Seek(10)
	if len(out.seeks) != 0 {
		t.Error("Seek without a song should do nothing")
	}

	e.PlaySong(context.Background(), api.Song{ID: "live"}, nil)
	e.Seek(30)
	if snap := e.Snapshot(); snap.Position != 0 || snap.Position > snap.Duration {
		t.Errorf("Unknown duration should pin the position to 0, got %+v", snap)
	}

	d := 200
	e.PlaySong(context.Background(), api.Song{ID: "a", Duration: &d}, nil)

	e.Seek(42)
	if e.Snapshot().Position != 42 {
		t.Errorf("Position = %v, want 42 immediately", e.Snapshot().Position)
	}
	e.Seek(500)
	if e.Snapshot().Position != 200 {
		t.Errorf("Expected clamp to duration, got %v", e.Snapshot().Position)
	}
	e.Seek(-3)
	if e.Snapshot().Position != 0 {
		t.Errorf("Expected clamp to 0, got %v", e.Snapshot().Position)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	e, out, _ := newTestEngine(t)

	e.SetVolume(1.5)
	if e.Snapshot().Volume != 1 || out.volume != 1 {
		t.Errorf("Expected 1, got %v", e.Snapshot().Volume)
	}
	e.SetVolume(-1)
	if e.Snapshot().Volume != 0 {
		t.Errorf("Expected 0, got %v", e.Snapshot().Volume)
	}
}

func TestQueueRemoval(t *testing.T) {
	tests := []struct {
		name      string
		remove    int
		wantIndex int
		wantOK    bool
	}{
		{"before current", 0, 1, true},
		{"current", 2, -1, true},
		{"after current", 3, 2, true},
		{"out of range", 9, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t)
			queue := songs("a", "b", "c", "d")
			e.PlaySong(context.Background(), queue[2], queue)

			if ok := e.RemoveFromQueue(tt.remove); ok != tt.wantOK {
				t.Errorf("RemoveFromQueue = %v, want %v", ok, tt.wantOK)
			}
			snap := e.Snapshot()
			if snap.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", snap.Index, tt.wantIndex)
			}
			if snap.Current.ID != "c" || snap.State != Playing {
				t.Error("Removal must not affect the playing song")
			}
		})
	}
}

func TestNextAfterCurrentRemoved(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	queue := songs("a", "b", "c")
	e.PlaySong(ctx, queue[1], queue)
	e.RemoveFromQueue(1)

	if e.PlayPrevious(ctx) {
		t.Error("Previous without a current index should be a no-op")
	}
	if !e.PlayNext(ctx) || e.Snapshot().Current.ID != "a" {
		t.Errorf("Next from no index should start the queue, got %+v", e.Snapshot())
	}
}

func TestAddAndClearQueue(t *testing.T) {
	e, _, _ := newTestEngine(t)
	queue := songs("a", "b")
	e.PlaySong(context.Background(), queue[0], queue)

	if !e.AddToQueue(songs("c")[0]) {
		t.Error("Expected c appended")
	}
	if e.AddToQueue(songs("a")[0]) {
		t.Error("Duplicate id should not be queued")
	}
	if len(e.Snapshot().Queue) != 3 {
		t.Errorf("Unexpected queue %v", e.Snapshot().Queue)
	}

	e.ClearQueue()
	snap := e.Snapshot()
	if len(snap.Queue) != 0 || snap.Index != -1 || snap.Current.ID != "a" {
		t.Errorf("Unexpected snapshot after clear %+v", snap)
	}
}

func TestEventsMirrorPositionAndAdvance(t *testing.T) {
	e, out, _ := newTestEngine(t)
	queue := songs("a", "b")
	e.PlaySong(context.Background(), queue[0], queue)

	out.events <- MediaEvent{Kind: EventDuration, Value: 180}
	out.events <- MediaEvent{Kind: EventPosition, Value: 12.5}
	waitFor(t, func() bool {
		snap := e.Snapshot()
		return snap.Duration == 180 && snap.Position == 12.5
	})

	out.events <- MediaEvent{Kind: EventEnded}
	waitFor(t, func() bool { return e.Snapshot().Current.ID == "b" })

	out.events <- MediaEvent{Kind: EventDuration, Value: 90}
	out.events <- MediaEvent{Kind: EventEnded}
	waitFor(t, func() bool { return e.Snapshot().State == Paused })

	snap := e.Snapshot()
	if snap.Current.ID != "b" || snap.Index != 1 || snap.Position != 90 {
		t.Errorf("End of queue should stop on the last song, got %+v", snap)
	}

	// Resuming a finished track starts it over
	e.TogglePlay()
	out.mu.Lock()
	lastSeek := out.seeks[len(out.seeks)-1]
	out.mu.Unlock()
	if lastSeek != 0 || e.Snapshot().State != Playing {
		t.Errorf("Expected restart from 0, got seek %v state %s", lastSeek, e.Snapshot().State)
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	e, _, _ := newTestEngine(t)
	updates, unsubscribe := e.Subscribe()
	defer unsubscribe()

	e.SetVolume(0.2)
	e.SetVolume(0.4)

	select {
	case snap := <-updates:
		if snap.Volume != 0.4 {
			t.Errorf("Expected latest volume 0.4, got %v", snap.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("No snapshot received")
	}
}

func TestCloseReleasesOutput(t *testing.T) {
	out := newFakeOutput()
	e := NewEngine(out, nil, Options{Volume: 0.5})
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if !out.closed {
		t.Error("Output not closed")
	}
}
