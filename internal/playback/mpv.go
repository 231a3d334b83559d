//go:build !nompv

package playback

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/wildeyedskies/go-mpv/mpv"
	"go.uber.org/zap"
)

// MPVOutput plays audio through libmpv
type MPVOutput struct {
	m      *mpv.Mpv
	events chan MediaEvent
	done   chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger

	mu    sync.Mutex
	ended bool
	once  sync.Once
}

// NewMPVOutput creates an audio-only mpv instance. Tracks stay loaded at
// their end so the end of a track is reported exactly once.
func NewMPVOutput(logger *zap.Logger) (*MPVOutput, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := mpv.Create()
	m.SetOptionString("audio-display", "no")
	m.SetOptionString("video", "no")
	m.SetOptionString("keep-open", "yes")
	m.ObserveProperty(0, "time-pos", mpv.FORMAT_DOUBLE)
	m.ObserveProperty(0, "duration", mpv.FORMAT_DOUBLE)
	m.ObserveProperty(0, "eof-reached", mpv.FORMAT_FLAG)

	if err := m.Initialize(); err != nil {
		m.TerminateDestroy()
		return nil, fmt.Errorf("failed to initialize mpv: %w", err)
	}

	o := &MPVOutput{
		m:      m,
		events: make(chan MediaEvent, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	o.wg.Add(1)
	go o.loop()
	return o, nil
}

// Load replaces the current file with url, paused
func (o *MPVOutput) Load(url string) error {
	o.mu.Lock()
	o.ended = false
	o.mu.Unlock()

	if err := o.m.Command([]string{"set", "pause", "yes"}); err != nil {
		return err
	}
	return o.m.Command([]string{"loadfile", url, "replace"})
}

// Play resumes playback
func (o *MPVOutput) Play() error {
	return o.m.Command([]string{"set", "pause", "no"})
}

// Pause pauses playback
func (o *MPVOutput) Pause() error {
	return o.m.Command([]string{"set", "pause", "yes"})
}

// SetVolume maps 0..1 onto mpv's 0..100 scale
func (o *MPVOutput) SetVolume(v float64) error {
	return o.m.Command([]string{"set", "volume", strconv.FormatFloat(v*100, 'f', 1, 64)})
}

// Seek jumps to an absolute position
func (o *MPVOutput) Seek(t float64) error {
	o.mu.Lock()
	o.ended = false
	o.mu.Unlock()
	return o.m.Command([]string{"seek", strconv.FormatFloat(t, 'f', 3, 64), "absolute"})
}

// Events implements MediaOutput
func (o *MPVOutput) Events() <-chan MediaEvent {
	return o.events
}

// Close stops the event loop and destroys the mpv instance
func (o *MPVOutput) Close() error {
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.m.TerminateDestroy()
		close(o.events)
	})
	return nil
}

func (o *MPVOutput) loop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.done:
			return
		default:
		}

		e := o.m.WaitEvent(0.25)
		if e == nil {
			continue
		}
		switch e.Event_Id {
		case mpv.EVENT_PROPERTY_CHANGE:
			o.pollProperties()
		case mpv.EVENT_SHUTDOWN:
			o.logger.Info("mpv shut down")
			return
		}
	}
}

// pollProperties reads the observed properties back after a change event
func (o *MPVOutput) pollProperties() {
	if pos, err := o.m.GetProperty("time-pos", mpv.FORMAT_DOUBLE); err == nil {
		if v, ok := pos.(float64); ok {
			o.emit(MediaEvent{Kind: EventPosition, Value: v}, false)
		}
	}
	if dur, err := o.m.GetProperty("duration", mpv.FORMAT_DOUBLE); err == nil {
		if v, ok := dur.(float64); ok {
			o.emit(MediaEvent{Kind: EventDuration, Value: v}, false)
		}
	}
	eof, err := o.m.GetProperty("eof-reached", mpv.FORMAT_FLAG)
	if err != nil {
		return
	}
	reached, _ := eof.(bool)
	if !reached {
		return
	}

	o.mu.Lock()
	first := !o.ended
	o.ended = true
	o.mu.Unlock()
	if first {
		o.emit(MediaEvent{Kind: EventEnded}, true)
	}
}

// emit drops position updates nobody reads; must-deliver events wait
func (o *MPVOutput) emit(ev MediaEvent, mustDeliver bool) {
	if !mustDeliver {
		select {
		case o.events <- ev:
		default:
		}
		return
	}
	select {
	case o.events <- ev:
	case <-o.done:
	}
}
