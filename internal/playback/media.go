package playback

// EventKind identifies a media output event
type EventKind int

const (
	// EventPosition carries the current position in seconds
	EventPosition EventKind = iota
	// EventDuration carries the track length in seconds
	EventDuration
	// EventEnded fires once when the loaded track plays to its end
	EventEnded
)

// MediaEvent is pushed by a MediaOutput while a track is loaded
type MediaEvent struct {
	Kind  EventKind
	Value float64
}

// MediaOutput is the single audio element the engine drives. Loading a new
// URL supersedes whatever was playing before.
type MediaOutput interface {
	Load(url string) error
	Play() error
	Pause() error
	// SetVolume takes a level between 0 and 1
	SetVolume(v float64) error
	// Seek jumps to t seconds from the start
	Seek(t float64) error
	Events() <-chan MediaEvent
	Close() error
}
