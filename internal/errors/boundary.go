package errors

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/monitoring"
)

// Severity of a user-visible notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is what the presentation layer shows as a toast
type Notification struct {
	Severity  Severity  `json:"severity"`
	Operation string    `json:"operation"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives notifications produced at operation boundaries
type Notifier interface {
	Notify(n Notification)
}

// Boundary is where failures of playback, download, playlist and
// reconciliation operations stop. Nothing it handles propagates further.
type Boundary struct {
	logger   *zap.Logger
	notifier Notifier
	mu       sync.RWMutex
	last     map[string]time.Time
	quiet    time.Duration
}

// NewBoundary creates a boundary. A nil notifier only logs.
func NewBoundary(logger *zap.Logger, notifier Notifier) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Boundary{
		logger:   logger,
		notifier: notifier,
		last:     make(map[string]time.Time),
		quiet:    2 * time.Second,
	}
}

// Handle logs err, counts it and emits an error notification. It returns
// false when err is nil so callers can write `if b.Handle(...) { return }`.
func (b *Boundary) Handle(operation string, err error) bool {
	if err == nil {
		return false
	}

	errType := RootType(err)
	monitoring.RecordError(string(errType))
	b.logger.Error("Operation failed",
		zap.String("operation", operation),
		zap.String("error_type", string(errType)),
		zap.Error(err),
	)

	// Identical failures in a burst (e.g. a whole batch going offline) only
	// surface once.
	key := operation + "|" + string(errType)
	now := time.Now()
	b.mu.Lock()
	if at, ok := b.last[key]; ok && now.Sub(at) < b.quiet {
		b.mu.Unlock()
		return true
	}
	b.last[key] = now
	b.mu.Unlock()

	b.emit(Notification{
		Severity:  SeverityError,
		Operation: operation,
		Title:     UserMessage(err),
		Message:   err.Error(),
		Timestamp: now,
	})
	return true
}

// Info emits an informational notification
func (b *Boundary) Info(operation, title, message string) {
	b.emit(Notification{Severity: SeverityInfo, Operation: operation, Title: title, Message: message, Timestamp: time.Now()})
}

// Success emits a success notification
func (b *Boundary) Success(operation, title, message string) {
	b.emit(Notification{Severity: SeveritySuccess, Operation: operation, Title: title, Message: message, Timestamp: time.Now()})
}

func (b *Boundary) emit(n Notification) {
	if b.notifier != nil {
		b.notifier.Notify(n)
	}
}

// UserMessage returns a short human readable summary for err
func UserMessage(err error) string {
	switch RootType(err) {
	case ErrTypeNetwork:
		return "Network request failed"
	case ErrTypeCacheWrite:
		return "Could not save to the offline cache"
	case ErrTypeNotFound:
		return "Not found"
	case ErrTypeModeMismatch:
		return "This collection cannot be modified"
	case ErrTypeValidation:
		return "Invalid input"
	case ErrTypePlayback:
		return "Playback failed"
	case ErrTypeDownload:
		return "Download failed"
	default:
		return "Something went wrong"
	}
}
