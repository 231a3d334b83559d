// Package device decides whether this client behaves as a mobile device that
// keeps songs in its own cache or as a desktop that delegates storage to the host.
package device

import (
	"regexp"
	"strings"
)

// Mode is the storage role of the running client
type Mode string

const (
	// Mobile keeps downloaded audio in the local content cache
	Mobile Mode = "mobile"
	// Desktop asks the host to persist downloads
	Desktop Mode = "desktop"
)

// MobileViewportMax is the widest viewport still treated as mobile
const MobileViewportMax = 768

var mobileUserAgent = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini`)

// Signals exposes the environment the resolver looks at. Implementations
// must return current values on every call.
type Signals interface {
	UserAgent() string
	ViewportWidth() int
	Standalone() bool
}

// Resolve classifies the environment described by s
func Resolve(s Signals) Mode {
	if mobileUserAgent.MatchString(s.UserAgent()) {
		return Mobile
	}
	if w := s.ViewportWidth(); w > 0 && w <= MobileViewportMax {
		return Mobile
	}
	return Desktop
}

// ParseMode converts a string into a Mode. The empty string is not a mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Mobile:
		return Mobile, true
	case Desktop:
		return Desktop, true
	}
	return "", false
}

// Resolver re-evaluates its signals every time Mode is called
type Resolver struct {
	signals  Signals
	override func() (Mode, bool)
}

// NewResolver creates a Resolver over signals
func NewResolver(signals Signals) *Resolver {
	return &Resolver{signals: signals}
}

// WithOverride returns a resolver that consults fn first; when fn reports
// ok the heuristic is skipped.
func (r *Resolver) WithOverride(fn func() (Mode, bool)) *Resolver {
	return &Resolver{signals: r.signals, override: fn}
}

// Mode returns the current mode
func (r *Resolver) Mode() Mode {
	if r.override != nil {
		if m, ok := r.override(); ok {
			return m
		}
	}
	return Resolve(r.signals)
}

// Static is a fixed set of signals
type Static struct {
	UA       string
	Viewport int
	PWA      bool
}

func (s Static) UserAgent() string  { return s.UA }
func (s Static) ViewportWidth() int { return s.Viewport }
func (s Static) Standalone() bool   { return s.PWA }
