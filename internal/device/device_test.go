package device

import (
	"testing"

	"github.com/spf13/viper"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		signals Static
		want    Mode
	}{
		{"desktop browser", Static{UA: "Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0", Viewport: 1920}, Desktop},
		{"android phone", Static{UA: "Mozilla/5.0 (Linux; Android 14; Pixel 8)", Viewport: 1920}, Mobile},
		{"iphone upper case", Static{UA: "Mozilla/5.0 (IPHONE; CPU iPhone OS 17_0)", Viewport: 1024}, Mobile},
		{"ipad", Static{UA: "Mozilla/5.0 (iPad; CPU OS 16_0)", Viewport: 1024}, Mobile},
		{"opera mini", Static{UA: "Opera/9.80 (J2ME/MIDP; Opera Mini/9.80)", Viewport: 1280}, Mobile},
		{"narrow desktop window", Static{UA: "Mozilla/5.0 (Windows NT 10.0)", Viewport: 768}, Mobile},
		{"just above breakpoint", Static{UA: "Mozilla/5.0 (Windows NT 10.0)", Viewport: 769}, Desktop},
		{"unknown viewport", Static{UA: "kordia-cli", Viewport: 0}, Desktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.signals); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

type mutableSignals struct {
	width int
}

func (m *mutableSignals) UserAgent() string  { return "Mozilla/5.0 (Macintosh)" }
func (m *mutableSignals) ViewportWidth() int { return m.width }
func (m *mutableSignals) Standalone() bool   { return false }

func TestResolverReevaluates(t *testing.T) {
	signals := &mutableSignals{width: 1440}
	r := NewResolver(signals)

	if r.Mode() != Desktop {
		t.Fatalf("Expected desktop at 1440px")
	}

	signals.width = 390
	if r.Mode() != Mobile {
		t.Error("Expected mobile after resize to 390px")
	}

	signals.width = 1440
	if r.Mode() != Desktop {
		t.Error("Expected desktop after resizing back")
	}
}

func TestConfigResolver(t *testing.T) {
	v := viper.New()
	v.Set("device.user_agent", "Mozilla/5.0 (Windows NT 10.0)")
	v.Set("device.viewport_width", 1280)

	r := NewConfigResolver(v)
	if r.Mode() != Desktop {
		t.Fatalf("Expected desktop from config signals")
	}

	v.Set("device.viewport_width", 600)
	if r.Mode() != Mobile {
		t.Error("Expected mobile after live config change")
	}

	v.Set("device.force_mode", "desktop")
	if r.Mode() != Desktop {
		t.Error("Expected force_mode to win over viewport")
	}

	v.Set("device.force_mode", "bogus")
	if r.Mode() != Mobile {
		t.Error("Expected invalid force_mode to be ignored")
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode(" Mobile "); !ok || m != Mobile {
		t.Errorf("ParseMode(Mobile) = %s, %v", m, ok)
	}
	if _, ok := ParseMode(""); ok {
		t.Error("Expected empty string not to parse")
	}
}
