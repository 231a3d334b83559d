package security

import (
	"strings"
	"testing"

	"github.com/kordia/kordia-go/internal/errors"
)

func TestInputSanitization(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Remove null bytes",
			input:    "test\x00data",
			expected: "testdata",
		},
		{
			name:     "Remove control characters",
			input:    "test\x01\x02data",
			expected: "testdata",
		},
		{
			name:     "Keep newlines and tabs",
			input:    "test\n\tdata",
			expected: "test\n\tdata",
		},
		{
			name:     "Normal string unchanged",
			input:    "normal string",
			expected: "normal string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeInput(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"Plain", "Road trip", "Road trip", false},
		{"Collapses whitespace", "  Road \n\t trip  ", "Road trip", false},
		{"Unicode", "Canciones de verano ☀", "Canciones de verano ☀", false},
		{"Empty", "   ", "", true},
		{"Only control characters", "\x00\x01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if tt.wantErr {
				if errors.GetErrorType(err) != errors.ErrTypeValidation {
					t.Errorf("Expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	got, err := SanitizeName(strings.Repeat("é", MaxNameLength+50))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n := len([]rune(got)); n != MaxNameLength {
		t.Errorf("Expected %d runes, got %d", MaxNameLength, n)
	}
}

func TestValidateID(t *testing.T) {
	valid := []string{"dQw4w9WgXcQ", "pl_1700000000000", "a-b_c"}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) = %v", id, err)
		}
	}

	invalid := []string{"", "../etc", "a/b", "with space", strings.Repeat("x", 65)}
	for _, id := range invalid {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) accepted", id)
		}
	}
}

func TestValidateImportURL(t *testing.T) {
	got, err := ValidateImportURL("  https://www.youtube.com/playlist?list=PL123  ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "https://www.youtube.com/playlist?list=PL123" {
		t.Errorf("Unexpected URL %s", got)
	}

	for _, raw := range []string{"", "ftp://host/x", "javascript:alert(1)", "/relative/path", "https://"} {
		if _, err := ValidateImportURL(raw); err == nil {
			t.Errorf("ValidateImportURL(%q) accepted", raw)
		}
	}
}
