package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kordia/kordia-go/internal/errors"
)

// MaxNameLength bounds playlist names
const MaxNameLength = 200

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SanitizeInput strips null bytes and control characters, keeping newlines
// and tabs
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SanitizeName cleans a user supplied display name. Names are single line,
// trimmed and at most MaxNameLength runes.
func SanitizeName(name string) (string, error) {
	name = SanitizeInput(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", errors.NewValidationError("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return name, nil
}

// ValidateID checks a song or playlist id before it is placed in a URL path
// or used as a storage key
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.NewValidationError(fmt.Sprintf("invalid id %q", id))
	}
	return nil
}

// ValidateImportURL accepts absolute http(s) URLs only
func ValidateImportURL(raw string) (string, error) {
	raw = strings.TrimSpace(SanitizeInput(raw))
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("invalid import URL: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.NewValidationError("import URL must use http or https")
	}
	if u.Host == "" {
		return "", errors.NewValidationError("import URL has no host")
	}
	return u.String(), nil
}
