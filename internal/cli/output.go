package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kordia/kordia-go/internal/api"
)

// Table provides a simple table formatter
type Table struct {
	w *tabwriter.Writer
}

// NewTable creates a table writing to out
func NewTable(out io.Writer, headers ...string) *Table {
	t := &Table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	if len(headers) > 0 {
		t.Row(headers...)
	}
	return t
}

// Row adds a row to the table
func (t *Table) Row(values ...string) {
	_, _ = t.w.Write([]byte(strings.Join(values, "\t") + "\n"))
}

// Flush writes the table output
func (t *Table) Flush() {
	_ = t.w.Flush()
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateString truncates s to maxLen runes, adding "..." if truncated
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatDuration formats seconds as m:ss or h:mm:ss
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func printSongs(out io.Writer, songs []api.Song) {
	t := NewTable(out, "ID", "TITLE", "ARTIST", "LENGTH")
	for _, s := range songs {
		length := "-"
		if s.Duration != nil {
			length = FormatDuration(*s.Duration)
		}
		t.Row(s.ID, TruncateString(s.Title, 40), TruncateString(s.Artist, 30), length)
	}
	t.Flush()
}
