package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlexibleTimeFormats(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{`"2024-05-01T10:00:00Z"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01T10:00:00.5"`, time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{`"2024-05-01 10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
	}

	for _, tt := range tests {
		var ft FlexibleTime
		if err := json.Unmarshal([]byte(tt.input), &ft); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.input, err)
			continue
		}
		if !ft.Time.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, ft.Time, tt.want)
		}
	}
}

func TestPlaylistPersistence(t *testing.T) {
	no := false
	if !(Playlist{ID: "pl_1"}).IsPersistent() {
		t.Error("Expected unset flag to mean persistent")
	}
	if (Playlist{ID: "pl_1", Persistent: &no}).IsPersistent() {
		t.Error("Expected explicit false to be non-persistent")
	}
	if !(Playlist{ID: DownloadedPlaylistID}).IsReserved() {
		t.Error("Expected downloaded id to be reserved")
	}
}

func TestPlaylistClone(t *testing.T) {
	p := Playlist{ID: "pl_1", Songs: []Song{{ID: "a"}}}
	c := p.Clone()
	c.Songs[0].ID = "b"

	if p.Songs[0].ID != "a" {
		t.Error("Expected clone not to share songs")
	}
}
