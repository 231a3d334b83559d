package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DownloadedPlaylistID is the reserved id of the synthesised Downloaded playlist
const DownloadedPlaylistID = "downloaded"

// Song represents a catalog track
type Song struct {
	ID        string `json:"ytid"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  *int   `json:"duration,omitempty"` // seconds
	URL       string `json:"url,omitempty"`      // resolved playback URL, if known
}

// DurationSeconds returns the declared duration or 0
func (s Song) DurationSeconds() int {
	if s.Duration == nil {
		return 0
	}
	return *s.Duration
}

// Playlist represents a user playlist or the synthesised Downloaded view
type Playlist struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Songs          []Song       `json:"songs"`
	CoverThumbnail string       `json:"coverThumbnail,omitempty"`
	CreatedAt      FlexibleTime `json:"createdAt"`
	Persistent     *bool        `json:"persistent,omitempty"`
}

// IsPersistent reports whether the playlist belongs in durable storage.
// An unset flag means persistent.
func (p Playlist) IsPersistent() bool {
	return p.Persistent == nil || *p.Persistent
}

// IsReserved reports whether p is the synthesised Downloaded playlist
func (p Playlist) IsReserved() bool {
	return p.ID == DownloadedPlaylistID
}

// HasSong reports whether a song with id is already in the playlist
func (p Playlist) HasSong(id string) bool {
	for _, s := range p.Songs {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with p
func (p Playlist) Clone() Playlist {
	out := p
	out.Songs = make([]Song, len(p.Songs))
	copy(out.Songs, p.Songs)
	if p.Persistent != nil {
		v := *p.Persistent
		out.Persistent = &v
	}
	return out
}

// SearchResult is a catalog search hit
type SearchResult struct {
	ID        string `json:"ytid"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Thumbnail string `json:"thumbnail"`
	Duration  int    `json:"duration"`
}

// ToSong converts a search hit into a Song without a resolved URL
func (r SearchResult) ToSong() Song {
	d := r.Duration
	return Song{ID: r.ID, Title: r.Title, Artist: r.Artist, Thumbnail: r.Thumbnail, Duration: &d}
}

// StreamInfo is the catalog's answer to a stream URL request
type StreamInfo struct {
	ID     string `json:"ytid"`
	URL    string `json:"url"`
	Cached bool   `json:"cached"`
}

// OfflineSong is an entry of the host's offline store
type OfflineSong struct {
	ID           string       `json:"ytid"`
	Title        string       `json:"title"`
	Artist       string       `json:"artist"`
	Thumbnail    string       `json:"thumbnail"`
	DownloadedAt FlexibleTime `json:"downloaded_at"`
	AudioPath    string       `json:"audioPath,omitempty"`
	ArtworkPath  string       `json:"artworkPath,omitempty"`
}

// ToSong converts a host entry into a Song playable from audioURL
func (o OfflineSong) ToSong(audioURL string) Song {
	return Song{ID: o.ID, Title: o.Title, Artist: o.Artist, Thumbnail: o.Thumbnail, URL: audioURL}
}

// ImportedPlaylist is the result of importing an external playlist
type ImportedPlaylist struct {
	Title string `json:"title"`
	Songs []Song `json:"songs"`
}

// FlexibleTime accepts RFC 3339 as well as the zone-less ISO timestamps the
// host writes. It always marshals as RFC 3339.
type FlexibleTime struct {
	time.Time
}

// NewFlexibleTime wraps t
func NewFlexibleTime(t time.Time) FlexibleTime {
	return FlexibleTime{Time: t}
}

var flexibleTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements custom unmarshaling for FlexibleTime
func (ft *FlexibleTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		ft.Time = time.Time{}
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		ft.Time = time.Time{}
		return nil
	}

	for _, format := range flexibleTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			ft.Time = t.UTC()
			return nil
		}
	}

	return fmt.Errorf("unable to parse time: %s", s)
}

// MarshalJSON implements json.Marshaler
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time.UTC().Format(time.RFC3339Nano))
}
