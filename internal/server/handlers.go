package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kordia/kordia-go/internal/api"
	"github.com/kordia/kordia-go/internal/security"
)

const defaultSearchResults = 20

func (s *Server) requireEngine(c *gin.Context) {
	if s.session.Engine == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "playback is not enabled"})
		return
	}
	c.Next()
}

func (s *Server) search(c *gin.Context) {
	query := security.SanitizeInput(c.Query("q"))
	if query == "" {
		badRequest(c, "query parameter 'q' is required")
		return
	}
	limit := defaultSearchResults
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := s.session.Catalog.Search(c.Request.Context(), query, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": s.session.Notifier.Recent()})
}

// Player

func (s *Server) playerState(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

func (s *Server) toggle(c *gin.Context) {
	s.session.Engine.TogglePlay()
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

func (s *Server) next(c *gin.Context) {
	moved := s.session.Engine.PlayNext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"moved": moved, "state": s.session.Engine.Snapshot()})
}

func (s *Server) previous(c *gin.Context) {
	moved := s.session.Engine.PlayPrevious(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"moved": moved, "state": s.session.Engine.Snapshot()})
}

type playRequest struct {
	Song  api.Song   `json:"song"`
	Queue []api.Song `json:"queue"`
}

func (s *Server) play(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := security.ValidateID(req.Song.ID); err != nil {
		respondError(c, err)
		return
	}
	s.session.Engine.PlaySong(c.Request.Context(), req.Song, req.Queue)
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

func (s *Server) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Position == nil {
		badRequest(c, "position is required")
		return
	}
	s.session.Engine.Seek(*req.Position)
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (s *Server) volume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Volume == nil {
		badRequest(c, "volume is required")
		return
	}
	s.session.Engine.SetVolume(*req.Volume)
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

// Queue

func (s *Server) enqueue(c *gin.Context) {
	var song api.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := security.ValidateID(song.ID); err != nil {
		respondError(c, err)
		return
	}
	added := s.session.Engine.AddToQueue(song)
	c.JSON(http.StatusOK, gin.H{"added": added, "state": s.session.Engine.Snapshot()})
}

func (s *Server) dequeue(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be an integer")
		return
	}
	if !s.session.Engine.RemoveFromQueue(index) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no queue entry at index " + c.Param("index")})
		return
	}
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

func (s *Server) clearQueue(c *gin.Context) {
	s.session.Engine.ClearQueue()
	c.JSON(http.StatusOK, s.session.Engine.Snapshot())
}

// Offline

func (s *Server) offlineSongs(c *gin.Context) {
	songs, err := s.session.Songs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if songs == nil {
		songs = []api.Song{}
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":       s.session.Mode,
		"songs":      songs,
		"provenance": s.session.Reconciler.Board().Snapshot(),
	})
}

func (s *Server) downloadSong(c *gin.Context) {
	id := c.Param("id")
	if err := security.ValidateID(id); err != nil {
		respondError(c, err)
		return
	}

	// Metadata is optional; the host only needs the id.
	var song api.Song
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&song); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	song.ID = id

	if err := s.session.Batch.Download(c.Request.Context(), song); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ytid": id})
}

func (s *Server) deleteOffline(c *gin.Context) {
	id := c.Param("id")
	if err := security.ValidateID(id); err != nil {
		respondError(c, err)
		return
	}
	if err := s.session.Offline.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type batchRequest struct {
	Songs []api.Song `json:"songs"`
}

func (s *Server) downloadBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	for _, song := range req.Songs {
		if err := security.ValidateID(song.ID); err != nil {
			respondError(c, err)
			return
		}
	}

	result := s.session.Batch.DownloadAll(c.Request.Context(), req.Songs)
	failed := make(map[string]string, len(result.Failed))
	for id, err := range result.Failed {
		failed[id] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        result.ID,
		"requested": result.Requested,
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    failed,
	})
}

// Playlists

func (s *Server) listPlaylists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"playlists": s.session.Playlists.List()})
}

func (s *Server) getPlaylist(c *gin.Context) {
	p, err := s.session.Playlists.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type createPlaylistRequest struct {
	Name       string `json:"name"`
	Persistent *bool  `json:"persistent"`
}

func (s *Server) createPlaylist(c *gin.Context) {
	var req createPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	persistent := req.Persistent == nil || *req.Persistent

	p, err := s.session.Playlists.Create(c.Request.Context(), req.Name, persistent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type renamePlaylistRequest struct {
	Name string `json:"name"`
}

func (s *Server) renamePlaylist(c *gin.Context) {
	var req renamePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id := c.Param("id")
	if err := s.session.Playlists.Rename(c.Request.Context(), id, req.Name); err != nil {
		respondError(c, err)
		return
	}
	s.respondPlaylist(c, id)
}

func (s *Server) deletePlaylist(c *gin.Context) {
	if err := s.session.Playlists.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addPlaylistSong(c *gin.Context) {
	var song api.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id := c.Param("id")
	if err := s.session.Playlists.AddSong(c.Request.Context(), id, song); err != nil {
		respondError(c, err)
		return
	}
	s.respondPlaylist(c, id)
}

func (s *Server) removePlaylistSong(c *gin.Context) {
	id := c.Param("id")
	if err := s.session.Playlists.RemoveSong(c.Request.Context(), id, c.Param("ytid")); err != nil {
		respondError(c, err)
		return
	}
	s.respondPlaylist(c, id)
}

type importRequest struct {
	URL string `json:"url"`
}

func (s *Server) importPlaylist(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := s.session.Playlists.ImportPlaylist(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) respondPlaylist(c *gin.Context, id string) {
	p, err := s.session.Playlists.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
