package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/app"
	"github.com/kordia/kordia-go/internal/monitoring"
)

// Server is the local control API of the player daemon
type Server struct {
	session *app.Session
	logger  *zap.Logger
	router  *gin.Engine
}

// New builds the router for session. Playback routes answer 503 when the
// session was built without an engine.
func New(session *app.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		session: session,
		logger:  logger,
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery(), Logging(logger), CORS(session.Config.Server.CORSOrigins))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/search", s.search)
		api.GET("/notifications", s.notifications)
		api.GET("/ws", s.stream)

		player := api.Group("/player", s.requireEngine)
		player.GET("", s.playerState)
		player.POST("/toggle", s.toggle)
		player.POST("/next", s.next)
		player.POST("/previous", s.previous)
		player.POST("/play", s.play)
		player.POST("/seek", s.seek)
		player.POST("/volume", s.volume)

		queue := api.Group("/queue", s.requireEngine)
		queue.POST("", s.enqueue)
		queue.DELETE("/:index", s.dequeue)
		queue.DELETE("", s.clearQueue)

		off := api.Group("/offline")
		off.GET("", s.offlineSongs)
		off.POST("/batch", s.downloadBatch)
		off.POST("/:id", s.downloadSong)
		off.DELETE("/:id", s.deleteOffline)

		pl := api.Group("/playlists")
		pl.GET("", s.listPlaylists)
		pl.POST("", s.createPlaylist)
		pl.POST("/import", s.importPlaylist)
		pl.GET("/:id", s.getPlaylist)
		pl.PUT("/:id", s.renamePlaylist)
		pl.DELETE("/:id", s.deletePlaylist)
		pl.POST("/:id/songs", s.addPlaylistSong)
		pl.DELETE("/:id/songs/:ytid", s.removePlaylistSong)
	}
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Control API stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	report := s.session.Health.Check(s.session.Stats(c.Request.Context()))
	status := http.StatusOK
	if report.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
