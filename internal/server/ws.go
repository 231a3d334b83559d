package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kordia/kordia-go/internal/download"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// The daemon listens on loopback; browser origins are filtered by CORS on
// the REST routes only.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream sends notifier messages to one connection. The current
// playback snapshot, if any, is sent first.
func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := download.NewClient(uuid.NewString())
	logger := s.logger.With(zap.String("client", client.ID))

	if s.session.Engine != nil {
		data, err := json.Marshal(download.Message{Type: download.MessagePlayback, Payload: s.session.Engine.Snapshot()})
		if err == nil {
			client.Send(data)
		}
	}
	s.session.Notifier.Register(client)
	logger.Debug("WebSocket client connected", zap.Int("clients", s.session.Notifier.GetClientCount()))

	go s.writePump(conn, client, logger)
	s.readPump(conn, client, logger)
}

// readPump discards client input and unregisters once the peer goes away
func (s *Server) readPump(conn *websocket.Conn, client *download.Client, logger *zap.Logger) {
	defer func() {
		s.session.Notifier.Unregister(client)
		conn.Close()
		logger.Debug("WebSocket client disconnected")
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *download.Client, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.SendChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
