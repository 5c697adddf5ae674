package fanout

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/platform/internal/platform/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server mounts the dashboard websocket endpoint.
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer builds a Server.
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{hub: hub, log: log}
}

// Register mounts GET /ws?executionId=... on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	executionID := c.QueryParam("executionId")
	if executionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "executionId query parameter required"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	client := NewClient(s.hub, conn, executionID, s.log)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
	return nil
}
