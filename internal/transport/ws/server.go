// Package ws serves the websocket progress stream.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/progress"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      config.WSConfig
	hub      *progress.Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg config.WSConfig, h *progress.Hub) *Server {
	return &Server{
		cfg: cfg,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and subscribes it to ?client_id=.
// Without a client id a fresh one is assigned and returned in hello_ack.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	clientID := c.QueryParam("client_id")
	if clientID == "" {
		clientID = "cli_" + uuid.New().String()[:8]
	}

	conn := s.hub.NewConnection(ws, clientID)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	_ = s.hub.SendJSON(conn, &progress.Message{
		Type:     progress.TypeHelloAck,
		Ts:       time.Now().UnixMilli(),
		ClientID: clientID,
	})
	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *progress.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *progress.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-conn.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles hello messages, which rebind the connection.
func (s *Server) handleMessage(conn *progress.Connection, data []byte) {
	var msg progress.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "invalid JSON message")
		return
	}

	switch msg.Type {
	case progress.TypeHello:
		if msg.ClientID == "" {
			s.sendError(conn, "client_id is required")
			return
		}
		s.hub.BindClient(conn, msg.ClientID)
		_ = s.hub.SendJSON(conn, &progress.Message{
			Type:     progress.TypeHelloAck,
			Ts:       time.Now().UnixMilli(),
			ClientID: msg.ClientID,
		})
	default:
		s.sendError(conn, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendError(conn *progress.Connection, message string) {
	_ = s.hub.SendJSON(conn, &progress.Message{
		Type:     progress.TypeError,
		Ts:       time.Now().UnixMilli(),
		ClientID: s.hub.ClientID(conn),
		Message:  message,
	})
}
