package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"memoboard/api/internal/canvas"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// wsClient is the hub's handle on one websocket connection. Frames are
// queued on send and written by writePump; the hub never touches the conn.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan canvas.Frame
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	id := uuid.NewString()
	return &wsClient{
		id:     id,
		conn:   conn,
		send:   make(chan canvas.Frame, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("session", id)),
	}
}

func (c *wsClient) ID() string {
	return c.id
}

func (c *wsClient) Deliver(frame canvas.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() { close(c.done) })
}

func (s *HTTPServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(conn, s.logger)
	if err := s.service.hub.Join(client, r.URL.Query().Get("adminToken")); err != nil {
		client.logger.Warn("join rejected", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	client.logger.Debug("session connected")

	go client.writePump()
	client.readPump(s.service.hub)
}

// readPump forwards inbound frames to the hub until the connection fails,
// then leaves the hub and stops the writer.
func (c *wsClient) readPump(hub *canvas.Hub) {
	defer func() {
		if err := hub.Leave(c.id); err != nil {
			c.logger.Debug("leave after hub shutdown", zap.Error(err))
		}
		c.Close()
		c.logger.Debug("session disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var in canvas.Inbound
		if err := json.Unmarshal(msg, &in); err != nil || in.Event == "" {
			c.logger.Debug("ignoring malformed frame", zap.Int("bytes", len(msg)))
			continue
		}
		if err := hub.Submit(c.id, in); err != nil {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
// It owns every write on the conn and closes it on exit.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
