package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	applogger "Kavach/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var _ domrepo.DecisionSink = (*DecisionHub)(nil)

const (
	hubWriteWait  = 5 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = 50 * time.Second
	hubSendBuffer = 32
)

// DecisionHub streams decision events to websocket subscribers. A
// subscriber that cannot keep up is disconnected.
type DecisionHub struct {
	mu       sync.Mutex
	clients  map[*hubClient]struct{}
	upgrader websocket.Upgrader
	logger   *applogger.Logger
	closed   bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewDecisionHub(logger *applogger.Logger) *DecisionHub {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &DecisionHub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Clients returns the number of connected subscribers.
func (h *DecisionHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *DecisionHub) RecordAssessment(_ context.Context, a *models.RegimeAssessment) error {
	return h.broadcast(models.DecisionEvent{Type: models.EventAssessment, Timestamp: a.Timestamp, Assessment: a})
}

func (h *DecisionHub) RecordRebalance(_ context.Context, r *models.RebalanceRecord) error {
	return h.broadcast(models.DecisionEvent{Type: models.EventRebalance, Timestamp: r.Timestamp, Record: r})
}

func (h *DecisionHub) broadcast(ev models.DecisionEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("decision subscriber too slow, dropping")
			h.removeLocked(c)
		}
	}
	return nil
}

// Serve upgrades the request and streams events until the peer leaves.
func (h *DecisionHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	client := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("decision subscriber connected", applogger.String("remote", c.RealIP()))

	go h.writePump(client)
	h.readPump(client)
	return nil
}

// Close disconnects every subscriber.
func (h *DecisionHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *DecisionHub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *DecisionHub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump only services control frames; subscribers send nothing.
func (h *DecisionHub) readPump(c *hubClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *DecisionHub) writePump(c *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
