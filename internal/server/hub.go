package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/utils"
)

const (
	hubSendBuffer  = 64
	hubWriteWait   = 10 * time.Second
	hubMaxMessage  = 64 * 1024
	hubPingPeriod  = 30 * time.Second
	shutdownReason = "server shutting down"
)

// Hub fans change events out to connected hosts. Connections are
// write-only from the server's side; a slow consumer drops events rather
// than stalling the broadcast.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*hubConn
	closed bool
}

type hubConn struct {
	id     string
	conn   *websocket.Conn
	sendCh chan api.Event
	done   chan struct{}
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*hubConn),
	}
}

// Handler upgrades the request to a websocket and registers the
// connection with the hub.
func (h *Hub) Handler(ctx *gin.Context) {
	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("websocket accept failed: %w", err))
		return
	}
	conn.SetReadLimit(hubMaxMessage)

	c := &hubConn{
		id:     utils.TokenHex(4),
		conn:   conn,
		sendCh: make(chan api.Event, hubSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, shutdownReason)
		return
	}
	h.conns[c.id] = c
	active := len(h.conns)
	h.mu.Unlock()

	slog.Debug("hub registered", "connId", c.id, "remote", ctx.ClientIP(), "active", active)

	go c.writeLoop()
	go c.readLoop()
	go func() {
		// if the connection drops, remove it from the hub
		<-c.done

		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.conns, c.id)
		slog.Debug("hub removed", "connId", c.id, "active", len(h.conns))
	}()
}

// Broadcast queues an event to every connected host.
func (h *Hub) Broadcast(ev api.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		select {
		case c.sendCh <- ev:
		default:
			slog.Warn("hub send buffer full", "connId", c.id, "type", ev.Type)
		}
	}
}

// Active returns the number of connected hosts.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns)
}

// Shutdown drops every connection and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*hubConn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.StatusGoingAway, shutdownReason)
	}
	slog.Info("hub shutdown", "dropped", len(conns))
}

func (c *hubConn) writeLoop() {
	ping := time.NewTicker(hubPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev := <-c.sendCh:
			if !c.write(ev) {
				return
			}
		case <-ping.C:
			if !c.write(api.Event{Type: api.EventPing, Time: time.Now().UTC()}) {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *hubConn) write(ev api.Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), hubWriteWait)
	err := wsjson.Write(ctx, c.conn, ev)
	cancel()

	if err != nil {
		c.close(websocket.StatusNormalClosure, "write failed")
		return false
	}
	return true
}

// readLoop drains inbound frames; hosts never send, so its only job is
// noticing the close.
func (c *hubConn) readLoop() {
	defer c.close(websocket.StatusNormalClosure, "")

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func (c *hubConn) close(status websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(status, reason)
	})
}
