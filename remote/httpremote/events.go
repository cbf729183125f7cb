package httpremote

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/driftsync/driftsync/api"
	"github.com/driftsync/driftsync/internal/utils"
	"github.com/driftsync/driftsync/internal/version"
)

const (
	eventsBufferSize        = 16
	eventsReconnectDelay    = 1 * time.Second
	eventsMaxReconnectDelay = 8 * time.Second
	eventsReconnectTimeout  = 10 * time.Second
	eventsMaxMessageSize    = 64 * 1024
)

// Notifications listens on the server's events endpoint and surfaces
// change notifications so hosts can trigger a pass instead of polling.
// The connection reconnects with exponential backoff until Close; events
// arriving while the buffer is full are dropped, which is fine for a
// wake-up signal.
type Notifications struct {
	base             string
	header           http.Header
	events           chan api.Event
	ctx              context.Context
	cancel           context.CancelFunc
	mu               sync.RWMutex
	conn             *websocket.Conn
	connected        bool
	reconnectAttempt int
}

// NewNotifications prepares a listener for the events endpoint of the
// server at baseURL. Connect starts it.
func NewNotifications(baseURL string, opts ...Option) *Notifications {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	header := http.Header{}
	header.Set(api.HeaderUserAgent, userAgent)
	header.Set(api.HeaderClientVersion, version.Version)
	header.Set(api.HeaderDeviceId, utils.HWID)
	if cfg.token != "" {
		header.Set("Authorization", "Bearer "+cfg.token)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Notifications{
		base:   baseURL,
		header: header,
		events: make(chan api.Event, eventsBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect dials the events endpoint and starts the receive loop.
func (n *Notifications) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.connected && n.conn != nil {
		return nil
	}

	conn, err := n.connectLocked(ctx)
	if err != nil {
		return fmt.Errorf("remote: events: connect failed: %w", err)
	}

	go n.manageConnection(conn)
	return nil
}

// IsConnected returns the current connection status
func (n *Notifications) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.connected
}

// Events returns the channel change notifications arrive on.
func (n *Notifications) Events() <-chan api.Event {
	return n.events
}

// Close terminates the connection and stops reconnecting.
func (n *Notifications) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cancel()

	if n.conn != nil {
		n.conn.Close(websocket.StatusNormalClosure, "client closing")
		n.conn = nil
	}

	n.connected = false
	slog.Debug("events listener closed")
}

// connectLocked dials a fresh connection (must be called with lock held).
func (n *Notifications) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	// Clean up any existing connection
	if n.conn != nil {
		n.conn.Close(websocket.StatusNormalClosure, "reconnecting")
		n.conn = nil
		n.connected = false
	}

	wsURL, err := n.fullURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: n.header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(eventsMaxMessageSize)

	n.conn = conn
	n.connected = true

	slog.Info("events listener connected")
	return conn, nil
}

// manageConnection owns one connection from dial to drop and schedules
// the reconnect.
func (n *Notifications) manageConnection(conn *websocket.Conn) {
	n.readLoop(conn)

	n.mu.Lock()
	if n.conn == conn {
		n.conn = nil
		n.connected = false
		n.reconnectAttempt = 0
	}
	n.mu.Unlock()

	select {
	case <-n.ctx.Done():
		return
	default:
		slog.Info("events listener disconnected, will reconnect")
		n.reconnectWithBackoff()
	}
}

// readLoop decodes incoming frames until the connection drops. Pings keep
// the socket warm and are not surfaced.
func (n *Notifications) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(n.ctx)
		if err != nil {
			return
		}

		var ev api.Event
		if err := jsonUnmarshal(data, &ev); err != nil {
			slog.Warn("events rx bad frame", "error", err)
			continue
		}

		if ev.Type == api.EventPing {
			continue
		}

		select {
		case n.events <- ev:
			// Successfully delivered
		default:
			slog.Warn("events rx buffer full. dropped", "type", ev.Type, "entityType", ev.EntityType)
		}
	}
}

// reconnectWithBackoff attempts to reconnect with exponential backoff
func (n *Notifications) reconnectWithBackoff() {
	delay := eventsReconnectDelay

	for {
		n.reconnectAttempt++

		// Check if we've been cancelled
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(delay):
			// Continue with reconnect
		}

		slog.Info("events listener reconnecting", "attempt", n.reconnectAttempt, "delay", delay)

		ctx, cancel := context.WithTimeout(n.ctx, eventsReconnectTimeout)

		n.mu.Lock()
		conn, err := n.connectLocked(ctx)
		n.mu.Unlock()

		cancel()

		if err == nil {
			go n.manageConnection(conn)
			return
		}

		// Add some jitter to the delay
		delay = min(delay*2, eventsMaxReconnectDelay)
		jitterFactor := 0.75 + (rand.Float64() * 0.5)
		delay = time.Duration(float64(delay) * jitterFactor)
	}
}

// fullURL joins the events path onto the base URL in websocket scheme.
func (n *Notifications) fullURL() (string, error) {
	joined, err := url.JoinPath(n.base, api.PathEvents)
	if err != nil {
		return "", fmt.Errorf("failed to join path: %w", err)
	}
	return toWebsocketURL(joined), nil
}

// toWebsocketURL converts an HTTP URL to a WebSocket URL
func toWebsocketURL(u string) string {
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[8:]
	} else if strings.HasPrefix(u, "http://") {
		return "ws://" + u[7:]
	}
	return u
}
