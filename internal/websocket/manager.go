// Package websocket implements the live-reload channel: a hub that accepts
// browser connections, validates their origin and fans reload messages out
// to every connected client.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/devsite/internal/logging"
	"github.com/conneroisu/devsite/internal/validation"
)

// Message types understood by the reload client.
const (
	MessageReload = "reload"
	MessageCSS    = "css"
)

const (
	sendBuffer   = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// UpdateMessage is sent to every browser when the output tree changes.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator decides whether a browser origin may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// AllowedOrigins validates origins against a fixed list of origins or hosts.
type AllowedOrigins []string

// IsAllowedOrigin implements OriginValidator.
func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	return validation.ValidateOrigin(origin, a) == nil
}

// client is one connected browser.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	remote string
}

// Manager owns the set of connected clients. Registration, removal and
// broadcast all go through a single hub goroutine.
type Manager struct {
	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdown     atomic.Bool
	hubDone      chan struct{}
}

// NewManager creates a manager and starts its hub. A nil validator only
// admits requests without an Origin header.
func NewManager(originValidator OriginValidator, logger logging.Logger) *Manager {
	if originValidator == nil {
		originValidator = AllowedOrigins(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients:         make(map[*client]struct{}),
		register:        make(chan *client, 32),
		unregister:      make(chan *client, 32),
		broadcast:       make(chan []byte, 64),
		originValidator: originValidator,
		logger:          logger.WithComponent("livereload"),
		ctx:             ctx,
		cancel:          cancel,
		hubDone:         make(chan struct{}),
	}

	go m.runHub()
	return m
}

// HandleWebSocket upgrades a request to a live-reload connection.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.shutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !m.originValidator.IsAllowedOrigin(origin) {
		m.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Origin was checked above.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		remote: r.RemoteAddr,
	}

	select {
	case m.register <- c:
	case <-m.ctx.Done():
		cancel()
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go m.writePump(c)
	m.readPump(c)
}

func (m *Manager) runHub() {
	defer close(m.hubDone)
	for {
		select {
		case c := <-m.register:
			if c.ctx.Err() != nil {
				// Disconnected before the hub saw it.
				continue
			}
			m.clientsMu.Lock()
			m.clients[c] = struct{}{}
			n := len(m.clients)
			m.clientsMu.Unlock()
			m.logger.Debug(m.ctx, "Client connected", "remote", c.remote, "clients", n)

		case c := <-m.unregister:
			m.remove(c, websocket.StatusNormalClosure, "")

		case message := <-m.broadcast:
			m.fanOut(message)

		case <-m.ctx.Done():
			m.clientsMu.Lock()
			clients := m.clients
			m.clients = make(map[*client]struct{})
			m.clientsMu.Unlock()
			for c := range clients {
				c.cancel()
				_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			}
			return
		}
	}
}

func (m *Manager) remove(c *client, code websocket.StatusCode, reason string) {
	m.clientsMu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	n := len(m.clients)
	m.clientsMu.Unlock()

	if !ok {
		return
	}
	c.cancel()
	_ = c.conn.Close(code, reason)
	m.logger.Debug(m.ctx, "Client disconnected", "remote", c.remote, "clients", n)
}

// fanOut queues message for every client. A client whose buffer is full
// is dropped.
func (m *Manager) fanOut(message []byte) {
	m.clientsMu.RLock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- message:
		default:
			m.remove(c, websocket.StatusPolicyViolation, "client too slow")
		}
	}
}

// readPump discards client messages and detects disconnects.
func (m *Manager) readPump(c *client) {
	defer func() {
		c.cancel()
		select {
		case m.unregister <- c:
		case <-m.ctx.Done():
		}
	}()

	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			return
		}
	}
}

func (m *Manager) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// BroadcastMessage sends message to every connected client. It never
// blocks; when the hub is saturated the message is dropped.
func (m *Manager) BroadcastMessage(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to marshal broadcast message")
		return
	}

	if m.shutdown.Load() {
		return
	}
	select {
	case m.broadcast <- data:
	default:
		m.logger.Warn(m.ctx, nil, "Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ConnectedClients returns the number of connected clients.
func (m *Manager) ConnectedClients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Shutdown closes every connection and stops the hub.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdown.Store(true)
		m.cancel()
	})

	select {
	case <-m.hubDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	return m.shutdown.Load()
}
