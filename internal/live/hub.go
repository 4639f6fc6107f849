// Package live pushes reading updates to connected WebSocket viewers.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventNewData is sent to every viewer for every reading.
const EventNewData = "newData"

// DeviceEvent returns the event name sent to viewers following deviceID.
func DeviceEvent(deviceID string) string {
	return "device:" + deviceID
}

// Envelope is the frame written to viewers.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Config holds hub settings.
type Config struct {
	// SendBuffer is the per-viewer queue length. A viewer whose queue is full
	// is disconnected.
	// Default: 32
	SendBuffer int

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// PingInterval is how often viewers are pinged. PongWait must exceed it.
	PingInterval time.Duration
	PongWait     time.Duration

	// AllowedOrigins restricts browser origins. Empty allows any.
	AllowedOrigins []string

	Logger zerolog.Logger
}

// DefaultConfig returns the default hub settings.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   32,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

type client struct {
	conn      *websocket.Conn
	deviceID  string
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// Hub tracks viewers and fans updates out to them. Delivery is best effort:
// no acknowledgement, no replay.
type Hub struct {
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	defaults := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}

	h := &Hub{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "live").Logger(),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and registers the viewer. The optional
// device_id query parameter subscribes the viewer to that device's event.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn:     conn,
		deviceID: r.URL.Query().Get("device_id"),
		send:     make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("device_id", c.deviceID).
		Int("viewers", count).
		Msg("viewer connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast sends data as a newData event to every viewer, and as a device
// event to viewers following deviceID. It never blocks on a viewer.
func (h *Hub) Broadcast(_ context.Context, deviceID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}

	all, err := json.Marshal(Envelope{Event: EventNewData, Data: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	device, err := json.Marshal(Envelope{Event: DeviceEvent(deviceID), Data: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, all)
		if c.deviceID != "" && c.deviceID == deviceID {
			h.enqueue(c, device)
		}
	}
	return nil
}

func (h *Hub) enqueue(c *client, frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		h.logger.Warn().Str("device_id", c.deviceID).Msg("viewer too slow, disconnecting")
		h.remove(c)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.remove(c)
	}
	h.wg.Wait()
}

func (h *Hub) remove(c *client) {
	c.closeOnce.Do(func() {
		close(c.done)

		h.mu.Lock()
		delete(h.clients, c)
		count := len(h.clients)
		h.mu.Unlock()

		_ = c.conn.Close()
		h.logger.Debug().Int("viewers", count).Msg("viewer disconnected")
	})
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
