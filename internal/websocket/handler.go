package websocket

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"eduhub/internal/logger"
	"eduhub/pkg/interfaces"
)

// Dispatcher receives every inbound frame of a connection, in arrival order.
type Dispatcher interface {
	HandleFrame(ctx context.Context, conn interfaces.Connection, data []byte)
	Disconnect(conn interfaces.Connection)
}

// HandlerConfig carries transport settings.
type HandlerConfig struct {
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	BufferSize        int
	MaxMessageSize    int64
	AllowedOrigins    []string
	UpgradesPerSecond float64
	UpgradeBurst      int
}

// DefaultHandlerConfig returns the transport defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        100,
		MaxMessageSize:    64 * 1024,
		UpgradesPerSecond: 5,
		UpgradeBurst:      10,
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Handler upgrades HTTP requests and runs one read loop per connection.
// Authentication happens in-band through the Dispatcher.
type Handler struct {
	dispatcher Dispatcher
	config     HandlerConfig
	upgrader   websocket.Upgrader
	log        *slog.Logger

	limMu    sync.Mutex
	limiters map[string]*ipLimiter

	connMu sync.Mutex
	conns  map[*Connection]struct{}
	wg     sync.WaitGroup
}

// NewHandler creates a handler dispatching into d.
func NewHandler(d Dispatcher, config HandlerConfig) *Handler {
	log := logger.Component("websocket")

	policy, invalid := NewOriginPolicy(config.AllowedOrigins)
	for _, origin := range invalid {
		log.Warn("ignoring invalid origin in configuration", slog.String("origin", origin))
	}

	h := &Handler{
		dispatcher: d,
		config:     config,
		log:        log,
		limiters:   make(map[string]*ipLimiter),
		conns:      make(map[*Connection]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			if policy.Allowed(r) {
				return true
			}
			log.Warn("blocked connection from disallowed origin", slog.String("origin", r.Header.Get("Origin")))
			return false
		},
	}
	return h
}

// ServeHTTP upgrades the request and starts the connection's read loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.allowUpgrade(clientIP(r)) {
		http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", slog.Any("error", err))
		return
	}

	conn := NewConnection(ws, ConnectionOptions{
		BufferSize:   h.config.BufferSize,
		WriteTimeout: h.config.WriteTimeout,
	})

	h.connMu.Lock()
	h.conns[conn] = struct{}{}
	h.connMu.Unlock()

	h.wg.Add(1)
	go h.handleConnection(conn)
}

// handleConnection reads frames until the transport fails, then tells the
// dispatcher and releases the connection.
func (h *Handler) handleConnection(conn *Connection) {
	log := h.log.With(slog.String("conn_id", conn.ID()), slog.String("remote_addr", conn.RemoteAddr()))
	ctx := logger.WithContext(conn.ctx, log)

	defer func() {
		h.dispatcher.Disconnect(conn)
		_ = conn.Close()

		h.connMu.Lock()
		delete(h.conns, conn)
		h.connMu.Unlock()
		h.wg.Done()
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Info("connection closed unexpectedly", slog.Any("error", err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatcher.HandleFrame(ctx, conn, data)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) allowUpgrade(ip string) bool {
	h.limMu.Lock()
	defer h.limMu.Unlock()

	entry, ok := h.limiters[ip]
	if !ok {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(rate.Limit(h.config.UpgradesPerSecond), h.config.UpgradeBurst),
		}
		h.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// SweepLimiters forgets upgrade limiters idle for longer than idle.
func (h *Handler) SweepLimiters(idle time.Duration) int {
	h.limMu.Lock()
	defer h.limMu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for ip, entry := range h.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(h.limiters, ip)
			removed++
		}
	}
	return removed
}

// ActiveConnections counts open transports, authenticated or not.
func (h *Handler) ActiveConnections() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return len(h.conns)
}

// Shutdown closes every open connection and waits for the read loops to
// finish or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.connMu.Lock()
	for conn := range h.conns {
		_ = conn.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	h.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
