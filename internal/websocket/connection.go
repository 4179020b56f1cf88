package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

var _ interfaces.Connection = (*Connection)(nil)

// ConnectionOptions tunes the outbound queue.
type ConnectionOptions struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// DefaultConnectionOptions matches the defaults in config.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{BufferSize: 100, WriteTimeout: 5 * time.Second}
}

// Connection wraps a gorilla connection. All data frames go through writeCh
// and a single writer goroutine; identity and guest ID are write-once.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	remoteAddr   string

	mu          sync.RWMutex
	identity    *types.Identity
	guestID     string
	currentChat string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection starts the writer goroutine for conn.
func NewConnection(conn *websocket.Conn, opts ConnectionOptions) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if conn != nil {
		c.remoteAddr = conn.RemoteAddr().String()
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine writing data frames. A nil entry is the
// flush-then-close marker queued by CloseAfterFlush.
func (c *Connection) writeLoop() {
	defer func() { _ = c.Close() }()

	for {
		select {
		case data := <-c.writeCh:
			if data == nil {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
					time.Now().Add(c.writeTimeout))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteJSON queues v for delivery.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.enqueue(data)
}

// CloseAfterFlush closes the connection once every frame queued before the
// call has been written.
func (c *Connection) CloseAfterFlush() {
	if err := c.enqueue(nil); err != nil {
		_ = c.Close()
	}
}

// Close is idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Authenticate attaches the resolved identity. It succeeds once; repeating it
// with the same user is a no-op and any other identity is rejected.
func (c *Connection) Authenticate(identity types.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.guestID != "" {
		return ErrGuestConnection
	}
	if c.identity != nil {
		if c.identity.UserID == identity.UserID {
			return nil
		}
		return ErrAlreadyAuthenticated
	}
	c.identity = &identity
	return nil
}

// Identity returns a copy of the resolved identity, or nil before auth.
func (c *Connection) Identity() *types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.identity == nil {
		return nil
	}
	identity := *c.identity
	return &identity
}

// BindGuest marks the connection as an anonymous support guest.
func (c *Connection) BindGuest(guestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != nil {
		return ErrUserConnection
	}
	if c.guestID != "" && c.guestID != guestID {
		return ErrGuestAlreadyBound
	}
	c.guestID = guestID
	return nil
}

func (c *Connection) GuestID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guestID
}

func (c *Connection) SetCurrentChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentChat = chatID
}

func (c *Connection) CurrentChat() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentChat
}
