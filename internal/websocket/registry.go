package websocket

import (
	"log/slog"
	"sync"

	"eduhub/internal/logger"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// Registry maps identities to live connections. Every authenticated
// connection is in users; staff and teachers are additionally indexed by role.
// Guests live only in guests.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]interfaces.Connection // userID -> connection
	staff    map[string]interfaces.Connection // userID -> connection, admin and support
	teachers map[string]interfaces.Connection // userID -> connection
	guests   map[string]interfaces.Connection // guestID -> connection
	log      *slog.Logger
}

// Removal reports which indexes still pointed at the connection when it was
// unregistered. Both false means the connection was stale or never registered.
type Removal struct {
	UserID  string
	GuestID string
	User    bool
	Guest   bool
}

// Stats is a snapshot of the registry sizes.
type Stats struct {
	Users    int `json:"users"`
	Staff    int `json:"staff"`
	Teachers int `json:"teachers"`
	Guests   int `json:"guests"`
}

func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[string]interfaces.Connection),
		staff:    make(map[string]interfaces.Connection),
		teachers: make(map[string]interfaces.Connection),
		guests:   make(map[string]interfaces.Connection),
		log:      logger.Component("registry"),
	}
}

// Register indexes an authenticated connection. A previous connection for
// the same user is replaced and closed.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	identity := conn.Identity()
	if identity == nil {
		return ErrConnectionNotAuthenticated
	}

	r.mu.Lock()
	existing, replaced := r.users[identity.UserID]
	r.users[identity.UserID] = conn
	delete(r.staff, identity.UserID)
	delete(r.teachers, identity.UserID)
	switch {
	case identity.Role.IsStaff():
		r.staff[identity.UserID] = conn
	case identity.Role == types.RoleTeacher:
		r.teachers[identity.UserID] = conn
	}
	r.mu.Unlock()

	if replaced && existing != conn {
		r.closeReplaced(existing, slog.String("user_id", identity.UserID))
	}
	return nil
}

// RegisterGuest indexes a guest connection, replacing an older one.
func (r *Registry) RegisterGuest(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	guestID := conn.GuestID()
	if guestID == "" {
		return ErrConnectionNotGuest
	}

	r.mu.Lock()
	existing, replaced := r.guests[guestID]
	r.guests[guestID] = conn
	r.mu.Unlock()

	if replaced && existing != conn {
		r.closeReplaced(existing, slog.String("guest_id", guestID))
	}
	return nil
}

func (r *Registry) closeReplaced(conn interfaces.Connection, attr slog.Attr) {
	r.log.Info("replacing connection", attr, slog.String("conn_id", conn.ID()))
	go func() {
		if err := conn.Close(); err != nil {
			r.log.Debug("failed to close replaced connection", attr, slog.Any("error", err))
		}
	}()
}

// Unregister removes conn from every index that still points at it. A newer
// connection registered for the same identity is left untouched. Idempotent.
func (r *Registry) Unregister(conn interfaces.Connection) Removal {
	var removal Removal
	if conn == nil {
		return removal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if identity := conn.Identity(); identity != nil {
		removal.UserID = identity.UserID
		if current, ok := r.users[identity.UserID]; ok && current == conn {
			delete(r.users, identity.UserID)
			removal.User = true
		}
		if current, ok := r.staff[identity.UserID]; ok && current == conn {
			delete(r.staff, identity.UserID)
		}
		if current, ok := r.teachers[identity.UserID]; ok && current == conn {
			delete(r.teachers, identity.UserID)
		}
	}

	if guestID := conn.GuestID(); guestID != "" {
		removal.GuestID = guestID
		if current, ok := r.guests[guestID]; ok && current == conn {
			delete(r.guests, guestID)
			removal.Guest = true
		}
	}

	return removal
}

// Lookup returns the live connection of a user.
func (r *Registry) Lookup(userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.users[userID]
	return conn, ok
}

// LookupGuest returns the live connection of a guest.
func (r *Registry) LookupGuest(guestID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.guests[guestID]
	return conn, ok
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Staff returns a snapshot of staff connections.
func (r *Registry) Staff() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.staff)
}

// Teachers returns a snapshot of teacher connections.
func (r *Registry) Teachers() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.teachers)
}

// Users returns a snapshot of every authenticated connection.
func (r *Registry) Users() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.users)
}

// Broadcast writes frame to every authenticated connection matching
// predicate and returns the number of successful writes. Writes happen
// after the lock is released.
func (r *Registry) Broadcast(predicate func(interfaces.Connection) bool, frame interface{}) int {
	sent := 0
	for _, conn := range r.Users() {
		if predicate != nil && !predicate(conn) {
			continue
		}
		if err := conn.WriteJSON(frame); err != nil {
			r.log.Debug("broadcast write failed", slog.String("conn_id", conn.ID()), slog.Any("error", err))
			continue
		}
		sent++
	}
	return sent
}

// BroadcastStaff writes frame to every staff connection.
func (r *Registry) BroadcastStaff(frame interface{}) int {
	sent := 0
	for _, conn := range r.Staff() {
		if err := conn.WriteJSON(frame); err != nil {
			r.log.Debug("staff write failed", slog.String("conn_id", conn.ID()), slog.Any("error", err))
			continue
		}
		sent++
	}
	return sent
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Users:    len(r.users),
		Staff:    len(r.staff),
		Teachers: len(r.teachers),
		Guests:   len(r.guests),
	}
}

// CloseAll closes every registered connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := append(snapshot(r.users), snapshot(r.guests)...)
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func snapshot(m map[string]interfaces.Connection) []interfaces.Connection {
	conns := make([]interfaces.Connection, 0, len(m))
	for _, conn := range m {
		conns = append(conns, conn)
	}
	return conns
}
