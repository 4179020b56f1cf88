// Package presence tracks online/away/offline state and tells interested
// viewers about every change.
package presence

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"eduhub/internal/logger"
	"eduhub/internal/websocket"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// Store is the part of the persistence layer the tracker needs.
type Store interface {
	interfaces.PresenceStore
	interfaces.FriendshipStore
}

const lockStripes = 64

// Tracker owns the presence state machine of every authenticated identity.
// Identities without an entry are offline.
type Tracker struct {
	store    Store
	registry *websocket.Registry
	log      *slog.Logger
	now      func() time.Time

	// transitions of one user run one at a time, store write included
	userLocks [lockStripes]sync.Mutex

	mu     sync.Mutex
	states map[string]types.PresenceStatus
}

func NewTracker(store Store, registry *websocket.Registry) *Tracker {
	return &Tracker{
		store:    store,
		registry: registry,
		log:      logger.Component("presence"),
		now:      time.Now,
		states:   make(map[string]types.PresenceStatus),
	}
}

// Status returns the current state of a user.
func (t *Tracker) Status(userID string) types.PresenceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status, ok := t.states[userID]; ok {
		return status
	}
	return types.PresenceOffline
}

// Connect moves an identity online. Called once its connection is registered.
func (t *Tracker) Connect(ctx context.Context, identity types.Identity) error {
	return t.transition(ctx, identity, types.PresenceOnline, true)
}

// Disconnect moves an identity offline. Only call it when the closing
// connection was the current one for the identity. It does nothing when a
// newer connection registered in the meantime.
func (t *Tracker) Disconnect(ctx context.Context, identity types.Identity) error {
	unlock := t.lockUser(identity.UserID)
	defer unlock()

	if t.registry.IsOnline(identity.UserID) {
		logger.FromContext(ctx).Debug("skipping offline transition, user reconnected",
			slog.String("user_id", identity.UserID))
		return nil
	}
	return t.transitionLocked(ctx, identity, types.PresenceOffline, true)
}

// Update applies a client-requested status. Unknown statuses and transitions
// the state machine forbids are validation errors and change nothing.
func (t *Tracker) Update(ctx context.Context, identity types.Identity, requested string) error {
	status, ok := types.ParsePresenceStatus(requested)
	if !ok {
		return fmt.Errorf("%w: %w: %q", types.ErrValidation, ErrUnknownStatus, requested)
	}
	return t.transition(ctx, identity, status, false)
}

func (t *Tracker) lockUser(userID string) func() {
	h := fnv.New32a()
	h.Write([]byte(userID))
	mu := &t.userLocks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (t *Tracker) transition(ctx context.Context, identity types.Identity, to types.PresenceStatus, force bool) error {
	unlock := t.lockUser(identity.UserID)
	defer unlock()
	return t.transitionLocked(ctx, identity, to, force)
}

// transitionLocked persists the new state before publishing it. Forced
// transitions (connect and disconnect) are applied even when the store fails
// so the in-memory view follows the transport.
func (t *Tracker) transitionLocked(ctx context.Context, identity types.Identity, to types.PresenceStatus, force bool) error {
	from := t.Status(identity.UserID)
	if !force && !types.CanTransition(from, to) {
		return fmt.Errorf("%w: %w: %s to %s", types.ErrValidation, types.ErrInvalidTransition, from, to)
	}

	record := &types.Presence{
		UserID:   identity.UserID,
		Status:   to,
		IsOnline: to != types.PresenceOffline,
		LastSeen: t.now().UTC(),
	}

	var persistErr error
	if err := t.store.UpdatePresence(ctx, record); err != nil {
		logger.FromContext(ctx).Error("failed to persist presence",
			slog.String("user_id", identity.UserID),
			slog.String("status", string(to)),
			slog.Any("error", err))
		persistErr = fmt.Errorf("%w: %w", types.ErrPersistence, err)
		if !force {
			return persistErr
		}
	}

	t.mu.Lock()
	if to == types.PresenceOffline {
		delete(t.states, identity.UserID)
	} else {
		t.states[identity.UserID] = to
	}
	t.mu.Unlock()

	t.publish(ctx, identity, record)
	return persistErr
}

// publish writes presence_update to every online viewer allowed to see the
// subject: staff see everyone, everyone sees teachers and staff, and
// otherwise only accepted friends see each other.
func (t *Tracker) publish(ctx context.Context, subject types.Identity, record *types.Presence) int {
	var friends map[string]bool
	if !subject.Role.IsPublic() {
		ids, err := t.store.ListFriendIDs(ctx, subject.UserID)
		if err != nil {
			t.log.Warn("failed to list friends for presence fan-out",
				slog.String("user_id", subject.UserID),
				slog.Any("error", err))
		}
		friends = make(map[string]bool, len(ids))
		for _, id := range ids {
			friends[id] = true
		}
	}

	frame := types.PresenceChange{
		Type:     types.FramePresenceUpdate,
		UserID:   record.UserID,
		Status:   record.Status,
		LastSeen: record.LastSeen,
		IsOnline: record.IsOnline,
	}

	return t.registry.Broadcast(func(conn interfaces.Connection) bool {
		viewer := conn.Identity()
		if viewer == nil || viewer.UserID == subject.UserID {
			return false
		}
		return CanSee(viewer.Role, subject.Role, friends[viewer.UserID])
	}, frame)
}

// CanSee reports whether a viewer may observe a subject's presence.
func CanSee(viewer, subject types.Role, friends bool) bool {
	return viewer.IsStaff() || subject.IsPublic() || friends
}
