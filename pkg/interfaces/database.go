package interfaces

import (
	"context"
	"time"

	"eduhub/pkg/types"
)

// IdentityStore reads user profiles. Roles come only from here.
type IdentityStore interface {
	// GetUserByExternalID resolves an opaque external key. Returns ErrNotFound.
	GetUserByExternalID(ctx context.Context, externalID string) (*types.Identity, error)

	// GetUser reads a user by internal storage key. Returns ErrNotFound.
	GetUser(ctx context.Context, userID string) (*types.Identity, error)
}

// FriendshipStore reads friendship relations.
type FriendshipStore interface {
	// AreFriends reports whether an accepted friendship exists in either direction.
	AreFriends(ctx context.Context, userA, userB string) (bool, error)

	// ListFriendIDs returns the user IDs with an accepted friendship to userID.
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceStore persists presence records.
type PresenceStore interface {
	UpdatePresence(ctx context.Context, presence *types.Presence) error
}

// MessageStore persists chat messages and reads group membership.
type MessageStore interface {
	StoreMessage(ctx context.Context, message *types.ChatMessage) error
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)

	// ListTeacherAudience returns the users that receive a teacher's announcements.
	ListTeacherAudience(ctx context.Context, teacherID string) ([]string, error)
}

// SupportStore persists support-queue sessions, messages and the agent roster.
type SupportStore interface {
	// GetSupportSession returns the active session of a guest. Returns ErrNotFound.
	GetSupportSession(ctx context.Context, guestID string) (*types.SupportSession, error)

	// CreateSupportSession inserts a session. Returns ErrDuplicate when the
	// guest already has an active session.
	CreateSupportSession(ctx context.Context, session *types.SupportSession) error

	// UpdateSupportSessionAgent sets the agent of the guest's active session.
	// A nil agent clears it. Returns ErrNotFound.
	UpdateSupportSessionAgent(ctx context.Context, guestID string, agent *types.Agent, at time.Time) error

	ListActiveSupportSessions(ctx context.Context) ([]*types.SupportSession, error)
	StoreHelpMessage(ctx context.Context, message *types.HelpMessage) error
	CountGuestMessages(ctx context.Context, guestID string) (int, error)

	// ListAgents returns the active agent roster in roster order.
	ListAgents(ctx context.Context) ([]*types.Agent, error)
}

// Store is the complete persistence dependency of the hub.
type Store interface {
	IdentityStore
	FriendshipStore
	PresenceStore
	MessageStore
	SupportStore

	// HealthCheck verifies store connectivity
	HealthCheck(ctx context.Context) error

	// Close releases store resources
	Close() error
}
