package types

import (
	"time"
)

// Role is the verified role of an identity. It is only ever read from the store.
type Role string

const (
	RoleStudent    Role = "student"
	RoleFreelancer Role = "freelancer"
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleSupport    Role = "support"
)

// ParseRole maps a stored role string to a Role. Unknown values fall back to
// the least privileged role.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleFreelancer, RoleTeacher, RoleAdmin, RoleSupport:
		return Role(s)
	default:
		return RoleStudent
	}
}

// IsStaff reports whether the role belongs to the support desk.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSupport
}

// IsOrdinary reports whether the role is a plain end-user.
func (r Role) IsOrdinary() bool {
	return r == RoleStudent
}

// IsPublic reports whether presence and messages of this role are visible to everyone.
func (r Role) IsPublic() bool {
	return r == RoleTeacher || r.IsStaff()
}

// Identity is a read-only snapshot resolved from the store on authentication.
type Identity struct {
	ExternalID string `json:"externalId"`
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
}

// MessageKind is the payload kind of a chat message.
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindVoice    MessageKind = "voice"
	MessageKindImage    MessageKind = "image"
	MessageKindVideo    MessageKind = "video"
	MessageKindDocument MessageKind = "document"
)

// FileMetadata describes a file uploaded out of band before the message is sent.
type FileMetadata struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Name     string `json:"name,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// ChatMessage is a persisted direct, group or broadcast message.
type ChatMessage struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	SenderName  string        `json:"senderName,omitempty"`
	SenderRole  Role          `json:"senderRole,omitempty"`
	ReceiverID  *string       `json:"receiverId,omitempty"`
	GroupID     *string       `json:"groupId,omitempty"`
	Kind        MessageKind   `json:"messageType"`
	Content     string        `json:"content,omitempty"`
	File        *FileMetadata `json:"fileMetadata,omitempty"`
	IsBroadcast bool          `json:"isBroadcast,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// PresenceStatus is one state of the presence state machine.
type PresenceStatus string

const (
	PresenceOffline PresenceStatus = "offline"
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
)

// Presence is the persisted presence record of an identity.
type Presence struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	IsOnline bool           `json:"isOnline"`
	LastSeen time.Time      `json:"lastSeen"`
}

// FriendshipStatus is the state of a friendship relation.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

// Friendship is an external relation record, read-only for the hub.
type Friendship struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requesterId"`
	ReceiverID  string           `json:"receiverId"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Agent is the support persona presented to a guest.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// SupportSession is the persisted state of one guest conversation.
// Agent is nil while the guest is unassigned.
type SupportSession struct {
	ID        string    `json:"id"`
	GuestID   string    `json:"guestId"`
	Agent     *Agent    `json:"agent,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HelpSender identifies who authored a support-queue message.
type HelpSender string

const (
	HelpSenderGuest  HelpSender = "guest"
	HelpSenderAgent  HelpSender = "agent"
	HelpSenderSystem HelpSender = "system"
)

// HelpMessage is a persisted support-queue message.
type HelpMessage struct {
	ID          string     `json:"id"`
	GuestID     string     `json:"guestId"`
	Sender      HelpSender `json:"sender"`
	AgentID     string     `json:"agentId,omitempty"`
	AgentName   string     `json:"agentName,omitempty"`
	AgentAvatar string     `json:"agentAvatar,omitempty"`
	StaffID     string     `json:"staffId,omitempty"`
	Content     string     `json:"message"`
	CreatedAt   time.Time  `json:"timestamp"`
}
