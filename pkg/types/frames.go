package types

import (
	"encoding/json"
	"time"
)

// FrameType is the "type" discriminator of a wire frame.
type FrameType string

// Inbound frame types
const (
	FrameAuth                  FrameType = "auth"
	FrameSendMessage           FrameType = "send_message"
	FrameBroadcastMessage      FrameType = "broadcast_message"
	FramePresenceUpdate        FrameType = "presence_update"
	FrameTypingStart           FrameType = "typing_start"
	FrameTypingStop            FrameType = "typing_stop"
	FrameFocusChat             FrameType = "focus_chat"
	FrameCallOffer             FrameType = "call_offer"
	FrameCallAnswer            FrameType = "call_answer"
	FrameCallICECandidate      FrameType = "call_ice_candidate"
	FrameCallEnd               FrameType = "call_end"
	FrameFriendRequest         FrameType = "friend_request"
	FrameFriendRequestResponse FrameType = "friend_request_response"
	FrameHelpChatAuth          FrameType = "help_chat_auth"
	FrameHelpChatSendMessage   FrameType = "help_chat_send_message"
	FrameHelpChatTyping        FrameType = "help_chat_typing"
	FrameAdminJoin             FrameType = "admin_join_conversation"
	FrameAdminLeave            FrameType = "admin_leave_conversation"
	FramePing                  FrameType = "ping"
)

// Outbound frame types
const (
	FrameAuthSuccess                   FrameType = "auth_success"
	FrameAuthError                     FrameType = "auth_error"
	FrameMessageSent                   FrameType = "message_sent"
	FrameMessageError                  FrameType = "message_error"
	FrameNewMessage                    FrameType = "new_message"
	FrameChatNotification              FrameType = "chat_notification"
	FrameUserTyping                    FrameType = "user_typing"
	FrameCallError                     FrameType = "call_error"
	FrameHelpChatAuthSuccess           FrameType = "help_chat_auth_success"
	FrameHelpChatAuthError             FrameType = "help_chat_auth_error"
	FrameHelpChatMessage               FrameType = "help_chat_message"
	FrameHelpChatQueued                FrameType = "help_chat_queued"
	FrameHelpChatError                 FrameType = "help_chat_error"
	FrameHelpChatGuestOnline           FrameType = "help_chat_guest_online"
	FrameHelpChatAgentAssigned         FrameType = "help_chat_agent_assigned"
	FrameConversationAssignmentCleared FrameType = "conversation_assignment_cleared"
	FrameUnifiedConversationUpdate     FrameType = "unified_conversation_update"
	FrameAdminJoinSuccess              FrameType = "admin_join_success"
	FrameAdminJoinError                FrameType = "admin_join_error"
	FrameAdminLeaveSuccess             FrameType = "admin_leave_success"
	FrameAdminLeaveError               FrameType = "admin_leave_error"
	FrameError                         FrameType = "error"
	FramePong                          FrameType = "pong"
)

// Envelope is used to read the discriminator before decoding the payload.
type Envelope struct {
	Type FrameType `json:"type"`
}

// AuthFrame carries a pre-validated identity (external ID or signed token).
// Any role field a client adds is ignored.
type AuthFrame struct {
	Identity string `json:"identity"`
}

// SendMessageFrame requests a direct or group message.
type SendMessageFrame struct {
	ReceiverID       string        `json:"receiverId,omitempty"`
	GroupID          string        `json:"groupId,omitempty"`
	Content          string        `json:"content,omitempty"`
	FileMetadata     *FileMetadata `json:"fileMetadata,omitempty"`
	MessageType      MessageKind   `json:"messageType,omitempty"`
	CorrelationToken string        `json:"correlationToken,omitempty"`
}

// BroadcastMessageFrame requests a teacher announcement.
type BroadcastMessageFrame struct {
	Content          string        `json:"content,omitempty"`
	FileMetadata     *FileMetadata `json:"fileMetadata,omitempty"`
	MessageType      MessageKind   `json:"messageType,omitempty"`
	CorrelationToken string        `json:"correlationToken,omitempty"`
}

// PresenceUpdateFrame requests a presence transition.
type PresenceUpdateFrame struct {
	Status string `json:"status"`
}

// TypingFrame is shared by typing_start and typing_stop.
type TypingFrame struct {
	ReceiverID string `json:"receiverId"`
}

// FocusChatFrame sets the chat currently open on the client. Empty clears it.
type FocusChatFrame struct {
	ChatID string `json:"chatId"`
}

// CallFrame is shared by all four signaling kinds. Payload is never inspected.
type CallFrame struct {
	ReceiverID string          `json:"receiverId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// FriendRequestFrame is shared by friend_request and friend_request_response.
type FriendRequestFrame struct {
	ReceiverID string `json:"receiverId"`
	RequestID  string `json:"requestId,omitempty"`
	Status     string `json:"status,omitempty"`
}

// HelpChatAuthFrame authenticates a guest (GuestID) or a staff member (Identity).
type HelpChatAuthFrame struct {
	GuestID  string `json:"guestId,omitempty"`
	Identity string `json:"identity,omitempty"`
}

// HelpChatSendMessageFrame carries a support-queue message. Sender is advisory
// only; the server derives the author from the connection.
type HelpChatSendMessageFrame struct {
	GuestID string `json:"guestId"`
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

// HelpChatTypingFrame carries a support-queue typing indicator.
type HelpChatTypingFrame struct {
	GuestID  string `json:"guestId"`
	IsTyping bool   `json:"isTyping"`
	Sender   string `json:"sender,omitempty"`
}

// AdminJoinFrame asks to join a guest's conversation.
type AdminJoinFrame struct {
	GuestID         string `json:"guestId"`
	SelectedAgentID string `json:"selectedAgentId,omitempty"`
}

// AdminLeaveFrame asks to leave a guest's conversation.
type AdminLeaveFrame struct {
	GuestID string `json:"guestId"`
}

// Outbound frames

type AuthSuccess struct {
	Type   FrameType `json:"type"`
	UserID string    `json:"userId"`
	Role   Role      `json:"role"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
}

type Notice struct {
	Type   FrameType `json:"type"`
	Reason string    `json:"reason"`
}

type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    FrameType `json:"kind,omitempty"`
}

type MessageSent struct {
	Type             FrameType    `json:"type"`
	Record           *ChatMessage `json:"record"`
	CorrelationToken string       `json:"correlationToken,omitempty"`
}

type MessageError struct {
	Type             FrameType `json:"type"`
	Reason           string    `json:"reason"`
	CorrelationToken string    `json:"correlationToken,omitempty"`
}

type NewMessage struct {
	Type   FrameType    `json:"type"`
	Record *ChatMessage `json:"record"`
}

type ChatNotification struct {
	Type       FrameType `json:"type"`
	From       string    `json:"from"`
	FromName   string    `json:"fromName,omitempty"`
	MessageID  string    `json:"messageId"`
	Preview    string    `json:"preview,omitempty"`
	IsGroup    bool      `json:"isGroup,omitempty"`
	GroupID    string    `json:"groupId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type PresenceChange struct {
	Type     FrameType      `json:"type"`
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
	IsOnline bool           `json:"isOnline"`
}

type UserTyping struct {
	Type     FrameType `json:"type"`
	UserID   string    `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

type CallRelay struct {
	Type     FrameType       `json:"type"`
	From     string          `json:"from"`
	FromName string          `json:"fromName,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type CallError struct {
	Type       FrameType `json:"type"`
	Reason     string    `json:"reason"`
	ReceiverID string    `json:"receiverId"`
}

type FriendNotification struct {
	Type      FrameType `json:"type"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Status    string    `json:"status,omitempty"`
}

type HelpChatAuthSuccess struct {
	Type        FrameType       `json:"type"`
	GuestID     string          `json:"guestId,omitempty"`
	Role        Role            `json:"role,omitempty"`
	Agent       *Agent          `json:"agent,omitempty"`
	Assignments []GuestAssignee `json:"assignments,omitempty"`
}

// GuestAssignee is one row of the staff assignment snapshot.
type GuestAssignee struct {
	GuestID string `json:"guestId"`
	Agent   Agent  `json:"agent"`
}

type HelpChatMessage struct {
	Type    FrameType    `json:"type"`
	Message *HelpMessage `json:"message"`
}

type HelpChatTyping struct {
	Type      FrameType `json:"type"`
	GuestID   string    `json:"guestId"`
	IsTyping  bool      `json:"isTyping"`
	Sender    string    `json:"sender"`
	AgentName string    `json:"agentName,omitempty"`
}

type HelpChatQueued struct {
	Type    FrameType `json:"type"`
	GuestID string    `json:"guestId"`
	Message string    `json:"message"`
}

type GuestOnline struct {
	Type    FrameType `json:"type"`
	GuestID string    `json:"guestId"`
	Online  bool      `json:"online"`
}

type AgentAssigned struct {
	Type        FrameType `json:"type"`
	GuestID     string    `json:"guestId"`
	Agent       string    `json:"agent"`
	AgentID     string    `json:"agentId"`
	AgentAvatar string    `json:"agentAvatar,omitempty"`
	Manual      bool      `json:"manual"`
}

type AssignmentCleared struct {
	Type    FrameType `json:"type"`
	GuestID string    `json:"guestId"`
	AgentID string    `json:"agentId,omitempty"`
}

type ConversationUpdate struct {
	Type          FrameType `json:"type"`
	GuestID       string    `json:"guestId"`
	HasNewMessage bool      `json:"hasNewMessage"`
}

type AdminJoinResult struct {
	Type    FrameType `json:"type"`
	GuestID string    `json:"guestId"`
	Agent   *Agent    `json:"agent,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

type AdminLeaveResult struct {
	Type    FrameType `json:"type"`
	GuestID string    `json:"guestId"`
	Reason  string    `json:"reason,omitempty"`
}

type Pong struct {
	Type FrameType `json:"type"`
	Time time.Time `json:"time"`
}
