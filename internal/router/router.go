// Package router validates, authorizes, persists and fans out chat traffic.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"eduhub/internal/logger"
	"eduhub/internal/websocket"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

const previewLength = 80

// Store is the part of the persistence layer the router reads and writes.
type Store interface {
	interfaces.IdentityStore
	interfaces.FriendshipStore
	interfaces.MessageStore
}

// Router delivers direct, group and broadcast messages. Every send re-reads
// the receiver's role and group membership from the store, persists the
// message and only then writes it to online recipients.
type Router struct {
	store    Store
	registry *websocket.Registry
	log      *slog.Logger
	now      func() time.Time
}

func NewRouter(store Store, registry *websocket.Registry) *Router {
	return &Router{
		store:    store,
		registry: registry,
		log:      logger.Component("router"),
		now:      time.Now,
	}
}

// Send routes a send_message frame to SendDirect or SendGroup.
func (r *Router) Send(ctx context.Context, sender types.Identity, frame *types.SendMessageFrame) (*types.ChatMessage, error) {
	switch {
	case frame.GroupID != "":
		return r.SendGroup(ctx, sender, frame)
	case frame.ReceiverID != "":
		return r.SendDirect(ctx, sender, frame)
	default:
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingTarget)
	}
}

// SendDirect delivers a one-to-one message after checking the permission
// matrix against the receiver's stored role.
func (r *Router) SendDirect(ctx context.Context, sender types.Identity, frame *types.SendMessageFrame) (*types.ChatMessage, error) {
	message, err := newMessage(sender, frame.MessageType, frame.Content, frame.FileMetadata)
	if err != nil {
		return nil, err
	}
	if frame.ReceiverID == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingTarget)
	}
	if !types.IsValidUserID(frame.ReceiverID) {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidUserID)
	}
	if frame.ReceiverID == sender.UserID {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, ErrSelfMessage)
	}

	receiver, err := r.store.GetUser(ctx, frame.ReceiverID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", types.ErrValidation, ErrUnknownReceiver)
		}
		return nil, r.persistenceError(ctx, "failed to load receiver", err)
	}

	friends := false
	if NeedsFriendship(sender.Role, receiver.Role) {
		friends, err = r.store.AreFriends(ctx, sender.UserID, receiver.UserID)
		if err != nil {
			return nil, r.persistenceError(ctx, "failed to check friendship", err)
		}
	}
	if !CanMessage(sender.Role, receiver.Role, friends) {
		return nil, fmt.Errorf("%w: %s cannot message %s", types.ErrPermissionDenied, sender.Role, receiver.Role)
	}

	receiverID := receiver.UserID
	message.ReceiverID = &receiverID
	if err := r.persist(ctx, message); err != nil {
		return nil, err
	}

	r.deliver(receiverID, message, sender.UserID)
	return message, nil
}

// SendGroup delivers a message to every member of a group except the sender.
// Membership is checked on every send.
func (r *Router) SendGroup(ctx context.Context, sender types.Identity, frame *types.SendMessageFrame) (*types.ChatMessage, error) {
	message, err := newMessage(sender, frame.MessageType, frame.Content, frame.FileMetadata)
	if err != nil {
		return nil, err
	}
	if frame.GroupID == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingTarget)
	}

	member, err := r.store.IsGroupMember(ctx, frame.GroupID, sender.UserID)
	if err != nil {
		return nil, r.persistenceError(ctx, "failed to check group membership", err)
	}
	if !member {
		return nil, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotGroupMember)
	}

	members, err := r.store.ListGroupMembers(ctx, frame.GroupID)
	if err != nil {
		return nil, r.persistenceError(ctx, "failed to list group members", err)
	}

	groupID := frame.GroupID
	message.GroupID = &groupID
	if err := r.persist(ctx, message); err != nil {
		return nil, err
	}

	for _, memberID := range members {
		if memberID == sender.UserID {
			continue
		}
		r.deliver(memberID, message, groupID)
	}
	return message, nil
}

// Broadcast persists one announcement and delivers it to the online part of
// the sender's audience.
func (r *Router) Broadcast(ctx context.Context, sender types.Identity, frame *types.BroadcastMessageFrame) (*types.ChatMessage, int, error) {
	if !CanBroadcast(sender.Role) {
		return nil, 0, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrBroadcastRole)
	}
	message, err := newMessage(sender, frame.MessageType, frame.Content, frame.FileMetadata)
	if err != nil {
		return nil, 0, err
	}

	audience, err := r.store.ListTeacherAudience(ctx, sender.UserID)
	if err != nil {
		return nil, 0, r.persistenceError(ctx, "failed to load audience", err)
	}

	message.IsBroadcast = true
	if err := r.persist(ctx, message); err != nil {
		return nil, 0, err
	}

	delivered := 0
	for _, userID := range audience {
		if userID == sender.UserID {
			continue
		}
		if r.deliver(userID, message, sender.UserID) {
			delivered++
		}
	}
	return message, delivered, nil
}

func newMessage(sender types.Identity, kind types.MessageKind, content string, file *types.FileMetadata) (*types.ChatMessage, error) {
	message := &types.ChatMessage{
		SenderID:   sender.UserID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Kind:       kind,
		Content:    content,
		File:       file,
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	return message, nil
}

// persist assigns the server-side ID and timestamp, ignoring anything the
// client sent, and writes the message.
func (r *Router) persist(ctx context.Context, message *types.ChatMessage) error {
	message.ID = uuid.New().String()
	message.CreatedAt = r.now().UTC()

	if err := r.store.StoreMessage(ctx, message); err != nil {
		return r.persistenceError(ctx, "failed to persist message", err)
	}
	return nil
}

func (r *Router) persistenceError(ctx context.Context, msg string, err error) error {
	logger.FromContext(ctx).Error(msg, slog.Any("error", err))
	return fmt.Errorf("%w: %w", types.ErrPersistence, err)
}

// deliver writes new_message to userID if online, plus a chat_notification
// when the recipient is not looking at chatKey. Delivery failures are logged
// and never affect the sender.
func (r *Router) deliver(userID string, message *types.ChatMessage, chatKey string) bool {
	conn, ok := r.registry.Lookup(userID)
	if !ok {
		return false
	}

	if err := conn.WriteJSON(types.NewMessage{Type: types.FrameNewMessage, Record: message}); err != nil {
		r.log.Debug("failed to deliver message",
			slog.String("user_id", userID),
			slog.String("message_id", message.ID),
			slog.Any("error", err))
		return false
	}

	if conn.CurrentChat() != chatKey {
		notification := types.ChatNotification{
			Type:       types.FrameChatNotification,
			From:       message.SenderID,
			FromName:   message.SenderName,
			MessageID:  message.ID,
			Preview:    preview(message),
			ReceivedAt: message.CreatedAt,
		}
		if message.GroupID != nil {
			notification.IsGroup = true
			notification.GroupID = *message.GroupID
		}
		_ = conn.WriteJSON(notification)
	}
	return true
}

func preview(message *types.ChatMessage) string {
	if message.Kind != types.MessageKindText {
		return "[" + string(message.Kind) + "]"
	}
	if utf8.RuneCountInString(message.Content) <= previewLength {
		return message.Content
	}
	runes := []rune(message.Content)
	return string(runes[:previewLength]) + "…"
}
