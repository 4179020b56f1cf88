package router

import (
	"log/slog"

	"eduhub/pkg/types"
)

// Typing forwards a typing indicator to the receiver if online. Nothing is
// persisted and an offline receiver is silently skipped.
func (r *Router) Typing(sender types.Identity, receiverID string, isTyping bool) bool {
	conn, ok := r.registry.Lookup(receiverID)
	if !ok {
		return false
	}
	frame := types.UserTyping{Type: types.FrameUserTyping, UserID: sender.UserID, IsTyping: isTyping}
	return conn.WriteJSON(frame) == nil
}

// FriendNotice forwards friend_request or friend_request_response to the
// receiver if online. The friendship record itself is owned by the HTTP API.
func (r *Router) FriendNotice(sender types.Identity, kind types.FrameType, frame *types.FriendRequestFrame) bool {
	conn, ok := r.registry.Lookup(frame.ReceiverID)
	if !ok {
		return false
	}
	notice := types.FriendNotification{
		Type:      kind,
		From:      sender.UserID,
		FromName:  sender.Name,
		Avatar:    sender.Avatar,
		RequestID: frame.RequestID,
		Status:    frame.Status,
	}
	if err := conn.WriteJSON(notice); err != nil {
		r.log.Debug("failed to forward friend notice",
			slog.String("user_id", frame.ReceiverID),
			slog.Any("error", err))
		return false
	}
	return true
}
