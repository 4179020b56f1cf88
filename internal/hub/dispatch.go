package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eduhub/internal/logger"
	"eduhub/internal/router"
	"eduhub/internal/signaling"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// HandleFrame processes one inbound frame. Frames of a connection arrive in
// order from its read loop; nothing here closes the connection except a
// failed authentication.
func (h *Hub) HandleFrame(ctx context.Context, conn interfaces.Connection, data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		h.reply(conn, errorFrame(err, ""))
		return
	}
	kind := frame.frameType()

	if kind != types.FramePing && !h.Limiter.Allow(rateKey(conn), string(kind)) {
		h.reply(conn, errorFrame(types.ErrRateLimited, kind))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.PersistTimeout)
	defer cancel()
	log := logger.FromContext(ctx).With(slog.String("frame", string(kind)))
	ctx = logger.WithContext(ctx, log)

	switch f := frame.(type) {
	case *authFrame:
		h.handleAuth(ctx, conn, f)
	case *helpAuthFrame:
		h.handleHelpAuth(ctx, conn, f)
	case *helpMessageFrame:
		h.handleHelpMessage(ctx, conn, f)
	case *helpTypingFrame:
		h.handleHelpTyping(conn, f)
	case *adminJoinFrame:
		h.handleAdminJoin(ctx, conn, f)
	case *adminLeaveFrame:
		h.handleAdminLeave(ctx, conn, f)
	case *pingFrame:
		h.reply(conn, types.Pong{Type: types.FramePong, Time: time.Now().UTC()})
	default:
		sender := conn.Identity()
		if sender == nil {
			h.reply(conn, errorFrame(fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotAuthenticated), kind))
			return
		}
		h.handleUserFrame(ctx, conn, *sender, frame)
	}
}

// handleUserFrame runs frames that need an authenticated identity.
func (h *Hub) handleUserFrame(ctx context.Context, conn interfaces.Connection, sender types.Identity, frame inboundFrame) {
	switch f := frame.(type) {
	case *sendMessageFrame:
		record, err := h.Router.Send(ctx, sender, &f.SendMessageFrame)
		h.replySend(conn, record, f.CorrelationToken, err)

	case *broadcastFrame:
		record, delivered, err := h.Router.Broadcast(ctx, sender, &f.BroadcastMessageFrame)
		if err == nil {
			logger.FromContext(ctx).Debug("broadcast delivered", slog.Int("recipients", delivered))
		}
		h.replySend(conn, record, f.CorrelationToken, err)

	case *presenceFrame:
		if err := h.Presence.Update(ctx, sender, f.Status); err != nil {
			h.reply(conn, errorFrame(err, f.frameType()))
		}

	case *typingFrame:
		h.Router.Typing(sender, f.ReceiverID, f.typing)

	case *focusFrame:
		conn.SetCurrentChat(f.ChatID)

	case *callFrame:
		err := h.Relay.Forward(sender, f.kind, &f.CallFrame)
		switch {
		case errors.Is(err, types.ErrPeerUnavailable):
			h.reply(conn, signaling.CallError(f.ReceiverID))
		case err != nil:
			h.reply(conn, errorFrame(err, f.kind))
		}

	case *friendFrame:
		if f.ReceiverID == "" {
			h.reply(conn, errorFrame(fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingTarget), f.kind))
			return
		}
		h.Router.FriendNotice(sender, f.kind, &f.FriendRequestFrame)

	default:
		h.log.Error("frame has no handler", slog.String("frame", string(frame.frameType())))
	}
}

func (h *Hub) replySend(conn interfaces.Connection, record *types.ChatMessage, token string, err error) {
	if err != nil {
		h.reply(conn, types.MessageError{
			Type:             types.FrameMessageError,
			Reason:           router.Reason(err),
			CorrelationToken: token,
		})
		return
	}
	h.reply(conn, types.MessageSent{
		Type:             types.FrameMessageSent,
		Record:           record,
		CorrelationToken: token,
	})
}

// handleAuth resolves the identity from the store and registers the
// connection. A failed authentication closes the connection once the
// auth_error frame is flushed.
func (h *Hub) handleAuth(ctx context.Context, conn interfaces.Connection, f *authFrame) {
	log := logger.FromContext(ctx)

	if conn.GuestID() != "" {
		h.reply(conn, types.Notice{Type: types.FrameAuthError, Reason: ErrAlreadyBound.Error()})
		return
	}

	resolved, err := h.Resolver.Authenticate(ctx, f.Identity)
	if err != nil {
		log.Info("authentication failed", slog.Any("error", err))
		h.reply(conn, types.Notice{Type: types.FrameAuthError, Reason: types.ErrAuthenticationFailure.Error()})
		conn.CloseAfterFlush()
		return
	}

	if err := conn.Authenticate(resolved); err != nil {
		h.reply(conn, types.Notice{Type: types.FrameAuthError, Reason: err.Error()})
		return
	}
	if err := h.Registry.Register(conn); err != nil {
		log.Error("failed to register connection", slog.Any("error", err))
		h.reply(conn, types.Notice{Type: types.FrameAuthError, Reason: types.ErrAuthenticationFailure.Error()})
		conn.CloseAfterFlush()
		return
	}

	h.reply(conn, types.AuthSuccess{
		Type:   types.FrameAuthSuccess,
		UserID: resolved.UserID,
		Role:   resolved.Role,
		Name:   resolved.Name,
		Avatar: resolved.Avatar,
	})
	log.Info("authenticated", slog.String("user_id", resolved.UserID), slog.String("role", string(resolved.Role)))

	if err := h.Presence.Connect(ctx, resolved); err != nil {
		log.Warn("presence connect failed", slog.String("user_id", resolved.UserID), slog.Any("error", err))
	}
}

// handleHelpAuth binds a guest, or authenticates a staff member for the
// support dashboard when an identity is given.
func (h *Hub) handleHelpAuth(ctx context.Context, conn interfaces.Connection, f *helpAuthFrame) {
	if f.Identity != "" {
		h.handleStaffHelpAuth(ctx, conn, f.Identity)
		return
	}

	log := logger.FromContext(ctx)
	if conn.Identity() != nil {
		h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: ErrAlreadyBound.Error()})
		return
	}

	guestID := conn.GuestID()
	if guestID == "" {
		guestID = h.Support.ResolveGuestID(f.GuestID)
		if err := conn.BindGuest(guestID); err != nil {
			h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: err.Error()})
			return
		}
	}
	if err := h.Registry.RegisterGuest(conn); err != nil {
		log.Error("failed to register guest", slog.Any("error", err))
		h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: err.Error()})
		return
	}

	success := types.HelpChatAuthSuccess{Type: types.FrameHelpChatAuthSuccess, GuestID: guestID}
	if agent, ok := h.Support.Assignment(guestID); ok {
		success.Agent = &agent
	}
	h.reply(conn, success)
	log.Info("guest connected", slog.String("guest_id", guestID))

	if err := h.Support.GuestConnected(ctx, guestID); err != nil {
		log.Warn("guest assignment failed", slog.String("guest_id", guestID), slog.Any("error", err))
	}
}

func (h *Hub) handleStaffHelpAuth(ctx context.Context, conn interfaces.Connection, credential string) {
	log := logger.FromContext(ctx)

	resolved, err := h.Resolver.Authenticate(ctx, credential)
	if err == nil && !resolved.Role.IsStaff() {
		err = fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrStaffOnly)
	}
	if err != nil {
		log.Info("support dashboard authentication failed", slog.Any("error", err))
		msg := types.ErrAuthenticationFailure.Error()
		if errors.Is(err, types.ErrPermissionDenied) {
			msg = reason(err)
		}
		h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: msg})
		conn.CloseAfterFlush()
		return
	}

	if err := conn.Authenticate(resolved); err != nil {
		h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: err.Error()})
		return
	}
	if err := h.Registry.Register(conn); err != nil {
		log.Error("failed to register staff connection", slog.Any("error", err))
		h.reply(conn, types.Notice{Type: types.FrameHelpChatAuthError, Reason: types.ErrAuthenticationFailure.Error()})
		conn.CloseAfterFlush()
		return
	}

	h.reply(conn, types.HelpChatAuthSuccess{
		Type:        types.FrameHelpChatAuthSuccess,
		Role:        resolved.Role,
		Assignments: h.Support.Assignments(),
	})

	if err := h.Presence.Connect(ctx, resolved); err != nil {
		log.Warn("presence connect failed", slog.String("user_id", resolved.UserID), slog.Any("error", err))
	}
}

func (h *Hub) handleHelpMessage(ctx context.Context, conn interfaces.Connection, f *helpMessageFrame) {
	var err error
	switch staff := conn.Identity(); {
	case conn.GuestID() != "":
		guestID := conn.GuestID()
		if f.GuestID != "" && f.GuestID != guestID {
			err = fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrGuestMismatch)
			break
		}
		_, err = h.Support.GuestMessage(ctx, guestID, f.Message)
	case staff != nil:
		if f.GuestID == "" {
			err = fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidGuestID)
			break
		}
		_, err = h.Support.StaffMessage(ctx, *staff, f.GuestID, f.Message)
	default:
		err = fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotAuthenticated)
	}

	if err != nil {
		h.reply(conn, types.Notice{Type: types.FrameHelpChatError, Reason: reason(err)})
	}
}

func (h *Hub) handleHelpTyping(conn interfaces.Connection, f *helpTypingFrame) {
	switch staff := conn.Identity(); {
	case conn.GuestID() != "":
		h.Support.GuestTyping(conn.GuestID(), f.IsTyping)
	case staff != nil && staff.Role.IsStaff():
		h.Support.StaffTyping(f.GuestID, f.IsTyping)
	default:
		h.reply(conn, errorFrame(fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotAuthenticated), f.frameType()))
	}
}

func (h *Hub) handleAdminJoin(ctx context.Context, conn interfaces.Connection, f *adminJoinFrame) {
	staff := conn.Identity()
	if staff == nil {
		h.reply(conn, types.AdminJoinResult{Type: types.FrameAdminJoinError, GuestID: f.GuestID, Reason: ErrNotAuthenticated.Error()})
		return
	}

	agent, err := h.Support.Join(ctx, *staff, f.GuestID, f.SelectedAgentID)
	if err != nil {
		h.reply(conn, types.AdminJoinResult{Type: types.FrameAdminJoinError, GuestID: f.GuestID, Reason: reason(err)})
		return
	}
	h.reply(conn, types.AdminJoinResult{Type: types.FrameAdminJoinSuccess, GuestID: f.GuestID, Agent: &agent})
}

func (h *Hub) handleAdminLeave(ctx context.Context, conn interfaces.Connection, f *adminLeaveFrame) {
	staff := conn.Identity()
	if staff == nil {
		h.reply(conn, types.AdminLeaveResult{Type: types.FrameAdminLeaveError, GuestID: f.GuestID, Reason: ErrNotAuthenticated.Error()})
		return
	}

	if _, err := h.Support.Leave(ctx, *staff, f.GuestID); err != nil {
		h.reply(conn, types.AdminLeaveResult{Type: types.FrameAdminLeaveError, GuestID: f.GuestID, Reason: reason(err)})
		return
	}
	h.reply(conn, types.AdminLeaveResult{Type: types.FrameAdminLeaveSuccess, GuestID: f.GuestID})
}

// Disconnect unregisters conn. Presence goes offline and staff hear about a
// departed guest only when conn was still the current connection.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	removal := h.Registry.Unregister(conn)

	if removal.User {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.PersistTimeout)
		defer cancel()
		if identity := conn.Identity(); identity != nil {
			if err := h.Presence.Disconnect(ctx, *identity); err != nil {
				h.log.Warn("presence disconnect failed", slog.String("user_id", identity.UserID), slog.Any("error", err))
			}
		}
	}
	if removal.Guest {
		h.Support.GuestDisconnected(removal.GuestID)
	}

	h.log.Debug("connection closed",
		slog.String("conn_id", conn.ID()),
		slog.String("user_id", removal.UserID),
		slog.String("guest_id", removal.GuestID),
		slog.Bool("current", removal.User || removal.Guest))
}

func (h *Hub) reply(conn interfaces.Connection, frame interface{}) {
	if err := conn.WriteJSON(frame); err != nil {
		h.log.Debug("failed to reply", slog.String("conn_id", conn.ID()), slog.Any("error", err))
	}
}

// rateKey buckets authenticated users by user ID, guests by guest ID and
// anonymous connections by connection ID.
func rateKey(conn interfaces.Connection) string {
	if identity := conn.Identity(); identity != nil {
		return "user:" + identity.UserID
	}
	if guestID := conn.GuestID(); guestID != "" {
		return "guest:" + guestID
	}
	return "conn:" + conn.ID()
}
