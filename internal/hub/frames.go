package hub

import (
	"encoding/json"
	"fmt"

	"eduhub/pkg/types"
)

// inboundFrame is the closed set of frames a client may send. decodeFrame is
// the only place that reads the type discriminator.
type inboundFrame interface {
	frameType() types.FrameType
}

type (
	authFrame        struct{ types.AuthFrame }
	sendMessageFrame struct{ types.SendMessageFrame }
	broadcastFrame   struct{ types.BroadcastMessageFrame }
	presenceFrame    struct{ types.PresenceUpdateFrame }
	focusFrame       struct{ types.FocusChatFrame }
	helpAuthFrame    struct{ types.HelpChatAuthFrame }
	helpMessageFrame struct{ types.HelpChatSendMessageFrame }
	helpTypingFrame  struct{ types.HelpChatTypingFrame }
	adminJoinFrame   struct{ types.AdminJoinFrame }
	adminLeaveFrame  struct{ types.AdminLeaveFrame }
	pingFrame        struct{}

	typingFrame struct {
		types.TypingFrame
		typing bool
	}
	callFrame struct {
		types.CallFrame
		kind types.FrameType
	}
	friendFrame struct {
		types.FriendRequestFrame
		kind types.FrameType
	}
)

func (*authFrame) frameType() types.FrameType        { return types.FrameAuth }
func (*sendMessageFrame) frameType() types.FrameType { return types.FrameSendMessage }
func (*broadcastFrame) frameType() types.FrameType   { return types.FrameBroadcastMessage }
func (*presenceFrame) frameType() types.FrameType    { return types.FramePresenceUpdate }
func (*focusFrame) frameType() types.FrameType       { return types.FrameFocusChat }
func (*helpAuthFrame) frameType() types.FrameType    { return types.FrameHelpChatAuth }
func (*helpMessageFrame) frameType() types.FrameType { return types.FrameHelpChatSendMessage }
func (*helpTypingFrame) frameType() types.FrameType  { return types.FrameHelpChatTyping }
func (*adminJoinFrame) frameType() types.FrameType   { return types.FrameAdminJoin }
func (*adminLeaveFrame) frameType() types.FrameType  { return types.FrameAdminLeave }
func (*pingFrame) frameType() types.FrameType        { return types.FramePing }
func (f *callFrame) frameType() types.FrameType      { return f.kind }
func (f *friendFrame) frameType() types.FrameType    { return f.kind }

func (f *typingFrame) frameType() types.FrameType {
	if f.typing {
		return types.FrameTypingStart
	}
	return types.FrameTypingStop
}

// decodeFrame parses one inbound frame.
func decodeFrame(data []byte) (inboundFrame, error) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, ErrMalformedFrame)
	}

	var (
		frame   inboundFrame
		payload interface{}
	)
	switch envelope.Type {
	case types.FrameAuth:
		f := &authFrame{}
		frame, payload = f, &f.AuthFrame
	case types.FrameSendMessage:
		f := &sendMessageFrame{}
		frame, payload = f, &f.SendMessageFrame
	case types.FrameBroadcastMessage:
		f := &broadcastFrame{}
		frame, payload = f, &f.BroadcastMessageFrame
	case types.FramePresenceUpdate:
		f := &presenceFrame{}
		frame, payload = f, &f.PresenceUpdateFrame
	case types.FrameTypingStart, types.FrameTypingStop:
		f := &typingFrame{typing: envelope.Type == types.FrameTypingStart}
		frame, payload = f, &f.TypingFrame
	case types.FrameFocusChat:
		f := &focusFrame{}
		frame, payload = f, &f.FocusChatFrame
	case types.FrameCallOffer, types.FrameCallAnswer, types.FrameCallICECandidate, types.FrameCallEnd:
		f := &callFrame{kind: envelope.Type}
		frame, payload = f, &f.CallFrame
	case types.FrameFriendRequest, types.FrameFriendRequestResponse:
		f := &friendFrame{kind: envelope.Type}
		frame, payload = f, &f.FriendRequestFrame
	case types.FrameHelpChatAuth:
		f := &helpAuthFrame{}
		frame, payload = f, &f.HelpChatAuthFrame
	case types.FrameHelpChatSendMessage:
		f := &helpMessageFrame{}
		frame, payload = f, &f.HelpChatSendMessageFrame
	case types.FrameHelpChatTyping:
		f := &helpTypingFrame{}
		frame, payload = f, &f.HelpChatTypingFrame
	case types.FrameAdminJoin:
		f := &adminJoinFrame{}
		frame, payload = f, &f.AdminJoinFrame
	case types.FrameAdminLeave:
		f := &adminLeaveFrame{}
		frame, payload = f, &f.AdminLeaveFrame
	case types.FramePing:
		return &pingFrame{}, nil
	case "":
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, ErrMissingFrameType)
	default:
		return nil, fmt.Errorf("%w: %w: %q", types.ErrValidation, ErrUnknownFrameType, envelope.Type)
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("%w: %w: %s", types.ErrValidation, ErrMalformedFrame, envelope.Type)
	}
	return frame, nil
}
