// Package signaling forwards call setup frames between two peers. Payloads
// are opaque and nothing is persisted.
package signaling

import (
	"fmt"
	"log/slog"

	"eduhub/internal/logger"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// Directory finds the live connection of a peer.
type Directory interface {
	Lookup(userID string) (interfaces.Connection, bool)
}

type Relay struct {
	peers Directory
	log   *slog.Logger
}

func NewRelay(peers Directory) *Relay {
	return &Relay{peers: peers, log: logger.Component("signaling")}
}

// IsCallFrame reports whether kind is one of the relayed signaling kinds.
func IsCallFrame(kind types.FrameType) bool {
	switch kind {
	case types.FrameCallOffer, types.FrameCallAnswer, types.FrameCallICECandidate, types.FrameCallEnd:
		return true
	default:
		return false
	}
}

// Forward relays frame to its receiver with the sender attached. When the
// receiver is not connected, an offer fails with ErrPeerUnavailable and every
// other kind is dropped silently.
func (r *Relay) Forward(sender types.Identity, kind types.FrameType, frame *types.CallFrame) error {
	if !IsCallFrame(kind) {
		return fmt.Errorf("%w: %s is not a call frame", types.ErrValidation, kind)
	}
	if frame.ReceiverID == "" {
		return fmt.Errorf("%w: %w", types.ErrValidation, types.ErrMissingTarget)
	}

	conn, ok := r.peers.Lookup(frame.ReceiverID)
	if !ok {
		if kind == types.FrameCallOffer {
			return fmt.Errorf("%w: %s", types.ErrPeerUnavailable, frame.ReceiverID)
		}
		r.log.Debug("dropping call frame for absent peer",
			slog.String("frame", string(kind)),
			slog.String("user_id", frame.ReceiverID))
		return nil
	}

	relayed := types.CallRelay{
		Type:     kind,
		From:     sender.UserID,
		FromName: sender.Name,
		Payload:  frame.Payload,
	}
	if err := conn.WriteJSON(relayed); err != nil {
		if kind == types.FrameCallOffer {
			return fmt.Errorf("%w: %w", types.ErrPeerUnavailable, err)
		}
		r.log.Debug("failed to relay call frame", slog.String("user_id", frame.ReceiverID), slog.Any("error", err))
	}
	return nil
}

// CallError builds the call_error frame returned to the caller.
func CallError(receiverID string) types.CallError {
	return types.CallError{
		Type:       types.FrameCallError,
		Reason:     types.ErrPeerUnavailable.Error(),
		ReceiverID: receiverID,
	}
}
