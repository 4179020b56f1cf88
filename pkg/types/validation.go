package types

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the maximum number of characters in a text message.
const MaxTextLength = 2000

var (
	userIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	guestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Validate checks content rules for the message kind. Text needs non-empty
// content of at most MaxTextLength characters; every other kind needs a
// pre-uploaded file descriptor.
func (m *ChatMessage) Validate() error {
	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if !IsValidMessageKind(m.Kind) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidMessageKind)
	}

	if m.Kind == MessageKindText {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
		}
		if utf8.RuneCountInString(content) > MaxTextLength {
			return fmt.Errorf("%w: %w", ErrValidation, ErrContentTooLong)
		}
		m.Content = content
		m.File = nil
		return nil
	}

	if m.File == nil || m.File.URL == "" || m.File.Type == "" || m.File.Size <= 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingFile)
	}
	if utf8.RuneCountInString(m.Content) > MaxTextLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrContentTooLong)
	}
	return nil
}

// IsValidMessageKind checks if the kind is one of the supported payload kinds.
func IsValidMessageKind(kind MessageKind) bool {
	switch kind {
	case MessageKindText,
		MessageKindVoice,
		MessageKindImage,
		MessageKindVideo,
		MessageKindDocument:
		return true
	default:
		return false
	}
}

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidGuestID checks if a client-supplied guest ID is acceptable.
func IsValidGuestID(guestID string) bool {
	if len(guestID) < 1 || len(guestID) > 64 {
		return false
	}
	return guestIDRegex.MatchString(guestID)
}

// ParsePresenceStatus returns the status for a client-supplied string.
func ParsePresenceStatus(s string) (PresenceStatus, bool) {
	switch PresenceStatus(s) {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return PresenceStatus(s), true
	default:
		return "", false
	}
}

// CanTransition reports whether the presence state machine allows from -> to.
// Re-entering the current state is allowed and refreshes last-seen.
func CanTransition(from, to PresenceStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case PresenceOffline:
		return to == PresenceOnline
	case PresenceOnline:
		return to == PresenceAway || to == PresenceOffline
	case PresenceAway:
		return to == PresenceOnline || to == PresenceOffline
	default:
		return false
	}
}
