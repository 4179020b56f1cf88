package interfaces

import "eduhub/pkg/types"

// Connection is a live client connection as seen by the hub components.
// Implementations must make WriteJSON safe for concurrent use.
type Connection interface {
	// ID is unique per transport handle, including reconnects of one identity.
	ID() string

	// WriteJSON queues a frame on the connection's outbound queue.
	WriteJSON(v interface{}) error

	// Close closes the transport. Idempotent.
	Close() error

	// CloseAfterFlush closes once every frame queued before the call is written.
	CloseAfterFlush()

	// Authenticate attaches a resolved identity. An identity can be attached
	// once; re-attaching the same user is a no-op and any other user fails.
	Authenticate(identity types.Identity) error

	// Identity returns a copy of the attached identity, or nil.
	Identity() *types.Identity

	// BindGuest binds an anonymous support-queue guest ID, once.
	BindGuest(guestID string) error

	// GuestID returns the bound guest ID, or "".
	GuestID() string

	// SetCurrentChat records the chat the client has open.
	SetCurrentChat(chatID string)

	// CurrentChat returns the chat the client has open, or "".
	CurrentChat() string
}
