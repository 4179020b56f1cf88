// Package testutil provides in-memory doubles for the hub's connection and
// store dependencies.
package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

var _ interfaces.Connection = (*FakeConn)(nil)

// Frame is a written frame decoded back into a generic map.
type Frame map[string]interface{}

// Type returns the frame's "type" discriminator.
func (f Frame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// String returns a string field or "".
func (f Frame) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Map returns a nested object field or nil.
func (f Frame) Map(key string) Frame {
	m, _ := f[key].(map[string]interface{})
	return m
}

// FakeConn records every frame written to it. It follows the same
// write-once rules for identity and guest ID as the real connection.
type FakeConn struct {
	id string

	mu          sync.Mutex
	frames      []Frame
	identity    *types.Identity
	guestID     string
	currentChat string
	closed      bool
	flushed     bool
	writeErr    error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{id: uuid.New().String()}
}

// NewAuthedConn returns a connection already carrying identity.
func NewAuthedConn(identity types.Identity) *FakeConn {
	c := NewFakeConn()
	_ = c.Authenticate(identity)
	return c
}

// NewGuestConn returns a connection bound to guestID.
func NewGuestConn(guestID string) *FakeConn {
	c := NewFakeConn()
	_ = c.BindGuest(guestID)
	return c
}

func (c *FakeConn) ID() string { return c.id }

func (c *FakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeConn) CloseAfterFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushed = true
	c.closed = true
}

func (c *FakeConn) Authenticate(identity types.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guestID != "" {
		return errors.New("guest connection")
	}
	if c.identity != nil {
		if c.identity.UserID == identity.UserID {
			return nil
		}
		return fmt.Errorf("already authenticated as %s", c.identity.UserID)
	}
	c.identity = &identity
	return nil
}

func (c *FakeConn) Identity() *types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	identity := *c.identity
	return &identity
}

func (c *FakeConn) BindGuest(guestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != nil {
		return errors.New("authenticated connection")
	}
	if c.guestID != "" && c.guestID != guestID {
		return errors.New("already bound")
	}
	c.guestID = guestID
	return nil
}

func (c *FakeConn) GuestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestID
}

func (c *FakeConn) SetCurrentChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentChat = chatID
}

func (c *FakeConn) CurrentChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentChat
}

// FailWrites makes every later WriteJSON return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Frames returns a copy of every recorded frame.
func (c *FakeConn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// Types returns the recorded frame types in order.
func (c *FakeConn) Types() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type()
	}
	return out
}

// FramesOfType returns the recorded frames with the given type.
func (c *FakeConn) FramesOfType(frameType types.FrameType) []Frame {
	var out []Frame
	for _, f := range c.Frames() {
		if f.Type() == string(frameType) {
			out = append(out, f)
		}
	}
	return out
}

// Last returns the most recent frame, or nil.
func (c *FakeConn) Last() Frame {
	frames := c.Frames()
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

// Reset forgets recorded frames.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClosedAfterFlush reports whether CloseAfterFlush was called.
func (c *FakeConn) ClosedAfterFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushed
}
