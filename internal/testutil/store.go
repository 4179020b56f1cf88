package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

var _ interfaces.Store = (*MemStore)(nil)

// MemStore is an in-memory interfaces.Store. Methods named in failures
// return the configured error instead of touching state.
type MemStore struct {
	mu           sync.Mutex
	users        map[string]types.Identity // userID -> identity
	friendships  map[[2]string]types.FriendshipStatus
	groups       map[string][]string
	audiences    map[string][]string
	presence     map[string]types.Presence
	messages     []*types.ChatMessage
	sessions     map[string]*types.SupportSession // guestID -> active session
	helpMessages []*types.HelpMessage
	agents       []*types.Agent
	failures     map[string]error
	delays       map[string]time.Duration
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]types.Identity),
		friendships: make(map[[2]string]types.FriendshipStatus),
		groups:      make(map[string][]string),
		audiences:   make(map[string][]string),
		presence:    make(map[string]types.Presence),
		sessions:    make(map[string]*types.SupportSession),
		failures:    make(map[string]error),
		delays:      make(map[string]time.Duration),
	}
}

// AddUser seeds a user. ExternalID defaults to "ext-"+UserID.
func (s *MemStore) AddUser(identity types.Identity) types.Identity {
	if identity.ExternalID == "" {
		identity.ExternalID = "ext-" + identity.UserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[identity.UserID] = identity
	return identity
}

// SetFriendship records a friendship status between two users.
func (s *MemStore) SetFriendship(a, b string, status types.FriendshipStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendships[[2]string{a, b}] = status
}

func (s *MemStore) AddGroup(groupID string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupID] = append([]string(nil), members...)
}

func (s *MemStore) AddAudience(teacherID string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audiences[teacherID] = append([]string(nil), members...)
}

// AddAgent appends an agent to the roster.
func (s *MemStore) AddAgent(agent types.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, &agent)
}

// Fail makes method return err until cleared with a nil err.
func (s *MemStore) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Delay makes method sleep for d, or until ctx is done.
func (s *MemStore) Delay(method string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[method] = d
}

func (s *MemStore) enter(ctx context.Context, method string) error {
	s.mu.Lock()
	err := s.failures[method]
	d := s.delays[method]
	s.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *MemStore) GetUserByExternalID(ctx context.Context, externalID string) (*types.Identity, error) {
	if err := s.enter(ctx, "GetUserByExternalID"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			identity := u
			return &identity, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemStore) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	if err := s.enter(ctx, "GetUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if err := s.enter(ctx, "AreFriends"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friendships[[2]string{a, b}] == types.FriendshipAccepted ||
		s.friendships[[2]string{b, a}] == types.FriendshipAccepted, nil
}

func (s *MemStore) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	if err := s.enter(ctx, "ListFriendIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for pair, status := range s.friendships {
		if status != types.FriendshipAccepted {
			continue
		}
		switch userID {
		case pair[0]:
			ids = append(ids, pair[1])
		case pair[1]:
			ids = append(ids, pair[0])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) UpdatePresence(ctx context.Context, presence *types.Presence) error {
	if err := s.enter(ctx, "UpdatePresence"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[presence.UserID]; !ok {
		return interfaces.ErrNotFound
	}
	s.presence[presence.UserID] = *presence
	return nil
}

// Presence returns the last persisted presence of a user.
func (s *MemStore) Presence(userID string) (types.Presence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	return p, ok
}

func (s *MemStore) StoreMessage(ctx context.Context, message *types.ChatMessage) error {
	if err := s.enter(ctx, "StoreMessage"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *message
	s.messages = append(s.messages, &stored)
	return nil
}

// Messages returns every persisted chat message.
func (s *MemStore) Messages() []*types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.ChatMessage(nil), s.messages...)
}

func (s *MemStore) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	if err := s.enter(ctx, "IsGroupMember"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.groups[groupID] {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if err := s.enter(ctx, "ListGroupMembers"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.groups[groupID]...), nil
}

func (s *MemStore) ListTeacherAudience(ctx context.Context, teacherID string) ([]string, error) {
	if err := s.enter(ctx, "ListTeacherAudience"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.audiences[teacherID]...), nil
}

func (s *MemStore) GetSupportSession(ctx context.Context, guestID string) (*types.SupportSession, error) {
	if err := s.enter(ctx, "GetSupportSession"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[guestID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copySession(session), nil
}

func (s *MemStore) CreateSupportSession(ctx context.Context, session *types.SupportSession) error {
	if err := s.enter(ctx, "CreateSupportSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.GuestID]; ok {
		return fmt.Errorf("support session for %s: %w", session.GuestID, interfaces.ErrDuplicate)
	}
	stored := copySession(session)
	stored.Active = true
	s.sessions[session.GuestID] = stored
	return nil
}

func (s *MemStore) UpdateSupportSessionAgent(ctx context.Context, guestID string, agent *types.Agent, at time.Time) error {
	if err := s.enter(ctx, "UpdateSupportSessionAgent"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[guestID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if agent == nil {
		session.Agent = nil
	} else {
		a := *agent
		session.Agent = &a
	}
	session.UpdatedAt = at
	return nil
}

func (s *MemStore) ListActiveSupportSessions(ctx context.Context) ([]*types.SupportSession, error) {
	if err := s.enter(ctx, "ListActiveSupportSessions"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.SupportSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, copySession(session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuestID < out[j].GuestID })
	return out, nil
}

// Session returns the active session of a guest without failure injection.
func (s *MemStore) Session(guestID string) (*types.SupportSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[guestID]
	if !ok {
		return nil, false
	}
	return copySession(session), true
}

// PutSession seeds an active session directly.
func (s *MemStore) PutSession(session types.SupportSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Active = true
	s.sessions[session.GuestID] = copySession(&session)
}

func (s *MemStore) StoreHelpMessage(ctx context.Context, message *types.HelpMessage) error {
	if err := s.enter(ctx, "StoreHelpMessage"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *message
	s.helpMessages = append(s.helpMessages, &stored)
	return nil
}

// HelpMessages returns the persisted support messages of a guest.
func (s *MemStore) HelpMessages(guestID string) []*types.HelpMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.HelpMessage
	for _, m := range s.helpMessages {
		if m.GuestID == guestID {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemStore) CountGuestMessages(ctx context.Context, guestID string) (int, error) {
	if err := s.enter(ctx, "CountGuestMessages"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.helpMessages {
		if m.GuestID == guestID && m.Sender == types.HelpSenderGuest {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	if err := s.enter(ctx, "ListAgents"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Agent, len(s.agents))
	for i, a := range s.agents {
		agent := *a
		out[i] = &agent
	}
	return out, nil
}

func (s *MemStore) HealthCheck(ctx context.Context) error {
	return s.enter(ctx, "HealthCheck")
}

func (s *MemStore) Close() error {
	return nil
}

func copySession(session *types.SupportSession) *types.SupportSession {
	out := *session
	if session.Agent != nil {
		agent := *session.Agent
		out.Agent = &agent
	}
	return &out
}
