// Package support runs the guest help desk: guest sessions, agent
// assignment, the one-shot welcome and join/leave by staff.
package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"eduhub/internal/logger"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// Directory is how the engine reaches guests and staff.
type Directory interface {
	LookupGuest(guestID string) (interfaces.Connection, bool)
	BroadcastStaff(frame interface{}) int
}

type pendingWelcome struct {
	agent types.Agent
	text  string
}

// Engine owns the in-memory view of guest conversations. The store is the
// source of truth on restart; LoadActiveAssignments rebuilds the view.
type Engine struct {
	store     interfaces.SupportStore
	directory Directory
	log       *slog.Logger
	now       func() time.Time
	intn      func(int) int

	settingsMu sync.RWMutex
	settings   Settings

	mu           sync.Mutex
	assignments  map[string]types.Agent // guestID -> presented agent
	lastAssigned map[string]time.Time   // agentID -> last assignment

	welcomeMu sync.Mutex
	welcomes  map[string]pendingWelcome // guestID -> welcome not yet delivered
}

func NewEngine(store interfaces.SupportStore, directory Directory, settings Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:        store,
		directory:    directory,
		log:          logger.Component("support"),
		now:          time.Now,
		intn:         rand.Intn,
		settings:     settings,
		assignments:  make(map[string]types.Agent),
		lastAssigned: make(map[string]time.Time),
		welcomes:     make(map[string]pendingWelcome),
	}, nil
}

// NewGuestID issues a server-side guest identifier.
func NewGuestID() string {
	return "guest_" + ulid.Make().String()
}

// ResolveGuestID keeps a client-supplied guest ID when continuity is enabled
// and the ID is well formed; otherwise it issues a new one.
func (e *Engine) ResolveGuestID(requested string) string {
	if e.Settings().GuestContinuity && types.IsValidGuestID(requested) {
		return requested
	}
	return NewGuestID()
}

func (e *Engine) Settings() Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// UpdateSettings replaces the settings after validating them.
func (e *Engine) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.settingsMu.Lock()
	e.settings = s
	e.settingsMu.Unlock()
	e.log.Info("support settings updated",
		slog.String("mode", string(s.Mode)),
		slog.String("policy", string(s.Policy)))
	return nil
}

// LoadActiveAssignments replaces the in-memory assignments with the agents
// of every active session in the store.
func (e *Engine) LoadActiveAssignments(ctx context.Context) (int, error) {
	sessions, err := e.store.ListActiveSupportSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}

	loaded := make(map[string]types.Agent, len(sessions))
	for _, session := range sessions {
		if session.Agent != nil {
			loaded[session.GuestID] = *session.Agent
		}
	}

	e.mu.Lock()
	e.assignments = loaded
	e.mu.Unlock()
	return len(loaded), nil
}

// Assignment returns the agent presented to a guest.
func (e *Engine) Assignment(guestID string) (types.Agent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.assignments[guestID]
	return agent, ok
}

// Assignments returns a snapshot ordered by guest ID.
func (e *Engine) Assignments() []types.GuestAssignee {
	e.mu.Lock()
	out := make([]types.GuestAssignee, 0, len(e.assignments))
	for guestID, agent := range e.assignments {
		out = append(out, types.GuestAssignee{GuestID: guestID, Agent: agent})
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuestID < out[j].GuestID })
	return out
}

// Load returns the number of guests assigned to an agent.
func (e *Engine) Load(agentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(agentID)
}

func (e *Engine) loadLocked(agentID string) int {
	n := 0
	for _, agent := range e.assignments {
		if agent.ID == agentID {
			n++
		}
	}
	return n
}

// HasPendingWelcome reports whether a welcome is waiting for the guest's
// first message.
func (e *Engine) HasPendingWelcome(guestID string) bool {
	e.welcomeMu.Lock()
	defer e.welcomeMu.Unlock()
	_, ok := e.welcomes[guestID]
	return ok
}

// GuestConnected tells staff the guest is online and, in auto mode, tries to
// assign an agent. A guest nobody can take receives the queued text.
func (e *Engine) GuestConnected(ctx context.Context, guestID string) error {
	e.directory.BroadcastStaff(types.GuestOnline{
		Type:    types.FrameHelpChatGuestOnline,
		GuestID: guestID,
		Online:  true,
	})

	settings := e.Settings()
	if settings.Mode != ModeAuto {
		return nil
	}
	if _, ok := e.Assignment(guestID); ok {
		return nil
	}

	_, err := e.autoAssign(ctx, guestID)
	if errors.Is(err, types.ErrAssignmentUnavailable) {
		e.sendToGuest(guestID, types.HelpChatQueued{
			Type:    types.FrameHelpChatQueued,
			GuestID: guestID,
			Message: settings.QueuedText,
		})
		return nil
	}
	return err
}

// GuestDisconnected tells staff the guest went offline. The assignment and
// session stay.
func (e *Engine) GuestDisconnected(guestID string) {
	e.directory.BroadcastStaff(types.GuestOnline{
		Type:    types.FrameHelpChatGuestOnline,
		GuestID: guestID,
		Online:  false,
	})
}

// GuestMessage persists a guest's message, forwards it to staff and then
// delivers any pending welcome. The guest gets no echo.
func (e *Engine) GuestMessage(ctx context.Context, guestID, content string) (*types.HelpMessage, error) {
	content, err := cleanText(content)
	if err != nil {
		return nil, err
	}

	message := &types.HelpMessage{
		ID:        uuid.New().String(),
		GuestID:   guestID,
		Sender:    types.HelpSenderGuest,
		Content:   content,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.StoreHelpMessage(ctx, message); err != nil {
		return nil, e.persistenceError(ctx, "failed to store guest message", guestID, err)
	}

	e.directory.BroadcastStaff(types.HelpChatMessage{Type: types.FrameHelpChatMessage, Message: message})
	e.directory.BroadcastStaff(types.ConversationUpdate{
		Type:          types.FrameUnifiedConversationUpdate,
		GuestID:       guestID,
		HasNewMessage: true,
	})

	if _, ok := e.Assignment(guestID); !ok && e.Settings().Mode == ModeAuto {
		// An agent may have come online since the guest connected.
		if _, err := e.autoAssign(ctx, guestID); err != nil && !errors.Is(err, types.ErrAssignmentUnavailable) {
			logger.FromContext(ctx).Warn("late assignment failed", slog.String("guest_id", guestID), slog.Any("error", err))
		}
	}

	e.deliverPendingWelcome(ctx, guestID)
	return message, nil
}

// StaffMessage sends a staff reply to the guest under the agent persona the
// conversation is assigned to.
func (e *Engine) StaffMessage(ctx context.Context, staff types.Identity, guestID, content string) (*types.HelpMessage, error) {
	if !staff.Role.IsStaff() {
		return nil, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotStaff)
	}
	content, err := cleanText(content)
	if err != nil {
		return nil, err
	}
	agent, ok := e.Assignment(guestID)
	if !ok {
		return nil, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotAssigned)
	}

	message := &types.HelpMessage{
		ID:          uuid.New().String(),
		GuestID:     guestID,
		Sender:      types.HelpSenderAgent,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		AgentAvatar: agent.Avatar,
		StaffID:     staff.UserID,
		Content:     content,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.StoreHelpMessage(ctx, message); err != nil {
		return nil, e.persistenceError(ctx, "failed to store staff message", guestID, err)
	}

	// The agent has spoken; a canned welcome after this would be out of place.
	e.takeWelcome(guestID)

	frame := types.HelpChatMessage{Type: types.FrameHelpChatMessage, Message: message}
	e.sendToGuest(guestID, frame)
	e.directory.BroadcastStaff(frame)
	return message, nil
}

// GuestTyping relays a guest's typing indicator to staff.
func (e *Engine) GuestTyping(guestID string, isTyping bool) {
	e.directory.BroadcastStaff(types.HelpChatTyping{
		Type:     types.FrameHelpChatTyping,
		GuestID:  guestID,
		IsTyping: isTyping,
		Sender:   string(types.HelpSenderGuest),
	})
}

// StaffTyping relays a staff typing indicator to the guest under the agent
// persona. Nothing is sent for unassigned conversations.
func (e *Engine) StaffTyping(guestID string, isTyping bool) bool {
	agent, ok := e.Assignment(guestID)
	if !ok {
		return false
	}
	return e.sendToGuest(guestID, types.HelpChatTyping{
		Type:      types.FrameHelpChatTyping,
		GuestID:   guestID,
		IsTyping:  isTyping,
		Sender:    string(types.HelpSenderAgent),
		AgentName: agent.Name,
	})
}

// Join assigns a conversation manually. Support staff appear under their own
// name; admins appear as a roster agent: selectedAgentID if given, else the
// current agent, else a policy pick.
func (e *Engine) Join(ctx context.Context, staff types.Identity, guestID, selectedAgentID string) (types.Agent, error) {
	if !staff.Role.IsStaff() {
		return types.Agent{}, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotStaff)
	}
	if err := e.knownConversation(ctx, guestID); err != nil {
		return types.Agent{}, err
	}

	var agent types.Agent
	if staff.Role == types.RoleSupport {
		agent = types.Agent{ID: staff.UserID, Name: staff.Name, Avatar: staff.Avatar}
	} else {
		picked, err := e.pickPersona(ctx, guestID, selectedAgentID)
		if err != nil {
			return types.Agent{}, err
		}
		agent = picked
	}

	if current, ok := e.Assignment(guestID); ok && current == agent {
		return agent, nil
	}

	e.mu.Lock()
	previous, hadPrevious := e.assignments[guestID]
	e.assignments[guestID] = agent
	e.mu.Unlock()

	if err := e.commit(ctx, guestID, agent, true); err != nil {
		e.mu.Lock()
		if hadPrevious {
			e.assignments[guestID] = previous
		} else {
			delete(e.assignments, guestID)
		}
		e.mu.Unlock()
		return types.Agent{}, err
	}
	return agent, nil
}

// knownConversation rejects malformed guest IDs and guests the desk has never
// seen: not assigned, not connected, no session and no messages.
func (e *Engine) knownConversation(ctx context.Context, guestID string) error {
	if !types.IsValidGuestID(guestID) {
		return fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidGuestID)
	}
	if _, ok := e.Assignment(guestID); ok {
		return nil
	}
	if _, ok := e.directory.LookupGuest(guestID); ok {
		return nil
	}

	_, err := e.store.GetSupportSession(ctx, guestID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return e.persistenceError(ctx, "failed to read support session", guestID, err)
	}

	n, err := e.store.CountGuestMessages(ctx, guestID)
	if err != nil {
		return e.persistenceError(ctx, "failed to count guest messages", guestID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %w: %s", types.ErrValidation, ErrUnknownConversation, guestID)
	}
	return nil
}

func (e *Engine) pickPersona(ctx context.Context, guestID, selectedAgentID string) (types.Agent, error) {
	if selectedAgentID == "" {
		if current, ok := e.Assignment(guestID); ok {
			return current, nil
		}
	}

	roster, err := e.store.ListAgents(ctx)
	if err != nil {
		return types.Agent{}, e.persistenceError(ctx, "failed to load agent roster", guestID, err)
	}

	if selectedAgentID != "" {
		for _, agent := range roster {
			if agent.ID == selectedAgentID {
				return *agent, nil
			}
		}
		return types.Agent{}, fmt.Errorf("%w: %w: %s", types.ErrValidation, ErrUnknownAgent, selectedAgentID)
	}

	// Manual joins ignore working hours and the session ceiling.
	e.mu.Lock()
	candidates := e.candidatesLocked(roster)
	e.mu.Unlock()

	picked := selectAgent(e.Settings().Policy, candidates, 0, e.intn)
	if picked == nil {
		return types.Agent{}, types.ErrAssignmentUnavailable
	}
	return *picked, nil
}

// Leave clears the conversation's agent in memory and in the store, tells
// the guest and staff, and frees the slot.
func (e *Engine) Leave(ctx context.Context, staff types.Identity, guestID string) (types.Agent, error) {
	if !staff.Role.IsStaff() {
		return types.Agent{}, fmt.Errorf("%w: %w", types.ErrPermissionDenied, ErrNotStaff)
	}
	if !types.IsValidGuestID(guestID) {
		return types.Agent{}, fmt.Errorf("%w: %w", types.ErrValidation, types.ErrInvalidGuestID)
	}
	agent, ok := e.Assignment(guestID)
	if !ok {
		return types.Agent{}, fmt.Errorf("%w: %w", types.ErrValidation, ErrNotAssigned)
	}

	err := e.store.UpdateSupportSessionAgent(ctx, guestID, nil, e.now().UTC())
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return types.Agent{}, e.persistenceError(ctx, "failed to clear session agent", guestID, err)
	}

	e.mu.Lock()
	if current, ok := e.assignments[guestID]; ok && current == agent {
		delete(e.assignments, guestID)
	}
	e.mu.Unlock()
	e.takeWelcome(guestID)

	notice := &types.HelpMessage{
		ID:          uuid.New().String(),
		GuestID:     guestID,
		Sender:      types.HelpSenderSystem,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		AgentAvatar: agent.Avatar,
		StaffID:     staff.UserID,
		Content:     agent.Name + " left the chat",
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.StoreHelpMessage(ctx, notice); err != nil {
		logger.FromContext(ctx).Warn("failed to store leave notice", slog.String("guest_id", guestID), slog.Any("error", err))
	}

	frame := types.HelpChatMessage{Type: types.FrameHelpChatMessage, Message: notice}
	e.sendToGuest(guestID, frame)
	e.directory.BroadcastStaff(frame)
	e.directory.BroadcastStaff(types.AssignmentCleared{
		Type:    types.FrameConversationAssignmentCleared,
		GuestID: guestID,
		AgentID: agent.ID,
	})

	e.log.Info("agent left conversation",
		slog.String("guest_id", guestID),
		slog.String("agent_id", agent.ID),
		slog.String("user_id", staff.UserID))
	return agent, nil
}

// autoAssign picks an agent by policy inside working hours. The choice is
// reserved under the lock so concurrent guests see each other's load.
func (e *Engine) autoAssign(ctx context.Context, guestID string) (types.Agent, error) {
	settings := e.Settings()
	if !settings.WorkingHours.Open(e.now()) {
		return types.Agent{}, fmt.Errorf("%w: outside working hours", types.ErrAssignmentUnavailable)
	}

	roster, err := e.store.ListAgents(ctx)
	if err != nil {
		return types.Agent{}, e.persistenceError(ctx, "failed to load agent roster", guestID, err)
	}

	e.mu.Lock()
	if current, ok := e.assignments[guestID]; ok {
		e.mu.Unlock()
		return current, nil
	}
	picked := selectAgent(settings.Policy, e.candidatesLocked(roster), settings.MaxConcurrentSessions, e.intn)
	if picked == nil {
		e.mu.Unlock()
		return types.Agent{}, types.ErrAssignmentUnavailable
	}
	agent := *picked
	e.assignments[guestID] = agent
	e.mu.Unlock()

	if err := e.commit(ctx, guestID, agent, false); err != nil {
		e.mu.Lock()
		if current, ok := e.assignments[guestID]; ok && current == agent {
			delete(e.assignments, guestID)
		}
		e.mu.Unlock()
		return types.Agent{}, err
	}
	return agent, nil
}

func (e *Engine) candidatesLocked(roster []*types.Agent) []candidate {
	candidates := make([]candidate, 0, len(roster))
	for _, agent := range roster {
		candidates = append(candidates, candidate{
			agent:        agent,
			load:         e.loadLocked(agent.ID),
			lastAssigned: e.lastAssigned[agent.ID],
		})
	}
	return candidates
}

// commit persists a reserved assignment, notifies staff and then handles the
// welcome: pending until the guest speaks, or sent now if they already have.
func (e *Engine) commit(ctx context.Context, guestID string, agent types.Agent, manual bool) error {
	if err := e.persistAssignment(ctx, guestID, agent); err != nil {
		return err
	}

	e.mu.Lock()
	e.lastAssigned[agent.ID] = e.now()
	e.mu.Unlock()

	e.directory.BroadcastStaff(types.AgentAssigned{
		Type:        types.FrameHelpChatAgentAssigned,
		GuestID:     guestID,
		Agent:       agent.Name,
		AgentID:     agent.ID,
		AgentAvatar: agent.Avatar,
		Manual:      manual,
	})
	e.log.Info("agent assigned",
		slog.String("guest_id", guestID),
		slog.String("agent_id", agent.ID),
		slog.Bool("manual", manual))

	welcome := pendingWelcome{agent: agent, text: e.Settings().Welcome(agent.Name)}
	spoken, err := e.store.CountGuestMessages(ctx, guestID)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to count guest messages", slog.String("guest_id", guestID), slog.Any("error", err))
	}
	if spoken > 0 {
		e.sendWelcome(ctx, guestID, welcome)
		return nil
	}

	e.welcomeMu.Lock()
	e.welcomes[guestID] = welcome
	e.welcomeMu.Unlock()
	return nil
}

// persistAssignment upserts the guest's active session. Losing a creation
// race to another assignment falls back to an update.
func (e *Engine) persistAssignment(ctx context.Context, guestID string, agent types.Agent) error {
	now := e.now().UTC()
	session := &types.SupportSession{
		ID:        uuid.New().String(),
		GuestID:   guestID,
		Agent:     &agent,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.store.CreateSupportSession(ctx, session)
	if errors.Is(err, interfaces.ErrDuplicate) {
		err = e.store.UpdateSupportSessionAgent(ctx, guestID, &agent, now)
	}
	if err != nil {
		return e.persistenceError(ctx, "failed to persist assignment", guestID, err)
	}
	return nil
}

func (e *Engine) takeWelcome(guestID string) (pendingWelcome, bool) {
	e.welcomeMu.Lock()
	defer e.welcomeMu.Unlock()
	welcome, ok := e.welcomes[guestID]
	if ok {
		delete(e.welcomes, guestID)
	}
	return welcome, ok
}

// deliverPendingWelcome sends the welcome at most once.
func (e *Engine) deliverPendingWelcome(ctx context.Context, guestID string) {
	if welcome, ok := e.takeWelcome(guestID); ok {
		e.sendWelcome(ctx, guestID, welcome)
	}
}

func (e *Engine) sendWelcome(ctx context.Context, guestID string, welcome pendingWelcome) {
	message := &types.HelpMessage{
		ID:          uuid.New().String(),
		GuestID:     guestID,
		Sender:      types.HelpSenderSystem,
		AgentID:     welcome.agent.ID,
		AgentName:   welcome.agent.Name,
		AgentAvatar: welcome.agent.Avatar,
		Content:     welcome.text,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.StoreHelpMessage(ctx, message); err != nil {
		logger.FromContext(ctx).Warn("failed to store welcome", slog.String("guest_id", guestID), slog.Any("error", err))
	}

	frame := types.HelpChatMessage{Type: types.FrameHelpChatMessage, Message: message}
	e.sendToGuest(guestID, frame)
	e.directory.BroadcastStaff(frame)
}

func (e *Engine) sendToGuest(guestID string, frame interface{}) bool {
	conn, ok := e.directory.LookupGuest(guestID)
	if !ok {
		return false
	}
	if err := conn.WriteJSON(frame); err != nil {
		e.log.Debug("failed to write to guest", slog.String("guest_id", guestID), slog.Any("error", err))
		return false
	}
	return true
}

func (e *Engine) persistenceError(ctx context.Context, msg, guestID string, err error) error {
	logger.FromContext(ctx).Error(msg, slog.String("guest_id", guestID), slog.Any("error", err))
	return fmt.Errorf("%w: %w", types.ErrPersistence, err)
}

func cleanText(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: %w", types.ErrValidation, ErrEmptyMessage)
	}
	if utf8.RuneCountInString(content) > types.MaxTextLength {
		return "", fmt.Errorf("%w: %w", types.ErrValidation, ErrMessageTooLong)
	}
	return content, nil
}
