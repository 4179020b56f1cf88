package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "eduhub/pkg/database"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("Failed to close database manager: %v", err)
		}
	})
	return manager
}

func testSeed() *Seed {
	return &Seed{
		Users: []SeedUser{
			{ID: "u-alice", ExternalID: "ext-alice", Role: "student", Name: "Alice"},
			{ID: "u-bob", ExternalID: "ext-bob", Role: "student", Name: "Bob"},
			{ID: "u-tina", ExternalID: "ext-tina", Role: "teacher", Name: "Tina"},
			{ID: "u-sam", ExternalID: "ext-sam", Role: "support", Name: "Sam", Avatar: "sam.png"},
		},
		Friendships: []SeedFriendship{
			{Requester: "u-alice", Receiver: "u-bob", Status: "pending"},
			{Requester: "u-tina", Receiver: "u-alice"},
		},
		Groups: []SeedGroup{
			{ID: "g-math", Name: "Math", Owner: "u-tina", Members: []string{"u-tina", "u-alice"}},
		},
		Audiences: []SeedAudience{
			{Teacher: "u-tina", Members: []string{"u-alice", "u-bob"}},
		},
		Agents: []SeedAgent{
			{ID: "a-amy", Name: "Amy"},
			{ID: "a-ben", Name: "Ben"},
		},
	}
}

func seededDB(t *testing.T) *Manager {
	t.Helper()
	m := setupTestDB(t)
	require.NoError(t, m.ApplySeed(context.Background(), testSeed()))
	return m
}

func TestNewManager_InvalidConfig(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = ""

	_, err := NewManager(config)
	assert.Error(t, err)
}

func TestManager_HealthCheck(t *testing.T) {
	m := setupTestDB(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestManager_IdentityLookup(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	identity, err := m.GetUserByExternalID(ctx, "ext-sam")
	require.NoError(t, err)
	assert.Equal(t, "u-sam", identity.UserID)
	assert.Equal(t, types.RoleSupport, identity.Role)
	assert.Equal(t, "sam.png", identity.Avatar)

	identity, err = m.GetUser(ctx, "u-tina")
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, identity.Role)

	_, err = m.GetUserByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestManager_Friendships(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	friends, err := m.AreFriends(ctx, "u-alice", "u-bob")
	require.NoError(t, err)
	assert.False(t, friends, "pending friendship is not a friendship")

	require.NoError(t, m.SetFriendshipStatus(ctx, "u-alice", "u-bob", types.FriendshipAccepted))

	friends, err = m.AreFriends(ctx, "u-bob", "u-alice")
	require.NoError(t, err)
	assert.True(t, friends, "accepted friendship holds in both directions")

	ids, err := m.ListFriendIDs(ctx, "u-alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-bob", "u-tina"}, ids)
}

func TestManager_UpdatePresence(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := m.UpdatePresence(ctx, &types.Presence{
		UserID: "u-bob", Status: types.PresenceAway, IsOnline: true, LastSeen: seen,
	})
	require.NoError(t, err)

	presence, err := m.GetPresence(ctx, "u-bob")
	require.NoError(t, err)
	assert.Equal(t, types.PresenceAway, presence.Status)
	assert.True(t, presence.IsOnline)
	assert.True(t, seen.Equal(presence.LastSeen))

	err = m.UpdatePresence(ctx, &types.Presence{UserID: "nobody", Status: types.PresenceOnline})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestManager_StoreMessage(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	receiver := "u-bob"
	err := m.StoreMessage(ctx, &types.ChatMessage{
		ID:         "m1",
		SenderID:   "u-alice",
		ReceiverID: &receiver,
		Kind:       types.MessageKindText,
		Content:    "hi",
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	group := "g-math"
	err = m.StoreMessage(ctx, &types.ChatMessage{
		ID:       "m2",
		SenderID: "u-tina",
		GroupID:  &group,
		Kind:     types.MessageKindImage,
		File: &types.FileMetadata{
			URL: "https://cdn.example/x.png", Type: "image/png", Size: 10,
		},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	n, err := m.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Duplicate primary key is not retried and surfaces an error
	err = m.StoreMessage(ctx, &types.ChatMessage{
		ID: "m1", SenderID: "u-alice", ReceiverID: &receiver, Kind: types.MessageKindText, Content: "x",
	})
	assert.Error(t, err)
}

func TestManager_GroupsAndAudience(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	member, err := m.IsGroupMember(ctx, "g-math", "u-alice")
	require.NoError(t, err)
	assert.True(t, member)

	member, err = m.IsGroupMember(ctx, "g-math", "u-bob")
	require.NoError(t, err)
	assert.False(t, member)

	members, err := m.ListGroupMembers(ctx, "g-math")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-tina", "u-alice"}, members)

	audience, err := m.ListTeacherAudience(ctx, "u-tina")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-alice", "u-bob"}, audience)
}

func TestManager_SupportSessions(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.GetSupportSession(ctx, "G1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	amy := &types.Agent{ID: "a-amy", Name: "Amy"}
	require.NoError(t, m.CreateSupportSession(ctx, &types.SupportSession{
		ID: "s1", GuestID: "G1", Agent: amy, Active: true, CreatedAt: now, UpdatedAt: now,
	}))

	err = m.CreateSupportSession(ctx, &types.SupportSession{
		ID: "s2", GuestID: "G1", Active: true, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, interfaces.ErrDuplicate)

	session, err := m.GetSupportSession(ctx, "G1")
	require.NoError(t, err)
	require.NotNil(t, session.Agent)
	assert.Equal(t, "Amy", session.Agent.Name)

	require.NoError(t, m.UpdateSupportSessionAgent(ctx, "G1", nil, now))
	session, err = m.GetSupportSession(ctx, "G1")
	require.NoError(t, err)
	assert.Nil(t, session.Agent)

	err = m.UpdateSupportSessionAgent(ctx, "G-missing", amy, now)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	sessions, err := m.ListActiveSupportSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestManager_HelpMessagesAndAgents(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	for i, sender := range []types.HelpSender{types.HelpSenderGuest, types.HelpSenderAgent, types.HelpSenderGuest} {
		require.NoError(t, m.StoreHelpMessage(ctx, &types.HelpMessage{
			ID:        string(rune('a' + i)),
			GuestID:   "G1",
			Sender:    sender,
			Content:   "msg",
			CreatedAt: time.Now(),
		}))
	}

	n, err := m.CountGuestMessages(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	agents, err := m.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "Amy", agents[0].Name)
	assert.Equal(t, "Ben", agents[1].Name)
}

func TestManager_ConcurrentWrites(t *testing.T) {
	m := seededDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receiver := "u-bob"
			errs <- m.StoreMessage(ctx, &types.ChatMessage{
				ID:         fmt.Sprintf("c%d", i),
				SenderID:   "u-alice",
				ReceiverID: &receiver,
				Kind:       types.MessageKindText,
				Content:    "concurrent",
				CreatedAt:  time.Now(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := m.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestManager_WriteAfterClose(t *testing.T) {
	m := setupTestDB(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "Close should be idempotent")

	err := m.UpdatePresence(context.Background(), &types.Presence{UserID: "u"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
users:
  - id: u1
    external_id: ext-1
    role: teacher
    name: Tina
agents:
  - id: a1
    name: Amy
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Users, 1)
	assert.Equal(t, "teacher", seed.Users[0].Role)
	require.Len(t, seed.Agents, 1)
	assert.Equal(t, "Amy", seed.Agents[0].Name)

	m := setupTestDB(t)
	require.NoError(t, m.ApplySeed(context.Background(), seed))
	identity, err := m.GetUserByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, identity.Role)
}
