package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub/internal/testutil"
	"eduhub/internal/websocket"
	"eduhub/pkg/types"
)

type fixture struct {
	tracker  *Tracker
	store    *testutil.MemStore
	registry *websocket.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemStore()
	registry := websocket.NewRegistry()
	return &fixture{
		tracker:  NewTracker(store, registry),
		store:    store,
		registry: registry,
	}
}

func (f *fixture) online(t *testing.T, userID string, role types.Role) (types.Identity, *testutil.FakeConn) {
	t.Helper()
	identity := f.store.AddUser(types.Identity{UserID: userID, Role: role, Name: userID})
	conn := testutil.NewAuthedConn(identity)
	require.NoError(t, f.registry.Register(conn))
	return identity, conn
}

func TestCanSee(t *testing.T) {
	tests := []struct {
		name    string
		viewer  types.Role
		subject types.Role
		friends bool
		want    bool
	}{
		{"staff sees student", types.RoleSupport, types.RoleStudent, false, true},
		{"student sees teacher", types.RoleStudent, types.RoleTeacher, false, true},
		{"student sees admin", types.RoleStudent, types.RoleAdmin, false, true},
		{"friend sees friend", types.RoleStudent, types.RoleStudent, true, true},
		{"stranger", types.RoleStudent, types.RoleStudent, false, false},
		{"teacher sees stranger student", types.RoleTeacher, types.RoleStudent, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanSee(tt.viewer, tt.subject, tt.friends))
		})
	}
}

func TestTracker_ConnectPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	_, staffConn := f.online(t, "sam", types.RoleSupport)
	_, friendConn := f.online(t, "bob", types.RoleStudent)
	_, strangerConn := f.online(t, "carol", types.RoleStudent)
	alice, aliceConn := f.online(t, "alice", types.RoleStudent)
	f.store.SetFriendship("alice", "bob", types.FriendshipAccepted)

	require.NoError(t, f.tracker.Connect(context.Background(), alice))

	assert.Equal(t, types.PresenceOnline, f.tracker.Status("alice"))
	record, ok := f.store.Presence("alice")
	require.True(t, ok)
	assert.True(t, record.IsOnline)
	assert.False(t, record.LastSeen.IsZero())

	assert.Len(t, staffConn.FramesOfType(types.FramePresenceUpdate), 1)
	frames := friendConn.FramesOfType(types.FramePresenceUpdate)
	require.Len(t, frames, 1)
	assert.Equal(t, "alice", frames[0].String("userId"))
	assert.Equal(t, "online", frames[0].String("status"))
	assert.Empty(t, strangerConn.Frames())
	assert.Empty(t, aliceConn.Frames(), "subject does not receive its own update")
}

func TestTracker_TeacherIsPublic(t *testing.T) {
	f := newFixture(t)
	_, studentConn := f.online(t, "alice", types.RoleStudent)
	tina, _ := f.online(t, "tina", types.RoleTeacher)

	require.NoError(t, f.tracker.Connect(context.Background(), tina))
	assert.Len(t, studentConn.FramesOfType(types.FramePresenceUpdate), 1)
}

func TestTracker_StateMachine(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.online(t, "alice", types.RoleStudent)
	ctx := context.Background()

	err := f.tracker.Update(ctx, alice, "away")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "offline cannot go away")
	assert.ErrorIs(t, err, types.ErrValidation)

	require.NoError(t, f.tracker.Connect(ctx, alice))
	require.NoError(t, f.tracker.Update(ctx, alice, "away"))
	assert.Equal(t, types.PresenceAway, f.tracker.Status("alice"))
	record, _ := f.store.Presence("alice")
	assert.True(t, record.IsOnline, "away is still connected")

	require.NoError(t, f.tracker.Update(ctx, alice, "online"))
	require.NoError(t, f.tracker.Update(ctx, alice, "offline"))
	assert.Equal(t, types.PresenceOffline, f.tracker.Status("alice"))

	err = f.tracker.Update(ctx, alice, "invisible")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTracker_Disconnect(t *testing.T) {
	f := newFixture(t)
	_, staffConn := f.online(t, "sam", types.RoleAdmin)
	alice, aliceConn := f.online(t, "alice", types.RoleStudent)
	ctx := context.Background()

	require.NoError(t, f.tracker.Connect(ctx, alice))
	f.registry.Unregister(aliceConn)
	require.NoError(t, f.tracker.Disconnect(ctx, alice))

	assert.Equal(t, types.PresenceOffline, f.tracker.Status("alice"))
	record, _ := f.store.Presence("alice")
	assert.False(t, record.IsOnline)

	frames := staffConn.FramesOfType(types.FramePresenceUpdate)
	require.Len(t, frames, 2)
	assert.Equal(t, "offline", frames[1].String("status"))
}

func TestTracker_PersistFailure(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.online(t, "alice", types.RoleStudent)
	ctx := context.Background()
	require.NoError(t, f.tracker.Connect(ctx, alice))

	f.store.Fail("UpdatePresence", errors.New("disk I/O error"))

	err := f.tracker.Update(ctx, alice, "away")
	assert.ErrorIs(t, err, types.ErrPersistence)
	assert.Equal(t, types.PresenceOnline, f.tracker.Status("alice"), "failed update changes nothing")

	f.registry.Unregister(aliceConn)
	err = f.tracker.Disconnect(ctx, alice)
	assert.ErrorIs(t, err, types.ErrPersistence)
	assert.Equal(t, types.PresenceOffline, f.tracker.Status("alice"), "disconnect follows the transport")
}

func TestTracker_DisconnectSkipsReconnectedUser(t *testing.T) {
	f := newFixture(t)
	_, staffConn := f.online(t, "sam", types.RoleAdmin)
	alice, _ := f.online(t, "alice", types.RoleStudent)
	ctx := context.Background()
	require.NoError(t, f.tracker.Connect(ctx, alice))

	require.NoError(t, f.tracker.Disconnect(ctx, alice))

	assert.Equal(t, types.PresenceOnline, f.tracker.Status("alice"))
	record, _ := f.store.Presence("alice")
	assert.True(t, record.IsOnline)
	assert.Len(t, staffConn.FramesOfType(types.FramePresenceUpdate), 1, "no offline update while a connection is live")
}

func TestTracker_DisconnectRacesReconnect(t *testing.T) {
	f := newFixture(t)
	alice, first := f.online(t, "alice", types.RoleStudent)
	ctx := context.Background()
	require.NoError(t, f.tracker.Connect(ctx, alice))

	f.registry.Unregister(first)
	f.store.Delay("UpdatePresence", 200*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.tracker.Disconnect(ctx, alice) }()

	time.Sleep(50 * time.Millisecond)
	second := testutil.NewAuthedConn(alice)
	require.NoError(t, f.registry.Register(second))
	require.NoError(t, f.tracker.Connect(ctx, alice))
	require.NoError(t, <-done)

	assert.Equal(t, types.PresenceOnline, f.tracker.Status("alice"))
	record, ok := f.store.Presence("alice")
	require.True(t, ok)
	assert.True(t, record.IsOnline)
	assert.Equal(t, types.PresenceOnline, record.Status)
}
