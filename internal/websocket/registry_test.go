package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub/internal/testutil"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

func identity(userID string, role types.Role) types.Identity {
	return types.Identity{UserID: userID, ExternalID: "ext-" + userID, Role: role, Name: userID}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register(nil), ErrNilConnection)
	assert.ErrorIs(t, r.Register(testutil.NewFakeConn()), ErrConnectionNotAuthenticated)
	assert.ErrorIs(t, r.RegisterGuest(testutil.NewFakeConn()), ErrConnectionNotGuest)
}

func TestRegistry_RoleIndexes(t *testing.T) {
	r := NewRegistry()

	student := testutil.NewAuthedConn(identity("s1", types.RoleStudent))
	teacher := testutil.NewAuthedConn(identity("t1", types.RoleTeacher))
	admin := testutil.NewAuthedConn(identity("a1", types.RoleAdmin))
	support := testutil.NewAuthedConn(identity("p1", types.RoleSupport))
	guest := testutil.NewGuestConn("G1")

	for _, c := range []*testutil.FakeConn{student, teacher, admin, support} {
		require.NoError(t, r.Register(c))
	}
	require.NoError(t, r.RegisterGuest(guest))

	assert.Equal(t, Stats{Users: 4, Staff: 2, Teachers: 1, Guests: 1}, r.Stats())
	assert.Len(t, r.Staff(), 2)
	assert.Len(t, r.Teachers(), 1)

	conn, ok := r.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, student, conn)

	conn, ok = r.LookupGuest("G1")
	require.True(t, ok)
	assert.Same(t, guest, conn)

	_, ok = r.Lookup("G1")
	assert.False(t, ok, "guests are not in the user index")
}

func TestRegistry_Replacement(t *testing.T) {
	r := NewRegistry()

	first := testutil.NewAuthedConn(identity("u1", types.RoleStudent))
	second := testutil.NewAuthedConn(identity("u1", types.RoleStudent))

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	conn, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, conn)

	assert.Eventually(t, first.Closed, time.Second, 10*time.Millisecond, "replaced connection is closed")
	assert.False(t, second.Closed())
}

func TestRegistry_StaleUnregisterKeepsNewer(t *testing.T) {
	r := NewRegistry()

	old := testutil.NewAuthedConn(identity("u1", types.RoleSupport))
	fresh := testutil.NewAuthedConn(identity("u1", types.RoleSupport))
	require.NoError(t, r.Register(old))
	require.NoError(t, r.Register(fresh))

	removal := r.Unregister(old)
	assert.False(t, removal.User, "stale handle must not evict the newer connection")

	conn, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, fresh, conn)
	assert.Len(t, r.Staff(), 1)

	removal = r.Unregister(fresh)
	assert.True(t, removal.User)
	assert.Equal(t, "u1", removal.UserID)
	_, ok = r.Lookup("u1")
	assert.False(t, ok)
	assert.Empty(t, r.Staff())

	// Idempotent
	assert.False(t, r.Unregister(fresh).User)
	assert.Equal(t, Removal{}, r.Unregister(nil))
}

func TestRegistry_GuestUnregister(t *testing.T) {
	r := NewRegistry()

	old := testutil.NewGuestConn("G1")
	fresh := testutil.NewGuestConn("G1")
	require.NoError(t, r.RegisterGuest(old))
	require.NoError(t, r.RegisterGuest(fresh))

	assert.False(t, r.Unregister(old).Guest)
	assert.True(t, r.Unregister(fresh).Guest)
	_, ok := r.LookupGuest("G1")
	assert.False(t, ok)
}

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry()

	a := testutil.NewAuthedConn(identity("a", types.RoleStudent))
	b := testutil.NewAuthedConn(identity("b", types.RoleTeacher))
	c := testutil.NewAuthedConn(identity("c", types.RoleAdmin))
	for _, conn := range []*testutil.FakeConn{a, b, c} {
		require.NoError(t, r.Register(conn))
	}

	frame := types.Pong{Type: types.FramePong}
	sent := r.Broadcast(func(conn interfaces.Connection) bool {
		return conn.Identity().Role != types.RoleStudent
	}, frame)

	assert.Equal(t, 2, sent)
	assert.Empty(t, a.Frames())
	assert.Len(t, b.Frames(), 1)
	assert.Len(t, c.Frames(), 1)

	assert.Equal(t, 1, r.BroadcastStaff(frame))
	assert.Len(t, c.Frames(), 2)
}

func TestRegistry_ReconnectRace(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := testutil.NewAuthedConn(identity("racer", types.RoleStudent))
			assert.NoError(t, r.Register(conn))
			r.Unregister(conn)
		}()
	}
	wg.Wait()

	// Every connection unregistered itself; nothing may remain
	_, ok := r.Lookup("racer")
	assert.False(t, ok)

	final := testutil.NewAuthedConn(identity("racer", types.RoleStudent))
	require.NoError(t, r.Register(final))
	conn, ok := r.Lookup("racer")
	require.True(t, ok)
	assert.Same(t, final, conn)
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Register(testutil.NewAuthedConn(identity(fmt.Sprintf("u%d", i), types.RoleStudent))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := r.Lookup(fmt.Sprintf("u%d", i))
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()
}
