package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub/internal/testutil"
	"eduhub/pkg/types"
)

func newStore() *testutil.MemStore {
	store := testutil.NewMemStore()
	store.AddUser(types.Identity{UserID: "u-1", ExternalID: "clerk_1", Role: types.RoleTeacher, Name: "Tina"})
	store.AddUser(types.Identity{UserID: "u-2", ExternalID: "clerk_2", Role: "superuser", Name: "Mallory"})
	return store
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(newStore(), nil)

	identity, err := r.Resolve(context.Background(), "clerk_1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, types.RoleTeacher, identity.Role)
	assert.Equal(t, "Tina", identity.Name)
}

func TestResolver_UnknownRoleFallsBack(t *testing.T) {
	r := NewResolver(newStore(), nil)

	identity, err := r.Resolve(context.Background(), "clerk_2")
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, identity.Role)
}

func TestResolver_NotFoundFailsClosed(t *testing.T) {
	r := NewResolver(newStore(), nil)

	_, err := r.Authenticate(context.Background(), "clerk_404")
	assert.ErrorIs(t, err, types.ErrAuthenticationFailure)
	assert.ErrorIs(t, err, ErrUnknownIdentity)

	_, err = r.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolver_StoreError(t *testing.T) {
	store := newStore()
	store.Fail("GetUserByExternalID", errors.New("database is locked"))
	r := NewResolver(store, nil)

	_, err := r.Resolve(context.Background(), "clerk_1")
	assert.ErrorIs(t, err, types.ErrPersistence)
	assert.NotErrorIs(t, err, types.ErrAuthenticationFailure, "a store outage is not a bad credential")
}

func TestResolver_NeverCaches(t *testing.T) {
	store := newStore()
	r := NewResolver(store, nil)

	first, err := r.Resolve(context.Background(), "clerk_1")
	require.NoError(t, err)
	require.Equal(t, types.RoleTeacher, first.Role)

	store.AddUser(types.Identity{UserID: "u-1", ExternalID: "clerk_1", Role: types.RoleStudent, Name: "Tina"})
	second, err := r.Resolve(context.Background(), "clerk_1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, second.Role)
}

func TestTokenVerifier(t *testing.T) {
	_, err := NewTokenVerifier("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	v, err := NewTokenVerifier("s3cret")
	require.NoError(t, err)

	token, err := v.Issue("clerk_1", time.Hour)
	require.NoError(t, err)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "clerk_1", subject)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v, err := NewTokenVerifier("s3cret")
	require.NoError(t, err)
	other, err := NewTokenVerifier("other")
	require.NoError(t, err)

	expired, err := v.Issue("clerk_1", -time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("clerk_1", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "clerk_1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":    "not-a-token",
		"expired":    expired,
		"forged":     forged,
		"no expiry":  noExpiry,
		"no subject": noSubject,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, types.ErrAuthenticationFailure)
		})
	}
}

func TestResolver_WithVerifier(t *testing.T) {
	v, err := NewTokenVerifier("s3cret")
	require.NoError(t, err)
	r := NewResolver(newStore(), v)

	token, err := v.Issue("clerk_1", time.Minute)
	require.NoError(t, err)

	identity, err := r.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)

	_, err = r.Authenticate(context.Background(), "clerk_1")
	assert.ErrorIs(t, err, ErrInvalidToken, "raw external IDs are rejected when tokens are required")
}
