package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateUserDefaults(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	u, created, err := s.CreateUser("", "Ada", "")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, u.ID)
	require.Equal(t, DefaultDescription("Ada"), u.Description)

	_, _, err = s.CreateUser("x", "  ", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateUserFullFieldEquality(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	first, created, err := s.CreateUser("u1", "Ada", "first")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := s.CreateUser("u1", "Ada", "first")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)

	// Same id, different description: retained as a distinct user.
	_, created, err = s.CreateUser("u1", "Ada", "second")
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, s.Users(), 2)

	got, ok := s.FindByID("u1")
	require.True(t, ok)
	require.Equal(t, "first", got.Description, "lookup by id returns the first registered match")
}

func TestAddCredentialAndAuthenticate(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	u, _, _ := s.CreateUser("u1", "Ada", "")
	require.NoError(t, s.AddCredential(u.ID, "ada", "pw1"))
	require.NoError(t, s.AddCredential(u.ID, "ada.l", "pw2"))

	err := s.AddCredential(u.ID, "ada", "other")
	require.ErrorIs(t, err, ErrAlreadyExists)

	err = s.AddCredential("missing", "x", "pw")
	require.ErrorIs(t, err, ErrNotFound)

	got, ok := s.Authenticate("ada", "pw1")
	require.True(t, ok)
	require.Equal(t, "u1", got.ID)

	_, ok = s.Authenticate("ada.l", "pw2")
	require.True(t, ok)

	_, ok = s.Authenticate("ada", "nope")
	require.False(t, ok)
	_, ok = s.Authenticate("nobody", "pw1")
	require.False(t, ok)

	stored, _ := s.FindByID("u1")
	require.ElementsMatch(t, []string{"ada", "ada.l"}, stored.Usernames())
	for _, c := range stored.Credentials {
		require.Contains(t, c.Hash, "$argon2id$")
		require.NotEmpty(t, c.Salt)
	}
}

func TestFindByUsernameFirstMatchWins(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	a, _, _ := s.CreateUser("a", "A", "")
	b, _, _ := s.CreateUser("b", "B", "")
	require.NoError(t, s.AddCredential(a.ID, "shared", "pa"))
	require.NoError(t, s.AddCredential(b.ID, "shared", "pb"))

	got, ok := s.FindByUsername("shared")
	require.True(t, ok)
	require.Equal(t, "a", got.ID)

	// Resolution picks the first user only; the second user's password does not match it.
	_, ok = s.Authenticate("shared", "pb")
	require.False(t, ok)
}

func TestGrantIsIdempotent(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	u, _, _ := s.CreateUser("u1", "Ada", "")
	p := NewPermission("edit_content", "Edit content")

	added, err := s.Grant(u.ID, p)
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.Grant(u.ID, p)
	require.NoError(t, err)
	require.False(t, added)

	_, err = s.Grant("missing", p)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Grant(u.ID, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	got, _ := s.FindByID(u.ID)
	require.Len(t, got.Entitlements, 1)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	u, _, _ := s.CreateUser("u1", "Ada", "")
	_, _ = s.Grant(u.ID, NewPermission("p", ""))

	snap, _ := s.FindByID(u.ID)
	snap.Entitlements[0] = NewPermission("tampered", "")

	again, _ := s.FindByID(u.ID)
	require.Equal(t, "p", IDOf(again.Entitlements[0]))
}

func TestDuplicateIDUserIsInert(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	first, created, err := s.CreateUser("u-1", "Ada", "original")
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := s.CreateUser("u-1", "Ada", "shadow")
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.AddCredential("u-1", "ada", "pw"))
	added, err := s.Grant("u-1", NewPermission("review_app", ""))
	require.NoError(t, err)
	require.True(t, added)

	got, ok := s.FindByID("u-1")
	require.True(t, ok)
	require.Equal(t, first.Description, got.Description)
	require.Len(t, got.Credentials, 1)
	require.Len(t, got.Entitlements, 1)

	users := s.Users()
	require.Len(t, users, 2)
	require.Equal(t, second.Description, users[1].Description)
	require.Empty(t, users[1].Credentials)
	require.Empty(t, users[1].Entitlements)
}

func TestAuthenticateUnknownUsernameStillVerifies(t *testing.T) {
	s := NewIdentityStore(testVault(t))
	_, ok := s.Authenticate("nobody", "pw")
	require.False(t, ok)
	require.Contains(t, s.dummy, "$argon2id$")
}
