package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSessionFixture(t *testing.T) (*Sessions, *IdentityStore, *fakeClock, User) {
	t.Helper()
	store := NewIdentityStore(testVault(t))
	u, _, err := store.CreateUser("u1", "Ada", "")
	require.NoError(t, err)
	clock := newFakeClock()
	return NewSessions(store, 0, clock.Now), store, clock, u
}

func TestIssueSetsLifetime(t *testing.T) {
	s, store, clock, u := newSessionFixture(t)
	require.Equal(t, DefaultSessionTTL, s.TTL())

	tok, err := s.Issue(u.ID)
	require.NoError(t, err)
	require.Equal(t, clock.Now(), tok.IssuedAt)
	require.Equal(t, tok.IssuedAt, tok.LastUpdated)
	require.Equal(t, tok.IssuedAt.Add(time.Hour), tok.ExpiresAt)

	owner, ok := s.Resolve(tok.ID)
	require.True(t, ok)
	require.Equal(t, u.ID, owner.ID)

	stored, _ := store.FindByID(u.ID)
	require.NotNil(t, stored.Token)
	require.Equal(t, tok.ID, stored.Token.ID)

	_, err = s.Issue("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueRotatesToken(t *testing.T) {
	s, _, _, u := newSessionFixture(t)
	first, err := s.Issue(u.ID)
	require.NoError(t, err)
	second, err := s.Issue(u.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, ok := s.Resolve(first.ID)
	require.False(t, ok, "superseded token must not resolve")
	_, ok = s.Resolve(second.ID)
	require.True(t, ok)
}

func TestExpiry(t *testing.T) {
	s, _, clock, u := newSessionFixture(t)
	tok, err := s.Issue(u.ID)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	require.True(t, s.IsLive(tok))
	_, ok := s.Resolve(tok.ID)
	require.True(t, ok)

	clock.Advance(time.Minute)
	require.False(t, s.IsLive(tok))
	_, ok = s.Resolve(tok.ID)
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	s, store, clock, u := newSessionFixture(t)
	tok, err := s.Issue(u.ID)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	require.True(t, s.Invalidate(tok.ID))
	_, ok := s.Resolve(tok.ID)
	require.False(t, ok)

	stored, _ := store.FindByID(u.ID)
	require.Equal(t, clock.Now(), stored.Token.ExpiresAt)
	require.Equal(t, clock.Now(), stored.Token.LastUpdated)

	require.False(t, s.Invalidate("unknown"))
	require.False(t, s.Invalidate(""))
	_, ok = s.Resolve("")
	require.False(t, ok)
}
