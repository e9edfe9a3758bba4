package auth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"appcatalog.org/internal/obs"
)

const (
	seedUsername = "dkilleffer"
	seedPassword = "secret"
)

func TestMain(m *testing.M) {
	restore := obs.SetLogger(zap.NewNop())
	code := m.Run()
	restore()
	os.Exit(code)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testVault keeps argon2 cheap so tests hashing many passwords stay fast.
func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(WithArgon2Params(Argon2Params{Memory: 1024, Iterations: 1}))
	require.NoError(t, err)
	return v
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []Option{WithVault(testVault(t)), WithClock(clock.Now), WithLogger(zap.NewNop())}
	e, err := NewEngine(append(base, opts...)...)
	require.NoError(t, err)
	return e, clock
}

// bootstrappedEngine returns an engine seeded with the privileged identity and
// that identity's token.
func bootstrappedEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock, AccessToken) {
	t.Helper()
	e, clock := newTestEngine(t, opts...)
	ctx := context.Background()
	_, err := e.Bootstrap(ctx, Seed{Name: "Dana Killeffer", Username: seedUsername, Password: seedPassword})
	require.NoError(t, err)
	tok, err := e.Login(ctx, seedUsername, seedPassword)
	require.NoError(t, err)
	return e, clock, tok
}

// newMember creates a user with one credential through the admin token and logs it in.
func newMember(t *testing.T, e *Engine, admin AccessToken, name, username, password string) (User, AccessToken) {
	t.Helper()
	ctx := context.Background()
	u, err := e.CreateUser(ctx, admin.ID, NewUser{Name: name})
	require.NoError(t, err)
	require.NoError(t, e.AddCredential(ctx, admin.ID, u.ID, username, password))
	tok, err := e.Login(ctx, username, password)
	require.NoError(t, err, "login %s", username)
	return u, tok
}
