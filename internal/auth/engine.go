package auth

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"appcatalog.org/internal/audit"
	"appcatalog.org/internal/obs"
	"appcatalog.org/internal/stream"
)

// Engine is the authentication context: it owns the identity store, the
// entitlement graph and the session manager, and gates every mutation on the
// caller's token. Construct one per process (or per test) with NewEngine.
//
// Mutations, including token issue and invalidation, are serialized by a
// write lock. MayAccess and lookups share a read lock.
type Engine struct {
	mu sync.RWMutex

	vault      *Vault
	identities *IdentityStore
	graph      *Graph
	sessions   *Sessions
	cache      *closureCache
	throttle   *loginThrottle
	bearer     *BearerCodec
	events     *stream.Stream
	logger     *zap.Logger
	now        func() time.Time

	sessionTTL   time.Duration
	cacheSize    int
	cacheTTL     time.Duration
	loginRate    float64
	loginBurst   int
	bearerSecret string
	bearerIssuer string

	bootstrapMu   sync.Mutex
	bootstrapped  bool
	bootstrapUser User
}

// Option configures Engine behavior.
type Option func(*Engine) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) error {
		if fn != nil {
			e.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures the access token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(e *Engine) error {
		if ttl > 0 {
			e.sessionTTL = ttl
		}
		return nil
	}
}

// WithVault sets the password vault.
func WithVault(v *Vault) Option {
	return func(e *Engine) error {
		if v == nil {
			return errors.New("auth: vault is nil")
		}
		e.vault = v
		return nil
	}
}

// WithLogger sets the logger. Defaults to obs.Logger().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithClosureCache enables memoization of permission closures per user.
func WithClosureCache(size int, ttl time.Duration) Option {
	return func(e *Engine) error {
		if size < 0 {
			return fmt.Errorf("%w: cache size %d", ErrInvalidInput, size)
		}
		e.cacheSize = size
		e.cacheTTL = ttl
		return nil
	}
}

// WithLoginRate throttles login attempts per username. Zero disables throttling.
func WithLoginRate(perSecond float64, burst int) Option {
	return func(e *Engine) error {
		if perSecond < 0 || burst < 0 {
			return fmt.Errorf("%w: login rate %v burst %d", ErrInvalidInput, perSecond, burst)
		}
		e.loginRate = perSecond
		e.loginBurst = burst
		return nil
	}
}

// WithBearerSecret enables signed bearer tokens.
func WithBearerSecret(secret, issuer string) Option {
	return func(e *Engine) error {
		e.bearerSecret = strings.TrimSpace(secret)
		e.bearerIssuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithEvents publishes every applied mutation to s.
func WithEvents(s *stream.Stream) Option {
	return func(e *Engine) error {
		e.events = s
		return nil
	}
}

// NewEngine constructs an empty engine. Call Bootstrap before any gated mutation.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.logger == nil {
		e.logger = obs.Logger()
	}
	if e.vault == nil {
		v, err := NewVault()
		if err != nil {
			return nil, err
		}
		e.vault = v
	}
	e.identities = NewIdentityStore(e.vault)
	e.graph = NewGraph()
	e.sessions = NewSessions(e.identities, e.sessionTTL, e.now)
	e.cache = newClosureCache(e.cacheSize, e.cacheTTL)
	e.throttle = newLoginThrottle(e.loginRate, e.loginBurst, e.now)
	if e.bearerSecret != "" {
		codec, err := NewBearerCodec(e.bearerSecret, e.bearerIssuer, e.now)
		if err != nil {
			return nil, err
		}
		e.bearer = codec
	}
	return e, nil
}

// SessionTTL returns the lifetime of issued tokens.
func (e *Engine) SessionTTL() time.Duration { return e.sessions.TTL() }

// Login authenticates username/password and issues a fresh token, replacing
// the user's previous one. Failures return *AccessDeniedError and change nothing.
func (e *Engine) Login(ctx context.Context, username, password string) (AccessToken, error) {
	username = strings.TrimSpace(username)
	if !e.throttle.allow(username) {
		obs.ObserveLogin(obs.OutcomeThrottled)
		e.logger.Warn("login throttled", zap.String("username", username))
		return AccessToken{}, &AccessDeniedError{Username: username, Err: ErrLoginThrottled}
	}

	user, ok := e.identities.Authenticate(username, password)
	if !ok {
		obs.ObserveLogin(obs.OutcomeDenied)
		e.logger.Warn("login denied", zap.String("username", username))
		return AccessToken{}, &AccessDeniedError{Username: username}
	}

	e.mu.Lock()
	tok, err := e.sessions.Issue(user.ID)
	e.mu.Unlock()
	if err != nil {
		obs.ObserveLogin(obs.OutcomeFailed)
		return AccessToken{}, fmt.Errorf("issue token: %w", err)
	}

	obs.ObserveLogin(obs.OutcomeSuccess)
	obs.ObserveSession()
	e.logger.Info("login succeeded",
		zap.String("username", username),
		zap.String("user_id", user.ID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	_ = audit.LogEvent(audit.WithActor(ctx, user.ID), "auth.login", map[string]any{
		"username":   username,
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	})
	return tok, nil
}

// Logout invalidates tokenID. Unknown tokens are ignored.
func (e *Engine) Logout(ctx context.Context, tokenID string) {
	e.mu.Lock()
	done := e.sessions.Invalidate(tokenID)
	e.mu.Unlock()
	if !done {
		e.logger.Debug("logout ignored unknown token")
		return
	}
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{"token_id": tokenID})
}

// MayAccess reports whether tokenID is its owner's current live token and the
// owner holds permissionID directly or through any granted role. Every
// failure, whatever the cause, is reported as false.
func (e *Engine) MayAccess(ctx context.Context, tokenID, permissionID string) bool {
	e.mu.RLock()
	p, ok := e.resolveLocked(tokenID)
	e.mu.RUnlock()
	allowed := ok && p.HasPermission(permissionID)
	obs.ObserveAccess(allowed)
	if ce := e.logger.Check(zap.DebugLevel, "access check"); ce != nil {
		ce.Write(zap.String("permission", permissionID), zap.Bool("allowed", allowed))
	}
	return allowed
}

// MayPerform is MayAccess keyed by a known operation.
func (e *Engine) MayPerform(ctx context.Context, tokenID string, op Operation) bool {
	return e.MayAccess(ctx, tokenID, string(op))
}

// MayAccessContext is MayAccess for the token attached with ContextWithToken.
func (e *Engine) MayAccessContext(ctx context.Context, permissionID string) bool {
	tokenID, ok := TokenFromContext(ctx)
	if !ok {
		obs.ObserveAccess(false)
		return false
	}
	return e.MayAccess(ctx, tokenID, permissionID)
}

// Principal resolves tokenID to its owner and permission closure.
func (e *Engine) Principal(ctx context.Context, tokenID string) (Principal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.resolveLocked(tokenID)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// Require checks that tokenID may perform every op. Collaborators use it to
// reject a whole operation bundle up front.
func (e *Engine) Require(ctx context.Context, tokenID string, ops ...Operation) error {
	p, err := e.Principal(ctx, tokenID)
	if err != nil {
		return &AccessDeniedError{TokenID: tokenID, Err: err}
	}
	for _, op := range ops {
		if !p.HasPermission(string(op)) {
			return &AccessDeniedError{TokenID: tokenID, Err: fmt.Errorf("%w: %s", ErrForbidden, op)}
		}
	}
	return nil
}

// Bearer signs tok for transport as an opaque string.
func (e *Engine) Bearer(tok AccessToken) (string, error) {
	if e.bearer == nil {
		return "", errors.New("auth: bearer tokens are not configured")
	}
	return e.bearer.Encode(tok)
}

// MayAccessBearer is MayAccess for a signed bearer string.
func (e *Engine) MayAccessBearer(ctx context.Context, raw, permissionID string) bool {
	if e.bearer == nil {
		obs.ObserveAccess(false)
		return false
	}
	tokenID, err := e.bearer.Decode(raw)
	if err != nil {
		obs.ObserveAccess(false)
		return false
	}
	return e.MayAccess(ctx, tokenID, permissionID)
}

// User returns the first user with id.
func (e *Engine) User(id string) (User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identities.FindByID(id)
}

// UserByUsername returns the first user holding username.
func (e *Engine) UserByUsername(username string) (User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identities.FindByUsername(username)
}

// UserByToken returns the owner of tokenID, live or not.
func (e *Engine) UserByToken(tokenID string) (User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identities.FindByTokenID(tokenID)
}

// Users returns every user in registration order.
func (e *Engine) Users() []User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identities.Users()
}

// Entitlement returns the first registered entitlement with id.
func (e *Engine) Entitlement(id string) (Entitlement, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Entitlement(id)
}

// Role returns the first registered role with id.
func (e *Engine) Role(id string) (*Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Role(id)
}

// Entitlements returns every registered entitlement in registration order.
func (e *Engine) Entitlements() []Entitlement {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Entitlements()
}

// Service returns the first service with id.
func (e *Engine) Service(id string) (Service, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Service(id)
}

// Services returns every service in definition order.
func (e *Engine) Services() []Service {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Services()
}

// Walk enumerates the descendants of role; see the package-level Walk.
func (e *Engine) Walk(role *Role) iter.Seq[Entitlement] {
	return Walk(role)
}

// resolveLocked must be called with e.mu held (read or write).
func (e *Engine) resolveLocked(tokenID string) (Principal, bool) {
	user, ok := e.sessions.Resolve(tokenID)
	if !ok {
		return Principal{}, false
	}
	perms, ok := e.cache.get(user.ID)
	if !ok {
		perms = PermissionSet(user.Entitlements)
		e.cache.put(user.ID, perms)
	}
	return Principal{User: user, Permissions: perms}, true
}
