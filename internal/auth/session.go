package auth

import (
	"time"

	"appcatalog.org/internal/ids"
)

// DefaultSessionTTL is the lifetime of a freshly issued access token.
const DefaultSessionTTL = time.Hour

// Sessions issues, rotates and invalidates access tokens held in an IdentityStore.
type Sessions struct {
	store *IdentityStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions builds a session manager. A non-positive ttl falls back to
// DefaultSessionTTL and a nil clock to time.Now.
func NewSessions(store *IdentityStore, ttl time.Duration, now func() time.Time) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{store: store, ttl: ttl, now: now}
}

// TTL returns the configured token lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a token for userID, replacing the user's previous token.
func (s *Sessions) Issue(userID string) (AccessToken, error) {
	now := s.now().UTC()
	tok := AccessToken{
		ID:          ids.NewToken(),
		UserID:      userID,
		IssuedAt:    now,
		LastUpdated: now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.replaceToken(userID, tok); err != nil {
		return AccessToken{}, err
	}
	return tok, nil
}

// Invalidate expires tokenID now. Unknown or superseded tokens are ignored.
func (s *Sessions) Invalidate(tokenID string) bool {
	return s.store.expireToken(tokenID, s.now().UTC())
}

// IsLive reports whether the token is still before its expiration.
func (s *Sessions) IsLive(tok AccessToken) bool {
	return tok.LiveAt(s.now())
}

// Resolve returns the owner of tokenID when tokenID is the owner's current,
// live token.
func (s *Sessions) Resolve(tokenID string) (User, bool) {
	if tokenID == "" {
		return User{}, false
	}
	user, ok := s.store.FindByTokenID(tokenID)
	if !ok || user.Token == nil || user.Token.ID != tokenID {
		return User{}, false
	}
	if !s.IsLive(*user.Token) {
		return User{}, false
	}
	return user, true
}
