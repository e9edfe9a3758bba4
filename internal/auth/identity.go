package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"appcatalog.org/internal/ids"
)

type userRecord struct {
	id           string
	name         string
	description  string
	credentials  []Credentials
	entitlements []Entitlement
	token        *AccessToken
}

func (r *userRecord) snapshot() User {
	u := User{
		ID:          r.id,
		Name:        r.name,
		Description: r.description,
	}
	if len(r.credentials) > 0 {
		u.Credentials = append([]Credentials(nil), r.credentials...)
	}
	if len(r.entitlements) > 0 {
		u.Entitlements = append([]Entitlement(nil), r.entitlements...)
	}
	if r.token != nil {
		tok := *r.token
		u.Token = &tok
	}
	return u
}

func (r *userRecord) hasUsername(username string) bool {
	for _, c := range r.credentials {
		if c.Username == username {
			return true
		}
	}
	return false
}

// IdentityStore is the registry of users, their credentials, direct grants and
// current access token. It is safe for concurrent use.
type IdentityStore struct {
	vault *Vault

	mu      sync.RWMutex
	users   []*userRecord
	byToken map[string]*userRecord

	dummyOnce sync.Once
	dummy     string
}

// NewIdentityStore constructs an empty store hashing passwords with vault.
func NewIdentityStore(vault *Vault) *IdentityStore {
	if vault == nil {
		vault, _ = NewVault()
	}
	return &IdentityStore{
		vault:   vault,
		byToken: make(map[string]*userRecord),
	}
}

// DefaultDescription is the description given to users created without one.
func DefaultDescription(name string) string {
	return fmt.Sprintf("Catalog user %s", name)
}

// CreateUser registers a user. An empty id is generated and an empty
// description derived from the name. A user equal on id, name and description
// to an existing one is not added again; the existing user is returned with
// created=false.
func (s *IdentityStore) CreateUser(id, name, description string) (User, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, false, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = ids.New()
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = DefaultDescription(name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.id == id && u.name == name && u.description == description {
			return u.snapshot(), false, nil
		}
	}
	rec := &userRecord{id: id, name: name, description: description}
	s.users = append(s.users, rec)
	return rec.snapshot(), true, nil
}

// NewCredentials hashes password for username. The plaintext is not retained.
func (s *IdentityStore) NewCredentials(username, password string) (Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Credentials{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	digest, err := s.vault.Hash(password)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Hash: digest.Encoded, Salt: digest.Salt}, nil
}

// AddCredential hashes password and attaches the credentials to the user.
// Usernames are unique per user only.
func (s *IdentityStore) AddCredential(userID, username, password string) error {
	creds, err := s.NewCredentials(username, password)
	if err != nil {
		return err
	}
	return s.AttachCredentials(userID, creds)
}

// AttachCredentials attaches prebuilt credentials to the user.
func (s *IdentityStore) AttachCredentials(userID string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findByIDLocked(userID)
	if rec == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if rec.hasUsername(creds.Username) {
		return fmt.Errorf("%w: username %s on user %s", ErrAlreadyExists, creds.Username, userID)
	}
	rec.credentials = append(rec.credentials, creds)
	return nil
}

// Grant adds a direct entitlement to the user. Granting an equal entitlement
// twice is a no-op reported by added=false.
func (s *IdentityStore) Grant(userID string, e Entitlement) (bool, error) {
	if e == nil {
		return false, fmt.Errorf("%w: entitlement is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findByIDLocked(userID)
	if rec == nil {
		return false, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	ref := e.Ref()
	for _, existing := range rec.entitlements {
		if existing.Ref() == ref {
			return false, nil
		}
	}
	rec.entitlements = append(rec.entitlements, e)
	return true, nil
}

// FindByID returns the first user registered with id.
func (s *IdentityStore) FindByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.findByIDLocked(id)
	if rec == nil {
		return User{}, false
	}
	return rec.snapshot(), true
}

// FindByUsername returns the first user, in registration order, holding a
// credential with username.
func (s *IdentityStore) FindByUsername(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.findByUsernameLocked(username)
	if rec == nil {
		return User{}, false
	}
	return rec.snapshot(), true
}

// FindByTokenID returns the user whose current token has tokenID.
func (s *IdentityStore) FindByTokenID(tokenID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byToken[tokenID]
	if !ok {
		return User{}, false
	}
	return rec.snapshot(), true
}

// Users returns every user in registration order.
func (s *IdentityStore) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.snapshot())
	}
	return out
}

// Authenticate resolves username to its first user and verifies password
// against each of that user's credentials; any match succeeds. An unknown
// username still costs one verification so timing does not reveal it.
func (s *IdentityStore) Authenticate(username, password string) (User, bool) {
	user, ok := s.FindByUsername(username)
	if !ok {
		s.vault.Verify(password, s.dummyDigest())
		return User{}, false
	}
	// Hashing is slow; verify outside the lock on the snapshot.
	for _, c := range user.Credentials {
		if s.vault.Verify(password, c.Hash) {
			return user, true
		}
	}
	return User{}, false
}

// dummyDigest is a digest of a random password, hashed once with the vault's
// own parameters.
func (s *IdentityStore) dummyDigest() string {
	s.dummyOnce.Do(func() {
		d, err := s.vault.Hash(ids.NewToken())
		if err == nil {
			s.dummy = d.Encoded
		}
	})
	return s.dummy
}

// replaceToken installs tok as the user's only token, discarding the previous one.
func (s *IdentityStore) replaceToken(userID string, tok AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findByIDLocked(userID)
	if rec == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if rec.token != nil {
		delete(s.byToken, rec.token.ID)
	}
	rec.token = &tok
	s.byToken[tok.ID] = rec
	return nil
}

// expireToken sets LastUpdated and ExpiresAt of tokenID to now, if it is still current.
func (s *IdentityStore) expireToken(tokenID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToken[tokenID]
	if !ok || rec.token == nil || rec.token.ID != tokenID {
		return false
	}
	rec.token.LastUpdated = now
	rec.token.ExpiresAt = now
	return true
}

// findByIDLocked returns the first record with id. A later user sharing the id
// (differing only in name or description) is never reached by id-keyed calls.
func (s *IdentityStore) findByIDLocked(id string) *userRecord {
	for _, rec := range s.users {
		if rec.id == id {
			return rec
		}
	}
	return nil
}

func (s *IdentityStore) findByUsernameLocked(username string) *userRecord {
	for _, rec := range s.users {
		if rec.hasUsername(username) {
			return rec
		}
	}
	return nil
}
