package auth

import "time"

// User is a snapshot of an identity. Slices are copies owned by the caller.
type User struct {
	ID           string
	Name         string
	Description  string
	Credentials  []Credentials
	Entitlements []Entitlement
	Token        *AccessToken
}

// Usernames lists the usernames of the user's credentials.
func (u User) Usernames() []string {
	out := make([]string, 0, len(u.Credentials))
	for _, c := range u.Credentials {
		out = append(out, c.Username)
	}
	return out
}

// Credentials is a username bound to a salted password digest. The plaintext is never retained.
type Credentials struct {
	Username string
	Hash     string
	Salt     []byte
}

// AccessToken is a time-bounded session handle owned by exactly one user.
type AccessToken struct {
	ID          string
	UserID      string
	IssuedAt    time.Time
	LastUpdated time.Time
	ExpiresAt   time.Time
}

// LiveAt reports whether the token has not expired at the given instant.
func (t AccessToken) LiveAt(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// Service groups permissions for reporting. It takes no part in resolution.
type Service struct {
	ID          string
	Name        string
	Description string
	Permissions []Permission
}

func (s Service) key() [3]string {
	return [3]string{s.ID, s.Name, s.Description}
}
