package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"appcatalog.org/internal/audit"
)

// Identifiers of the records created by Bootstrap.
const (
	AdminRoleID    = "administrator"
	AdminServiceID = "identity-access"
)

// Seed describes the privileged identity created by Bootstrap. Username and
// Password come from configuration and are required.
type Seed struct {
	UserID      string
	Name        string
	Description string
	Username    string
	Password    string
}

// Bootstrap creates the privileged identity holding every known permission
// through the administrator role, and the service grouping those permissions.
// It succeeds at most once per engine; later calls return the privileged user
// and change nothing. A failed call leaves the engine untouched and may be retried.
func (e *Engine) Bootstrap(ctx context.Context, seed Seed) (User, error) {
	e.bootstrapMu.Lock()
	defer e.bootstrapMu.Unlock()
	if e.bootstrapped {
		return e.bootstrapUser, nil
	}

	seed.Username = strings.TrimSpace(seed.Username)
	if seed.Username == "" || seed.Password == "" {
		return User{}, fmt.Errorf("%w: bootstrap username and password are required", ErrInvalidInput)
	}
	if strings.TrimSpace(seed.Name) == "" {
		seed.Name = seed.Username
	}
	creds, err := e.identities.NewCredentials(seed.Username, seed.Password)
	if err != nil {
		return User{}, fmt.Errorf("bootstrap credentials: %w", err)
	}

	e.mu.Lock()
	user, err := e.seedLocked(seed, creds)
	e.mu.Unlock()
	if err != nil {
		return User{}, err
	}

	e.bootstrapped = true
	e.bootstrapUser = user
	e.logger.Info("bootstrap complete",
		zap.String("user_id", user.ID),
		zap.String("username", seed.Username),
		zap.Int("permissions", len(BuiltinPermissions())),
	)
	_ = audit.LogEvent(audit.WithActor(ctx, user.ID), "auth.bootstrap", map[string]any{
		"username": seed.Username,
		"role_id":  AdminRoleID,
	})
	return user, nil
}

func (e *Engine) seedLocked(seed Seed, creds Credentials) (User, error) {
	perms := BuiltinPermissions()

	svc, _, err := e.graph.DefineService(Service{
		ID:          AdminServiceID,
		Name:        "Identity and access",
		Description: "Permissions guarding identity, entitlement and catalog administration",
	})
	if err != nil {
		return User{}, err
	}
	children := make([]Entitlement, 0, len(perms))
	for _, p := range perms {
		if _, err := e.graph.AddPermission(p, svc.ID); err != nil {
			return User{}, err
		}
		children = append(children, p)
	}
	admin := NewRole(AdminRoleID, "Administrator", "Holds every known permission", children...)
	if _, err := e.graph.AddRole(admin); err != nil {
		return User{}, err
	}

	user, _, err := e.identities.CreateUser(seed.UserID, seed.Name, seed.Description)
	if err != nil {
		return User{}, err
	}
	if err := e.identities.AttachCredentials(user.ID, creds); err != nil {
		return User{}, err
	}
	if _, err := e.identities.Grant(user.ID, admin); err != nil {
		return User{}, err
	}
	e.cache.purge()

	user, _ = e.identities.FindByID(user.ID)
	return user, nil
}
