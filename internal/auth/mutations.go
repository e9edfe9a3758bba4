package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"appcatalog.org/internal/audit"
	"appcatalog.org/internal/obs"
	"appcatalog.org/internal/stream"
)

// NewUser describes a user to create. ID and Description are optional.
type NewUser struct {
	ID          string
	Name        string
	Description string
}

// CreateUser registers a user. Requires create_user.
func (e *Engine) CreateUser(ctx context.Context, tokenID string, req NewUser) (User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpCreateUser)
	if err != nil {
		return User{}, err
	}
	user, created, err := e.identities.CreateUser(req.ID, req.Name, req.Description)
	e.record(ctx, OpCreateUser, err, change{subject: user.ID, applied: created}, "auth.user.create", map[string]any{
		"user_id": user.ID,
		"name":    user.Name,
		"created": created,
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// AddCredential attaches username/password to userID. Requires add_credential.
// The password is hashed before the write lock is taken.
func (e *Engine) AddCredential(ctx context.Context, tokenID, userID, username, password string) error {
	if !e.MayPerform(ctx, tokenID, OpAddCredential) {
		obs.ObserveMutation(string(OpAddCredential), obs.OutcomeDenied)
		return fmt.Errorf("%w: %s", ErrForbidden, OpAddCredential)
	}
	creds, err := e.identities.NewCredentials(username, password)
	if err != nil {
		obs.ObserveMutation(string(OpAddCredential), obs.OutcomeFailed)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// The token may have been rotated while hashing.
	ctx, err = e.authorizeLocked(ctx, tokenID, OpAddCredential)
	if err != nil {
		return err
	}
	err = e.identities.AttachCredentials(userID, creds)
	e.record(ctx, OpAddCredential, err, change{subject: userID, object: creds.Username, applied: true}, "auth.credential.add", map[string]any{
		"user_id":  userID,
		"username": creds.Username,
	})
	return err
}

// AddRole registers role. Requires define_role.
func (e *Engine) AddRole(ctx context.Context, tokenID string, role *Role) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpDefineRole)
	if err != nil {
		return err
	}
	added, err := e.graph.AddRole(role)
	if added {
		e.cache.purge()
	}
	e.record(ctx, OpDefineRole, err, change{subject: roleID(role), applied: added}, "auth.role.define", map[string]any{
		"role_id": roleID(role),
		"added":   added,
	})
	return err
}

// AddPermission registers permission, appending it to serviceID when set.
// Requires define_permission.
func (e *Engine) AddPermission(ctx context.Context, tokenID string, p Permission, serviceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpDefinePermission)
	if err != nil {
		return err
	}
	added, err := e.graph.AddPermission(p, serviceID)
	if added {
		e.cache.purge()
	}
	e.record(ctx, OpDefinePermission, err, change{subject: p.ID, object: serviceID, applied: added}, "auth.permission.define", map[string]any{
		"permission_id": p.ID,
		"service_id":    serviceID,
		"added":         added,
	})
	return err
}

// AddChildToRole appends child to role. Requires add_entitlement_to_role.
func (e *Engine) AddChildToRole(ctx context.Context, tokenID string, role *Role, child Entitlement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpAddEntitlementToRole)
	if err != nil {
		return err
	}
	added, err := e.graph.AddChild(role, child)
	if added {
		e.cache.purge()
	}
	e.record(ctx, OpAddEntitlementToRole, err, change{subject: roleID(role), object: IDOf(child), applied: added}, "auth.role.add_child", map[string]any{
		"role_id":  roleID(role),
		"child_id": IDOf(child),
		"added":    added,
	})
	return err
}

// GrantEntitlement grants ent directly to userID. Requires add_entitlement_to_user.
func (e *Engine) GrantEntitlement(ctx context.Context, tokenID, userID string, ent Entitlement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpAddEntitlementToUser)
	if err != nil {
		return err
	}
	added, err := e.identities.Grant(userID, ent)
	if added {
		e.cache.purge()
	}
	e.record(ctx, OpAddEntitlementToUser, err, change{subject: userID, object: IDOf(ent), applied: added}, "auth.user.grant", map[string]any{
		"user_id":        userID,
		"entitlement_id": IDOf(ent),
		"added":          added,
	})
	return err
}

// DefineService registers a reporting service. Requires define_service.
func (e *Engine) DefineService(ctx context.Context, tokenID string, s Service) (Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, err := e.authorizeLocked(ctx, tokenID, OpDefineService)
	if err != nil {
		return Service{}, err
	}
	svc, created, err := e.graph.DefineService(s)
	e.record(ctx, OpDefineService, err, change{subject: svc.ID, applied: created}, "auth.service.define", map[string]any{
		"service_id": svc.ID,
		"name":       svc.Name,
		"created":    created,
	})
	if err != nil {
		return Service{}, err
	}
	return svc, nil
}

// authorizeLocked must be called with e.mu held. On success the returned
// context carries the principal and audit actor.
func (e *Engine) authorizeLocked(ctx context.Context, tokenID string, op Operation) (context.Context, error) {
	p, ok := e.resolveLocked(tokenID)
	if !ok || !p.HasPermission(string(op)) {
		obs.ObserveMutation(string(op), obs.OutcomeDenied)
		e.logger.Warn("mutation denied", zap.String("operation", string(op)), zap.Bool("token_valid", ok))
		return ctx, fmt.Errorf("%w: %s", ErrForbidden, op)
	}
	ctx = ContextWithPrincipal(ctx, p)
	return audit.WithActor(ctx, p.User.ID), nil
}

// change identifies what a mutation touched. applied is false for no-ops.
type change struct {
	subject string
	object  string
	applied bool
}

func (e *Engine) record(ctx context.Context, op Operation, err error, c change, event string, fields map[string]any) {
	actor := ""
	if p, ok := PrincipalFromContext(ctx); ok {
		actor = p.User.ID
	}
	if err != nil {
		outcome := obs.OutcomeFailed
		if errors.Is(err, ErrForbidden) {
			outcome = obs.OutcomeDenied
		}
		obs.ObserveMutation(string(op), outcome)
		e.logger.Warn("mutation failed",
			zap.String("operation", string(op)),
			zap.String("actor_id", actor),
			zap.Error(err),
		)
		return
	}
	obs.ObserveMutation(string(op), obs.OutcomeSuccess)
	e.logger.Debug("mutation applied", zap.String("operation", string(op)), zap.String("actor_id", actor))
	_ = audit.LogEvent(ctx, event, fields)
	if c.applied {
		e.events.Publish(stream.Event{
			Operation: string(op),
			ActorID:   actor,
			SubjectID: c.subject,
			ObjectID:  c.object,
			Timestamp: e.now().UTC(),
		})
	}
}

func roleID(r *Role) string {
	if r == nil {
		return ""
	}
	return r.ID()
}
