package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
)

type Service struct {
	users UserRepository
	tx    db.Transactor
	audit *audit.Logger

	// synced remembers recently mirrored principals with the role and staff
	// flag last written. Least recently seen entries are evicted.
	synced *lru.Cache[uuid.UUID, syncedState]
}

// SyncCacheSize bounds the number of principals remembered by EnsureUser.
const SyncCacheSize = 10_000

func NewService(users UserRepository, tx db.Transactor, auditLog *audit.Logger) *Service {
	synced, err := lru.New[uuid.UUID, syncedState](SyncCacheSize)
	if err != nil {
		panic(err)
	}
	return &Service{users: users, tx: tx, audit: auditLog, synced: synced}
}

type syncedState struct {
	role  auth.Role
	staff bool
}

// EnsureUser mirrors p into app_user. Repeated calls for an unchanged
// principal do not touch the database. A token whose role differs from the
// stored one is refused.
func (s *Service) EnsureUser(ctx context.Context, p *auth.Principal) error {
	if p == nil {
		return nil
	}
	state := syncedState{role: p.Role, staff: p.Staff}
	if prev, ok := s.synced.Get(p.ID); ok && prev == state {
		return nil
	}
	if err := s.users.Upsert(ctx, userFromPrincipal(p)); err != nil {
		if errors.Is(err, ErrRoleChanged) {
			return apperr.Forbidden("principal role %s does not match the registered role", p.Role)
		}
		return err
	}
	s.synced.Add(p.ID, state)
	return nil
}

// Me returns the stored user for the caller.
func (s *Service) Me(ctx context.Context, caller auth.Caller) (*User, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if err := s.EnsureUser(ctx, caller.Principal); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, caller.Principal.ID)
}

// RecordLogin writes the login event for a session opened with a token
// issued elsewhere.
func (s *Service) RecordLogin(ctx context.Context, caller auth.Caller) error {
	return s.recordSessionEvent(ctx, caller, audit.ActionLogin)
}

func (s *Service) RecordLogout(ctx context.Context, caller auth.Caller) error {
	return s.recordSessionEvent(ctx, caller, audit.ActionLogout)
}

func (s *Service) recordSessionEvent(ctx context.Context, caller auth.Caller, action audit.Action) error {
	if !caller.Authenticated() {
		return apperr.Unauthenticated()
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.EnsureUser(ctx, caller.Principal); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, action, audit.EntityUser,
			caller.Principal.ID.String(), map[string]interface{}{"role": string(caller.Principal.Role)}))
	})
}

// UserExists reports whether id refers to a known user.
func (s *Service) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.users.Exists(ctx, id)
}

// Register creates or refreshes a user with profile fields. Used by the
// seed command.
func (s *Service) Register(ctx context.Context, u *User) error {
	if !auth.ValidRole(u.Role) {
		return apperr.Validation("invalid role %q", u.Role)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		if errors.Is(err, ErrRoleChanged) {
			return apperr.Conflict("user %s is registered with another role", u.ID)
		}
		return err
	}
	return nil
}
