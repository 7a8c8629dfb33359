package clinic

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// UserChecker confirms a user id refers to a stored account.
type UserChecker interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	clinics     ClinicRepository
	memberships MembershipRepository
	users       UserChecker
	tx          db.Transactor
	audit       *audit.Logger
}

func NewService(clinics ClinicRepository, memberships MembershipRepository, users UserChecker, tx db.Transactor, auditLog *audit.Logger) *Service {
	return &Service{clinics: clinics, memberships: memberships, users: users, tx: tx, audit: auditLog}
}

type CreateInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Service) CreateClinic(ctx context.Context, caller auth.Caller, in CreateInput) (*Clinic, error) {
	if !policy.CanAccessClinicAdmin(caller.Principal) {
		return nil, apperr.Forbidden("only clinic admins can create clinics")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !ValidSlug(slug) {
		return nil, apperr.Validation("invalid slug %q", slug)
	}

	c := &Clinic{Name: name, Slug: slug}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.clinics.Create(ctx, c); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityClinic,
			c.ID.String(), map[string]interface{}{"slug": c.Slug}))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

func (s *Service) GetClinic(ctx context.Context, slug string) (*Clinic, error) {
	return s.clinics.GetBySlug(ctx, slug)
}

// GetClinicByID is used by other services to validate clinic references.
func (s *Service) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

type MembershipInput struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   MembershipRole `json:"role"`
}

func (s *Service) AddMembership(ctx context.Context, caller auth.Caller, slug string, in MembershipInput) (*Membership, error) {
	if !policy.CanAccessClinicAdmin(caller.Principal) {
		return nil, apperr.Forbidden("only clinic admins can manage memberships")
	}
	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}
	if in.Role == "" {
		in.Role = MemberTherapist
	}
	if in.Role != MemberTherapist && in.Role != MemberAdmin {
		return nil, apperr.Validation("role must be therapist or admin")
	}

	var m *Membership
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.clinics.GetBySlug(ctx, slug)
		if err != nil {
			return err
		}
		ok, err := s.users.UserExists(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("user %s does not exist", in.UserID)
		}
		m = &Membership{ClinicID: c.ID, UserID: in.UserID, Role: in.Role}
		if err := s.memberships.Create(ctx, m); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityMembership,
			m.ID.String(), map[string]interface{}{
				"clinic_id": c.ID.String(),
				"user_id":   in.UserID.String(),
				"role":      string(in.Role),
			}))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMemberships(ctx context.Context, caller auth.Caller, slug string, limit, offset int) ([]*Membership, int, error) {
	if !policy.CanAccessClinicAdmin(caller.Principal) {
		return nil, 0, apperr.Forbidden("only clinic admins can list memberships")
	}
	c, err := s.clinics.GetBySlug(ctx, slug)
	if err != nil {
		return nil, 0, err
	}
	return s.memberships.ListByClinic(ctx, c.ID, limit, offset)
}
