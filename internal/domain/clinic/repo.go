package clinic

import (
	"context"

	"github.com/google/uuid"
)

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetBySlug(ctx context.Context, slug string) (*Clinic, error)
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Membership, int, error)
}
