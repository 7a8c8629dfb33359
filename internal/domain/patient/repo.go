package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// Scope restricts a listing to one caller's patients. UserID selects patients
// with a grant for that user, optionally of GrantType only. IncludeOwned adds
// patients whose owner therapist is UserID.
type Scope struct {
	All          bool
	UserID       *uuid.UUID
	IncludeOwned bool
	GrantType    policy.AccessType
}

type Repository interface {
	// CreateFromReferral inserts p unless a patient for p.ReferralID exists,
	// in which case p is overwritten with the stored row. created reports
	// which happened.
	CreateFromReferral(ctx context.Context, p *Patient) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, scope Scope, limit, offset int) ([]*Patient, int, error)

	ListAccess(ctx context.Context, patientID uuid.UUID) ([]*Access, error)
	CreateAccess(ctx context.Context, a *Access) error
	// EnsureAccess inserts a unless the user already holds a grant.
	EnsureAccess(ctx context.Context, a *Access) error
}
