package directory

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *TherapistProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*TherapistProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*TherapistProfile, error)
	List(ctx context.Context, limit, offset int) ([]*TherapistProfile, int, error)
}

type SlotRepository interface {
	Create(ctx context.Context, s *AvailabilitySlot) error
	ListByTherapist(ctx context.Context, therapistID uuid.UUID) ([]*AvailabilitySlot, error)
}
