package referral

import (
	"context"

	"github.com/google/uuid"
)

// Scope restricts a listing to what one caller may see. With All unset and
// both user ids nil the listing is empty.
type Scope struct {
	All                     bool
	AssignedTherapistUserID *uuid.UUID
	RequesterUserID         *uuid.UUID
	Status                  Status
}

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	// GetForUpdate locks the row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Referral, error)
	// UpdateIfStatus writes r only while the stored status still equals
	// prior. It reports whether a row changed.
	UpdateIfStatus(ctx context.Context, r *Referral, prior Status) (bool, error)
	List(ctx context.Context, scope Scope, limit, offset int) ([]*Referral, int, error)

	AddNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, referralID uuid.UUID) ([]*Note, error)
	AddQuestionnaire(ctx context.Context, q *Questionnaire) error
	ListQuestionnaires(ctx context.Context, referralID uuid.UUID) ([]*Questionnaire, error)
}
