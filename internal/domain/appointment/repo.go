package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Scope restricts a listing. TherapistUserID limits it to one therapist's
// appointments; with neither field set the listing is empty.
type Scope struct {
	All             bool
	TherapistUserID *uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus moves the appointment to to only while it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	List(ctx context.Context, scope Scope, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)

	// GetNote returns NotFound when the appointment has no note.
	GetNote(ctx context.Context, appointmentID uuid.UUID) (*SessionNote, error)
	CreateNote(ctx context.Context, n *SessionNote) error
	UpdateNote(ctx context.Context, n *SessionNote) error
}
