package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusBooked, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient"`
	TherapistID uuid.UUID `json:"therapist"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Joined columns.
	PatientName     string    `json:"patient_name"`
	TherapistName   string    `json:"therapist_name"`
	TherapistUserID uuid.UUID `json:"-"`
}

func (a *Appointment) PolicyView() policy.Appointment {
	return policy.Appointment{TherapistUserID: a.TherapistUserID}
}

type SessionNote struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"-"`
	AuthorUserID  uuid.UUID `json:"author"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Redacted replaces a session note body the viewer may not read.
const Redacted = "REDACTED"

type Detail struct {
	*Appointment
	SessionNote *SessionNote `json:"session_note"`
}

// AssembleDetail builds the appointment view for viewer. The note body is
// replaced by Redacted unless the viewer is the assigned therapist and not
// support. Neither input is modified.
func AssembleDetail(a *Appointment, note *SessionNote, viewer *auth.Principal) *Detail {
	d := &Detail{Appointment: a}
	if note == nil {
		return d
	}
	cp := *note
	if policy.MaskSessionNote(viewer, policy.IsAssignedTherapist(viewer, a.PolicyView())) {
		cp.Body = Redacted
	}
	d.SessionNote = &cp
	return d
}
