package policy

import (
	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

// Kind tags the closed set of resources that have an owner.
type Kind string

const (
	KindPatient     Kind = "patient"
	KindAppointment Kind = "appointment"
	KindReferral    Kind = "referral"
	KindSessionNote Kind = "session_note"
)

// Resource is implemented only by the snapshot types in this package.
type Resource interface {
	Kind() Kind
	sealed()
}

// Patient is the policy view of a patient record.
type Patient struct {
	OwnerUserID uuid.UUID
	Grants      []Grant
}

// Appointment is the policy view of an appointment.
type Appointment struct {
	TherapistUserID uuid.UUID
}

// Referral is the policy view of a referral. Both ids are optional.
type Referral struct {
	AssignedTherapistUserID *uuid.UUID
	RequesterUserID         *uuid.UUID
}

// SessionNote is the policy view of a session note.
type SessionNote struct {
	AuthorUserID uuid.UUID
}

func (Patient) Kind() Kind     { return KindPatient }
func (Appointment) Kind() Kind { return KindAppointment }
func (Referral) Kind() Kind    { return KindReferral }
func (SessionNote) Kind() Kind { return KindSessionNote }

func (Patient) sealed()     {}
func (Appointment) sealed() {}
func (Referral) sealed()    {}
func (SessionNote) sealed() {}

func (pt Patient) grantFor(userID uuid.UUID) (Grant, bool) {
	for _, g := range pt.Grants {
		if g.UserID == userID {
			return g, true
		}
	}
	return Grant{}, false
}

// OwnerOf returns the principal that owns r, or false when r has no owner
// (an unassigned referral).
func OwnerOf(r Resource) (uuid.UUID, bool) {
	switch v := r.(type) {
	case Patient:
		return v.OwnerUserID, v.OwnerUserID != uuid.Nil
	case Appointment:
		return v.TherapistUserID, v.TherapistUserID != uuid.Nil
	case Referral:
		if v.AssignedTherapistUserID == nil {
			return uuid.Nil, false
		}
		return *v.AssignedTherapistUserID, true
	case SessionNote:
		return v.AuthorUserID, v.AuthorUserID != uuid.Nil
	}
	return uuid.Nil, false
}

// IsOwner reports whether p owns r.
func IsOwner(p *auth.Principal, r Resource) bool {
	if p == nil {
		return false
	}
	owner, ok := OwnerOf(r)
	return ok && owner == p.ID
}
