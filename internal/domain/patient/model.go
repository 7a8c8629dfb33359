package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type Patient struct {
	ID               uuid.UUID       `json:"id"`
	ClinicID         uuid.UUID       `json:"clinic"`
	OwnerTherapistID uuid.UUID       `json:"owner_therapist"`
	ReferralID       *uuid.UUID      `json:"referral"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	ConsentFlags     map[string]bool `json:"consent_flags"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Joined columns.
	ClinicName         string    `json:"clinic_name"`
	OwnerTherapistName string    `json:"owner_therapist_name"`
	OwnerUserID        uuid.UUID `json:"-"`
}

// Access is an explicit PatientAccess grant.
type Access struct {
	ID         uuid.UUID         `json:"id"`
	PatientID  uuid.UUID         `json:"patient"`
	UserID     uuid.UUID         `json:"user"`
	AccessType policy.AccessType `json:"access_type"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PolicyView pairs the patient with its loaded grants.
func (p *Patient) PolicyView(grants []*Access) policy.Patient {
	view := policy.Patient{OwnerUserID: p.OwnerUserID, Grants: make([]policy.Grant, 0, len(grants))}
	for _, g := range grants {
		view.Grants = append(view.Grants, policy.Grant{UserID: g.UserID, AccessType: g.AccessType})
	}
	return view
}

type QuestionnaireEntry struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Score     *int      `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralTimeline struct {
	ID             uuid.UUID             `json:"id"`
	Status         string                `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	Questionnaires []*QuestionnaireEntry `json:"questionnaires"`
	NoteCount      int                   `json:"note_count"`
}

type AppointmentEntry struct {
	ID            uuid.UUID `json:"id"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Status        string    `json:"status"`
	TherapistName string    `json:"therapist_name"`
}

// Detail is the read-only patient view with its care timeline.
type Detail struct {
	*Patient
	ReferralTimeline     *ReferralTimeline   `json:"referral_timeline"`
	AppointmentsTimeline []*AppointmentEntry `json:"appointments_timeline"`
}
