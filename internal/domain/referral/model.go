package referral

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type Referral struct {
	ID                  uuid.UUID  `json:"id"`
	ClinicID            *uuid.UUID `json:"clinic"`
	RequesterUserID     *uuid.UUID `json:"requester_user"`
	PatientName         string     `json:"patient_name"`
	PatientEmail        string     `json:"patient_email"`
	Reason              string     `json:"reason"`
	Status              Status     `json:"status"`
	AssignedTherapistID *uuid.UUID `json:"assigned_therapist"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// AssignedTherapistUserID is joined from the therapist profile.
	AssignedTherapistUserID *uuid.UUID `json:"-"`
}

// PolicyView is the snapshot the policy engine decides on.
func (r *Referral) PolicyView() policy.Referral {
	return policy.Referral{
		AssignedTherapistUserID: r.AssignedTherapistUserID,
		RequesterUserID:         r.RequesterUserID,
	}
}

// Materializable reports whether the referral carries everything a patient
// record needs.
func (r *Referral) Materializable() bool {
	return r.Status == StatusApproved && r.ClinicID != nil && r.AssignedTherapistID != nil
}

type Note struct {
	ID           uuid.UUID `json:"id"`
	ReferralID   uuid.UUID `json:"-"`
	AuthorUserID uuid.UUID `json:"author"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

type QuestionnaireType string

const (
	QuestionnairePHQ9 QuestionnaireType = "phq9"
	QuestionnaireGAD7 QuestionnaireType = "gad7"
)

type Questionnaire struct {
	ID         uuid.UUID         `json:"id"`
	ReferralID uuid.UUID         `json:"-"`
	Type       QuestionnaireType `json:"type"`
	Answers    map[string]int    `json:"answers"`
	Score      *int              `json:"score"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Detail is the single-referral view.
type Detail struct {
	*Referral
	ClinicName            *string          `json:"clinic_name"`
	AssignedTherapistName *string          `json:"assigned_therapist_name"`
	Notes                 []*Note          `json:"notes"`
	Questionnaires        []*Questionnaire `json:"questionnaires"`
	AllowedTransitions    []Status         `json:"allowed_transitions"`
}
