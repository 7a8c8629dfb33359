package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

// Action is the audited verb.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

// ValidAction reports whether a is one of the audited verbs.
func ValidAction(a Action) bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout:
		return true
	}
	return false
}

// Entity types recorded in the log.
const (
	EntityPatient       = "patient"
	EntityPatientAccess = "patient_access"
	EntityAppointment   = "appointment"
	EntitySessionNote   = "session_note"
	EntityReferral      = "referral"
	EntityReferralNote  = "referral_note"
	EntityQuestionnaire = "questionnaire"
	EntityClinic        = "clinic"
	EntityMembership    = "membership"
	EntityTherapist     = "therapist_profile"
	EntitySlot          = "availability_slot"
	EntityUser          = "user"
)

// Event is one append-only audit row.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	ActorID    *uuid.UUID             `json:"actor"`
	Action     Action                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	ClientIP   string                 `json:"ip"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Entry is the input to Logger.LogEvent.
type Entry struct {
	Action     Action
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
	ActorID    *uuid.UUID
	ClientIP   string
	UserAgent  string
}

// NewEntry fills actor and request origin from caller.
func NewEntry(caller auth.Caller, action Action, entityType, entityID string, metadata map[string]interface{}) Entry {
	return Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		ActorID:    caller.ActorID(),
		ClientIP:   caller.ClientIP,
		UserAgent:  caller.UserAgent,
	}
}

// Filter narrows an audit listing. Zero values are ignored.
type Filter struct {
	ActorID    *uuid.UUID
	Action     Action
	EntityType string
	EntityID   string
	From       *time.Time
	To         *time.Time
}
