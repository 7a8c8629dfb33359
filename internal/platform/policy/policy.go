// Package policy decides who may read or write which record. Every function
// here is a pure, total predicate over the principal and a snapshot of the
// resource; callers load grants and ownership inside their transaction and
// pass them in. A nil principal is an unauthenticated caller.
package policy

import (
	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

// AccessType is the kind of explicit PatientAccess grant.
type AccessType string

const (
	AccessTherapist       AccessType = "therapist"
	AccessAdmin           AccessType = "admin"
	AccessSupportReadOnly AccessType = "support_read_only"
)

// ValidAccessType reports whether t is a known grant type.
func ValidAccessType(t AccessType) bool {
	switch t {
	case AccessTherapist, AccessAdmin, AccessSupportReadOnly:
		return true
	}
	return false
}

// Grant is one PatientAccess row as seen by the policy engine.
type Grant struct {
	UserID     uuid.UUID
	AccessType AccessType
}

// CanAccessClinicAdmin reports ClinicAdmin-level rights.
func CanAccessClinicAdmin(p *auth.Principal) bool {
	return p.IsAdmin()
}

// CanAccessPatient grants read access to a patient record.
//
// HelpSeeker and Support have no owner-equivalent shortcut: they need an
// explicit grant, and Support needs one of type support_read_only.
func CanAccessPatient(p *auth.Principal, pt Patient) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	grant, hasGrant := pt.grantFor(p.ID)
	switch p.Role {
	case auth.RoleTherapist:
		return IsOwner(p, pt) || hasGrant
	case auth.RoleHelpSeeker:
		return hasGrant
	case auth.RoleSupport:
		return hasGrant && grant.AccessType == AccessSupportReadOnly
	}
	return false
}

// CanViewAppointment: admin, staff and support see every appointment; a
// therapist only those they are assigned to.
func CanViewAppointment(p *auth.Principal, a Appointment) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() || p.Role == auth.RoleSupport {
		return true
	}
	if p.Role == auth.RoleTherapist {
		return IsOwner(p, a)
	}
	return false
}

// CanEditSessionNote is true only for the therapist actually assigned to the
// appointment. Admin rights do not extend to note authorship.
func CanEditSessionNote(p *auth.Principal, a Appointment) bool {
	return p.HasRole(auth.RoleTherapist) && IsOwner(p, a)
}

// CanModerateReferral governs status and assignment changes.
func CanModerateReferral(p *auth.Principal) bool {
	return p.IsAdmin()
}

func CanViewReferral(p *auth.Principal, r Referral) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	switch p.Role {
	case auth.RoleTherapist:
		return IsOwner(p, r)
	case auth.RoleHelpSeeker:
		return r.RequesterUserID != nil && *r.RequesterUserID == p.ID
	}
	return false
}

// CanAddReferralNote covers notes and questionnaires on an existing referral.
func CanAddReferralNote(p *auth.Principal, r Referral) bool {
	return p != nil && CanViewReferral(p, r)
}

// CanCreateReferral is open to every caller, including anonymous self-referral.
func CanCreateReferral(_ *auth.Principal) bool {
	return true
}

// CanBookAppointment: therapists and admins book; help-seekers cannot self-book.
func CanBookAppointment(p *auth.Principal) bool {
	return p.IsAdmin() || p.HasRole(auth.RoleTherapist)
}

// CanUpdateAppointment allows status changes by the assigned therapist or an admin.
func CanUpdateAppointment(p *auth.Principal, a Appointment) bool {
	return p.IsAdmin() || CanEditSessionNote(p, a)
}

func CanReadAudit(p *auth.Principal) bool {
	return p != nil && (p.Role == auth.RoleSupport || p.Staff)
}

// CanWriteAudit is always false: the audit surface is read-only. Events are
// appended only through the audit logger.
func CanWriteAudit(_ *auth.Principal) bool {
	return false
}

// CanManageTherapistProfile lets a therapist edit their own profile and
// admins edit any.
func CanManageTherapistProfile(p *auth.Principal, profileUserID uuid.UUID) bool {
	if p.IsAdmin() {
		return true
	}
	return p.HasRole(auth.RoleTherapist) && p.ID == profileUserID
}

// MaskSessionNote decides whether the note body is replaced by the redaction
// marker for this viewer. Support is always masked. Admins and staff are
// masked unless they are themselves the assigned therapist. The assigned
// therapist always sees the true body.
func MaskSessionNote(p *auth.Principal, isAssignedTherapist bool) bool {
	return p.HasRole(auth.RoleSupport) || !isAssignedTherapist
}

// IsAssignedTherapist reports whether p is the therapist on appointment a.
func IsAssignedTherapist(p *auth.Principal, a Appointment) bool {
	return p.HasRole(auth.RoleTherapist) && IsOwner(p, a)
}
