package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/domain/referral"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// ReferralReader is the part of the referral store the timeline needs.
type ReferralReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
	ListNotes(ctx context.Context, referralID uuid.UUID) ([]*referral.Note, error)
	ListQuestionnaires(ctx context.Context, referralID uuid.UUID) ([]*referral.Questionnaire, error)
}

// AppointmentTimeline lists a patient's appointments ordered by start time.
type AppointmentTimeline interface {
	PatientTimeline(ctx context.Context, patientID uuid.UUID) ([]*AppointmentEntry, error)
}

type UserChecker interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo         Repository
	referrals    ReferralReader
	appointments AppointmentTimeline
	users        UserChecker
	tx           db.Transactor
	audit        *audit.Logger
}

func NewService(repo Repository, referrals ReferralReader, appointments AppointmentTimeline, users UserChecker,
	tx db.Transactor, auditLog *audit.Logger) *Service {
	return &Service{
		repo:         repo,
		referrals:    referrals,
		appointments: appointments,
		users:        users,
		tx:           tx,
		audit:        auditLog,
	}
}

func scopeFor(p *auth.Principal) Scope {
	switch {
	case p == nil:
		return Scope{}
	case p.IsAdmin():
		return Scope{All: true}
	}
	id := p.ID
	switch p.Role {
	case auth.RoleTherapist:
		return Scope{UserID: &id, IncludeOwned: true}
	case auth.RoleHelpSeeker:
		return Scope{UserID: &id}
	case auth.RoleSupport:
		return Scope{UserID: &id, GrantType: policy.AccessSupportReadOnly}
	}
	return Scope{}
}

func (s *Service) List(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Patient, int, error) {
	scope := scopeFor(caller.Principal)
	if !scope.All && scope.UserID == nil {
		return []*Patient{}, 0, nil
	}
	return s.repo.List(ctx, scope, limit, offset)
}

// load fetches a patient and its grants and applies the read policy.
// Patients the caller may not read are reported as missing.
func (s *Service) load(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	grants, err := s.repo.ListAccess(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !policy.CanAccessPatient(caller.Principal, p.PolicyView(grants)) {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Detail, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	var detail *Detail
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.load(ctx, caller, id)
		if err != nil {
			return err
		}
		detail = &Detail{Patient: p}
		if detail.ReferralTimeline, err = s.referralTimeline(ctx, p); err != nil {
			return err
		}
		if detail.AppointmentsTimeline, err = s.appointments.PatientTimeline(ctx, p.ID); err != nil {
			return err
		}
		if detail.AppointmentsTimeline == nil {
			detail.AppointmentsTimeline = []*AppointmentEntry{}
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionView, audit.EntityPatient, p.ID.String(), nil))
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) referralTimeline(ctx context.Context, p *Patient) (*ReferralTimeline, error) {
	if p.ReferralID == nil {
		return nil, nil
	}
	ref, err := s.referrals.GetByID(ctx, *p.ReferralID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	notes, err := s.referrals.ListNotes(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	qs, err := s.referrals.ListQuestionnaires(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	tl := &ReferralTimeline{
		ID:             ref.ID,
		Status:         string(ref.Status),
		CreatedAt:      ref.CreatedAt,
		NoteCount:      len(notes),
		Questionnaires: make([]*QuestionnaireEntry, 0, len(qs)),
	}
	for _, q := range qs {
		tl.Questionnaires = append(tl.Questionnaires, &QuestionnaireEntry{
			ID: q.ID, Type: string(q.Type), Score: q.Score, CreatedAt: q.CreatedAt,
		})
	}
	return tl, nil
}

type GrantInput struct {
	UserID     uuid.UUID         `json:"user"`
	AccessType policy.AccessType `json:"access_type"`
}

func (s *Service) GrantAccess(ctx context.Context, caller auth.Caller, patientID uuid.UUID, in GrantInput) (*Access, error) {
	if !policy.CanAccessClinicAdmin(caller.Principal) {
		return nil, apperr.Forbidden("only clinic admins can grant patient access")
	}
	if in.UserID == uuid.Nil {
		return nil, apperr.Validation("user is required")
	}
	if !policy.ValidAccessType(in.AccessType) {
		return nil, apperr.Validation("access_type must be therapist, admin or support_read_only")
	}

	var a *Access
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, patientID)
		if err != nil {
			return err
		}
		ok, err := s.users.UserExists(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("user %s does not exist", in.UserID)
		}
		a = &Access{PatientID: p.ID, UserID: in.UserID, AccessType: in.AccessType}
		if err := s.repo.CreateAccess(ctx, a); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityPatientAccess,
			a.ID.String(), map[string]interface{}{
				"patient_id":  p.ID.String(),
				"user_id":     in.UserID.String(),
				"access_type": string(in.AccessType),
			}))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
