package referral

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/karinehei/TherapyCare/internal/domain/clinic"
	"github.com/karinehei/TherapyCare/internal/domain/directory"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type ClinicFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*clinic.Clinic, error)
}

type TherapistFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.TherapistProfile, error)
}

// PatientMaterializer turns an approved, assigned referral into a patient
// record. It must be idempotent and a no-op for referrals that are not
// Materializable. created is true only on the call that inserted the row.
type PatientMaterializer interface {
	EnsurePatient(ctx context.Context, caller auth.Caller, r *Referral) (patientID uuid.UUID, created bool, err error)
}

type Service struct {
	repo         Repository
	clinics      ClinicFinder
	therapists   TherapistFinder
	materializer PatientMaterializer
	tx           db.Transactor
	audit        *audit.Logger
	transitions  *prometheus.CounterVec
}

type Option func(*Service)

// WithTransitionCounter counts accepted status changes by from/to label.
func WithTransitionCounter(c *prometheus.CounterVec) Option {
	return func(s *Service) { s.transitions = c }
}

func NewService(repo Repository, clinics ClinicFinder, therapists TherapistFinder, materializer PatientMaterializer,
	tx db.Transactor, auditLog *audit.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		clinics:      clinics,
		therapists:   therapists,
		materializer: materializer,
		tx:           tx,
		audit:        auditLog,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =========== Create ===========

type QuestionnaireInput struct {
	Type    QuestionnaireType `json:"type"`
	Answers map[string]int    `json:"answers"`
	Score   *int              `json:"score"`
}

func (in QuestionnaireInput) build(referralID uuid.UUID) (*Questionnaire, error) {
	if in.Type != QuestionnairePHQ9 && in.Type != QuestionnaireGAD7 {
		return nil, apperr.Validation("type must be phq9 or gad7")
	}
	answers := in.Answers
	if answers == nil {
		answers = map[string]int{}
	}
	sum := 0
	for k, v := range answers {
		if v < 0 || v > 3 {
			return nil, apperr.Validation("answer %q must be between 0 and 3", k)
		}
		sum += v
	}
	score := in.Score
	if score == nil {
		score = &sum
	} else if *score < 0 {
		return nil, apperr.Validation("score must not be negative")
	}
	return &Questionnaire{ReferralID: referralID, Type: in.Type, Answers: answers, Score: score}, nil
}

type CreateInput struct {
	ClinicID      *uuid.UUID          `json:"clinic"`
	PatientName   string              `json:"patient_name"`
	PatientEmail  string              `json:"patient_email"`
	Reason        string              `json:"reason"`
	Questionnaire *QuestionnaireInput `json:"questionnaire"`
}

// fields lists the supplied input keys for the audit trail.
func (in CreateInput) fields() []string {
	out := []string{"patient_name", "patient_email"}
	if in.ClinicID != nil {
		out = append(out, "clinic")
	}
	if in.Reason != "" {
		out = append(out, "reason")
	}
	if in.Questionnaire != nil {
		out = append(out, "questionnaire")
	}
	return out
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Create records a new referral. It is open to anonymous callers; an
// authenticated caller becomes the requester.
func (s *Service) Create(ctx context.Context, caller auth.Caller, in CreateInput) (*Detail, error) {
	if !policy.CanCreateReferral(caller.Principal) {
		return nil, apperr.Forbidden("you cannot create referrals")
	}
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.PatientEmail = strings.TrimSpace(in.PatientEmail)
	if in.PatientName == "" {
		return nil, apperr.Validation("patient_name is required")
	}
	if !validEmail(in.PatientEmail) {
		return nil, apperr.Validation("patient_email must be a valid email address")
	}

	ref := &Referral{
		ClinicID:        in.ClinicID,
		RequesterUserID: caller.ActorID(),
		PatientName:     in.PatientName,
		PatientEmail:    in.PatientEmail,
		Reason:          in.Reason,
		Status:          StatusNew,
	}
	var detail *Detail
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if ref.ClinicID != nil {
			if _, err := s.clinics.GetByID(ctx, *ref.ClinicID); err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return apperr.Validation("clinic %s does not exist", *ref.ClinicID)
				}
				return err
			}
		}
		if err := s.repo.Create(ctx, ref); err != nil {
			return err
		}
		if in.Questionnaire != nil {
			q, err := in.Questionnaire.build(ref.ID)
			if err != nil {
				return err
			}
			if err := s.repo.AddQuestionnaire(ctx, q); err != nil {
				return err
			}
		}
		if err := s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityReferral,
			ref.ID.String(), map[string]interface{}{"fields": in.fields()})); err != nil {
			return err
		}
		if _, _, err := s.materializer.EnsurePatient(ctx, caller, ref); err != nil {
			return err
		}
		var err error
		detail, err = s.detail(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// =========== Read ===========

// scopeFor maps a caller to the referrals they may list.
func scopeFor(p *auth.Principal) Scope {
	switch {
	case p == nil:
		return Scope{}
	case p.IsAdmin():
		return Scope{All: true}
	case p.Role == auth.RoleTherapist:
		id := p.ID
		return Scope{AssignedTherapistUserID: &id}
	case p.Role == auth.RoleHelpSeeker:
		id := p.ID
		return Scope{RequesterUserID: &id}
	}
	return Scope{}
}

func (s *Service) List(ctx context.Context, caller auth.Caller, status Status, limit, offset int) ([]*Referral, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, apperr.Validation("unknown status %q", status)
	}
	scope := scopeFor(caller.Principal)
	if !scope.All && scope.AssignedTherapistUserID == nil && scope.RequesterUserID == nil {
		return []*Referral{}, 0, nil
	}
	scope.Status = status
	return s.repo.List(ctx, scope, limit, offset)
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Detail, error) {
	var detail *Detail
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !policy.CanViewReferral(caller.Principal, ref.PolicyView()) {
			return apperr.NotFound("referral not found")
		}
		detail, err = s.detail(ctx, ref)
		if err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionView, audit.EntityReferral, ref.ID.String(), nil))
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) detail(ctx context.Context, ref *Referral) (*Detail, error) {
	d := &Detail{Referral: ref, AllowedTransitions: AllowedTransitions(ref.Status)}
	if ref.ClinicID != nil {
		c, err := s.clinics.GetByID(ctx, *ref.ClinicID)
		if err != nil {
			return nil, err
		}
		d.ClinicName = &c.Name
	}
	if ref.AssignedTherapistID != nil {
		t, err := s.therapists.GetByID(ctx, *ref.AssignedTherapistID)
		if err != nil {
			return nil, err
		}
		d.AssignedTherapistName = &t.DisplayName
	}
	notes, err := s.repo.ListNotes(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	qs, err := s.repo.ListQuestionnaires(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	d.Notes = notes
	d.Questionnaires = qs
	if d.Notes == nil {
		d.Notes = []*Note{}
	}
	if d.Questionnaires == nil {
		d.Questionnaires = []*Questionnaire{}
	}
	return d, nil
}

// =========== Update ===========

type UpdateInput struct {
	Status              *Status    `json:"status"`
	AssignedTherapistID *uuid.UUID `json:"assigned_therapist"`
	Reason              *string    `json:"reason"`
}

func (in UpdateInput) fields() []string {
	out := []string{}
	if in.Status != nil {
		out = append(out, "status")
	}
	if in.AssignedTherapistID != nil {
		out = append(out, "assigned_therapist")
	}
	if in.Reason != nil {
		out = append(out, "reason")
	}
	return out
}

// Update changes status, assignment or reason. The status change is checked
// against the state machine while the row is locked and written only if the
// stored status is still the one that was checked.
func (s *Service) Update(ctx context.Context, caller auth.Caller, id uuid.UUID, in UpdateInput) (*Detail, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if !policy.CanModerateReferral(caller.Principal) {
		return nil, apperr.Forbidden("only clinic admins can update referrals")
	}
	fields := in.fields()
	if len(fields) == 0 {
		return nil, apperr.Validation("no updatable fields supplied")
	}
	if in.Status != nil && !ValidStatus(*in.Status) {
		return nil, apperr.Validation("unknown status %q", *in.Status)
	}

	var (
		detail *Detail
		prior  Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prior = ref.Status

		if in.Status != nil {
			if !CanTransition(prior, *in.Status) {
				return apperr.ValidationWithFields(
					"invalid transition from "+string(prior)+" to "+string(*in.Status),
					map[string]interface{}{"allowed_transitions": AllowedTransitions(prior)},
				)
			}
			ref.Status = *in.Status
		}
		if in.AssignedTherapistID != nil {
			t, err := s.therapists.GetByID(ctx, *in.AssignedTherapistID)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return apperr.Validation("therapist %s does not exist", *in.AssignedTherapistID)
				}
				return err
			}
			ref.AssignedTherapistID = &t.ID
			userID := t.UserID
			ref.AssignedTherapistUserID = &userID
		}
		if in.Reason != nil {
			ref.Reason = *in.Reason
		}

		ok, err := s.repo.UpdateIfStatus(ctx, ref, prior)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("referral was modified concurrently")
		}
		if _, _, err := s.materializer.EnsurePatient(ctx, caller, ref); err != nil {
			return err
		}
		if err := s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionUpdate, audit.EntityReferral,
			ref.ID.String(), map[string]interface{}{"fields": fields})); err != nil {
			return err
		}
		detail, err = s.detail(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.transitions != nil && in.Status != nil && prior != *in.Status {
		s.transitions.WithLabelValues(string(prior), string(*in.Status)).Inc()
	}
	return detail, nil
}

// =========== Notes and questionnaires ===========

// loadForContribution fetches a referral the caller may add to. Referrals
// outside the caller's view are reported as missing.
func (s *Service) loadForContribution(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Referral, error) {
	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanAddReferralNote(caller.Principal, ref.PolicyView()) {
		return nil, apperr.NotFound("referral not found")
	}
	return ref, nil
}

func (s *Service) AddNote(ctx context.Context, caller auth.Caller, id uuid.UUID, body string) (*Note, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperr.Validation("body is required")
	}

	var note *Note
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref, err := s.loadForContribution(ctx, caller, id)
		if err != nil {
			return err
		}
		note = &Note{ReferralID: ref.ID, AuthorUserID: caller.Principal.ID, Body: body}
		if err := s.repo.AddNote(ctx, note); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityReferralNote,
			note.ID.String(), map[string]interface{}{"referral_id": ref.ID.String()}))
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) AddQuestionnaire(ctx context.Context, caller auth.Caller, id uuid.UUID, in QuestionnaireInput) (*Questionnaire, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}

	var q *Questionnaire
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref, err := s.loadForContribution(ctx, caller, id)
		if err != nil {
			return err
		}
		q, err = in.build(ref.ID)
		if err != nil {
			return err
		}
		if err := s.repo.AddQuestionnaire(ctx, q); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityQuestionnaire,
			q.ID.String(), map[string]interface{}{
				"referral_id": ref.ID.String(),
				"type":        string(q.Type),
			}))
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}
