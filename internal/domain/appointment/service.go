package appointment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/karinehei/TherapyCare/internal/domain/directory"
	"github.com/karinehei/TherapyCare/internal/domain/patient"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

type PatientFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type TherapistFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.TherapistProfile, error)
}

type Service struct {
	repo       Repository
	patients   PatientFinder
	therapists TherapistFinder
	tx         db.Transactor
	audit      *audit.Logger
	counter    *prometheus.CounterVec
}

type Option func(*Service)

// WithStatusCounter counts bookings and status changes by resulting status.
func WithStatusCounter(c *prometheus.CounterVec) Option {
	return func(s *Service) { s.counter = c }
}

func NewService(repo Repository, patients PatientFinder, therapists TherapistFinder, tx db.Transactor,
	auditLog *audit.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, patients: patients, therapists: therapists, tx: tx, audit: auditLog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) count(st Status) {
	if s.counter != nil {
		s.counter.WithLabelValues(string(st)).Inc()
	}
}

// =========== Booking ===========

type BookInput struct {
	PatientID   uuid.UUID `json:"patient"`
	TherapistID uuid.UUID `json:"therapist"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

func (s *Service) Book(ctx context.Context, caller auth.Caller, in BookInput) (*Detail, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if !policy.CanBookAppointment(caller.Principal) {
		return nil, apperr.Forbidden("only therapists and clinic admins can book appointments")
	}
	if in.PatientID == uuid.Nil || in.TherapistID == uuid.Nil {
		return nil, apperr.Validation("patient and therapist are required")
	}
	if in.StartsAt.IsZero() || !in.EndsAt.After(in.StartsAt) {
		return nil, apperr.Validation("ends_at must be after starts_at")
	}

	var a *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, in.PatientID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Validation("patient %s does not exist", in.PatientID)
			}
			return err
		}
		t, err := s.therapists.GetByID(ctx, in.TherapistID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Validation("therapist %s does not exist", in.TherapistID)
			}
			return err
		}
		a = &Appointment{
			PatientID:       p.ID,
			TherapistID:     t.ID,
			StartsAt:        in.StartsAt.UTC(),
			EndsAt:          in.EndsAt.UTC(),
			Status:          StatusBooked,
			PatientName:     p.Name,
			TherapistName:   t.DisplayName,
			TherapistUserID: t.UserID,
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityAppointment,
			a.ID.String(), map[string]interface{}{
				"patient_id":   p.ID.String(),
				"therapist_id": t.ID.String(),
				"fields":       []string{"patient", "therapist", "starts_at", "ends_at"},
			}))
	})
	if err != nil {
		return nil, err
	}
	s.count(StatusBooked)
	return &Detail{Appointment: a}, nil
}

// =========== Read ===========

func scopeFor(p *auth.Principal) Scope {
	switch {
	case p == nil:
		return Scope{}
	case p.IsAdmin(), p.Role == auth.RoleSupport:
		return Scope{All: true}
	case p.Role == auth.RoleTherapist:
		id := p.ID
		return Scope{TherapistUserID: &id}
	}
	return Scope{}
}

// List is the calendar view. It never includes session notes.
func (s *Service) List(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Appointment, int, error) {
	scope := scopeFor(caller.Principal)
	if !scope.All && scope.TherapistUserID == nil {
		return []*Appointment{}, 0, nil
	}
	return s.repo.List(ctx, scope, limit, offset)
}

// noteFor returns the appointment's note or nil when it has none.
func (s *Service) noteFor(ctx context.Context, appointmentID uuid.UUID) (*SessionNote, error) {
	n, err := s.repo.GetNote(ctx, appointmentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Detail, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	var detail *Detail
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !policy.CanViewAppointment(caller.Principal, a.PolicyView()) {
			return apperr.NotFound("appointment not found")
		}
		note, err := s.noteFor(ctx, a.ID)
		if err != nil {
			return err
		}
		detail = AssembleDetail(a, note, caller.Principal)
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionView, audit.EntityAppointment, a.ID.String(), nil))
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// PatientTimeline lists a patient's appointments for the patient detail view.
func (s *Service) PatientTimeline(ctx context.Context, patientID uuid.UUID) ([]*patient.AppointmentEntry, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]*patient.AppointmentEntry, 0, len(items))
	for _, a := range items {
		out = append(out, &patient.AppointmentEntry{
			ID:            a.ID,
			StartsAt:      a.StartsAt,
			EndsAt:        a.EndsAt,
			Status:        string(a.Status),
			TherapistName: a.TherapistName,
		})
	}
	return out, nil
}

// =========== Status ===========

// UpdateStatus cancels or completes a booked appointment. Setting the
// current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Caller, id uuid.UUID, to Status) (*Detail, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if !ValidStatus(to) {
		return nil, apperr.Validation("status must be booked, cancelled or completed")
	}

	var (
		detail  *Detail
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !policy.CanViewAppointment(caller.Principal, a.PolicyView()) {
			return apperr.NotFound("appointment not found")
		}
		if !policy.CanUpdateAppointment(caller.Principal, a.PolicyView()) {
			return apperr.Forbidden("only the assigned therapist or a clinic admin can change this appointment")
		}
		if a.Status != to {
			if a.Status != StatusBooked {
				return apperr.Validation("appointment is already %s", a.Status)
			}
			ok, err := s.repo.UpdateStatus(ctx, a.ID, a.Status, to)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflict("appointment was modified concurrently")
			}
			from := a.Status
			a.Status = to
			changed = true
			if err := s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionUpdate, audit.EntityAppointment,
				a.ID.String(), map[string]interface{}{
					"fields": []string{"status"},
					"from":   string(from),
					"to":     string(to),
				})); err != nil {
				return err
			}
		}
		note, err := s.noteFor(ctx, a.ID)
		if err != nil {
			return err
		}
		detail = AssembleDetail(a, note, caller.Principal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.count(to)
	}
	return detail, nil
}

// =========== Session notes ===========

// loadForNote enforces the note rules: a missing appointment is NotFound and
// anyone but the assigned therapist is Forbidden.
func (s *Service) loadForNote(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanEditSessionNote(caller.Principal, a.PolicyView()) {
		return nil, apperr.Forbidden("only the assigned therapist can create or edit session notes")
	}
	return a, nil
}

// noteMetadata is the only audit metadata recorded for a session note. The
// note text never reaches the audit log.
func noteMetadata(a *Appointment) map[string]interface{} {
	return map[string]interface{}{"appointment_id": a.ID.String()}
}

// CreateNote writes the appointment's session note.
func (s *Service) CreateNote(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, body string) (*SessionNote, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	var note *SessionNote
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.loadForNote(ctx, caller, appointmentID)
		if err != nil {
			return err
		}
		existing, err := s.noteFor(ctx, a.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("session note already exists, use PATCH to update")
		}
		if strings.TrimSpace(body) == "" {
			return apperr.Validation("body is required")
		}
		note = &SessionNote{AppointmentID: a.ID, AuthorUserID: caller.Principal.ID, Body: body}
		if err := s.repo.CreateNote(ctx, note); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntitySessionNote,
			note.ID.String(), noteMetadata(a)))
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) UpdateNote(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, body string) (*SessionNote, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	var note *SessionNote
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.loadForNote(ctx, caller, appointmentID)
		if err != nil {
			return err
		}
		note, err = s.repo.GetNote(ctx, a.ID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(body) == "" {
			return apperr.Validation("body is required")
		}
		note.Body = body
		if err := s.repo.UpdateNote(ctx, note); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionUpdate, audit.EntitySessionNote,
			note.ID.String(), noteMetadata(a)))
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}
