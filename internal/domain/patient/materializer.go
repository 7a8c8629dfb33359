package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/karinehei/TherapyCare/internal/domain/referral"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// Materializer creates the patient record for an approved, assigned
// referral. It runs inside the caller's transaction.
type Materializer struct {
	repo    Repository
	audit   *audit.Logger
	created prometheus.Counter
}

type MaterializerOption func(*Materializer)

// WithCreatedCounter counts patients actually inserted.
func WithCreatedCounter(c prometheus.Counter) MaterializerOption {
	return func(m *Materializer) { m.created = c }
}

func NewMaterializer(repo Repository, auditLog *audit.Logger, opts ...MaterializerOption) *Materializer {
	m := &Materializer{repo: repo, audit: auditLog}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaterializeFromReferral returns the patient for ref, creating it on first
// call. It returns (nil, false, nil) when ref lacks approval, a clinic or an
// assigned therapist. Repeated calls never create a second patient.
func (m *Materializer) MaterializeFromReferral(ctx context.Context, caller auth.Caller, ref *referral.Referral) (*Patient, bool, error) {
	if !ref.Materializable() {
		return nil, false, nil
	}
	if ref.AssignedTherapistUserID == nil {
		return nil, false, fmt.Errorf("materialize referral %s: assigned therapist user is unknown", ref.ID)
	}

	refID := ref.ID
	p := &Patient{
		ClinicID:         *ref.ClinicID,
		OwnerTherapistID: *ref.AssignedTherapistID,
		ReferralID:       &refID,
		Name:             ref.PatientName,
		Email:            ref.PatientEmail,
		Phone:            "",
		ConsentFlags:     map[string]bool{},
	}
	created, err := m.repo.CreateFromReferral(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("materialize referral %s: %w", ref.ID, err)
	}
	// An existing patient is returned untouched, even if the referral has
	// since been reassigned. Further grants go through GrantAccess.
	if !created {
		return p, false, nil
	}

	if err := m.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityPatient,
		p.ID.String(), map[string]interface{}{
			"referral_id": ref.ID.String(),
			"source":      "referral",
		})); err != nil {
		return nil, false, err
	}

	owner := &Access{PatientID: p.ID, UserID: *ref.AssignedTherapistUserID, AccessType: policy.AccessTherapist}
	if err := m.repo.EnsureAccess(ctx, owner); err != nil {
		return nil, false, fmt.Errorf("grant owner access: %w", err)
	}
	if err := m.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityPatientAccess,
		owner.ID.String(), map[string]interface{}{
			"patient_id":  p.ID.String(),
			"user_id":     owner.UserID.String(),
			"access_type": string(owner.AccessType),
			"source":      "referral",
		})); err != nil {
		return nil, false, err
	}

	if m.created != nil {
		m.created.Inc()
	}
	return p, true, nil
}

// EnsurePatient adapts MaterializeFromReferral to referral.PatientMaterializer.
func (m *Materializer) EnsurePatient(ctx context.Context, caller auth.Caller, ref *referral.Referral) (uuid.UUID, bool, error) {
	p, created, err := m.MaterializeFromReferral(ctx, caller, ref)
	if err != nil || p == nil {
		return uuid.Nil, false, err
	}
	return p.ID, created, nil
}
