package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/domain/clinic"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// ClinicFinder resolves clinic references.
type ClinicFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*clinic.Clinic, error)
}

type Service struct {
	profiles ProfileRepository
	slots    SlotRepository
	clinics  ClinicFinder
	tx       db.Transactor
	audit    *audit.Logger
}

func NewService(profiles ProfileRepository, slots SlotRepository, clinics ClinicFinder, tx db.Transactor, auditLog *audit.Logger) *Service {
	return &Service{profiles: profiles, slots: slots, clinics: clinics, tx: tx, audit: auditLog}
}

type ProfileInput struct {
	// UserID defaults to the caller. Only admins may set it to someone else.
	UserID          *uuid.UUID `json:"user_id"`
	ClinicID        *uuid.UUID `json:"clinic_id"`
	DisplayName     string     `json:"display_name"`
	Bio             string     `json:"bio"`
	Specialties     []string   `json:"specialties"`
	Languages       []string   `json:"languages"`
	PriceMin        *int       `json:"price_min"`
	PriceMax        *int       `json:"price_max"`
	City            string     `json:"city"`
	RemoteAvailable bool       `json:"remote_available"`
}

func (in ProfileInput) validate() error {
	if strings.TrimSpace(in.DisplayName) == "" {
		return apperr.Validation("display_name is required")
	}
	if in.PriceMin != nil && *in.PriceMin < 0 {
		return apperr.Validation("price_min must not be negative")
	}
	if in.PriceMin != nil && in.PriceMax != nil && *in.PriceMax < *in.PriceMin {
		return apperr.Validation("price_max must not be below price_min")
	}
	return nil
}

func (s *Service) CreateProfile(ctx context.Context, caller auth.Caller, in ProfileInput) (*TherapistProfile, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	userID := caller.Principal.ID
	if in.UserID != nil {
		userID = *in.UserID
	}
	if !policy.CanManageTherapistProfile(caller.Principal, userID) {
		return nil, apperr.Forbidden("you cannot create a therapist profile for this user")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := &TherapistProfile{
		UserID:          userID,
		ClinicID:        in.ClinicID,
		DisplayName:     strings.TrimSpace(in.DisplayName),
		Bio:             in.Bio,
		Specialties:     in.Specialties,
		Languages:       in.Languages,
		PriceMin:        in.PriceMin,
		PriceMax:        in.PriceMax,
		City:            in.City,
		RemoteAvailable: in.RemoteAvailable,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if p.ClinicID != nil {
			if _, err := s.clinics.GetByID(ctx, *p.ClinicID); err != nil {
				return err
			}
		}
		if err := s.profiles.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntityTherapist,
			p.ID.String(), map[string]interface{}{"user_id": userID.String()}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*TherapistProfile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *Service) ListProfiles(ctx context.Context, limit, offset int) ([]*TherapistProfile, int, error) {
	return s.profiles.List(ctx, limit, offset)
}

func (s *Service) AddSlot(ctx context.Context, caller auth.Caller, therapistID uuid.UUID, slot AvailabilitySlot) (*AvailabilitySlot, error) {
	if !caller.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.profiles.GetByID(ctx, therapistID)
		if err != nil {
			return err
		}
		if !policy.CanManageTherapistProfile(caller.Principal, p.UserID) {
			return apperr.Forbidden("only the therapist or an admin can edit availability")
		}
		if err := slot.Validate(); err != nil {
			return apperr.Validation("%s", err.Error())
		}
		slot.TherapistID = p.ID
		if err := s.slots.Create(ctx, &slot); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, audit.NewEntry(caller, audit.ActionCreate, audit.EntitySlot,
			slot.ID.String(), map[string]interface{}{
				"therapist_id": p.ID.String(),
				"weekday":      slot.Weekday,
			}))
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *Service) ListSlots(ctx context.Context, therapistID uuid.UUID) ([]*AvailabilitySlot, error) {
	if _, err := s.profiles.GetByID(ctx, therapistID); err != nil {
		return nil, err
	}
	return s.slots.ListByTherapist(ctx, therapistID)
}
