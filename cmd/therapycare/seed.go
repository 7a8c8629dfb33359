package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/karinehei/TherapyCare/internal/config"
	"github.com/karinehei/TherapyCare/internal/domain/account"
	"github.com/karinehei/TherapyCare/internal/domain/appointment"
	"github.com/karinehei/TherapyCare/internal/domain/clinic"
	"github.com/karinehei/TherapyCare/internal/domain/directory"
	"github.com/karinehei/TherapyCare/internal/domain/referral"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/metrics"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo clinic, users, therapist and an approved referral",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("clinic")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("seed is disabled when ENV=production")
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			collector := metrics.NewCollector(cfg.MetricsNamespace, prometheus.NewRegistry())
			res, err := seed(ctx, newServices(pool, logger, collector), slug)
			if err != nil {
				return err
			}
			fmt.Printf("clinic:      %s\n", res.clinicID)
			fmt.Printf("admin:       %s\n", res.adminID)
			fmt.Printf("therapist:   %s\n", res.therapistUserID)
			fmt.Printf("help seeker: %s\n", res.seekerID)
			fmt.Printf("referral:    %s\n", res.referralID)
			fmt.Printf("appointment: %s\n", res.appointmentID)
			return nil
		},
	}
	cmd.Flags().String("clinic", "harbor-clinic", "Slug of the demo clinic")
	return cmd
}

type seedResult struct {
	clinicID        uuid.UUID
	adminID         uuid.UUID
	therapistUserID uuid.UUID
	seekerID        uuid.UUID
	referralID      uuid.UUID
	appointmentID   uuid.UUID
}

// seed walks the same service calls a client would: the referral approval
// materializes the patient that the appointment is then booked for.
func seed(ctx context.Context, svc *services, slug string) (*seedResult, error) {
	res := &seedResult{adminID: uuid.New(), therapistUserID: uuid.New(), seekerID: uuid.New()}
	users := []*account.User{
		{ID: res.adminID, Role: auth.RoleClinicAdmin, Staff: true, DisplayName: "Demo Admin"},
		{ID: res.therapistUserID, Role: auth.RoleTherapist, DisplayName: "Dr. Demo"},
		{ID: res.seekerID, Role: auth.RoleHelpSeeker, DisplayName: "Demo Seeker"},
	}
	for _, u := range users {
		if err := svc.accounts.Register(ctx, u); err != nil {
			return nil, fmt.Errorf("register %s: %w", u.Role, err)
		}
	}

	admin := auth.Caller{
		Principal: &auth.Principal{ID: res.adminID, Role: auth.RoleClinicAdmin, Staff: true},
		ClientIP:  "127.0.0.1",
		UserAgent: "therapycare-seed",
	}
	therapist := auth.Caller{
		Principal: &auth.Principal{ID: res.therapistUserID, Role: auth.RoleTherapist},
		ClientIP:  admin.ClientIP,
		UserAgent: admin.UserAgent,
	}
	seeker := auth.Caller{
		Principal: &auth.Principal{ID: res.seekerID, Role: auth.RoleHelpSeeker},
		ClientIP:  admin.ClientIP,
		UserAgent: admin.UserAgent,
	}

	c, err := svc.clinics.CreateClinic(ctx, admin, clinic.CreateInput{Name: "Harbor Clinic", Slug: slug})
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("clinic %q already exists; the database looks seeded", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("create clinic: %w", err)
	}
	res.clinicID = c.ID

	if _, err := svc.clinics.AddMembership(ctx, admin, c.Slug, clinic.MembershipInput{
		UserID: res.therapistUserID, Role: clinic.MemberTherapist,
	}); err != nil {
		return nil, fmt.Errorf("add membership: %w", err)
	}

	profile, err := svc.directory.CreateProfile(ctx, therapist, directory.ProfileInput{
		ClinicID:        &c.ID,
		DisplayName:     "Dr. Demo",
		Bio:             "Cognitive behavioural therapy for anxiety and low mood.",
		Specialties:     []string{"anxiety", "depression"},
		Languages:       []string{"en", "fi"},
		City:            "Helsinki",
		RemoteAvailable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create therapist profile: %w", err)
	}
	for wd := 0; wd < 5; wd++ { // Monday to Friday
		if _, err := svc.directory.AddSlot(ctx, therapist, profile.ID, directory.AvailabilitySlot{
			Weekday: wd, StartTime: "09:00", EndTime: "12:00",
		}); err != nil {
			return nil, fmt.Errorf("add slot: %w", err)
		}
	}

	ref, err := svc.referrals.Create(ctx, seeker, referral.CreateInput{
		ClinicID:     &c.ID,
		PatientName:  "Demo Seeker",
		PatientEmail: "seeker@example.com",
		Reason:       "Trouble sleeping",
		Questionnaire: &referral.QuestionnaireInput{
			Type:    referral.QuestionnairePHQ9,
			Answers: map[string]int{"q1": 1, "q2": 2, "q3": 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}
	res.referralID = ref.ID

	approved := referral.StatusApproved
	if _, err := svc.referrals.Update(ctx, admin, ref.ID, referral.UpdateInput{
		Status:              &approved,
		AssignedTherapistID: &profile.ID,
	}); err != nil {
		return nil, fmt.Errorf("approve referral: %w", err)
	}

	pts, _, err := svc.patients.List(ctx, therapist, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("approved referral did not produce a patient")
	}

	start := nextWeekday(time.Now().UTC(), time.Monday).Add(9 * time.Hour)
	appt, err := svc.appointment.Book(ctx, therapist, appointment.BookInput{
		PatientID:   pts[0].ID,
		TherapistID: profile.ID,
		StartsAt:    start,
		EndsAt:      start.Add(50 * time.Minute),
	})
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	res.appointmentID = appt.ID
	return res, nil
}

// nextWeekday returns midnight of the next day falling on wd.
func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	d := from.Truncate(24*time.Hour).AddDate(0, 0, 1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
