package directory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TherapistProfile struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ClinicID        *uuid.UUID `json:"clinic_id,omitempty"`
	DisplayName     string     `json:"display_name"`
	Bio             string     `json:"bio"`
	Specialties     []string   `json:"specialties"`
	Languages       []string   `json:"languages"`
	PriceMin        *int       `json:"price_min,omitempty"`
	PriceMax        *int       `json:"price_max,omitempty"`
	City            string     `json:"city"`
	RemoteAvailable bool       `json:"remote_available"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AvailabilitySlot is a weekly recurring window. Weekday 0 is Monday.
type AvailabilitySlot struct {
	ID          uuid.UUID `json:"id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	Weekday     int       `json:"weekday"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
}

const clockLayout = "15:04"

// parseClock validates an HH:MM wall-clock time.
func parseClock(s string) (time.Time, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t, nil
}

// Validate checks weekday range and that the window is non-empty.
func (s *AvailabilitySlot) Validate() error {
	if s.Weekday < 0 || s.Weekday > 6 {
		return fmt.Errorf("weekday must be between 0 and 6")
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("end_time must be after start_time")
	}
	s.StartTime = start.Format(clockLayout)
	s.EndTime = end.Format(clockLayout)
	return nil
}
