package clinic

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Clinic struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipRole is the role a user holds within one clinic.
type MembershipRole string

const (
	MemberTherapist MembershipRole = "therapist"
	MemberAdmin     MembershipRole = "admin"
)

type Membership struct {
	ID        uuid.UUID      `json:"id"`
	ClinicID  uuid.UUID      `json:"clinic_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Role      MembershipRole `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify derives a URL slug from a clinic name.
func Slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// ValidSlug reports whether s is lowercase alphanumerics separated by single dashes.
func ValidSlug(s string) bool {
	return len(s) <= 64 && slugPattern.MatchString(s)
}
