package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

// User mirrors an authenticated principal so other tables can reference it.
type User struct {
	ID          uuid.UUID `json:"id"`
	Role        auth.Role `json:"role"`
	Staff       bool      `json:"is_staff"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func userFromPrincipal(p *auth.Principal) *User {
	return &User{ID: p.ID, Role: p.Role, Staff: p.Staff}
}
