package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Role is the single role carried by an authenticated principal.
type Role string

const (
	RoleHelpSeeker  Role = "help_seeker"
	RoleTherapist   Role = "therapist"
	RoleClinicAdmin Role = "clinic_admin"
	RoleSupport     Role = "support"
)

var validRoles = map[Role]bool{
	RoleHelpSeeker:  true,
	RoleTherapist:   true,
	RoleClinicAdmin: true,
	RoleSupport:     true,
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return validRoles[r]
}

// Principal is the authenticated identity resolved from a request. A nil
// *Principal means the request is unauthenticated.
type Principal struct {
	ID    uuid.UUID `json:"id"`
	Role  Role      `json:"role"`
	Staff bool      `json:"is_staff"`
}

// IsAdmin reports ClinicAdmin-equivalent rights. The staff flag always grants them.
func (p *Principal) IsAdmin() bool {
	return p != nil && (p.Role == RoleClinicAdmin || p.Staff)
}

// HasRole reports whether p is authenticated with role r.
func (p *Principal) HasRole(r Role) bool {
	return p != nil && p.Role == r
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored in ctx, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// Caller bundles what a resource service needs to know about the request
// origin: who is asking and from where. The address fields feed the audit log.
type Caller struct {
	Principal *Principal
	ClientIP  string
	UserAgent string
}

// ActorID returns the principal id, or nil for unauthenticated callers.
func (c Caller) ActorID() *uuid.UUID {
	if c.Principal == nil {
		return nil
	}
	id := c.Principal.ID
	return &id
}

// Authenticated reports whether the caller resolved to a principal.
func (c Caller) Authenticated() bool {
	return c.Principal != nil
}

// CallerFrom builds a Caller from an echo request context.
func CallerFrom(c echo.Context) Caller {
	return Caller{
		Principal: PrincipalFromContext(c.Request().Context()),
		ClientIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
