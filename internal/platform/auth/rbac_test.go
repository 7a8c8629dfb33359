package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func callWithPrincipal(t *testing.T, mw echo.MiddlewareFunc, p *Principal) (int, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec.Code, err
}

func TestRequireRole_Allowed(t *testing.T) {
	code, err := callWithPrincipal(t, RequireRole(RoleTherapist), &Principal{ID: uuid.New(), Role: RoleTherapist})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
}

func TestRequireRole_AdminAndStaffDominate(t *testing.T) {
	for _, p := range []*Principal{
		{ID: uuid.New(), Role: RoleClinicAdmin},
		{ID: uuid.New(), Role: RoleHelpSeeker, Staff: true},
	} {
		if _, err := callWithPrincipal(t, RequireRole(RoleSupport), p); err != nil {
			t.Errorf("expected %+v to pass, got %v", p, err)
		}
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := callWithPrincipal(t, RequireRole(RoleTherapist), &Principal{ID: uuid.New(), Role: RoleHelpSeeker})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_Anonymous(t *testing.T) {
	_, err := callWithPrincipal(t, RequireRole(RoleTherapist), nil)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	if _, err := callWithPrincipal(t, RequireAuthenticated(), nil); err == nil {
		t.Error("expected anonymous request to be rejected")
	}
	if _, err := callWithPrincipal(t, RequireAuthenticated(), &Principal{ID: uuid.New(), Role: RoleSupport}); err != nil {
		t.Errorf("expected authenticated request to pass, got %v", err)
	}
}

func TestPrincipal_IsAdmin(t *testing.T) {
	var nilP *Principal
	if nilP.IsAdmin() {
		t.Error("nil principal must not be admin")
	}
	if !(&Principal{Role: RoleClinicAdmin}).IsAdmin() {
		t.Error("clinic admin must be admin")
	}
	if !(&Principal{Role: RoleSupport, Staff: true}).IsAdmin() {
		t.Error("staff must be admin-equivalent")
	}
	if (&Principal{Role: RoleTherapist}).IsAdmin() {
		t.Error("therapist must not be admin")
	}
}

func TestCallerFrom(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "pytest-client/1.0")
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9, 10.0.0.1")
	p := &Principal{ID: uuid.New(), Role: RoleSupport}
	req = req.WithContext(WithPrincipal(req.Context(), p))
	c := e.NewContext(req, httptest.NewRecorder())

	caller := CallerFrom(c)
	if caller.Principal != p {
		t.Error("expected principal to be carried over")
	}
	if caller.ClientIP != "203.0.113.9" {
		t.Errorf("expected first forwarded address, got %q", caller.ClientIP)
	}
	if caller.UserAgent != "pytest-client/1.0" {
		t.Errorf("unexpected user agent %q", caller.UserAgent)
	}
	if id := caller.ActorID(); id == nil || *id != p.ID {
		t.Errorf("unexpected actor id %v", id)
	}
	if (Caller{}).ActorID() != nil {
		t.Error("anonymous caller must have nil actor id")
	}
}
