package clinic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

func jsonRequest(method, body string, p *auth.Principal) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	return req
}

func TestHandler_CreateAndGetClinic(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	admin := &auth.Principal{ID: uuid.New(), Role: auth.RoleClinicAdmin}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Harbor Clinic"}`, admin), rec)
	if err := h.CreateClinic(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("slug")
	c.SetParamValues("harbor-clinic")
	if err := h.GetClinic(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"slug":"harbor-clinic"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_GetClinic_NotFound(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("slug")
	c.SetParamValues("nope")

	err := h.GetClinic(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_CreateClinic_Forbidden(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	therapist := &auth.Principal{ID: uuid.New(), Role: auth.RoleTherapist}

	err := h.CreateClinic(e.NewContext(jsonRequest(http.MethodPost, `{"name":"X"}`, therapist), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_ListClinics(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := h.ListClinics(e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"limit":5`) {
		t.Errorf("expected pagination envelope, got %s", rec.Body.String())
	}
}
