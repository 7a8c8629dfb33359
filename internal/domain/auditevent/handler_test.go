package auditevent

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/audit/audittest"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

func requestAs(method, target string, p *auth.Principal) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	return req
}

func TestHandler_List(t *testing.T) {
	rec := &audittest.Recorder{}
	seed(t, rec,
		&audit.Event{Action: audit.ActionView, EntityType: audit.EntityPatient, CreatedAt: time.Now()},
		&audit.Event{Action: audit.ActionCreate, EntityType: audit.EntityReferral, CreatedAt: time.Now()},
	)
	h := NewHandler(NewService(rec, nil))
	e := echo.New()

	w := httptest.NewRecorder()
	c := e.NewContext(requestAs(http.MethodGet, "/?entity_type=referral", principal(auth.RoleSupport)), w)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"total":1`) || !strings.Contains(w.Body.String(), `"entity_type":"referral"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestHandler_List_AdminForbidden(t *testing.T) {
	h := NewHandler(NewService(&audittest.Recorder{}, nil))
	e := echo.New()

	c := e.NewContext(requestAs(http.MethodGet, "/", principal(auth.RoleClinicAdmin)), httptest.NewRecorder())
	err := h.List(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_WritesRejected(t *testing.T) {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			staff := &auth.Principal{ID: uuid.New(), Role: auth.RoleSupport, Staff: true}
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), staff)))
			return next(c)
		}
	})
	NewHandler(NewService(&audittest.Recorder{}, nil)).RegisterRoutes(api)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/audit/events"},
		{http.MethodPut, "/api/v1/audit/events/" + uuid.NewString()},
		{http.MethodPatch, "/api/v1/audit/events/" + uuid.NewString()},
		{http.MethodDelete, "/api/v1/audit/events/" + uuid.NewString()},
	} {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestHandler_AnonymousWritesForbidden(t *testing.T) {
	e := echo.New()
	NewHandler(NewService(&audittest.Recorder{}, nil)).RegisterRoutes(e.Group("/api/v1"))

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/audit/events"},
		{http.MethodDelete, "/api/v1/audit/events/" + uuid.NewString()},
	} {
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{"action":"view"}`)))
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", tc.method, tc.path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "read-only") {
			t.Errorf("%s %s: unexpected body %s", tc.method, tc.path, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous read: expected 401, got %d", w.Code)
	}
}
