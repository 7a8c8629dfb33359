package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"not found", NotFound("referral not found"), http.StatusNotFound},
		{"validation", Validation("end must be after start"), http.StatusBadRequest},
		{"conflict", Conflict("note exists"), http.StatusConflict},
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized},
		{"wrapped", fmt.Errorf("book: %w", NotFound("patient not found")), http.StatusNotFound},
		{"sentinel", ErrConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", Forbidden("therapist %s", "x"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatal("expected errors.Is(err, ErrForbidden)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("did not expect ErrNotFound")
	}
}

func TestHTTP_ValidationFields(t *testing.T) {
	err := ValidationWithFields("invalid transition", map[string]interface{}{
		"allowed_transitions": []string{"needs_info", "approved"},
	})
	he := HTTP(err)
	if he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", he.Code)
	}
	body, ok := he.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map body, got %T", he.Message)
	}
	if body["detail"] != "invalid transition" {
		t.Errorf("unexpected detail: %v", body["detail"])
	}
	allowed, ok := body["allowed_transitions"].([]string)
	if !ok || len(allowed) != 2 {
		t.Errorf("expected allowed_transitions in body, got %v", body["allowed_transitions"])
	}
}

func TestHTTP_InternalHidesMessage(t *testing.T) {
	he := HTTP(errors.New("pq: connection refused to 10.0.0.1"))
	if he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", he.Code)
	}
	body := he.Message.(map[string]interface{})
	if body["detail"] != "internal server error" {
		t.Errorf("internal error leaked: %v", body["detail"])
	}
	if he.Internal == nil {
		t.Error("expected internal error to be preserved for logging")
	}
}

func TestHTTP_Nil(t *testing.T) {
	if HTTP(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
