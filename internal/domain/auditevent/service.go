package auditevent

import (
	"context"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/policy"
)

// Service is the read-only view of the audit log.
type Service struct {
	reader    audit.Reader
	sanitizer *audit.Sanitizer
}

func NewService(reader audit.Reader, sanitizer *audit.Sanitizer) *Service {
	if sanitizer == nil {
		sanitizer = audit.NewDefaultSanitizer()
	}
	return &Service{reader: reader, sanitizer: sanitizer}
}

func (s *Service) authorize(caller auth.Caller) error {
	if !caller.Authenticated() {
		return apperr.Unauthenticated()
	}
	if !policy.CanReadAudit(caller.Principal) {
		return apperr.Forbidden("audit log is restricted to support staff")
	}
	return nil
}

// clean returns a copy of e with metadata sanitized again. Rows written
// before a key was added to the forbidden set are still scrubbed on output.
func (s *Service) clean(e *audit.Event) *audit.Event {
	cp := *e
	cp.Metadata = s.sanitizer.Sanitize(e.Metadata)
	return &cp
}

func (s *Service) List(ctx context.Context, caller auth.Caller, q Query, limit, offset int) ([]*audit.Event, int, error) {
	if err := s.authorize(caller); err != nil {
		return nil, 0, err
	}
	f, err := q.Filter()
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.reader.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*audit.Event, 0, len(items))
	for _, e := range items {
		out = append(out, s.clean(e))
	}
	return out, total, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*audit.Event, error) {
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	e, err := s.reader.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.clean(e), nil
}

// Write rejects every mutation of the audit surface.
func (s *Service) Write(caller auth.Caller) error {
	if !policy.CanWriteAudit(caller.Principal) {
		return apperr.Forbidden("audit events are read-only")
	}
	return nil
}
