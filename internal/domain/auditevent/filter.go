package auditevent

import (
	"time"

	"github.com/google/uuid"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
)

// Query is the raw filter set taken from the request.
type Query struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	DateFrom   string
	DateTo     string
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts RFC 3339 and naive timestamps. Naive values are UTC.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Filter converts q into a store filter. Unparseable dates are ignored;
// a malformed actor id or an unknown action is a validation error.
func (q Query) Filter() (audit.Filter, error) {
	f := audit.Filter{EntityType: q.EntityType, EntityID: q.EntityID}
	if q.Actor != "" {
		id, err := uuid.Parse(q.Actor)
		if err != nil {
			return f, apperr.Validation("actor must be a UUID")
		}
		f.ActorID = &id
	}
	if q.Action != "" {
		a := audit.Action(q.Action)
		if !audit.ValidAction(a) {
			return f, apperr.Validation("unknown action %q", q.Action)
		}
		f.Action = a
	}
	if t, ok := parseDate(q.DateFrom); ok {
		f.From = &t
	}
	if t, ok := parseDate(q.DateTo); ok {
		f.To = &t
	}
	return f, nil
}
