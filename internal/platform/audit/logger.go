package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Store persists events. Append must join the transaction bound to ctx so an
// audit failure rolls back the operation being audited.
type Store interface {
	Append(ctx context.Context, e *Event) error
}

// Reader is the read side of the audit store.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Event, int, error)
}

// Logger is the single write path into the audit log.
type Logger struct {
	store     Store
	sanitizer *Sanitizer
	log       zerolog.Logger
	written   *prometheus.CounterVec
	now       func() time.Time
}

type Option func(*Logger)

// WithCounter counts written events by action and entity type.
func WithCounter(c *prometheus.CounterVec) Option {
	return func(l *Logger) { l.written = c }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func NewLogger(store Store, sanitizer *Sanitizer, log zerolog.Logger, opts ...Option) *Logger {
	if sanitizer == nil {
		sanitizer = NewDefaultSanitizer()
	}
	l := &Logger{
		store:     store,
		sanitizer: sanitizer,
		log:       log,
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Sanitizer exposes the sanitizer so readers can re-apply it on output.
func (l *Logger) Sanitizer() *Sanitizer {
	return l.sanitizer
}

// LogEvent sanitizes e.Metadata, assigns a fresh id and timestamp, and
// appends the event. The returned error must abort the enclosing transaction.
func (l *Logger) LogEvent(ctx context.Context, e Entry) error {
	if !ValidAction(e.Action) {
		return fmt.Errorf("audit: invalid action %q", e.Action)
	}
	if e.EntityType == "" {
		return fmt.Errorf("audit: entity type is required")
	}

	ev := &Event{
		ID:         uuid.New(),
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Metadata:   l.sanitizer.Sanitize(e.Metadata),
		ClientIP:   e.ClientIP,
		UserAgent:  e.UserAgent,
		CreatedAt:  l.now().UTC(),
	}

	if err := l.store.Append(ctx, ev); err != nil {
		l.log.Error().Err(err).
			Str("action", string(ev.Action)).
			Str("entity_type", ev.EntityType).
			Str("entity_id", ev.EntityID).
			Msg("audit write failed")
		return fmt.Errorf("audit: append event: %w", err)
	}

	if l.written != nil {
		l.written.WithLabelValues(string(ev.Action), ev.EntityType).Inc()
	}
	l.log.Debug().
		Str("audit_id", ev.ID.String()).
		Str("action", string(ev.Action)).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID).
		Msg("audit event")
	return nil
}
