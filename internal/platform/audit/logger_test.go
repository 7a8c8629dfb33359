package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/karinehei/TherapyCare/internal/platform/auth"
)

type memoryStore struct {
	events []*Event
	err    error
}

func (m *memoryStore) Append(_ context.Context, e *Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestLogEvent_SanitizesAndStores(t *testing.T) {
	store := &memoryStore{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLogger(store, nil, zerolog.Nop(), WithClock(func() time.Time { return fixed }))

	actor := uuid.New()
	err := l.LogEvent(context.Background(), Entry{
		Action:     ActionCreate,
		EntityType: EntitySessionNote,
		EntityID:   "note-1",
		Metadata:   map[string]interface{}{"body": "<sensitive text>", "appointment_id": "a-1"},
		ActorID:    &actor,
		ClientIP:   "127.0.0.1",
		UserAgent:  "test",
	})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	ev := store.events[0]
	if _, ok := ev.Metadata["body"]; ok {
		t.Error("body key stored in metadata")
	}
	for _, v := range ev.Metadata {
		if s, ok := v.(string); ok && strings.Contains(s, "sensitive") {
			t.Error("sensitive text stored in metadata")
		}
	}
	if ev.Metadata["appointment_id"] != "a-1" {
		t.Errorf("expected appointment_id to be kept, got %v", ev.Metadata)
	}
	if ev.ID == uuid.Nil {
		t.Error("expected generated id")
	}
	if !ev.CreatedAt.Equal(fixed) {
		t.Errorf("expected created_at %v, got %v", fixed, ev.CreatedAt)
	}
	if ev.ActorID == nil || *ev.ActorID != actor {
		t.Errorf("unexpected actor %v", ev.ActorID)
	}
}

func TestLogEvent_UniqueIDs(t *testing.T) {
	store := &memoryStore{}
	l := NewLogger(store, nil, zerolog.Nop())
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 50; i++ {
		if err := l.LogEvent(context.Background(), Entry{Action: ActionView, EntityType: EntityPatient}); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}
	for _, e := range store.events {
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestLogEvent_NilMetadataBecomesEmpty(t *testing.T) {
	store := &memoryStore{}
	l := NewLogger(store, nil, zerolog.Nop())
	if err := l.LogEvent(context.Background(), Entry{Action: ActionLogout, EntityType: EntityUser}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if store.events[0].Metadata == nil {
		t.Error("expected empty, non-nil metadata")
	}
	if store.events[0].ActorID != nil {
		t.Error("expected nil actor for system event")
	}
}

func TestLogEvent_InvalidInput(t *testing.T) {
	l := NewLogger(&memoryStore{}, nil, zerolog.Nop())
	if err := l.LogEvent(context.Background(), Entry{Action: "approve", EntityType: EntityReferral}); err == nil {
		t.Error("expected error for unknown action")
	}
	if err := l.LogEvent(context.Background(), Entry{Action: ActionView}); err == nil {
		t.Error("expected error for missing entity type")
	}
}

func TestLogEvent_StoreFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	l := NewLogger(&memoryStore{err: storeErr}, nil, zerolog.Nop())
	err := l.LogEvent(context.Background(), Entry{Action: ActionCreate, EntityType: EntityAppointment})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestLogEvent_Counter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_events_total"}, []string{"action", "entity_type"})
	l := NewLogger(&memoryStore{}, nil, zerolog.Nop(), WithCounter(counter))
	for i := 0; i < 3; i++ {
		_ = l.LogEvent(context.Background(), Entry{Action: ActionView, EntityType: EntityReferral})
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("view", "referral")); got != 3 {
		t.Errorf("expected counter 3, got %v", got)
	}
}

func TestNewEntry(t *testing.T) {
	p := &auth.Principal{ID: uuid.New(), Role: auth.RoleTherapist}
	e := NewEntry(auth.Caller{Principal: p, ClientIP: "10.0.0.2", UserAgent: "ua"},
		ActionUpdate, EntityReferral, "r-1", map[string]interface{}{"fields": []string{"status"}})
	if e.ActorID == nil || *e.ActorID != p.ID {
		t.Errorf("unexpected actor %v", e.ActorID)
	}
	if e.ClientIP != "10.0.0.2" || e.UserAgent != "ua" || e.EntityID != "r-1" {
		t.Errorf("unexpected entry %+v", e)
	}

	anon := NewEntry(auth.Caller{}, ActionCreate, EntityReferral, "r-2", nil)
	if anon.ActorID != nil {
		t.Error("anonymous entry must have nil actor")
	}
}
