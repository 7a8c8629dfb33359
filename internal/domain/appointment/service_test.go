package appointment

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/karinehei/TherapyCare/internal/domain/directory"
	"github.com/karinehei/TherapyCare/internal/domain/patient"
	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
	"github.com/karinehei/TherapyCare/internal/platform/audit/audittest"
	"github.com/karinehei/TherapyCare/internal/platform/auth"
	"github.com/karinehei/TherapyCare/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	notes map[uuid.UUID]*SessionNote
	// therapistUsers maps therapist profile ids to user ids, as the join would.
	therapistUsers map[uuid.UUID]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		appts:          map[uuid.UUID]*Appointment{},
		notes:          map[uuid.UUID]*SessionNote{},
		therapistUsers: map[uuid.UUID]uuid.UUID{},
	}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) add(a *Appointment) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusBooked
	}
	cp := *a
	m.appts[a.ID] = &cp
	return a
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (m *mockRepo) List(_ context.Context, scope Scope, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if scope.All || (scope.TherapistUserID != nil && a.TherapistUserID == *scope.TherapistUserID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *mockRepo) GetNote(_ context.Context, appointmentID uuid.UUID) (*SessionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[appointmentID]
	if !ok {
		return nil, apperr.NotFound("session note not found")
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) CreateNote(_ context.Context, n *SessionNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[n.AppointmentID]; ok {
		return apperr.Conflict("session note already exists")
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	cp := *n
	m.notes[n.AppointmentID] = &cp
	return nil
}

func (m *mockRepo) UpdateNote(_ context.Context, n *SessionNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[n.AppointmentID]; !ok {
		return apperr.NotFound("session note not found")
	}
	n.UpdatedAt = time.Now()
	cp := *n
	m.notes[n.AppointmentID] = &cp
	return nil
}

type stubPatients map[uuid.UUID]*patient.Patient

func (s stubPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("patient not found")
}

type stubTherapists map[uuid.UUID]*directory.TherapistProfile

func (s stubTherapists) GetByID(_ context.Context, id uuid.UUID) (*directory.TherapistProfile, error) {
	if t, ok := s[id]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("therapist not found")
}

// -- Fixture --

type fixture struct {
	repo      *mockRepo
	rec       *audittest.Recorder
	svc       *Service
	counter   *prometheus.CounterVec
	patient   *patient.Patient
	therapist *directory.TherapistProfile
	// assigned is the therapist principal behind therapist.
	assigned *auth.Principal
}

func newFixture() *fixture {
	repo := newMockRepo()
	logger, rec := audittest.NewLogger()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "appointments_total"}, []string{"status"})

	assigned := &auth.Principal{ID: uuid.New(), Role: auth.RoleTherapist}
	therapist := &directory.TherapistProfile{ID: uuid.New(), UserID: assigned.ID, DisplayName: "Dr. Lind"}
	pt := &patient.Patient{ID: uuid.New(), Name: "Jo Doe"}
	repo.therapistUsers[therapist.ID] = assigned.ID

	svc := NewService(repo,
		stubPatients{pt.ID: pt},
		stubTherapists{therapist.ID: therapist},
		db.NopTransactor{}, logger, WithStatusCounter(counter))
	return &fixture{repo: repo, rec: rec, svc: svc, counter: counter, patient: pt, therapist: therapist, assigned: assigned}
}

func (f *fixture) appointment() *Appointment {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return f.repo.add(&Appointment{
		PatientID:       f.patient.ID,
		TherapistID:     f.therapist.ID,
		StartsAt:        start,
		EndsAt:          start.Add(50 * time.Minute),
		TherapistUserID: f.assigned.ID,
	})
}

func (f *fixture) withNote(a *Appointment, body string) {
	_ = f.repo.CreateNote(context.Background(), &SessionNote{AppointmentID: a.ID, AuthorUserID: f.assigned.ID, Body: body})
}

func as(p *auth.Principal) auth.Caller {
	return auth.Caller{Principal: p, ClientIP: "10.0.0.1", UserAgent: "test"}
}

func principal(role auth.Role) *auth.Principal {
	return &auth.Principal{ID: uuid.New(), Role: role}
}

func (f *fixture) bookInput() BookInput {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	return BookInput{PatientID: f.patient.ID, TherapistID: f.therapist.ID, StartsAt: start, EndsAt: start.Add(time.Hour)}
}

// -- Book --

func TestBook(t *testing.T) {
	f := newFixture()
	d, err := f.svc.Book(context.Background(), as(f.assigned), f.bookInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusBooked || d.TherapistName != "Dr. Lind" || d.PatientName != "Jo Doe" {
		t.Errorf("unexpected appointment %+v", d.Appointment)
	}
	if n := f.rec.Count(audit.ActionCreate, audit.EntityAppointment); n != 1 {
		t.Errorf("expected 1 create audit, got %d", n)
	}
	md := f.rec.Last().Metadata
	if md["patient_id"] != f.patient.ID.String() || md["therapist_id"] != f.therapist.ID.String() {
		t.Errorf("unexpected metadata %v", md)
	}
	if v := testutil.ToFloat64(f.counter.WithLabelValues("booked")); v != 1 {
		t.Errorf("expected booked counter 1, got %v", v)
	}
}

func TestBook_Errors(t *testing.T) {
	f := newFixture()
	in := f.bookInput()

	reversed := in
	reversed.EndsAt = in.StartsAt.Add(-time.Minute)
	equal := in
	equal.EndsAt = in.StartsAt
	unknownPatient := in
	unknownPatient.PatientID = uuid.New()
	unknownTherapist := in
	unknownTherapist.TherapistID = uuid.New()

	tests := []struct {
		name   string
		caller auth.Caller
		in     BookInput
		want   error
	}{
		{"anonymous", as(nil), in, apperr.ErrUnauthenticated},
		{"help seeker", as(principal(auth.RoleHelpSeeker)), in, apperr.ErrForbidden},
		{"support", as(principal(auth.RoleSupport)), in, apperr.ErrForbidden},
		{"help seeker with bad times still forbidden", as(principal(auth.RoleHelpSeeker)), reversed, apperr.ErrForbidden},
		{"end before start", as(f.assigned), reversed, apperr.ErrValidation},
		{"end equals start", as(f.assigned), equal, apperr.ErrValidation},
		{"unknown patient", as(f.assigned), unknownPatient, apperr.ErrValidation},
		{"unknown therapist", as(principal(auth.RoleClinicAdmin)), unknownTherapist, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tt.caller, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := len(f.rec.Events()); n != 0 {
		t.Errorf("failed bookings must not audit, got %d events", n)
	}
}

func TestBook_AuditFailureAborts(t *testing.T) {
	f := newFixture()
	f.rec.Err = errors.New("disk full")
	if _, err := f.svc.Book(context.Background(), as(f.assigned), f.bookInput()); err == nil {
		t.Fatal("expected audit failure to surface")
	}
	if v := testutil.ToFloat64(f.counter.WithLabelValues("booked")); v != 0 {
		t.Errorf("counter must not move on failure, got %v", v)
	}
}

// -- Get / masking --

func TestGet_Masking(t *testing.T) {
	f := newFixture()
	a := f.appointment()
	f.withNote(a, "patient discussed sleep")

	staffTherapist := &auth.Principal{ID: f.assigned.ID, Role: auth.RoleTherapist, Staff: true}
	tests := []struct {
		name   string
		viewer *auth.Principal
		want   string
	}{
		{"assigned therapist", f.assigned, "patient discussed sleep"},
		{"staff assigned therapist", staffTherapist, "patient discussed sleep"},
		{"clinic admin", principal(auth.RoleClinicAdmin), Redacted},
		{"support", principal(auth.RoleSupport), Redacted},
		{"staff support", &auth.Principal{ID: uuid.New(), Role: auth.RoleSupport, Staff: true}, Redacted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.svc.Get(context.Background(), as(tt.viewer), a.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.SessionNote == nil || d.SessionNote.Body != tt.want {
				t.Errorf("expected body %q, got %+v", tt.want, d.SessionNote)
			}
		})
	}

	stored, _ := f.repo.GetNote(context.Background(), a.ID)
	if stored.Body != "patient discussed sleep" {
		t.Error("masking must not modify the stored note")
	}
	if n := f.rec.Count(audit.ActionView, audit.EntityAppointment); n != len(tests) {
		t.Errorf("expected %d view audits, got %d", len(tests), n)
	}
}

func TestGet_WithoutNote(t *testing.T) {
	f := newFixture()
	a := f.appointment()
	d, err := f.svc.Get(context.Background(), as(f.assigned), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.SessionNote != nil {
		t.Errorf("expected no note, got %+v", d.SessionNote)
	}
}

func TestGet_NotVisible(t *testing.T) {
	f := newFixture()
	a := f.appointment()

	tests := []struct {
		name   string
		caller auth.Caller
		id     uuid.UUID
		want   error
	}{
		{"other therapist", as(principal(auth.RoleTherapist)), a.ID, apperr.ErrNotFound},
		{"help seeker", as(principal(auth.RoleHelpSeeker)), a.ID, apperr.ErrNotFound},
		{"missing", as(principal(auth.RoleClinicAdmin)), uuid.New(), apperr.ErrNotFound},
		{"anonymous", as(nil), a.ID, apperr.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Get(context.Background(), tt.caller, tt.id)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := len(f.rec.Events()); n != 0 {
		t.Errorf("denied reads must not audit, got %d events", n)
	}
}

func TestAssembleDetail_DoesNotMutateInput(t *testing.T) {
	a := &Appointment{ID: uuid.New(), TherapistUserID: uuid.New()}
	note := &SessionNote{Body: "private"}
	d := AssembleDetail(a, note, principal(auth.RoleClinicAdmin))
	if d.SessionNote.Body != Redacted {
		t.Errorf("expected redaction, got %q", d.SessionNote.Body)
	}
	if note.Body != "private" {
		t.Error("input note was modified")
	}
}

// -- List --

func TestList_Scope(t *testing.T) {
	f := newFixture()
	f.appointment()
	f.repo.add(&Appointment{PatientID: f.patient.ID, TherapistUserID: uuid.New(), StartsAt: time.Now()})

	tests := []struct {
		name string
		p    *auth.Principal
		want int
	}{
		{"admin", principal(auth.RoleClinicAdmin), 2},
		{"support", principal(auth.RoleSupport), 2},
		{"staff", &auth.Principal{ID: uuid.New(), Role: auth.RoleHelpSeeker, Staff: true}, 2},
		{"assigned therapist", f.assigned, 1},
		{"other therapist", principal(auth.RoleTherapist), 0},
		{"help seeker", principal(auth.RoleHelpSeeker), 0},
		{"anonymous", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := f.svc.List(context.Background(), as(tt.p), 20, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if total != tt.want {
				t.Errorf("expected %d, got %d", tt.want, total)
			}
		})
	}
}

// -- Session notes --

func TestCreateNote(t *testing.T) {
	f := newFixture()
	a := f.appointment()

	n, err := f.svc.CreateNote(context.Background(), as(f.assigned), a.ID, "first session")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.AuthorUserID != f.assigned.ID || n.Body != "first session" {
		t.Errorf("unexpected note %+v", n)
	}
	if c := f.rec.Count(audit.ActionCreate, audit.EntitySessionNote); c != 1 {
		t.Errorf("expected 1 create audit, got %d", c)
	}
	if got := f.rec.Last().Metadata["appointment_id"]; got != a.ID.String() {
		t.Errorf("expected appointment_id %s, got %v", a.ID, got)
	}
}

func TestNoteAudit_RecordsOnlyAppointmentID(t *testing.T) {
	f := newFixture()
	a := f.appointment()
	body := "patient discussed sleep"

	if _, err := f.svc.CreateNote(context.Background(), as(f.assigned), a.ID, body); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if _, err := f.svc.UpdateNote(context.Background(), as(f.assigned), a.ID, body+" and work"); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	want := map[string]interface{}{"appointment_id": a.ID.String()}
	for _, ev := range f.rec.Events() {
		if ev.EntityType != audit.EntitySessionNote {
			continue
		}
		if !reflect.DeepEqual(ev.Metadata, want) {
			t.Errorf("%s: unexpected metadata %v", ev.Action, ev.Metadata)
		}
	}
	if n := f.rec.Count(audit.ActionCreate, audit.EntitySessionNote) + f.rec.Count(audit.ActionUpdate, audit.EntitySessionNote); n != 2 {
		t.Errorf("expected create and update events, got %d", n)
	}
}

func TestCreateNote_Errors(t *testing.T) {
	f := newFixture()
	a := f.appointment()
	withNote := f.appointment()
	f.withNote(withNote, "existing")

	tests := []struct {
		name   string
		caller auth.Caller
		id     uuid.UUID
		body   string
		want   error
	}{
		{"anonymous", as(nil), a.ID, "x", apperr.ErrUnauthenticated},
		{"missing appointment", as(f.assigned), uuid.New(), "x", apperr.ErrNotFound},
		{"other therapist", as(principal(auth.RoleTherapist)), a.ID, "x", apperr.ErrForbidden},
		{"clinic admin", as(principal(auth.RoleClinicAdmin)), a.ID, "x", apperr.ErrForbidden},
		{"staff", as(&auth.Principal{ID: uuid.New(), Role: auth.RoleSupport, Staff: true}), a.ID, "x", apperr.ErrForbidden},
		{"existing note", as(f.assigned), withNote.ID, "x", apperr.ErrConflict},
		{"blank body", as(f.assigned), a.ID, "  ", apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateNote(context.Background(), tt.caller, tt.id, tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateNote(t *testing.T) {
	f := newFixture()
	a := f.appointment()

	if _, err := f.svc.UpdateNote(context.Background(), as(f.assigned), a.ID, "edit"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound without a note, got %v", err)
	}

	f.withNote(a, "draft")
	n, err := f.svc.UpdateNote(context.Background(), as(f.assigned), a.ID, "final")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Body != "final" {
		t.Errorf("expected updated body, got %q", n.Body)
	}
	if c := f.rec.Count(audit.ActionUpdate, audit.EntitySessionNote); c != 1 {
		t.Errorf("expected 1 update audit, got %d", c)
	}

	if _, err := f.svc.UpdateNote(context.Background(), as(principal(auth.RoleTherapist)), a.ID, "x"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected Forbidden for other therapist, got %v", err)
	}
}

// -- Status --

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	a := f.appointment()

	d, err := f.svc.UpdateStatus(context.Background(), as(f.assigned), a.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", d.Status)
	}
	if v := testutil.ToFloat64(f.counter.WithLabelValues("completed")); v != 1 {
		t.Errorf("expected completed counter 1, got %v", v)
	}

	// Same status is a no-op and is not audited again.
	if _, err := f.svc.UpdateStatus(context.Background(), as(f.assigned), a.ID, StatusCompleted); err != nil {
		t.Fatalf("unexpected error on no-op: %v", err)
	}
	if n := f.rec.Count(audit.ActionUpdate, audit.EntityAppointment); n != 1 {
		t.Errorf("expected 1 update audit, got %d", n)
	}

	if _, err := f.svc.UpdateStatus(context.Background(), as(f.assigned), a.ID, StatusCancelled); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("completed appointments cannot be cancelled, got %v", err)
	}
}

func TestUpdateStatus_Permissions(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		caller auth.Caller
		status Status
		want   error
	}{
		{"admin cancels", as(principal(auth.RoleClinicAdmin)), StatusCancelled, nil},
		{"support", as(principal(auth.RoleSupport)), StatusCancelled, apperr.ErrForbidden},
		{"other therapist", as(principal(auth.RoleTherapist)), StatusCancelled, apperr.ErrNotFound},
		{"unknown status", as(f.assigned), Status("no_show"), apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := f.appointment()
			_, err := f.svc.UpdateStatus(context.Background(), tt.caller, a.ID, tt.status)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// -- Timeline --

func TestPatientTimeline(t *testing.T) {
	f := newFixture()
	a := f.appointment()
	a.TherapistName = "Dr. Lind"
	f.repo.appts[a.ID].TherapistName = "Dr. Lind"
	f.repo.add(&Appointment{PatientID: uuid.New(), StartsAt: time.Now()})

	entries, err := f.svc.PatientTimeline(context.Background(), f.patient.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != a.ID || entries[0].Status != "booked" || entries[0].TherapistName != "Dr. Lind" {
		t.Errorf("unexpected timeline %+v", entries)
	}
}
