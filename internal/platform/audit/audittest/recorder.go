// Package audittest provides an in-memory audit store for tests.
package audittest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karinehei/TherapyCare/internal/platform/apperr"
	"github.com/karinehei/TherapyCare/internal/platform/audit"
)

// Recorder implements audit.Store and audit.Reader in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*audit.Event
	// Err, when set, is returned by Append.
	Err error
}

func (r *Recorder) Append(_ context.Context, e *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *Recorder) GetByID(_ context.Context, id uuid.UUID) (*audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperr.NotFound("audit event not found")
}

func (r *Recorder) List(_ context.Context, f audit.Filter, limit, offset int) ([]*audit.Event, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*audit.Event
	for _, e := range r.events {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matches(e *audit.Event, f audit.Filter) bool {
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Events returns a snapshot of everything appended so far.
func (r *Recorder) Events() []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*audit.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of events with the given action and entity type.
func (r *Recorder) Count(action audit.Action, entityType string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Action == action && e.EntityType == entityType {
			n++
		}
	}
	return n
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() *audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// NewLogger returns a Logger backed by a fresh Recorder.
func NewLogger() (*audit.Logger, *Recorder) {
	rec := &Recorder{}
	return audit.NewLogger(rec, nil, zerolog.Nop()), rec
}
