package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/clock"
)

// MemoryStore is an in-process Lead Store with the same conditional-update
// semantics as Repository. It backs tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	leads       map[string]domain.Lead
	transitions []Transition
	clock       clock.Clock
}

// NewMemoryStore creates an empty store. A nil clock uses the system clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{leads: make(map[string]domain.Lead), clock: clk}
}

func cloneLead(l domain.Lead) domain.Lead {
	m := &l.Meeting
	m.MeetingTime = cloneTime(m.MeetingTime)
	m.NoBookReminderTime = cloneTime(m.NoBookReminderTime)
	m.NoShowTime = cloneTime(m.NoShowTime)
	return l
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Get loads a lead by email.
func (s *MemoryStore) Get(_ context.Context, email string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg)
	}
	return cloneLead(l), nil
}

// Find returns every lead matching filter, oldest first.
func (s *MemoryStore) Find(_ context.Context, filter Filter) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lead, 0)
	for _, l := range s.leads {
		if filter.Match(l) {
			out = append(out, cloneLead(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

// UpdateOne applies patch if the lead identified by filter.Email still matches filter.
func (s *MemoryStore) UpdateOne(_ context.Context, filter Filter, patch Patch) (bool, error) {
	if filter.Email == "" {
		return false, apperr.Validation("conditional update requires an email")
	}
	if patch.Empty() {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeEmail(filter.Email)
	l, ok := s.leads[key]
	if !ok || !filter.Match(l) {
		return false, nil
	}
	patch.Apply(&l, s.clock.Now())
	s.leads[key] = cloneLead(l)
	return true, nil
}

// Insert stores a new lead. A duplicate email is a conflict.
func (s *MemoryStore) Insert(_ context.Context, lead domain.Lead) error {
	if lead.Email == "" {
		return apperr.Validation("lead email is required")
	}
	if !lead.Meeting.Status.Valid() {
		return apperr.Validation("lead status is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeEmail(lead.Email)
	if _, exists := s.leads[key]; exists {
		return apperr.Conflict("lead already exists")
	}
	now := s.clock.Now()
	lead.Email = key
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	s.leads[key] = cloneLead(lead)
	return nil
}

// DeleteByEmail removes a lead.
func (s *MemoryStore) DeleteByEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeEmail(email)
	if _, ok := s.leads[key]; !ok {
		return apperr.NotFound(leadNotFoundMsg)
	}
	delete(s.leads, key)
	return nil
}

// RecordTransition appends one status change.
func (s *MemoryStore) RecordTransition(_ context.Context, t Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.OccurredAt.IsZero() {
		t.OccurredAt = s.clock.Now()
	}
	t.Email = domain.NormalizeEmail(t.Email)
	s.transitions = append(s.transitions, t)
	return nil
}

// ListTransitions returns the newest transitions for email first.
func (s *MemoryStore) ListTransitions(_ context.Context, email string, limit int) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < 1 {
		limit = 50
	}
	key := domain.NormalizeEmail(email)
	var out []Transition
	for i := len(s.transitions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.transitions[i].Email == key {
			out = append(out, s.transitions[i])
		}
	}
	return out, nil
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ TransitionLog = (*MemoryStore)(nil)
)
