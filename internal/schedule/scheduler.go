// Package schedule holds the reminder scheduler and deferred-work
// abstractions the effects dispatcher talks to, plus in-memory
// implementations used by the CLI and tests.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

// Scheduler manages named, cancellable reminders keyed by (proposal, kind).
// Cancelling kinds that were never scheduled must be tolerated: the
// dispatcher's authoritative action on every status change is "cancel these
// kinds, then create these kinds".
type Scheduler interface {
	CreateEvents(ctx context.Context, p *domain.Proposal, kinds []domain.ReminderKind) error
	CancelEventsByKinds(ctx context.Context, proposalID string, kinds []domain.ReminderKind) error
	CancelAll(ctx context.Context, proposalID string) error
}

// DeferredRunner runs expensive derived-artifact work off the synchronous
// request path after a short fixed delay. Scheduling the same (proposal,
// kind) key again supersedes the pending run.
type DeferredRunner interface {
	Schedule(proposalID, kind string, delay time.Duration, fn func(context.Context))
	Cancel(proposalID, kind string)
}

// MemoryScheduler keeps reminder entries in memory. Reminder delivery itself
// is an external concern; this implementation records the authoritative view.
type MemoryScheduler struct {
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]map[domain.ReminderKind]time.Time
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{entries: map[string]map[domain.ReminderKind]time.Time{}}
}

func (s *MemoryScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryScheduler) CreateEvents(_ context.Context, p *domain.Proposal, kinds []domain.ReminderKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(kinds) == 0 {
		return nil
	}
	due := s.now().UTC()
	if p.DueDateForStatus != nil {
		due = *p.DueDateForStatus
	}
	m := s.entries[p.ID]
	if m == nil {
		m = map[domain.ReminderKind]time.Time{}
		s.entries[p.ID] = m
	}
	for _, k := range kinds {
		m[k] = due
	}
	return nil
}

func (s *MemoryScheduler) CancelEventsByKinds(_ context.Context, proposalID string, kinds []domain.ReminderKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.entries[proposalID]
	for _, k := range kinds {
		delete(m, k)
	}
	return nil
}

func (s *MemoryScheduler) CancelAll(_ context.Context, proposalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, proposalID)
	return nil
}

// Events returns the scheduled reminder kinds for a proposal.
func (s *MemoryScheduler) Events(proposalID string) map[domain.ReminderKind]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.ReminderKind]time.Time{}
	for k, v := range s.entries[proposalID] {
		out[k] = v
	}
	return out
}

// TimerRunner defers work on real timers.
type TimerRunner struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerRunner() *TimerRunner {
	return &TimerRunner{timers: map[string]*time.Timer{}}
}

func runnerKey(proposalID, kind string) string {
	return proposalID + "/" + kind
}

func (r *TimerRunner) Schedule(proposalID, kind string, delay time.Duration, fn func(context.Context)) {
	key := runnerKey(proposalID, kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()
		fn(context.Background())
	})
}

func (r *TimerRunner) Cancel(proposalID, kind string) {
	key := runnerKey(proposalID, kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// SyncRunner executes deferred work immediately; tests use it to assert
// scheduling without real delays.
type SyncRunner struct{}

func (SyncRunner) Schedule(_, _ string, _ time.Duration, fn func(context.Context)) {
	fn(context.Background())
}

func (SyncRunner) Cancel(_, _ string) {}
